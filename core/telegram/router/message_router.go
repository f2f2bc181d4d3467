package router

import (
	"strings"

	tg "github.com/m3rciful/farebot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions configures TextRoutes.
type TextOptions struct {
	// Conversation receives every plain text message.
	Conversation tele.HandlerFunc
	// UnknownCommand receives slash commands that are not registered.
	UnknownCommand tele.HandlerFunc
	// UnknownDocument receives documents, which the bot does not accept.
	UnknownDocument tele.HandlerFunc
}

// TextRoutes routes plain text and documents. Registered commands typed with
// a bot suffix (for example /search@farebot) are resolved through the registry.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		msg := strings.TrimSpace(c.Text())
		if strings.HasPrefix(msg, "/") {
			word, _, _ := strings.Cut(msg, " ")
			if reg != nil {
				if name, cmd, ok := reg.LookupCommand(word); ok && !cmd.AdminOnly {
					return handleWithSummary(c, handlerName("", name), cmd.Handler)
				}
			}
			return runOrSkip(c, "unknown_command", opts.UnknownCommand)
		}
		return runOrSkip(c, "conversation", opts.Conversation)
	}
	doc := func(c tele.Context) error {
		return runOrSkip(c, "unexpected_document", opts.UnknownDocument)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(doc)},
	}
}

func runOrSkip(c tele.Context, name string, h tele.HandlerFunc) error {
	if h == nil {
		h = func(tele.Context) error { return Outcome{Status: "skip", Outcome: "ok"} }
	}
	return handleWithSummary(c, name, h)
}
