package router

import (
	"errors"
	"testing"

	tg "github.com/m3rciful/farebot/core/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func newContext(t *testing.T, u tele.Update) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(u)
}

func textUpdate(id int, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: 5},
		Chat:   &tele.Chat{ID: 5},
	}}
}

func TestTextRoutes(t *testing.T) {
	var calls []string
	record := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { calls = append(calls, name); return nil }
	}

	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/search", tg.Command{Handler: record("search"), Description: "Search"}))
	require.NoError(t, reg.RegisterCommand("/reload", tg.Command{Handler: record("reload"), Description: "Reload", AdminOnly: true}))

	routes := TextRoutes(reg, TextOptions{
		Conversation:   record("conversation"),
		UnknownCommand: record("unknown"),
	})
	require.Len(t, routes, 2)
	text := routes[0].Handler

	tests := []struct {
		text string
		want string
	}{
		{text: "Tashkent", want: "conversation"},
		{text: "/search@farebot", want: "search"},
		{text: "/nope", want: "unknown"},
		{text: "/reload@farebot", want: "unknown"},
	}
	for i, tt := range tests {
		calls = nil
		require.NoError(t, text(newContext(t, textUpdate(100+i, tt.text))))
		assert.Equal(t, []string{tt.want}, calls, tt.text)
	}
}

func TestTextRoutesWithoutHandlersSkip(t *testing.T) {
	routes := TextRoutes(nil, TextOptions{})
	assert.NoError(t, routes[0].Handler(newContext(t, textUpdate(1, "hello"))))
	assert.NoError(t, routes[1].Handler(newContext(t, textUpdate(2, ""))))
}

func TestHandleWithSummaryOutcome(t *testing.T) {
	c := newContext(t, textUpdate(3, "x"))
	err := handleWithSummary(c, "test", func(tele.Context) error {
		return Outcome{Status: "skip", Outcome: "empty"}
	})
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = handleWithSummary(c, "test", func(tele.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCallbackRouteUsesRegistry(t *testing.T) {
	var got string
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCallback("fare", func(tele.Context) error { got = "fare"; return nil }))
	reg.SetCallbackNotFound(func(tele.Context) error { got = "missing"; return nil })

	route := CallbackRoute(reg)
	cb := func(id int, data string) tele.Update {
		return tele.Update{ID: id, Callback: &tele.Callback{
			ID:      "cb",
			Data:    data,
			Sender:  &tele.User{ID: 5},
			Message: &tele.Message{Chat: &tele.Chat{ID: 5}},
		}}
	}

	require.NoError(t, route.Handler(newContext(t, cb(10, "\fother|1"))))
	assert.Equal(t, "missing", got)
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "search", handlerName("", "/Search"))
	assert.Equal(t, "callback.unknown", handlerName("callback.", " "))
}
