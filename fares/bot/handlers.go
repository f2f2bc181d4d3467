package bot

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/farebot/core/telegram/helpers"
	"github.com/m3rciful/farebot/core/telegram/router"
	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/registration"

	tele "gopkg.in/telebot.v4"
)

func firstName(c tele.Context) string {
	if u := c.Sender(); u != nil {
		return u.FirstName
	}
	return ""
}

// Start greets the user and opens a registration session.
func (h *Handlers) Start(c tele.Context) error {
	_, userID := tghelpers.IDs(c)
	reply := h.flow.Start(userID)
	return tghelpers.SendBatch(c,
		tghelpers.Outgoing{Text: welcomeText(firstName(c))},
		tghelpers.Outgoing{Text: registrationText(reply, firstName(c))},
	)
}

// Search lists the catalog and shows the first fare page.
func (h *Handlers) Search(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID, _ := tghelpers.IDs(c)

	page, err := h.browser.Open(ctx, chatID)
	if err != nil {
		return h.browseFailed(c, err, false)
	}
	msgs := []tghelpers.Outgoing{{Text: searchIntroText(h.homeCity)}}
	if list := cityListText(h.catalog.All()); list != "" {
		msgs = append(msgs, tghelpers.Outgoing{Text: list})
	}
	msgs = append(msgs, h.pageMessages(page)...)
	return tghelpers.SendBatch(c, msgs...)
}

func (h *Handlers) pageMessages(p browse.Page) []tghelpers.Outgoing {
	var msgs []tghelpers.Outgoing
	if p.Fallback != nil {
		msgs = append(msgs, tghelpers.Outgoing{Text: noFlightsText(p.Fallback.Requested.City), Opts: []any{htmlOpts(nil)}})
	}
	return append(msgs, tghelpers.Outgoing{Text: pageText(p, h.homeAirport), Opts: []any{htmlOpts(pageKeyboard(p.Index))}})
}

// Fare handles the paging keyboard: previous, next or a catalog index to track.
func (h *Handlers) Fare(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID, _ := tghelpers.IDs(c)

	switch payload := strings.TrimSpace(callbacks.Payload(c)); payload {
	case payloadNext, payloadPrevious:
		delta := 1
		if payload == payloadPrevious {
			delta = -1
		}
		page, err := h.browser.Step(ctx, chatID, delta)
		if err != nil {
			return h.browseFailed(c, err, true)
		}
		if page.Fallback != nil {
			return tghelpers.SendBatch(c, h.pageMessages(page)...)
		}
		return tghelpers.EditOrSendText(c, pageText(page, h.homeAirport), htmlOpts(pageKeyboard(page.Index)))
	}

	index, err := callbacks.PayloadInt(c)
	if err != nil {
		return router.Outcome{Status: "skip", Outcome: "empty"}
	}
	ticket, page, err := h.browser.Select(ctx, chatID, index)
	if errors.Is(err, browse.ErrNoFlights) {
		return tghelpers.SendText(c, noFlightsText(page.Entry.City), htmlOpts(nil))
	}
	if err != nil {
		return h.browseFailed(c, err, true)
	}
	return tghelpers.SendText(c, trackedText(ticket), htmlOpts(nil))
}

// browseFailed tells the user why nothing can be shown. Raw errors stay in the log.
func (h *Handlers) browseFailed(c tele.Context, err error, callback bool) error {
	text := textSearchFailed
	outcome := "fail"
	if errors.Is(err, browse.ErrUnavailable) {
		text, outcome = textUnavailable, "empty"
	}
	logger.Warn(tghelpers.BuildContext(c), "bot", "browse",
		slog.String("status", "degraded"),
		slog.String("err", err.Error()),
	)
	if callback {
		_ = c.Respond(&tele.CallbackResponse{Text: strings.Split(text, "\n")[0]})
	}
	if sendErr := tghelpers.SendText(c, text); sendErr != nil {
		return sendErr
	}
	return router.Outcome{Status: "degraded", Outcome: outcome}
}

// Cancel drops a registration in progress.
func (h *Handlers) Cancel(c tele.Context) error {
	_, userID := tghelpers.IDs(c)
	if h.flow.Cancel(userID) {
		return tghelpers.SendText(c, "Registration cancelled. Send /start to begin again.")
	}
	return tghelpers.SendText(c, "Nothing to cancel.")
}

// Untrack stops tracking the chat's ticket.
func (h *Handlers) Untrack(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chatID, _ := tghelpers.IDs(c)

	ticket, ok, err := h.tickets.Get(ctx, chatID)
	if err == nil && ok {
		ok, err = h.tickets.Untrack(ctx, chatID)
	}
	if err != nil {
		logger.Error(ctx, "bot", "untrack", slog.String("status", "fail"), slog.String("err", err.Error()))
		return tghelpers.SendText(c, textSearchFailed)
	}
	return tghelpers.SendMD(c, untrackedText(ticket, ok))
}

// Reload re-runs the reference data fetch. It is registered admin only.
func (h *Handlers) Reload(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	err := h.ref.Reload(ctx)
	if err != nil {
		logger.Warn(ctx, "bot", "reload", slog.String("status", "fail"), slog.String("err", err.Error()))
	}
	return tghelpers.SendMD(c, reloadText(h.ref.Source(), h.catalog.Len(), err))
}

// Text feeds free text into the registration flow.
func (h *Handlers) Text(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user := registration.User{}
	if u := c.Sender(); u != nil {
		user = registration.User{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
	}
	reply := h.flow.Handle(ctx, user, c.Text())
	if err := tghelpers.SendText(c, registrationText(reply, user.FirstName)); err != nil {
		return err
	}
	if reply.Outcome == registration.OutcomeSessionAbsent {
		return router.Outcome{Status: "skip", Outcome: "empty"}
	}
	return nil
}

// UnknownCommand answers slash commands the bot does not know.
func (h *Handlers) UnknownCommand(c tele.Context) error {
	return tghelpers.SendText(c, textUnknownCommand)
}

// UnknownDocument answers uploaded files.
func (h *Handlers) UnknownDocument(c tele.Context) error {
	return tghelpers.SendText(c, textUnknownDoc)
}

// AdminRejected answers non-operators calling an admin command.
func (h *Handlers) AdminRejected(c tele.Context) error {
	return tghelpers.SendText(c, textAdminOnly)
}
