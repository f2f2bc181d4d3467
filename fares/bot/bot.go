// Package bot is the Telegram surface of farebot: commands, callbacks, free
// text and price alerts.
package bot

import (
	"context"
	"errors"

	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/core/telegram/router"
	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/registration"
	"github.com/m3rciful/farebot/fares/tracker"

	tele "gopkg.in/telebot.v4"
)

// Catalog lists the known destinations.
type Catalog interface {
	All() []catalog.CityEntry
	Len() int
}

// Flow is the registration conversation.
type Flow interface {
	Start(userID int64) registration.Reply
	Handle(ctx context.Context, user registration.User, text string) registration.Reply
	Cancel(userID int64) bool
}

// Browser pages through fares.
type Browser interface {
	Open(ctx context.Context, chatID int64) (browse.Page, error)
	Step(ctx context.Context, chatID int64, delta int) (browse.Page, error)
	Select(ctx context.Context, chatID int64, index int) (tracker.Ticket, browse.Page, error)
}

// Tickets removes tracked tickets.
type Tickets interface {
	Get(ctx context.Context, chatID int64) (tracker.Ticket, bool, error)
	Untrack(ctx context.Context, chatID int64) (bool, error)
}

// ReferenceData reloads the city table on operator request.
type ReferenceData interface {
	Reload(ctx context.Context) error
	Source() string
}

// Options configures New.
type Options struct {
	Catalog   Catalog
	Flow      Flow
	Browser   Browser
	Tickets   Tickets
	Reference ReferenceData
	// HomeCity and HomeAirportName appear in search replies.
	HomeCity        string
	HomeAirportName string
}

// Handlers holds the bot's update handlers.
type Handlers struct {
	catalog     Catalog
	flow        Flow
	browser     Browser
	tickets     Tickets
	ref         ReferenceData
	homeCity    string
	homeAirport string
}

// New validates opts.
func New(opts Options) (*Handlers, error) {
	if opts.Catalog == nil || opts.Flow == nil || opts.Browser == nil || opts.Tickets == nil || opts.Reference == nil {
		return nil, errors.New("bot: catalog, flow, browser, tickets and reference data are required")
	}
	h := &Handlers{
		catalog:     opts.Catalog,
		flow:        opts.Flow,
		browser:     opts.Browser,
		tickets:     opts.Tickets,
		ref:         opts.Reference,
		homeCity:    opts.HomeCity,
		homeAirport: opts.HomeAirportName,
	}
	if h.homeCity == "" {
		h.homeCity = "Warsaw"
	}
	if h.homeAirport == "" {
		h.homeAirport = "Warsaw Chopin"
	}
	return h, nil
}

// Register adds the commands and the fare callback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	commands := []struct {
		name string
		cmd  tg.Command
	}{
		{"/start", tg.Command{Handler: h.Start, Description: "Start and pick a city"}},
		{"/search", tg.Command{Handler: h.Search, Description: "Browse cheapest flights"}},
		{"/cancel", tg.Command{Handler: h.Cancel, Description: "Cancel registration"}},
		{"/untrack", tg.Command{Handler: h.Untrack, Description: "Stop tracking the ticket"}},
		{"/reload", tg.Command{Handler: h.Reload, Description: "Reload reference data", AdminOnly: true}},
	}
	for _, c := range commands {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.StaleButton)
	return reg.RegisterCallback(fareUnique, h.Fare)
}

// TextOptions routes free text into the registration flow.
func (h *Handlers) TextOptions() router.TextOptions {
	return router.TextOptions{
		Conversation:    h.Text,
		UnknownCommand:  h.UnknownCommand,
		UnknownDocument: h.UnknownDocument,
	}
}

// StaleButton answers callbacks from keyboards the bot no longer knows.
func (h *Handlers) StaleButton(c tele.Context) error {
	return c.Respond(&tele.CallbackResponse{Text: textStaleButton})
}

// RateLimited answers updates dropped by the rate limiter.
func (h *Handlers) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: textSlowDown})
	}
	return nil
}
