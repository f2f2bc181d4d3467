// Package tracker owns the tracked tickets and re-prices them on a schedule.
package tracker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/farebot/fares/search"
)

// Ticket is the price a chat is watching. A chat tracks at most one ticket.
type Ticket struct {
	ChatID        int64           `db:"chat_id"`
	City          string          `db:"city"`
	IATACode      string          `db:"iata_code"`
	BaselinePrice decimal.Decimal `db:"baseline_price"`
	BookingLink   string          `db:"booking_link"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// sameTarget reports whether cur is still the ticket a reconcile pass started with.
func (t Ticket) sameTarget(cur Ticket) bool {
	return t.ChatID == cur.ChatID && t.IATACode == cur.IATACode && t.CreatedAt.Equal(cur.CreatedAt)
}

// Direction of a price change.
type Direction string

const (
	Increased Direction = "increased"
	Decreased Direction = "decreased"
)

// PriceChanged is emitted when a reconcile finds a new price for a ticket.
// Ticket carries the updated baseline.
type PriceChanged struct {
	Ticket      Ticket
	OldPrice    decimal.Decimal
	NewPrice    decimal.Decimal
	Direction   Direction
	BookingLink string
}

// Searcher is the part of the search client the tracker needs.
type Searcher interface {
	Search(ctx context.Context, destination string) (search.Result, error)
}

// Notifier delivers price change events to the chat.
type Notifier interface {
	NotifyPriceChanged(ctx context.Context, ev PriceChanged) error
}

// Store persists tickets keyed by chat id.
type Store interface {
	Get(ctx context.Context, chatID int64) (Ticket, bool, error)
	Put(ctx context.Context, t Ticket) error
	Delete(ctx context.Context, chatID int64) (bool, error)
	List(ctx context.Context) ([]Ticket, error)
}

// Summary counts what one reconcile pass did.
type Summary struct {
	Checked   int
	Changed   int
	Unchanged int
	Empty     int
	Failed    int
	Skipped   int
}

// Recorder observes tracker activity. The metrics package implements it.
type Recorder interface {
	ReconcileDone(s Summary, took time.Duration)
	PriceChanged(dir Direction)
	Tracked(n int)
}
