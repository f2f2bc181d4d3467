// Package browse pages a chat through the catalog, searching flights for the
// entry on screen and starting to track a selected one.
package browse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/state"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/search"
	"github.com/m3rciful/farebot/fares/tracker"
)

var (
	// ErrUnavailable is returned while no reference data is loaded.
	ErrUnavailable = errors.New("browse: reference data unavailable")
	// ErrNoFlights is returned by Select when there is nothing to track.
	ErrNoFlights = errors.New("browse: no flights to track")
	// ErrOutOfRange is returned for an index outside the catalog.
	ErrOutOfRange = errors.New("browse: index out of range")
)

// Catalog is the read side of the city catalog.
type Catalog interface {
	At(i int) (catalog.CityEntry, bool)
	Len() int
}

// Searcher runs a flight search for an airport code.
type Searcher interface {
	Search(ctx context.Context, destination string) (search.Result, error)
}

// Tracker starts tracking a ticket.
type Tracker interface {
	Track(ctx context.Context, t tracker.Ticket) (tracker.Ticket, error)
}

// Availability reports whether reference data is missing.
type Availability interface {
	Degraded() bool
}

// FallbackPolicy decides what to show when the requested entry has no
// flights: when Enabled, the entry at Index is searched instead.
type FallbackPolicy struct {
	Enabled bool
	Index   int
}

// DefaultFallbackPolicy falls back to the second catalog entry.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{Enabled: true, Index: 1}
}

// FallbackNotice tells that Page.Entry replaced the requested entry.
type FallbackNotice struct {
	Requested catalog.CityEntry
}

// Page is one screen of results.
type Page struct {
	// Index is the catalog position the chat is on.
	Index    int
	Total    int
	Entry    catalog.CityEntry
	Status   search.Status
	Flights  []search.FlightOption
	Fallback *FallbackNotice
}

// Options configures New.
type Options struct {
	Catalog      Catalog
	Searcher     Searcher
	Tracker      Tracker
	Availability Availability
	Fallback     FallbackPolicy
}

// Browser keeps one position per chat.
type Browser struct {
	catalog  Catalog
	searcher Searcher
	tracker  Tracker
	avail    Availability
	fallback FallbackPolicy
	index    *state.Store[int64, int]
}

// New returns a Browser. A zero Fallback disables the fallback.
func New(opts Options) (*Browser, error) {
	if opts.Catalog == nil || opts.Searcher == nil || opts.Tracker == nil {
		return nil, errors.New("browse: catalog, searcher and tracker are required")
	}
	return &Browser{
		catalog:  opts.Catalog,
		searcher: opts.Searcher,
		tracker:  opts.Tracker,
		avail:    opts.Availability,
		fallback: opts.Fallback,
		index:    state.NewStore[int64, int](),
	}, nil
}

func (b *Browser) available() (int, error) {
	if b.avail != nil && b.avail.Degraded() {
		return 0, ErrUnavailable
	}
	n := b.catalog.Len()
	if n == 0 {
		return 0, ErrUnavailable
	}
	return n, nil
}

// Open resets the chat to the first entry and returns its page.
func (b *Browser) Open(ctx context.Context, chatID int64) (Page, error) {
	if _, err := b.available(); err != nil {
		return Page{}, err
	}
	b.index.Put(chatID, 0)
	return b.page(ctx, 0)
}

// Step moves the chat by delta entries, wrapping around both ends.
func (b *Browser) Step(ctx context.Context, chatID int64, delta int) (Page, error) {
	n, err := b.available()
	if err != nil {
		return Page{}, err
	}
	var idx int
	b.index.Update(chatID, func(cur int, _ bool) (int, bool) {
		idx = ((cur+delta)%n + n) % n
		return idx, true
	})
	return b.page(ctx, idx)
}

// Select searches the entry at index and tracks its first option for the
// chat. The fallback policy applies, so the tracked city may be the fallback entry.
func (b *Browser) Select(ctx context.Context, chatID int64, index int) (tracker.Ticket, Page, error) {
	n, err := b.available()
	if err != nil {
		return tracker.Ticket{}, Page{}, err
	}
	if index < 0 || index >= n {
		return tracker.Ticket{}, Page{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	b.index.Put(chatID, index)

	p, err := b.page(ctx, index)
	if err != nil {
		return tracker.Ticket{}, Page{}, err
	}
	if len(p.Flights) == 0 {
		return tracker.Ticket{}, p, ErrNoFlights
	}
	first := p.Flights[0]
	t, err := b.tracker.Track(ctx, tracker.Ticket{
		ChatID:        chatID,
		City:          p.Entry.City,
		IATACode:      p.Entry.IATACode,
		BaselinePrice: first.Price,
		BookingLink:   first.BookingLink,
	})
	if err != nil {
		return tracker.Ticket{}, p, err
	}
	return t, p, nil
}

// Position returns the chat's current index.
func (b *Browser) Position(chatID int64) int {
	idx, _ := b.index.Get(chatID)
	return idx
}

func (b *Browser) page(ctx context.Context, idx int) (Page, error) {
	entry, ok := b.catalog.At(idx)
	if !ok {
		return Page{}, fmt.Errorf("%w: %d", ErrOutOfRange, idx)
	}
	res, err := b.searcher.Search(ctx, entry.IATACode)
	if err != nil {
		return Page{}, fmt.Errorf("browse: search %s: %w", entry.IATACode, err)
	}
	p := Page{Index: idx, Total: b.catalog.Len(), Entry: entry, Status: res.Status, Flights: res.Flights}
	if res.Found() {
		return p, nil
	}
	return b.applyFallback(ctx, p), nil
}

// applyFallback returns p unchanged unless the policy finds flights elsewhere.
func (b *Browser) applyFallback(ctx context.Context, p Page) Page {
	fb := b.fallback
	if !fb.Enabled || fb.Index == p.Index {
		return p
	}
	alt, ok := b.catalog.At(fb.Index)
	if !ok {
		return p
	}
	res, err := b.searcher.Search(ctx, alt.IATACode)
	if err != nil || !res.Found() {
		status := "skip"
		if err != nil {
			status = "fail"
		}
		logger.Debug(ctx, "browse", "fallback",
			slog.String("status", status),
			slog.String("requested", p.Entry.IATACode),
			slog.String("fallback", alt.IATACode),
		)
		return p
	}
	logger.Info(ctx, "browse", "fallback",
		slog.String("status", "ok"),
		slog.String("requested", p.Entry.IATACode),
		slog.String("fallback", alt.IATACode),
	)
	return Page{
		Index:    p.Index,
		Total:    p.Total,
		Entry:    alt,
		Status:   res.Status,
		Flights:  res.Flights,
		Fallback: &FallbackNotice{Requested: p.Entry},
	}
}
