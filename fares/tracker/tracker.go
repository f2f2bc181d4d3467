package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/state"
	"github.com/m3rciful/farebot/fares/search"
)

// DefaultInterval is the reconcile period used when Run gets a non-positive interval.
const DefaultInterval = 3 * time.Hour

// Options configures New.
type Options struct {
	Store    Store
	Searcher Searcher
	Notifier Notifier
	Metrics  Recorder
	Now      func() time.Time
}

// Tracker is the only writer of ticket baselines.
type Tracker struct {
	store    Store
	searcher Searcher
	notifier Notifier
	rec      Recorder
	now      func() time.Time
	locks    *state.KeyedMutex[int64]
}

// New returns a Tracker. Store defaults to a MemoryStore.
func New(opts Options) (*Tracker, error) {
	if opts.Searcher == nil {
		return nil, errors.New("tracker: searcher is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("tracker: notifier is required")
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:    store,
		searcher: opts.Searcher,
		notifier: opts.Notifier,
		rec:      opts.Metrics,
		now:      now,
		locks:    state.NewKeyedMutex[int64](),
	}, nil
}

func (tr *Tracker) stamp() time.Time {
	return tr.now().UTC().Truncate(time.Microsecond)
}

// Track starts tracking t for its chat, replacing any previous ticket.
func (tr *Tracker) Track(ctx context.Context, t Ticket) (Ticket, error) {
	if t.ChatID == 0 {
		return Ticket{}, errors.New("tracker: chat id is required")
	}
	t.IATACode = strings.ToUpper(strings.TrimSpace(t.IATACode))
	if t.IATACode == "" {
		return Ticket{}, errors.New("tracker: airport code is required")
	}
	t.CreatedAt = tr.stamp()
	t.UpdatedAt = t.CreatedAt

	unlock := tr.locks.Lock(t.ChatID)
	err := tr.store.Put(ctx, t)
	unlock()
	if err != nil {
		return Ticket{}, err
	}

	logger.Info(logger.WithChat(ctx, t.ChatID), "tracker", "ticket.tracked",
		slog.String("status", "ok"),
		slog.String("city", t.City),
		slog.String("iata", t.IATACode),
		slog.String("price", t.BaselinePrice.String()),
	)
	tr.recordTracked(ctx)
	return t, nil
}

// Untrack stops tracking for chatID and reports whether a ticket existed.
func (tr *Tracker) Untrack(ctx context.Context, chatID int64) (bool, error) {
	unlock := tr.locks.Lock(chatID)
	ok, err := tr.store.Delete(ctx, chatID)
	unlock()
	if err != nil {
		return false, err
	}
	if ok {
		logger.Info(logger.WithChat(ctx, chatID), "tracker", "ticket.untracked", slog.String("status", "ok"))
		tr.recordTracked(ctx)
	}
	return ok, nil
}

// Get returns the ticket tracked by chatID.
func (tr *Tracker) Get(ctx context.Context, chatID int64) (Ticket, bool, error) {
	return tr.store.Get(ctx, chatID)
}

// List returns every tracked ticket.
func (tr *Tracker) List(ctx context.Context) ([]Ticket, error) {
	return tr.store.List(ctx)
}

func (tr *Tracker) recordTracked(ctx context.Context) {
	if tr.rec == nil {
		return
	}
	tickets, err := tr.store.List(ctx)
	if err != nil {
		return
	}
	tr.rec.Tracked(len(tickets))
}

// Reconcile re-prices every ticket once, sequentially. A failing ticket is
// logged and counted; it never stops the pass. An empty search result leaves
// the ticket untouched.
func (tr *Tracker) Reconcile(ctx context.Context) Summary {
	start := time.Now()
	var sum Summary

	tickets, err := tr.store.List(ctx)
	if err != nil {
		logger.Error(ctx, "tracker", "reconcile.list",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return sum
	}

	for _, t := range tickets {
		if ctx.Err() != nil {
			break
		}
		sum.Checked++
		tctx := logger.WithChat(ctx, t.ChatID)

		res, err := tr.searcher.Search(tctx, t.IATACode)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			sum.Failed++
			logger.Warn(tctx, "tracker", "ticket.search",
				slog.String("status", "fail"),
				slog.String("iata", t.IATACode),
				slog.String("err", err.Error()),
			)
			continue
		}
		opt, ok := res.Cheapest()
		if !ok {
			sum.Empty++
			logger.Debug(tctx, "tracker", "ticket.search",
				slog.String("status", "skip"),
				slog.String("outcome", "empty"),
				slog.String("iata", t.IATACode),
			)
			continue
		}
		if opt.Price.Equal(t.BaselinePrice) {
			sum.Unchanged++
			continue
		}

		ev, applied, err := tr.apply(tctx, t, opt)
		switch {
		case err != nil:
			sum.Failed++
			logger.Warn(tctx, "tracker", "ticket.update",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			continue
		case !applied:
			sum.Skipped++
			logger.Debug(tctx, "tracker", "ticket.update",
				slog.String("status", "skip"),
				slog.String("iata", t.IATACode),
			)
			continue
		}

		sum.Changed++
		if tr.rec != nil {
			tr.rec.PriceChanged(ev.Direction)
		}
		logger.Info(tctx, "tracker", "price.changed",
			slog.String("status", "ok"),
			slog.String("iata", t.IATACode),
			slog.String("direction", string(ev.Direction)),
			slog.String("old_price", ev.OldPrice.String()),
			slog.String("new_price", ev.NewPrice.String()),
		)
		if err := tr.notifier.NotifyPriceChanged(tctx, ev); err != nil {
			logger.Warn(tctx, "tracker", "notify",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	took := time.Since(start)
	if tr.rec != nil {
		tr.rec.ReconcileDone(sum, took)
	}
	logger.Info(ctx, "tracker", "reconcile.done",
		slog.String("status", reconcileStatus(ctx, sum)),
		slog.Int("checked", sum.Checked),
		slog.Int("changed", sum.Changed),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("empty", sum.Empty),
		slog.Int("failed", sum.Failed),
		slog.Int("skipped", sum.Skipped),
		slog.Duration("duration", took),
	)
	return sum
}

func reconcileStatus(ctx context.Context, sum Summary) string {
	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case sum.Failed > 0 && sum.Failed == sum.Checked:
		return "fail"
	case sum.Failed > 0:
		return "degraded"
	default:
		return "ok"
	}
}

// apply moves the baseline to the new price under the chat's lock. The stored
// ticket is re-read first: a ticket that was removed or replaced while the
// search ran is left alone.
func (tr *Tracker) apply(ctx context.Context, seen Ticket, opt search.FlightOption) (PriceChanged, bool, error) {
	unlock := tr.locks.Lock(seen.ChatID)
	defer unlock()

	cur, ok, err := tr.store.Get(ctx, seen.ChatID)
	if err != nil {
		return PriceChanged{}, false, err
	}
	if !ok || !seen.sameTarget(cur) || opt.Price.Equal(cur.BaselinePrice) {
		return PriceChanged{}, false, nil
	}

	old := cur.BaselinePrice
	cur.BaselinePrice = opt.Price
	if opt.BookingLink != "" {
		cur.BookingLink = opt.BookingLink
	}
	cur.UpdatedAt = tr.stamp()
	if err := tr.store.Put(ctx, cur); err != nil {
		return PriceChanged{}, false, fmt.Errorf("tracker: update baseline: %w", err)
	}

	dir := Decreased
	if opt.Price.GreaterThan(old) {
		dir = Increased
	}
	return PriceChanged{
		Ticket:      cur,
		OldPrice:    old,
		NewPrice:    opt.Price,
		Direction:   dir,
		BookingLink: cur.BookingLink,
	}, true, nil
}

// Run calls Reconcile every interval until ctx is done. The first pass runs
// one interval after start.
func (tr *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger.Info(ctx, "tracker", "scheduler.start",
		slog.String("status", "ok"),
		slog.Duration("interval", interval),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "tracker", "scheduler.stop", slog.String("status", "cancelled"))
			return
		case <-ticker.C:
			tr.Reconcile(logger.WithRID(ctx, "rc-"+uuid.NewString()))
		}
	}
}
