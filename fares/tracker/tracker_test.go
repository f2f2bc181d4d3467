package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/farebot/fares/search"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]search.Result
	errs    map[string]error
	calls   []string
	// during runs inside Search, before the result is returned.
	during func(code string)
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{results: map[string]search.Result{}, errs: map[string]error{}}
}

func (f *fakeSearcher) price(code string, p int64, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[code] = search.Result{Status: search.StatusFound, Flights: []search.FlightOption{{
		Price:       decimal.NewFromInt(p),
		BookingLink: link,
	}}}
}

func (f *fakeSearcher) Search(_ context.Context, code string) (search.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, code)
	res, err, during := f.results[code], f.errs[code], f.during
	f.mu.Unlock()
	if during != nil {
		during(code)
	}
	return res, err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []PriceChanged
}

func (n *fakeNotifier) NotifyPriceChanged(_ context.Context, ev PriceChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) all() []PriceChanged {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PriceChanged(nil), n.events...)
}

func newTracker(t *testing.T) (*Tracker, *fakeSearcher, *fakeNotifier) {
	t.Helper()
	s := newFakeSearcher()
	n := &fakeNotifier{}
	clock := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	tr, err := New(Options{
		Searcher: s,
		Notifier: n,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	return tr, s, n
}

func track(t *testing.T, tr *Tracker, chatID int64, code string, price int64) Ticket {
	t.Helper()
	ticket, err := tr.Track(context.Background(), Ticket{
		ChatID:        chatID,
		City:          code + " city",
		IATACode:      code,
		BaselinePrice: decimal.NewFromInt(price),
		BookingLink:   "https://book/old",
	})
	require.NoError(t, err)
	return ticket
}

func TestReconcileEmitsDecreaseThenNothing(t *testing.T) {
	tr, s, n := newTracker(t)
	track(t, tr, 10, "TAS", 500)
	s.price("TAS", 480, "https://book/new")

	sum := tr.Reconcile(context.Background())
	assert.Equal(t, Summary{Checked: 1, Changed: 1}, sum)

	events := n.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, Decreased, ev.Direction)
	assert.True(t, ev.OldPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, ev.NewPrice.Equal(decimal.NewFromInt(480)))
	assert.Equal(t, "https://book/new", ev.BookingLink)
	assert.Equal(t, int64(10), ev.Ticket.ChatID)

	cur, ok, err := tr.Get(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cur.BaselinePrice.Equal(decimal.NewFromInt(480)))
	assert.True(t, cur.UpdatedAt.After(cur.CreatedAt))

	sum = tr.Reconcile(context.Background())
	assert.Equal(t, Summary{Checked: 1, Unchanged: 1}, sum)
	assert.Len(t, n.all(), 1, "same price twice emits nothing")
}

func TestReconcileIncrease(t *testing.T) {
	tr, s, n := newTracker(t)
	track(t, tr, 10, "TAS", 500)
	s.price("TAS", 530, "")

	tr.Reconcile(context.Background())
	events := n.all()
	require.Len(t, events, 1)
	assert.Equal(t, Increased, events[0].Direction)
	assert.Equal(t, "https://book/old", events[0].BookingLink, "an empty link keeps the previous one")
}

func TestReconcileEmptyIsNoop(t *testing.T) {
	tr, s, n := newTracker(t)
	before := track(t, tr, 10, "TAS", 500)
	s.results["TAS"] = search.Result{Status: search.StatusEmpty}

	sum := tr.Reconcile(context.Background())
	assert.Equal(t, Summary{Checked: 1, Empty: 1}, sum)
	assert.Empty(t, n.all())

	cur, _, _ := tr.Get(context.Background(), 10)
	assert.Equal(t, before, cur)
}

func TestReconcileContinuesAfterFailure(t *testing.T) {
	tr, s, n := newTracker(t)
	track(t, tr, 1, "AAA", 100)
	track(t, tr, 2, "BBB", 200)
	track(t, tr, 3, "CCC", 300)
	s.errs["AAA"] = errors.New("boom")
	s.price("BBB", 150, "")
	s.price("CCC", 350, "")

	sum := tr.Reconcile(context.Background())
	assert.Equal(t, Summary{Checked: 3, Changed: 2, Failed: 1}, sum)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, s.calls, "tickets are reconciled oldest first")

	events := n.all()
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Ticket.ChatID)
	assert.Equal(t, int64(3), events[1].Ticket.ChatID)
}

func TestReconcileSkipsRetargetedTicket(t *testing.T) {
	tr, s, n := newTracker(t)
	track(t, tr, 10, "TAS", 500)
	s.price("TAS", 480, "")
	s.during = func(string) {
		s.during = nil
		track(t, tr, 10, "PAR", 90)
	}

	sum := tr.Reconcile(context.Background())
	assert.Equal(t, Summary{Checked: 1, Skipped: 1}, sum)
	assert.Empty(t, n.all())

	cur, _, _ := tr.Get(context.Background(), 10)
	assert.Equal(t, "PAR", cur.IATACode)
	assert.True(t, cur.BaselinePrice.Equal(decimal.NewFromInt(90)))
}

func TestReconcileSkipsRemovedTicket(t *testing.T) {
	tr, s, n := newTracker(t)
	track(t, tr, 10, "TAS", 500)
	s.price("TAS", 480, "")
	s.during = func(string) {
		s.during = nil
		_, err := tr.Untrack(context.Background(), 10)
		require.NoError(t, err)
	}

	sum := tr.Reconcile(context.Background())
	assert.Equal(t, 1, sum.Skipped)
	assert.Empty(t, n.all())
	_, ok, _ := tr.Get(context.Background(), 10)
	assert.False(t, ok)
}

func TestTrackReplacesPreviousTicket(t *testing.T) {
	tr, _, _ := newTracker(t)
	track(t, tr, 10, "tas", 500)
	second := track(t, tr, 10, "PAR", 90)

	list, err := tr.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second, list[0])
	assert.Equal(t, "PAR", list[0].IATACode)

	ok, err := tr.Untrack(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tr.Untrack(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrackValidation(t *testing.T) {
	tr, _, _ := newTracker(t)
	_, err := tr.Track(context.Background(), Ticket{IATACode: "TAS"})
	assert.Error(t, err)
	_, err = tr.Track(context.Background(), Ticket{ChatID: 1, IATACode: " "})
	assert.Error(t, err)

	_, err = New(Options{Notifier: &fakeNotifier{}})
	assert.Error(t, err)
	_, err = New(Options{Searcher: newFakeSearcher()})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	tr, s, _ := newTracker(t)
	track(t, tr, 10, "TAS", 500)
	s.price("TAS", 500, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.calls) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
