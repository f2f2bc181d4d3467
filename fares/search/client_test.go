package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type provider struct {
	*httptest.Server
	hits atomic.Int32

	mu      sync.Mutex
	queries []url.Values
	apikey  string
}

func newProvider(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *provider {
	t.Helper()
	p := &provider{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		p.mu.Lock()
		p.queries = append(p.queries, r.URL.Query())
		p.apikey = r.Header.Get("apikey")
		p.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func reply(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

type callRecorder struct {
	mu       sync.Mutex
	outcomes []string
	states   []string
}

func (r *callRecorder) ObserveCall(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func (r *callRecorder) BreakerState(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

var fixedNow = time.Date(2026, time.January, 31, 15, 4, 0, 0, time.UTC)

func newTestClient(t *testing.T, p *provider, mutate ...func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL: p.URL,
		APIKey:  "key-1",
		Client:  p.Client(),
		Now:     func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

const twoFlights = `{"data":[
 {"price":480,"deep_link":"https://book/1","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Vienna","flyTo":"VIE","local_departure":"2026-03-01T06:15:00.000Z"},
   {"cityFrom":"Vienna","flyFrom":"VIE","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-01T12:00:00.000Z"}]},
 {"price":512.5,"deep_link":"https://book/2","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-04T09:00:00.000Z"}]},
 {"price":900,"deep_link":"https://book/3","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-05T09:00:00.000Z"}]}
]}`

func TestSearchFound(t *testing.T) {
	p := newProvider(t, reply(http.StatusOK, twoFlights))
	c := newTestClient(t, p)

	res, err := c.Search(context.Background(), "tas")
	require.NoError(t, err)
	require.True(t, res.Found())
	require.Len(t, res.Flights, 2, "results are limited to two options")

	first := res.Flights[0]
	assert.True(t, decimal.NewFromInt(480).Equal(first.Price))
	assert.Equal(t, "Warsaw", first.OriginCity)
	assert.Equal(t, "WAW", first.OriginAirport)
	assert.Equal(t, "Tashkent", first.DestinationCity)
	assert.Equal(t, "TAS", first.DestinationAirport)
	assert.Equal(t, 1, first.Stops)
	assert.Equal(t, "https://book/1", first.BookingLink)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), first.DepartureDate)

	assert.Equal(t, 0, res.Flights[1].Stops)
	assert.True(t, decimal.RequireFromString("512.5").Equal(res.Flights[1].Price))

	cheapest, ok := res.Cheapest()
	require.True(t, ok)
	assert.Equal(t, first, cheapest)

	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queries[0]
	assert.Equal(t, "WAW", q.Get("fly_from"))
	assert.Equal(t, "TAS", q.Get("fly_to"))
	assert.Equal(t, "01/02/2026", q.Get("date_from"))
	assert.Equal(t, "31/07/2026", q.Get("date_to"))
	assert.Equal(t, "2", q.Get("limit"))
	assert.Equal(t, "1", q.Get("max_stopovers"))
	assert.Equal(t, "key-1", p.apikey)
}

func TestSearchEmptyIsNotAnError(t *testing.T) {
	p := newProvider(t, reply(http.StatusOK, `{"data":[]}`))
	c := newTestClient(t, p)

	res, err := c.Search(context.Background(), "TAS")
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.False(t, res.Found())
	_, ok := res.Cheapest()
	assert.False(t, ok)
}

func TestSearchSkipsItinerariesWithoutPrice(t *testing.T) {
	p := newProvider(t, reply(http.StatusOK, `{"data":[
 {"deep_link":"https://book/0","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-01T06:15:00.000Z"}]},
 {"price":null,"deep_link":"https://book/1","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-02T06:15:00.000Z"}]},
 {"price":530,"deep_link":"https://book/2","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-03T06:15:00.000Z"}]}
]}`))
	c := newTestClient(t, p)

	res, err := c.Search(context.Background(), "TAS")
	require.NoError(t, err)
	require.True(t, res.Found())
	require.Len(t, res.Flights, 1)
	assert.Equal(t, "https://book/2", res.Flights[0].BookingLink)
	assert.True(t, decimal.NewFromInt(530).Equal(res.Flights[0].Price))
}

func TestSearchOnlyUnpricedItinerariesIsEmpty(t *testing.T) {
	p := newProvider(t, reply(http.StatusOK, `{"data":[{"deep_link":"https://book/0","route":[
   {"cityFrom":"Warsaw","flyFrom":"WAW","cityTo":"Tashkent","flyTo":"TAS","local_departure":"2026-03-01T06:15:00.000Z"}]}]}`))
	c := newTestClient(t, p)

	res, err := c.Search(context.Background(), "TAS")
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, res.Status)
}

func TestMaxStopovers(t *testing.T) {
	zero, two, negative := 0, 2, -1
	tests := []struct {
		name string
		max  *int
		want string
	}{
		{name: "unset uses one", max: nil, want: "1"},
		{name: "zero means direct only", max: &zero, want: "0"},
		{name: "explicit value", max: &two, want: "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t, reply(http.StatusOK, `{"data":[]}`))
			c := newTestClient(t, p, func(o *Options) { o.MaxStopovers = tt.max })
			_, err := c.Search(context.Background(), "TAS")
			require.NoError(t, err)

			p.mu.Lock()
			defer p.mu.Unlock()
			assert.Equal(t, tt.want, p.queries[0].Get("max_stopovers"))
		})
	}

	_, err := NewClient(Options{BaseURL: "https://tickets.example", MaxStopovers: &negative})
	assert.ErrorContains(t, err, "max stopovers")
}

func TestSearchSourceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "missing data", status: http.StatusOK, body: `{"error":"quota"}`},
		{name: "invalid json", status: http.StatusOK, body: `{"data":[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t, reply(tt.status, tt.body))
			c := newTestClient(t, p)
			_, err := c.Search(context.Background(), "TAS")
			assert.ErrorIs(t, err, ErrSource)
		})
	}
}

func TestResolveCity(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("term") == "Tashkent" {
			_, _ = w.Write([]byte(`{"locations":[{"code":""},{"code":"TAS"},{"code":"TAS2"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"locations":[]}`))
	})
	rec := &callRecorder{}
	c := newTestClient(t, p, func(o *Options) { o.Metrics = rec })

	code, err := c.ResolveCity(context.Background(), " Tashkent ")
	require.NoError(t, err)
	assert.Equal(t, "TAS", code)

	for i := 0; i < 10; i++ {
		_, err = c.ResolveCity(context.Background(), "Atlantis")
		require.ErrorIs(t, err, ErrCityNotFound)
	}
	assert.Equal(t, "closed", c.breaker.State().String(), "unknown cities do not trip the breaker")
	assert.Equal(t, "resolve:ok", rec.outcomes[0])
	assert.Equal(t, "resolve:empty", rec.outcomes[1])
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := newProvider(t, reply(http.StatusBadGateway, ``))
	rec := &callRecorder{}
	c := newTestClient(t, p, func(o *Options) {
		o.Metrics = rec
		o.Breaker = BreakerOptions{ConsecutiveFailures: 3, Timeout: time.Hour}
	})

	for i := 0; i < 3; i++ {
		_, err := c.Search(context.Background(), "TAS")
		require.ErrorIs(t, err, ErrSource)
	}
	_, err := c.Search(context.Background(), "TAS")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 3, p.hits.Load(), "an open breaker does not reach the provider")
	assert.Equal(t, []string{"open"}, rec.states)
	assert.Equal(t, "search:rate_limited", rec.outcomes[len(rec.outcomes)-1])
}

func TestWindowPolicy(t *testing.T) {
	p := newProvider(t, reply(http.StatusOK, `{"data":[]}`))
	now := fixedNow
	clock := func() time.Time { return now }

	snap := newTestClient(t, p, func(o *Options) { o.Now = clock })
	per := newTestClient(t, p, func(o *Options) { o.Now = clock; o.Window = WindowPerCall })

	now = fixedNow.AddDate(0, 0, 10)
	assert.Equal(t, WindowAt(fixedNow), snap.Window(), "snapshot keeps the construction-time window")
	assert.Equal(t, WindowAt(now), per.Window())
}

func TestWindowAt(t *testing.T) {
	w := WindowAt(time.Date(2026, time.August, 31, 23, 59, 0, 0, time.UTC))
	from, to := w.params()
	assert.Equal(t, "01/09/2026", from)
	assert.Equal(t, "03/03/2027", to, "AddDate normalizes the overflowing day")
}

func TestParseWindowPolicy(t *testing.T) {
	for in, want := range map[string]WindowPolicy{"": WindowSnapshot, "Snapshot": WindowSnapshot, "per_call": WindowPerCall, "per-call": WindowPerCall} {
		got, err := ParseWindowPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWindowPolicy("weekly")
	assert.Error(t, err)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}
