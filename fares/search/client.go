package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/netutil"
)

const (
	defaultHomeAirport  = "WAW"
	defaultLimit        = 2
	defaultMaxStopovers = 1
	maxBodyBytes        = 8 << 20
)

// Recorder observes provider calls. The metrics package implements it.
type Recorder interface {
	ObserveCall(op, outcome string, took time.Duration)
	BreakerState(state string)
}

// Options configures NewClient. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	APIKey       string
	HomeAirport  string
	Limit        int
	// MaxStopovers caps stopovers per itinerary; nil means one, zero means direct only.
	MaxStopovers *int
	Window       WindowPolicy
	Breaker      BreakerOptions
	Client       *http.Client
	Now          func() time.Time
	Metrics      Recorder
}

// Client queries the flight-search provider through a circuit breaker.
type Client struct {
	base         string
	apiKey       string
	home         string
	limit        int
	maxStopovers int
	policy       WindowPolicy
	snapshot     Window
	now          func() time.Time
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	rec          Recorder
}

// NewClient validates opts. With the snapshot policy the date window is fixed here.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("search: invalid base url %q", opts.BaseURL)
	}
	policy, err := ParseWindowPolicy(string(opts.Window))
	if err != nil {
		return nil, err
	}
	home := strings.ToUpper(strings.TrimSpace(opts.HomeAirport))
	if home == "" {
		home = defaultHomeAirport
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	stopovers := defaultMaxStopovers
	if opts.MaxStopovers != nil {
		if *opts.MaxStopovers < 0 {
			return nil, fmt.Errorf("search: max stopovers must be >= 0, got %d", *opts.MaxStopovers)
		}
		stopovers = *opts.MaxStopovers
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.Client
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: 20 * time.Second, Retries: 1})
	}

	c := &Client{
		base:         base,
		apiKey:       strings.TrimSpace(opts.APIKey),
		home:         home,
		limit:        limit,
		maxStopovers: stopovers,
		policy:       policy,
		now:          now,
		http:         client,
		breaker:      newBreaker(opts.Breaker, opts.Metrics),
		rec:          opts.Metrics,
	}
	c.snapshot = WindowAt(now())
	return c, nil
}

// HomeAirport returns the fixed origin of every search.
func (c *Client) HomeAirport() string { return c.home }

// Window returns the date window the next Search will use.
func (c *Client) Window() Window {
	if c.policy == WindowPerCall {
		return WindowAt(c.now())
	}
	return c.snapshot
}

type locationsResponse struct {
	Locations []struct {
		Code string `json:"code"`
	} `json:"locations"`
}

// ResolveCity returns the first location code the provider knows for name.
func (c *Client) ResolveCity(ctx context.Context, name string) (string, error) {
	term := strings.TrimSpace(name)
	if term == "" {
		return "", ErrCityNotFound
	}
	return execute(ctx, c, "resolve", func() (string, error) {
		var body locationsResponse
		if err := c.getJSON(ctx, "/locations/query", url.Values{"term": {term}}, &body); err != nil {
			return "", err
		}
		for _, loc := range body.Locations {
			if code := strings.TrimSpace(loc.Code); code != "" {
				return code, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrCityNotFound, term)
	})
}

type searchResponse struct {
	Data *[]itinerary `json:"data"`
}

type itinerary struct {
	Price    decimal.NullDecimal `json:"price"`
	Route    []leg               `json:"route"`
	DeepLink string              `json:"deep_link"`
}

type leg struct {
	CityFrom       string `json:"cityFrom"`
	FlyFrom        string `json:"flyFrom"`
	CityTo         string `json:"cityTo"`
	FlyTo          string `json:"flyTo"`
	LocalDeparture string `json:"local_departure"`
}

// Search queries itineraries from the home airport to destination. Zero
// itineraries is a StatusEmpty result, not an error.
func (c *Client) Search(ctx context.Context, destination string) (Result, error) {
	dest := strings.ToUpper(strings.TrimSpace(destination))
	if dest == "" {
		return Result{}, errors.New("search: destination code is required")
	}
	from, to := c.Window().params()
	query := url.Values{
		"fly_from":      {c.home},
		"fly_to":        {dest},
		"date_from":     {from},
		"date_to":       {to},
		"limit":         {strconv.Itoa(c.limit)},
		"max_stopovers": {strconv.Itoa(c.maxStopovers)},
	}
	return execute(ctx, c, "search", func() (Result, error) {
		var body searchResponse
		if err := c.getJSON(ctx, "/v2/search", query, &body); err != nil {
			return Result{}, err
		}
		if body.Data == nil {
			return Result{}, fmt.Errorf("%w: response has no data field", ErrSource)
		}
		flights := make([]FlightOption, 0, c.limit)
		for _, it := range *body.Data {
			if len(flights) == c.limit {
				break
			}
			if opt, ok := it.option(); ok {
				flights = append(flights, opt)
			}
		}
		if len(flights) == 0 {
			return Result{Status: StatusEmpty}, nil
		}
		return Result{Status: StatusFound, Flights: flights}, nil
	})
}

// option maps an itinerary to a FlightOption; origin comes from the first
// leg and destination from the last. Itineraries without legs or without a
// price are malformed and skipped.
func (it itinerary) option() (FlightOption, bool) {
	if len(it.Route) == 0 || !it.Price.Valid {
		return FlightOption{}, false
	}
	first, last := it.Route[0], it.Route[len(it.Route)-1]
	return FlightOption{
		Price:              it.Price.Decimal,
		OriginCity:         first.CityFrom,
		OriginAirport:      first.FlyFrom,
		DestinationCity:    last.CityTo,
		DestinationAirport: last.FlyTo,
		DepartureDate:      departureDate(first.LocalDeparture),
		BookingLink:        it.DeepLink,
		Stops:              len(it.Route) - 1,
	}, true
}

func departureDate(raw string) time.Time {
	day, _, _ := strings.Cut(strings.TrimSpace(raw), "T")
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrSource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d", ErrSource, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrSource, path, err)
	}
	return nil
}

// execute runs fn through the breaker and records the outcome.
func execute[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := c.breaker.Execute(func() (interface{}, error) { return fn() })

	var out T
	if err == nil {
		out = v.(T)
	} else if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	took := time.Since(start)
	outcome := callOutcome(out, err)
	if c.rec != nil {
		c.rec.ObserveCall(op, outcome, took)
	}
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("op", op),
		slog.String("outcome", outcome),
		slog.Duration("duration", took),
	}
	switch {
	case err == nil, errors.Is(err, ErrCityNotFound):
		logger.Debug(ctx, "search", "call.done", attrs...)
	default:
		logger.Warn(ctx, "search", "call.fail", append(attrs, slog.String("err", err.Error()))...)
	}
	return out, err
}

func callOutcome(v any, err error) string {
	switch {
	case err == nil:
		if r, ok := v.(Result); ok && !r.Found() {
			return "empty"
		}
		return "ok"
	case errors.Is(err, ErrCityNotFound):
		return "empty"
	case errors.Is(err, ErrUnavailable):
		return "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "fail"
	}
}
