package refdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/netutil"
	"github.com/m3rciful/farebot/fares/catalog"
)

const (
	maxBodyBytes   = 4 << 20
	defaultTimeout = 15 * time.Second
)

// NewHTTPClient builds the client for reference sources. The transport never
// retries: a failed request counts as one failed source attempt, Policy is the
// only retry layer, and backend POSTs are sent at most once.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: timeout, ResponseTimeout: timeout})
}

// Table is the reference data returned by one source.
type Table struct {
	Source  string
	Entries []catalog.CityEntry
}

// Recorder observes fetch activity. The metrics package implements it.
type Recorder interface {
	SourceAttempt(label string, err error)
	SourceServing(label string)
}

// Options configures NewFetcher.
type Options struct {
	Sources []Source
	// Token is sent as the Authorization header; a bare token gets the Bearer scheme.
	Token   string
	Policy  Policy
	Client  *http.Client
	Metrics Recorder
}

// Fetcher returns the first well-formed table among its sources.
type Fetcher struct {
	sources []Source
	auth    string
	policy  Policy
	client  *http.Client
	rec     Recorder

	mu      sync.RWMutex
	serving *Source
}

// NewFetcher validates the sources and policy.
func NewFetcher(opts Options) (*Fetcher, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("refdata: at least one source is required")
	}
	for _, s := range opts.Sources {
		if err := s.validate(); err != nil {
			return nil, err
		}
	}
	policy, err := opts.Policy.normalize()
	if err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(defaultTimeout)
	}
	return &Fetcher{
		sources: append([]Source(nil), opts.Sources...),
		auth:    authorization(opts.Token),
		policy:  policy,
		client:  client,
		rec:     opts.Metrics,
	}, nil
}

func authorization(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// Policy returns the normalized retry policy.
func (f *Fetcher) Policy() Policy { return f.policy }

// Sources returns the configured sources in priority order.
func (f *Fetcher) Sources() []Source { return append([]Source(nil), f.sources...) }

// Serving returns the source that served the last successful fetch.
func (f *Fetcher) Serving() (Source, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.serving == nil {
		return Source{}, false
	}
	return *f.serving, true
}

var errPassExhausted = errors.New("refdata: every source failed in this pass")

// Fetch walks the sources in priority order and returns the first well-formed
// table. When a whole pass fails the list is retried from the top until the
// policy's attempts are used up, then ErrNoReferenceData is returned.
// A failed Fetch keeps the previously serving source.
func (f *Fetcher) Fetch(ctx context.Context) (Table, error) {
	start := time.Now()
	pass := 0
	table, err := backoff.Retry(ctx, func() (Table, error) {
		pass++
		for _, src := range f.sources {
			entries, err := f.fetchSource(ctx, src)
			if f.rec != nil {
				f.rec.SourceAttempt(src.Label, err)
			}
			if err == nil {
				return Table{Source: src.Label, Entries: entries}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Table{}, backoff.Permanent(ctxErr)
			}
			logger.Warn(ctx, "refdata", "source.fail",
				slog.String("status", "fail"),
				slog.String("source", src.Label),
				slog.Int("pass", pass),
				slog.String("err", err.Error()),
			)
		}
		logger.Warn(ctx, "refdata", "pass.exhausted",
			slog.String("status", "retry"),
			slog.Int("pass", pass),
			slog.Int("attempts", f.policy.Attempts),
		)
		return Table{}, errPassExhausted
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(f.policy.Delay)),
		backoff.WithMaxTries(uint(f.policy.Attempts)),
		backoff.WithMaxElapsedTime(0),
	)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Table{}, fmt.Errorf("refdata: fetch interrupted: %w", ctxErr)
		}
		logger.Error(ctx, "refdata", "fetch.exhausted",
			slog.String("status", "degraded"),
			slog.Int("pass", pass),
			slog.Duration("duration", time.Since(start)),
		)
		return Table{}, ErrNoReferenceData
	}

	for _, src := range f.sources {
		if src.Label == table.Source {
			f.mu.Lock()
			f.serving = &src
			f.mu.Unlock()
			break
		}
	}
	if f.rec != nil {
		f.rec.SourceServing(table.Source)
	}
	logger.Info(ctx, "refdata", "fetch.done",
		slog.String("status", "ok"),
		slog.String("source", table.Source),
		slog.Int("pass", pass),
		slog.Int("cities", len(table.Entries)),
		slog.Duration("duration", time.Since(start)),
	)
	return table, nil
}

func (f *Fetcher) fetchSource(ctx context.Context, src Source) ([]catalog.CityEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.PricesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src.Label, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.auth != "" {
		req.Header.Set("Authorization", f.auth)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src.Label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrSourceUnavailable, src.Label, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrSourceUnavailable, src.Label, resp.StatusCode)
	}
	return parsePrices(src.Label, body)
}

// parsePrices accepts a body only when it is valid JSON with a "prices" array.
func parsePrices(label string, body []byte) ([]catalog.CityEntry, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s: invalid json", ErrMalformedResponse, label)
	}
	prices := gjson.GetBytes(body, "prices")
	if !prices.Exists() || !prices.IsArray() {
		return nil, fmt.Errorf("%w: %s: missing prices array", ErrMalformedResponse, label)
	}

	var entries []catalog.CityEntry
	prices.ForEach(func(_, row gjson.Result) bool {
		entries = append(entries, catalog.CityEntry{
			City:     strings.TrimSpace(row.Get("city").String()),
			IATACode: strings.TrimSpace(row.Get("iataCode").String()),
		})
		return true
	})
	return entries, nil
}
