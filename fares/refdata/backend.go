package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/fares/catalog"
)

// User is the registration payload written to the users endpoint.
type User struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	InterestedCity string `json:"interestedCity"`
	Email          string `json:"email"`
}

// Backend writes to the source that served the reference data.
type Backend struct {
	fetcher *Fetcher
}

// NewBackend returns a Backend bound to f's serving source.
func NewBackend(f *Fetcher) *Backend {
	return &Backend{fetcher: f}
}

// RegisterUser posts a completed registration.
func (b *Backend) RegisterUser(ctx context.Context, u User) error {
	src, ok := b.fetcher.Serving()
	if !ok {
		return ErrNoReferenceData
	}
	return b.post(ctx, "register", src, src.UsersURL, map[string]User{"user": u})
}

// AddCity posts a city that was not in the reference data. It satisfies
// catalog.Announcer.
func (b *Backend) AddCity(ctx context.Context, entry catalog.CityEntry) error {
	src, ok := b.fetcher.Serving()
	if !ok {
		return ErrNoReferenceData
	}
	return b.post(ctx, "add_city", src, src.PricesURL, map[string]catalog.CityEntry{"price": entry})
}

func (b *Backend) post(ctx context.Context, op string, src Source, endpoint string, payload any) error {
	start := time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("refdata: %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("refdata: %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := b.fetcher.auth; auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := b.fetcher.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %s: %w", ErrSourceUnavailable, src.Label, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: %s: status %d", ErrSourceUnavailable, src.Label, op, resp.StatusCode)
	}

	logger.Info(ctx, "refdata", op,
		slog.String("status", "ok"),
		slog.String("source", src.Label),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
