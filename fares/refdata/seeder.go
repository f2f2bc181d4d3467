package refdata

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/fares/catalog"
)

// Loader receives a freshly fetched table.
type Loader interface {
	Load(entries []catalog.CityEntry) int
}

// Seeder loads reference data into the catalog at startup and on demand.
// Exhausted sources put it in degraded mode instead of failing startup.
type Seeder struct {
	fetcher  *Fetcher
	loader   Loader
	degraded atomic.Bool
}

// NewSeeder starts in degraded mode until the first successful load.
func NewSeeder(f *Fetcher, l Loader) *Seeder {
	s := &Seeder{fetcher: f, loader: l}
	s.degraded.Store(true)
	return s
}

// Name identifies the seeder in bootstrap logs.
func (s *Seeder) Name() string { return "refdata" }

// Seed runs Reload and swallows ErrNoReferenceData.
func (s *Seeder) Seed(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil && !errors.Is(err, ErrNoReferenceData) {
		return err
	}
	return nil
}

// Reload fetches the reference table and replaces the catalog entries.
// On ErrNoReferenceData the catalog keeps its current entries.
func (s *Seeder) Reload(ctx context.Context) error {
	table, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrNoReferenceData) && s.degraded.Load() {
			logger.Warn(ctx, "refdata", "degraded", slog.String("status", "degraded"))
		}
		return err
	}
	n := s.loader.Load(table.Entries)
	s.degraded.Store(false)
	logger.Info(ctx, "refdata", "catalog.loaded",
		slog.String("status", "ok"),
		slog.String("source", table.Source),
		slog.Int("cities", n),
	)
	return nil
}

// Degraded reports whether no reference data has been loaded yet.
func (s *Seeder) Degraded() bool { return s.degraded.Load() }

// Source returns the label of the serving source, empty before the first load.
func (s *Seeder) Source() string {
	src, ok := s.fetcher.Serving()
	if !ok {
		return ""
	}
	return src.Label
}
