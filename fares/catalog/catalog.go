// Package catalog keeps the destinations the bot knows about: a static list
// of recognized city names plus an ordered list of entries with airport codes.
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/m3rciful/farebot/core/logger"
)

// CityEntry is a destination with its airport (IATA) code.
type CityEntry struct {
	City     string `json:"city"`
	IATACode string `json:"iataCode"`
}

// UpsertResult tells whether Upsert added a new city or moved an existing one.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	AlreadyPresent
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// Announcer publishes a wholly new city upstream.
type Announcer interface {
	AddCity(ctx context.Context, entry CityEntry) error
}

// Catalog is safe for concurrent use. Reads never wait on an upstream announce.
type Catalog struct {
	static map[string]string

	// writeMu serializes Upsert and Load, including the announce call.
	writeMu sync.Mutex
	mu      sync.RWMutex
	entries []CityEntry

	announcer Announcer
}

// New builds a catalog over the given static names. announcer may be nil.
func New(static []string, announcer Announcer) *Catalog {
	c := &Catalog{static: make(map[string]string, len(static)), announcer: announcer}
	for _, name := range static {
		key := Key(name)
		if _, dup := c.static[key]; key != "" && !dup {
			c.static[key] = strings.Join(strings.Fields(name), " ")
		}
	}
	return c
}

// Key is the normalized form used for every city comparison: case folded
// with runs of whitespace collapsed.
func Key(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// Canonical returns the display form of a recognized city name.
func (c *Catalog) Canonical(name string) (string, bool) {
	key := Key(name)
	if key == "" {
		return "", false
	}
	if display, ok := c.static[key]; ok {
		return display, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(key); i >= 0 {
		return c.entries[i].City, true
	}
	return "", false
}

// IsValid reports whether name is a recognized city.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.Canonical(name)
	return ok
}

func (c *Catalog) displayName(name string) string {
	if display, ok := c.Canonical(name); ok {
		return display
	}
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}

func (c *Catalog) indexLocked(key string) int {
	for i, e := range c.entries {
		if Key(e.City) == key {
			return i
		}
	}
	return -1
}

// Upsert puts the city at the front of the entries. An existing entry with
// the same key is replaced; a wholly new city is announced first and added
// even when the announcement fails.
func (c *Catalog) Upsert(ctx context.Context, name, code string) (UpsertResult, CityEntry) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	entry := CityEntry{City: c.displayName(name), IATACode: strings.ToUpper(strings.TrimSpace(code))}
	key := Key(entry.City)

	c.mu.RLock()
	existing := c.indexLocked(key)
	c.mu.RUnlock()

	result := AlreadyPresent
	if existing < 0 {
		result = Inserted
		c.announce(ctx, entry)
	}

	c.mu.Lock()
	if existing >= 0 {
		c.entries = append(c.entries[:existing], c.entries[existing+1:]...)
	}
	c.entries = append([]CityEntry{entry}, c.entries...)
	c.mu.Unlock()

	logger.Info(ctx, "catalog", "upsert",
		slog.String("status", "ok"),
		slog.String("city", entry.City),
		slog.String("iata", entry.IATACode),
		slog.String("result", result.String()),
	)
	return result, entry
}

func (c *Catalog) announce(ctx context.Context, entry CityEntry) {
	if c.announcer == nil {
		return
	}
	if err := c.announcer.AddCity(ctx, entry); err != nil {
		logger.Warn(ctx, "catalog", "announce",
			slog.String("status", "fail"),
			slog.String("city", entry.City),
			slog.String("err", err.Error()),
		)
	}
}

// Load replaces the entries with reference data. Entries without a city are
// dropped and the first occurrence of a key wins. It returns the number kept.
func (c *Catalog) Load(entries []CityEntry) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	loaded := make([]CityEntry, 0, len(entries))
	for _, e := range entries {
		key := Key(e.City)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		city := strings.Join(strings.Fields(e.City), " ")
		if display, ok := c.static[key]; ok {
			city = display
		}
		loaded = append(loaded, CityEntry{City: city, IATACode: strings.ToUpper(strings.TrimSpace(e.IATACode))})
	}

	c.mu.Lock()
	c.entries = loaded
	c.mu.Unlock()
	return len(loaded)
}

// All returns a copy of the entries, most recent first.
func (c *Catalog) All() []CityEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CityEntry(nil), c.entries...)
}

// At returns the entry at index i.
func (c *Catalog) At(i int) (CityEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return CityEntry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
