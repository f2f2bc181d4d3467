// Package refdata loads the reference city table from a prioritized list of
// interchangeable upstream sources and writes registrations back to the
// source that served it.
package refdata

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrSourceUnavailable marks a source that failed at the transport or HTTP level.
	ErrSourceUnavailable = errors.New("refdata: source unavailable")
	// ErrMalformedResponse marks a source that answered without a usable prices table.
	ErrMalformedResponse = errors.New("refdata: malformed response")
	// ErrNoReferenceData is returned when every pass over every source failed.
	ErrNoReferenceData = errors.New("refdata: no reference data available")
)

// Source is one upstream pair of endpoints. The order of sources defines
// failover priority.
type Source struct {
	Label     string
	PricesURL string
	UsersURL  string
}

func (s Source) validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return errors.New("refdata: source label is required")
	}
	for name, raw := range map[string]string{"prices": s.PricesURL, "users": s.UsersURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("refdata: source %s: invalid %s url %q", s.Label, name, raw)
		}
	}
	return nil
}

// Strategy names how a retry pass walks the sources.
type Strategy string

// FullListRestart retries from the first source on every pass.
const FullListRestart Strategy = "full-list-restart"

// Policy is the retry policy applied by the Fetcher.
type Policy struct {
	// Attempts is the number of passes over the source list.
	Attempts int
	Strategy Strategy
	// Delay is the pause between passes.
	Delay time.Duration
}

// DefaultPolicy is two full passes one second apart.
func DefaultPolicy() Policy {
	return Policy{Attempts: 2, Strategy: FullListRestart, Delay: time.Second}
}

func (p Policy) normalize() (Policy, error) {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Strategy == "" {
		p.Strategy = def.Strategy
	}
	if p.Strategy != FullListRestart {
		return p, fmt.Errorf("refdata: unsupported retry strategy %q", p.Strategy)
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p, nil
}
