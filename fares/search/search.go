// Package search talks to the flight-search provider: it resolves city names
// to airport codes and queries itineraries from the home airport.
package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrCityNotFound is returned by ResolveCity when the provider knows no location for the term.
	ErrCityNotFound = errors.New("search: city not found")
	// ErrSource marks a transport, HTTP or decoding failure of the provider.
	ErrSource = errors.New("search: provider error")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("search: provider unavailable")
)

// FlightOption is one itinerary returned by Search.
type FlightOption struct {
	Price              decimal.Decimal
	OriginCity         string
	OriginAirport      string
	DestinationCity    string
	DestinationAirport string
	DepartureDate      time.Time
	BookingLink        string
	Stops              int
}

// Status tells a found result from an empty one.
type Status int

const (
	StatusEmpty Status = iota
	StatusFound
)

func (s Status) String() string {
	if s == StatusFound {
		return "found"
	}
	return "empty"
}

// Result is the outcome of a successful provider call. Empty means the
// provider has no itineraries for the destination right now.
type Result struct {
	Status  Status
	Flights []FlightOption
}

// Found reports whether the result carries at least one option.
func (r Result) Found() bool { return r.Status == StatusFound && len(r.Flights) > 0 }

// Cheapest returns the first, most relevant option.
func (r Result) Cheapest() (FlightOption, bool) {
	if !r.Found() {
		return FlightOption{}, false
	}
	return r.Flights[0], true
}

// WindowPolicy selects when the departure date window is computed.
type WindowPolicy string

const (
	// WindowSnapshot computes the window once when the client is built.
	WindowSnapshot WindowPolicy = "snapshot"
	// WindowPerCall recomputes the window on every search.
	WindowPerCall WindowPolicy = "per_call"
)

// ParseWindowPolicy maps a config value to a policy. Empty means snapshot.
func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch WindowPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowSnapshot:
		return WindowSnapshot, nil
	case WindowPerCall, "per-call", "percall":
		return WindowPerCall, nil
	default:
		return "", fmt.Errorf("search: unknown window policy %q", s)
	}
}

// Window is the departure date range sent to the provider.
type Window struct {
	From time.Time
	To   time.Time
}

const dateLayout = "02/01/2006"

// WindowAt returns [tomorrow, today + 6 months] relative to now.
func WindowAt(now time.Time) Window {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Window{From: today.AddDate(0, 0, 1), To: today.AddDate(0, 6, 0)}
}

func (w Window) params() (string, string) {
	return w.From.Format(dateLayout), w.To.Format(dateLayout)
}
