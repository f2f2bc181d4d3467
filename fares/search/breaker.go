package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/m3rciful/farebot/core/logger"
)

// BreakerOptions configures the provider circuit breaker.
type BreakerOptions struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerOptions trips after five consecutive failures and tries again after a minute.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{
		MaxRequests:         1,
		Interval:            0,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 5,
	}
}

func newBreaker(opts BreakerOptions, rec Recorder) *gobreaker.CircuitBreaker {
	def := DefaultBreakerOptions()
	if opts.MaxRequests == 0 {
		opts.MaxRequests = def.MaxRequests
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = def.ConsecutiveFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search",
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			status := "ok"
			if to != gobreaker.StateClosed {
				status = "degraded"
			}
			logger.Warn(context.Background(), "search", "breaker.state",
				slog.String("status", status),
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if rec != nil {
				rec.BreakerState(to.String())
			}
		},
		// Unknown cities and caller cancellation say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCityNotFound) || errors.Is(err, context.Canceled)
		},
	})
}
