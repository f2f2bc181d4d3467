// Package sender runs outbound Telegram calls on a bounded worker pool.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/netutil"
)

var (
	// ErrQueueClosed is returned when Enqueue is called after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the queue cannot accept another job.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the outbound dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job including retries.
	MaxDuration time.Duration
	// Observer, when set, is told the outcome of every finished job.
	Observer func(action string, err error)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes queued send jobs with retries on transient network errors.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handle(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run for asynchronous execution. run may be called more
// than once when a transient error is retried.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finished with an error.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	attempt, err := 0, error(nil)
	for attempt = 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = j.run(); err == nil {
			break
		}
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}
		delay := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(j.ctx, "tg.sender", "send.retry.backoff", slog.String("action", j.action), slog.Int("attempt", attempt), slog.Duration("backoff", delay))
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = attempts
		case <-time.After(delay):
		}
	}

	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.Int("attempt", min(attempt, attempts)),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		d.errs.Add(1)
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err", redactToken(err.Error())),
			slog.String("err_code", classifyError(err)),
		)
		logger.Error(j.ctx, "tg.sender", "send.fail", attrs...)
	} else {
		logger.Debug(j.ctx, "tg.sender", "send.success", append(attrs, slog.String("status", "ok"))...)
	}
	if d.opts.Observer != nil {
		d.opts.Observer(j.action, err)
	}
}
