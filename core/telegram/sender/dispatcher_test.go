package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsJobsAndReportsOutcome(t *testing.T) {
	var (
		mu       sync.Mutex
		outcomes = map[string]error{}
	)
	d := NewDispatcher(Options{Workers: 1, Observer: func(action string, err error) {
		mu.Lock()
		outcomes[action] = err
		mu.Unlock()
	}})

	boom := errors.New("bad request")
	require.NoError(t, d.Enqueue(context.Background(), "ok", "sendMessage", func() error { return nil }))
	require.NoError(t, d.Enqueue(context.Background(), "broken", "sendMessage", func() error { return boom }))
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, outcomes["ok"])
	assert.ErrorIs(t, outcomes["broken"], boom)
	assert.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "flaky", "", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}))
	d.Close()

	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 0, d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()

	err := d.Enqueue(context.Background(), "late", "", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestRedactToken(t *testing.T) {
	msg := redactToken(`Post "https://api.telegram.org/bot123456:AAH-x_y/sendMessage": timeout`)
	assert.NotContains(t, msg, "AAH-x_y")
	assert.Contains(t, msg, "bot<redacted>")
}
