package logger

import (
	"fmt"
	"strings"
	"time"
)

// Status maps an error to the "status" log value.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// Took is the time since start, rounded for logging.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Preview joins at most limit values and notes how many were left out,
// e.g. "a, b (+3)".
func Preview(values []string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", ")
	}
	head := strings.Join(values[:limit], ", ")
	rest := fmt.Sprintf("(+%d)", len(values)-limit)
	if head == "" {
		return rest
	}
	return head + " " + rest
}
