// Package router turns registry entries into Telebot routes with a
// per-handler summary log line.
package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/farebot/core/logger"
	tghelpers "github.com/m3rciful/farebot/core/telegram/helpers"
	"github.com/m3rciful/farebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Outcome lets a handler error carry its own status and outcome for the
// summary line without being treated as a failure.
type Outcome struct {
	Status  string
	Outcome string
}

func (o Outcome) Error() string { return o.Status + "/" + o.Outcome }

// handleWithSummary runs fn and logs one "handler.handled" line for it.
func handleWithSummary(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := fn(c)

	status, outcome := "ok", "ok"
	var marked Outcome
	switch {
	case errors.As(err, &marked):
		status, outcome, err = marked.Status, marked.Outcome, nil
	case err != nil:
		status, outcome = "fail", "fail"
	}

	msgs, kb := middleware.GetCounters(c)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Info(ctx, "tg", "handler.handled", append(attrs, extras...)...)
	return err
}

func handlerName(prefix, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		key = "unknown"
	}
	return prefix + strings.ReplaceAll(key, " ", "_")
}

func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}
