package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/farebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptTTL = 10 * time.Second

// receipts remembers recently logged update ids so an update wrapped by the
// logger on several routes produces a single receipt line.
var receipts = struct {
	sync.Mutex
	seen map[int]time.Time
}{seen: make(map[int]time.Time)}

func firstReceipt(updateID int, now time.Time) bool {
	receipts.Lock()
	defer receipts.Unlock()
	for id, ts := range receipts.seen {
		if now.Sub(ts) > receiptTTL {
			delete(receipts.seen, id)
		}
	}
	if _, ok := receipts.seen[updateID]; ok {
		return false
	}
	receipts.seen[updateID] = now
	return true
}

// LoggerMiddleware builds the update's logging context and writes a sampled
// debug receipt line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()

		if logger.ShouldSampleDebug() && firstReceipt(upd.ID, time.Now()) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.Parse(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 128)),
					slog.String("payload", logger.SanitizeLimit(payload, 256)),
				)
			case upd.Message != nil:
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}
		return next(c)
	}
}
