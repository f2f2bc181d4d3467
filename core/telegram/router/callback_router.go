package router

import (
	"log/slog"

	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches every callback to the handler registered for its key.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.Key(c)
		extras := []slog.Attr{slog.String("cb_key", key)}

		h, ok := reg.Callback(key)
		if !ok {
			h = reg.CallbackNotFound()
			extras = append(extras, slog.String("reason", "not_found"))
		} else {
			_ = c.Respond()
		}
		return handleWithSummary(c, handlerName("callback.", key), h, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
