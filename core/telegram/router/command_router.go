package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/farebot/core/logger"
	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures CommandRoutes.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command. Admin-only
// commands are gated before the handler runs.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	gate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, def := range cmds {
		name, h := name, def.Handler
		if def.AdminOnly {
			h = gate(h)
		}
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler: wrap(func(c tele.Context) error {
				return handleWithSummary(c, handlerName("", name), h)
			}),
		})
	}

	logger.Info(context.Background(), "tg.wire", "routes.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
	)
	return routes
}
