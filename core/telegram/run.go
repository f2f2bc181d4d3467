package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/farebot/core/config"
	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/netutil"
	tghelpers "github.com/m3rciful/farebot/core/telegram/helpers"
	tgsender "github.com/m3rciful/farebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware registered through bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a Telebot endpoint (command string or tele.On* constant).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	// OnStart runs after handlers are wired and before updates are consumed.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after the poller has stopped and before the dispatcher drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes the running bot to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	client := netutil.BuildHTTPClient(netutil.TelegramClientOptions())
	poller := BuildPoller(cfg)

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Telegram.Token, Poller: poller, Client: client})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	modeAttrs := []slog.Attr{slog.Duration("duration", time.Since(buildStart))}
	switch p := poller.(type) {
	case *tele.Webhook:
		modeAttrs = append(modeAttrs,
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		modeAttrs = append(modeAttrs,
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
		)
		if !opts.DisableWebhookCleanup {
			cleanupWebhook(ctx, client, cfg.Telegram.Token)
		}
	}
	logger.Info(ctx, "tg", "mode", modeAttrs...)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	tghelpers.SetDispatcher(dispatcher)
	defer func() {
		dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	SetupCommands(bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}

	if opts.OnStop != nil {
		// ctx is already cancelled here; hooks get a fresh bounded context.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := opts.OnStop(stopCtx, rt); err != nil {
			return err
		}
	}
	return nil
}

// cleanupWebhook removes a webhook left over from a previous webhook run,
// otherwise Telegram rejects getUpdates.
func cleanupWebhook(ctx context.Context, client *http.Client, token string) {
	if err := deleteWebhook(ctx, client, "https://api.telegram.org", token); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", strings.ReplaceAll(err.Error(), token, "<redacted>")),
		)
		return
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}

func deleteWebhook(ctx context.Context, client *http.Client, apiURL, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("empty token")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	form := url.Values{"drop_pending_updates": {"false"}}
	endpoint := fmt.Sprintf("%s/bot%s/deleteWebhook", strings.TrimRight(apiURL, "/"), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
