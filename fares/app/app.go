package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/farebot/core/bootstrap"
	"github.com/m3rciful/farebot/core/logger"
	"github.com/m3rciful/farebot/core/netutil"
	tg "github.com/m3rciful/farebot/core/telegram"
	"github.com/m3rciful/farebot/core/telegram/router"
	tgsender "github.com/m3rciful/farebot/core/telegram/sender"
	"github.com/m3rciful/farebot/fares/bot"
	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/catalog"
	"github.com/m3rciful/farebot/fares/metrics"
	"github.com/m3rciful/farebot/fares/refdata"
	"github.com/m3rciful/farebot/fares/registration"
	"github.com/m3rciful/farebot/fares/search"
	"github.com/m3rciful/farebot/fares/tracker"
)

// App is a bootstrapped farebot ready to be served.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	metrics  *metrics.Metrics
	catalog  *catalog.Catalog
	seeder   *refdata.Seeder
	tracker  *tracker.Tracker
	handlers *bot.Handlers
	notifier *bot.Notifier

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ops    *http.Server
}

// Bootstrap builds every component, loads reference data and opens the
// database when it is enabled.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	return build(ctx, cfg, bootstrap.Run)
}

func build(ctx context.Context, cfg *Config, run func(context.Context, bootstrap.Options) (*bootstrap.Result, error)) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config provided")
	}
	a := &App{cfg: cfg, metrics: metrics.New(), notifier: bot.NewNotifier()}

	fetcher, err := refdata.NewFetcher(refdata.Options{
		Sources: cfg.Reference.sources(),
		Token:   cfg.Reference.BearerToken,
		Policy:  cfg.Reference.policy(),
		Client:  refdata.NewHTTPClient(cfg.Reference.Timeout),
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: reference data: %w", err)
	}
	backend := refdata.NewBackend(fetcher)
	a.catalog = catalog.New(catalog.StaticCities, backend)
	a.seeder = refdata.NewSeeder(fetcher, a.catalog)

	res, err := run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
		Seeders:  []bootstrap.Seeder{a.seeder},
	})
	if err != nil {
		return nil, err
	}
	a.db = res.DB

	if err := a.wire(backend); err != nil {
		_ = a.closeDB()
		return nil, err
	}
	logger.Info(ctx, "app", "bootstrap.done",
		slog.String("status", "ok"),
		slog.String("store", cfg.Tracker.Store),
		slog.Int("cities", a.catalog.Len()),
		slog.Bool("degraded", a.seeder.Degraded()),
	)
	return a, nil
}

func (a *App) wire(backend *refdata.Backend) error {
	cfg := a.cfg
	finder, err := search.NewClient(search.Options{
		BaseURL:      cfg.Search.BaseURL,
		APIKey:       cfg.Search.APIKey,
		HomeAirport:  cfg.Search.HomeAirport,
		Limit:        cfg.Search.Limit,
		MaxStopovers: cfg.Search.MaxStopovers,
		Window:       search.WindowPolicy(cfg.Search.Window),
		Breaker:      cfg.Search.breaker(),
		Client:       netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: cfg.Search.Timeout, Retries: 1}),
		Metrics:      a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: search client: %w", err)
	}

	var store tracker.Store = tracker.NewMemoryStore()
	if cfg.Tracker.Store == StorePostgres && a.db != nil {
		store = tracker.NewPostgresStore(a.db)
	}
	a.tracker, err = tracker.New(tracker.Options{
		Store:    store,
		Searcher: finder,
		Notifier: a.notifier,
		Metrics:  a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: tracker: %w", err)
	}

	flow, err := registration.New(registration.Options{
		Catalog:   a.catalog,
		Resolver:  finder,
		Registrar: backend,
		Metrics:   a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: registration: %w", err)
	}

	browser, err := browse.New(browse.Options{
		Catalog:      a.catalog,
		Searcher:     finder,
		Tracker:      a.tracker,
		Availability: a.seeder,
		Fallback:     cfg.Search.fallback(),
	})
	if err != nil {
		return fmt.Errorf("app: browse: %w", err)
	}

	a.handlers, err = bot.New(bot.Options{
		Catalog:         a.catalog,
		Flow:            flow,
		Browser:         browser,
		Tickets:         a.tracker,
		Reference:       a.seeder,
		HomeCity:        cfg.Search.HomeCity,
		HomeAirportName: cfg.Search.HomeAirportName,
	})
	if err != nil {
		return fmt.Errorf("app: bot: %w", err)
	}
	return nil
}

// TelegramRunOptions registers the handlers and returns the lifecycle hooks
// that start the reconcile loop and the ops listener.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.handlers.Register(reg); err != nil {
		return tg.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: a.handlers.AdminRejected,
	})
	routes = append(routes, router.CallbackRoute(reg))
	routes = append(routes, router.TextRoutes(reg, a.handlers.TextOptions())...)

	return tg.RunOptions{
		Config:            &a.cfg.Config,
		Registry:          reg,
		DispatcherOptions: tgsender.Options{Observer: a.metrics.Dispatch},
		Middlewares:       tg.DefaultMiddlewares(&a.cfg.Config, a.handlers.RateLimited),
		Routes:            routes,
		OnStart:           a.start,
		OnStop:            a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.notifier.Bind(rt)
	if err := a.startOps(ctx); err != nil {
		a.notifier.Unbind()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.tracker.Run(runCtx, a.cfg.Tracker.Interval)
	}()
	return nil
}

func (a *App) stop(ctx context.Context, rt tg.Runtime) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.notifier.Unbind()
	if rt.Dispatcher != nil {
		logger.Info(ctx, "app", "telegram.stats", slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()))
	}

	var errs []error
	if err := a.stopOps(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeDB(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
