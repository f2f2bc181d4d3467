package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/farebot/core/config"
	coredatabase "github.com/m3rciful/farebot/core/database"
	"github.com/m3rciful/farebot/core/logger"
)

// Options control the generic bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Seeders  []Seeder

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the database is disabled.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, optionally connects to the database and applies
// migrations, and finally runs the seeders in order. A failing seeder aborts the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if opts.Database.Enabled {
		db, err := openDatabase(opts)
		if err != nil {
			return nil, err
		}
		res.DB = db
	} else {
		logger.Info(ctx, "db", "db.disabled", slog.String("status", "skip"))
	}

	for _, s := range opts.Seeders {
		start := time.Now()
		if err := s.Seed(ctx); err != nil {
			if res.DB != nil {
				_ = res.DB.Close()
			}
			return nil, fmt.Errorf("bootstrap: seeder %s failed: %w", s.Name(), err)
		}
		logger.Debug(ctx, "app", "seed.done",
			slog.String("seeder", s.Name()),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return res, nil
}

func openDatabase(opts Options) (*sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	return db, nil
}
