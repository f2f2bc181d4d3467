// Package app wires farebot together: configuration, bootstrap and the
// Telegram lifecycle hooks.
package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/farebot/core/config"
	coredatabase "github.com/m3rciful/farebot/core/database"
	"github.com/m3rciful/farebot/fares/browse"
	"github.com/m3rciful/farebot/fares/refdata"
	"github.com/m3rciful/farebot/fares/search"
	"github.com/m3rciful/farebot/fares/tracker"
)

// Store names accepted by tracker.store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// SourceConfig is one reference data source. URLs may be given directly or
// through the names of environment variables holding them.
type SourceConfig struct {
	Label     string `yaml:"label"`
	PricesURL string `yaml:"prices_url"`
	UsersURL  string `yaml:"users_url"`
	PricesEnv string `yaml:"prices_env"`
	UsersEnv  string `yaml:"users_env"`
}

// ReferenceConfig lists the reference sources in failover order.
type ReferenceConfig struct {
	Sources     []SourceConfig `yaml:"sources"`
	BearerToken string         `yaml:"bearer_token" envconfig:"BEARER_TOKEN"`
	Attempts    int            `yaml:"attempts" envconfig:"REFDATA_ATTEMPTS"`
	RetryDelay  time.Duration  `yaml:"retry_delay" envconfig:"REFDATA_RETRY_DELAY"`
	Timeout     time.Duration  `yaml:"timeout"`
}

// FallbackConfig controls what /search shows for a city without flights.
type FallbackConfig struct {
	Disabled bool `yaml:"disabled"`
	Index    int  `yaml:"index"`
}

// BreakerConfig tunes the search circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// SearchConfig configures the flight search provider.
type SearchConfig struct {
	BaseURL         string         `yaml:"base_url" envconfig:"TICKETS_URL"`
	APIKey          string         `yaml:"api_key" envconfig:"TICKETS_KEY"`
	HomeAirport     string         `yaml:"home_airport"`
	HomeCity        string         `yaml:"home_city"`
	HomeAirportName string         `yaml:"home_airport_name"`
	Limit           int            `yaml:"limit"`
	MaxStopovers    *int           `yaml:"max_stopovers"`
	Window          string         `yaml:"window"`
	Timeout         time.Duration  `yaml:"timeout"`
	Fallback        FallbackConfig `yaml:"fallback"`
	Breaker         BreakerConfig  `yaml:"breaker"`
}

// TrackerConfig configures the reconcile loop and ticket storage.
type TrackerConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"TRACKER_INTERVAL"`
	// Store is "memory" or "postgres"; empty selects postgres when the database is enabled.
	Store string `yaml:"store" envconfig:"TRACKER_STORE"`
}

// OpsConfig configures the health and metrics listener. An empty Listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// Config is the farebot configuration file.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  coredatabase.Config `yaml:"database"`
	Reference ReferenceConfig     `yaml:"reference"`
	Search    SearchConfig        `yaml:"search"`
	Tracker   TrackerConfig       `yaml:"tracker"`
	Ops       OpsConfig           `yaml:"ops"`
}

// CoreConfig exposes the shared transport settings to core/cmd.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if err := normalizeReference(&cfg.Reference); err != nil {
		return err
	}
	if err := normalizeSearch(&cfg.Search); err != nil {
		return err
	}

	if cfg.Tracker.Interval <= 0 {
		cfg.Tracker.Interval = tracker.DefaultInterval
	}
	store := strings.ToLower(strings.TrimSpace(cfg.Tracker.Store))
	switch store {
	case "":
		store = StoreMemory
		if cfg.Database.Enabled {
			store = StorePostgres
		}
	case StoreMemory:
	case StorePostgres:
		if !cfg.Database.Enabled {
			return errors.New("tracker.store 'postgres' requires database.enabled")
		}
	default:
		return fmt.Errorf("invalid tracker.store %q; allowed: memory, postgres", cfg.Tracker.Store)
	}
	cfg.Tracker.Store = store
	cfg.Ops.Listen = strings.TrimSpace(cfg.Ops.Listen)
	return nil
}

func normalizeReference(rc *ReferenceConfig) error {
	if len(rc.Sources) == 0 {
		return errors.New("reference.sources must list at least one source")
	}
	for i := range rc.Sources {
		s := &rc.Sources[i]
		s.Label = strings.TrimSpace(s.Label)
		if s.PricesURL == "" && s.PricesEnv != "" {
			s.PricesURL = os.Getenv(s.PricesEnv)
		}
		if s.UsersURL == "" && s.UsersEnv != "" {
			s.UsersURL = os.Getenv(s.UsersEnv)
		}
		if s.Label == "" {
			return fmt.Errorf("reference.sources[%d].label is required", i)
		}
		if strings.TrimSpace(s.PricesURL) == "" || strings.TrimSpace(s.UsersURL) == "" {
			return fmt.Errorf("reference source %s: prices and users urls are required", s.Label)
		}
	}
	if rc.Attempts < 0 {
		return errors.New("reference.attempts must be >= 0")
	}
	if rc.Timeout <= 0 {
		rc.Timeout = 15 * time.Second
	}
	return nil
}

func normalizeSearch(sc *SearchConfig) error {
	if strings.TrimSpace(sc.BaseURL) == "" {
		return errors.New("search.base_url is required")
	}
	if _, err := search.ParseWindowPolicy(sc.Window); err != nil {
		return err
	}
	if sc.MaxStopovers != nil && *sc.MaxStopovers < 0 {
		return errors.New("search.max_stopovers must be >= 0")
	}
	if sc.Fallback.Index < 0 {
		return errors.New("search.fallback.index must be >= 0")
	}
	if sc.Timeout <= 0 {
		sc.Timeout = 20 * time.Second
	}
	return nil
}

// sources converts the configured sources into fetcher sources.
func (rc ReferenceConfig) sources() []refdata.Source {
	out := make([]refdata.Source, 0, len(rc.Sources))
	for _, s := range rc.Sources {
		out = append(out, refdata.Source{Label: s.Label, PricesURL: s.PricesURL, UsersURL: s.UsersURL})
	}
	return out
}

func (rc ReferenceConfig) policy() refdata.Policy {
	p := refdata.DefaultPolicy()
	if rc.Attempts > 0 {
		p.Attempts = rc.Attempts
	}
	if rc.RetryDelay > 0 {
		p.Delay = rc.RetryDelay
	}
	return p
}

func (sc SearchConfig) fallback() browse.FallbackPolicy {
	if sc.Fallback.Disabled {
		return browse.FallbackPolicy{}
	}
	p := browse.DefaultFallbackPolicy()
	if sc.Fallback.Index > 0 {
		p.Index = sc.Fallback.Index
	}
	return p
}

func (sc SearchConfig) breaker() search.BreakerOptions {
	b := search.DefaultBreakerOptions()
	if sc.Breaker.ConsecutiveFailures > 0 {
		b.ConsecutiveFailures = sc.Breaker.ConsecutiveFailures
	}
	if sc.Breaker.OpenTimeout > 0 {
		b.Timeout = sc.Breaker.OpenTimeout
	}
	return b
}
