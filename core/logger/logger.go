package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/farebot/core/buildinfo"
	coreconfig "github.com/m3rciful/farebot/core/config"
)

var (
	initOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	sink     *asyncWriter
	sinkFile io.Closer

	levelVar    slog.LevelVar
	debugSample everyN
	trace       bool

	// L is the base logger. Prefer the context-first helpers (Info, Warn, ...) in new code.
	L *slog.Logger
)

// settings is the logging section resolved against its defaults.
type settings struct {
	format      logFormat
	level       slog.Level
	order       []string
	profile     string
	sampleEvery uint64
	file        string
}

func resolve(cfg *coreconfig.Config) (settings, error) {
	s := settings{
		format:      formatJSON,
		level:       slog.LevelInfo,
		order:       append([]string(nil), defaultKeyOrder...),
		profile:     "prod",
		sampleEvery: defaultSampleEvery,
	}
	if cfg == nil {
		return s, nil
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if lvl := strings.ToLower(strings.TrimSpace(lc.Level)); lvl != "" {
		mapped, ok := allowedLevels[lvl]
		if !ok {
			return s, fmt.Errorf("logger: invalid logging.level %q", lc.Level)
		}
		_ = s.level.UnmarshalText([]byte(mapped))
	}
	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				order = append(order, key)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}
	every, ok := parseSampleSpec(lc.DebugSample)
	if !ok {
		return s, fmt.Errorf("logger: invalid logging.debug_sample %q", lc.DebugSample)
	}
	s.sampleEvery = every
	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.file = filepath.Join(dir, file)
	}
	return s, nil
}

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s, err := resolve(cfg)
		if err != nil {
			initErr = err
			return
		}
		levelVar.Set(s.level)
		debugSample.set(s.sampleEvery)
		trace = envFlag("TRACE") || envFlag("LOG_TRACE")

		outputs := []io.Writer{os.Stdout}
		if f := openLogFile(s.file); f != nil {
			outputs = append(outputs, f)
			sinkFile = f
		}
		sink = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   sink,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(L)

		LogEvent(context.Background(), L.With("component", "app"), slog.LevelInfo, "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
			slog.Uint64("debug_sample", s.sampleEvery),
		)
	})
	return initErr
}

// openLogFile appends to path. Failures are reported on the standard logger
// and logging continues on stdout only.
func openLogFile(path string) *os.File {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("logger: create log dir for %s: %v", path, err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: open log file %s: %v", path, err)
		return nil
	}
	return f
}

// Shutdown flushes buffered output and closes the log file. Later calls return the first result.
func Shutdown() error {
	shutdownOnce.Do(func() {
		var errs []error
		if sink != nil {
			errs = append(errs, sink.Flush(), sink.Close())
		}
		if sinkFile != nil {
			errs = append(errs, sinkFile.Close())
		}
		shutdownErr = errors.Join(errs...)
	})
	return shutdownErr
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether this occurrence of a high-volume debug
// record should carry its details. TRACE=1 lets every one through.
func ShouldSampleDebug() bool {
	return trace || debugSample.allow()
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent writes a record carrying the event attribute using the given or context logger.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs through the component logger, falling back to the context logger.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
