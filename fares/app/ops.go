package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/farebot/core/logger"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type healthReport struct {
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	Cities int    `json:"cities"`
}

// OpsRouter serves /healthz and /metrics.
func (a *App) OpsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(opsLogging)
	r.Get("/healthz", a.healthz)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	return r
}

// healthz answers 200 in both states: a degraded bot still serves
// registration and /reload.
func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	report := healthReport{Status: healthOK, Source: a.seeder.Source(), Cities: a.catalog.Len()}
	if a.seeder.Degraded() {
		report.Status = healthDegraded
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}

func opsLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug(r.Context(), "ops", "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("code", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (a *App) startOps(ctx context.Context) error {
	addr := a.cfg.Ops.Listen
	if addr == "" {
		logger.Info(ctx, "ops", "listen", slog.String("status", "skip"))
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: ops listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: a.OpsRouter(), ReadHeaderTimeout: 5 * time.Second}
	a.mu.Lock()
	a.ops = srv
	a.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "ops", "serve", slog.String("status", "fail"), slog.String("err", err.Error()))
		}
	}()
	logger.Info(ctx, "ops", "listen", slog.String("status", "ok"), slog.String("listen", ln.Addr().String()))
	return nil
}

func (a *App) stopOps(ctx context.Context) error {
	a.mu.Lock()
	srv := a.ops
	a.ops = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("app: ops shutdown: %w", err)
	}
	return nil
}
