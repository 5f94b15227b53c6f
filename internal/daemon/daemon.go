// Package daemon assembles the finquest services and runs the HTTP server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/finquest-app/finquest/internal/api"
	"github.com/finquest-app/finquest/internal/app/engine"
	"github.com/finquest-app/finquest/internal/app/executor"
	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/app/session"
	"github.com/finquest-app/finquest/internal/infra/catalog"
	"github.com/finquest-app/finquest/internal/infra/history"
	"github.com/finquest-app/finquest/internal/infra/observability"
	"github.com/finquest-app/finquest/internal/infra/sqlite"
	"github.com/finquest-app/finquest/internal/logging"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Daemon owns every long-lived service.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Catalog   *catalog.Catalog
	History   *history.Provider
	Simulator *quest.Simulator
	Sessions  *session.Service
	Executor  *executor.Executor
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Registry  *prometheus.Registry

	log     *slog.Logger
	version string
}

// New opens storage and wires the services. Close releases them.
func New(cfg Config, logger *slog.Logger, version string) (*Daemon, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	db, err := sqlite.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cat := catalog.New()
	for _, path := range cfg.Catalog.QuestFiles {
		if err := cat.LoadFile(path); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("loaded quest file", "path", path)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider := history.NewProvider(db, cfg.Simulation.HistoryBaseYear)
	sim := quest.NewSimulator(engine.New(provider))
	metrics := observability.NewMetrics(reg)
	tracer := observability.NewTracer(observability.TracerConfig{
		Enabled:  cfg.Metrics.Enabled,
		MaxSpans: cfg.Metrics.TraceSize,
	})

	d := &Daemon{
		Config:    cfg,
		DB:        db,
		Catalog:   cat,
		History:   provider,
		Simulator: sim,
		Metrics:   metrics,
		Tracer:    tracer,
		Registry:  reg,
		log:       logger,
		version:   version,
	}
	d.Sessions = session.New(session.Deps{
		Store:     db,
		Quests:    cat,
		Simulator: sim,
		Metrics:   metrics,
		Tracer:    tracer,
		Logger:    logger,
	})
	d.Executor = executor.New(executor.Config{
		MaxConcurrent:  cfg.Simulation.CompareWorkers,
		DefaultTimeout: cfg.Timeout(),
	}, sim, metrics, logger)
	return d, nil
}

// Handler builds the HTTP handler.
func (d *Daemon) Handler() http.Handler {
	metricsPath := ""
	if d.Config.Metrics.Enabled {
		metricsPath = d.Config.Metrics.Path
	}
	srv := api.NewServer(api.Deps{
		Catalog:   d.Catalog,
		Sessions:  d.Sessions,
		Simulator: d.Simulator,
		Executor:  d.Executor,
		History:   d.History,
		Metrics:   d.Metrics,
		Tracer:    d.Tracer,
		Gatherer:  d.Registry,
		Logger:    d.log,
	}, api.Options{
		Version:            d.version,
		RequestTimeout:     d.Config.Timeout(),
		CORSOrigins:        d.Config.API.CORSOrigins,
		MetricsPath:        metricsPath,
		MaxPlanSteps:       d.Config.Simulation.MaxPlanSteps,
		DefaultGranularity: d.Config.DefaultGranularity(),
	})
	return srv.Handler()
}

// Serve listens on the configured address until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.Config.Addr(), err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("finquest listening", "addr", ln.Addr().String(), "version", d.version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	d.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases storage.
func (d *Daemon) Close() error {
	return d.DB.Close()
}
