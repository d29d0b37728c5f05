package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"unshub/internal/config"
	"unshub/pkg/logging"
)

// runHub starts every service, blocks until the context is cancelled or an
// interrupt signal arrives, and shuts down in reverse start order.
// Background loops (metrics endpoint, history retention) run under an
// errgroup: a failing loop takes the hub down cleanly.
func runHub(ctx context.Context, cfg *Config, services *Services) error {
	hubCfg := cfg.HubConfig

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	services.Cache.Start(runCtx)

	if err := services.Ingest.Start(runCtx, hubCfg.Connections.Ingest); err != nil {
		// Partial startup: connections that did come up keep running.
		logging.Warn("Hub", "Some ingest connections failed to start: %v", err)
	}
	if err := services.Publisher.Start(runCtx, hubCfg.Connections.Publish); err != nil {
		logging.Warn("Hub", "Some publish connections failed to start: %v", err)
	}

	g, loopCtx := errgroup.WithContext(runCtx)

	metricsSrv := newMetricsServer(hubCfg.Server)
	if metricsSrv != nil {
		g.Go(func() error {
			logging.Info("Hub", "Metrics endpoint listening on %s/metrics", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if hubCfg.History.Enabled && hubCfg.History.RetentionHours > 0 {
		g.Go(func() error {
			return runArchiveLoop(loopCtx, hubCfg.History, services)
		})
	}

	var watcher *config.Watcher
	if cfg.WatchConfig {
		watcher = config.NewWatcher(cfg.ConfigPath, func(next config.Config) {
			applyReload(cfg, next)
		})
		if err := watcher.Start(); err != nil {
			logging.Warn("Hub", "Configuration watcher unavailable: %v", err)
			watcher = nil
		}
	}

	logging.Info("Hub", "unshub is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-loopCtx.Done():
	case sig := <-sigChan:
		logging.Info("Hub", "Received %s, shutting down", sig)
	}

	if watcher != nil {
		watcher.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Hub", "Metrics server shutdown: %v", err)
		}
	}
	cancel()
	loopErr := g.Wait()

	services.Publisher.Stop()
	services.Ingest.Stop()
	services.Manager.Shutdown()
	services.Cache.Stop()

	logging.Info("Hub", "Shutdown complete")
	return loopErr
}

// newMetricsServer builds the Prometheus endpoint. A zero port disables it.
func newMetricsServer(server config.ServerConfig) *http.Server {
	if server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	return &http.Server{
		Addr:    net.JoinHostPort(server.Host, strconv.Itoa(server.MetricsPort)),
		Handler: mux,
	}
}

// runArchiveLoop prunes historical data past the retention window once an
// hour until the context is cancelled.
func runArchiveLoop(ctx context.Context, hist config.HistoryConfig, services *Services) error {
	retention := time.Duration(hist.RetentionHours) * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := services.Historical.Archive(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				logging.Warn("Hub", "History archive failed: %v", err)
				continue
			}
			if removed > 0 {
				logging.Debug("Hub", "Archived %d historical points past %s retention", removed, retention)
			}
		}
	}
}

// applyReload applies what can change at runtime: the log level. Connection
// and queue changes need a restart because acquired transports and the queue
// processor are not rebuilt in place.
func applyReload(cfg *Config, next config.Config) {
	prev := cfg.HubConfig
	if next.Logging.Level != prev.Logging.Level && !cfg.Debug {
		logging.InitForCLI(logging.ParseLevel(next.Logging.Level), os.Stdout)
		logging.Info("Hub", "Log level changed to %s", next.Logging.Level)
	}
	if len(next.Connections.Ingest) != len(prev.Connections.Ingest) ||
		len(next.Connections.Publish) != len(prev.Connections.Publish) {
		logging.Warn("Hub", "Connection configuration changed; restart unshub to apply")
	}
	cfg.HubConfig = &next
}
