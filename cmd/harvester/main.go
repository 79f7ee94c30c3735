package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmatic/harvester/api"
	"github.com/flowmatic/harvester/browser"
	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/fetcher"
	"github.com/flowmatic/harvester/metrics"
	"github.com/flowmatic/harvester/proxypool"
	"github.com/flowmatic/harvester/router"
	"github.com/flowmatic/harvester/store"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvester starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Open the proxy store ─────────────────────────────────────
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open proxy store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── 4. Proxy pool manager (starts the report worker) ────────────
	pool := proxypool.NewManager(db, cfg.ProxyPool)
	defer pool.Close()

	// ── 5. Browser page pool (launches lazily on first use) ─────────
	pages := browser.NewPool(cfg.Browser)
	defer pages.Close()

	// ── 6. Engine router with its heuristic cache ───────────────────
	cache := router.NewMemoryCache(cfg.Router.CacheMaxEntries)
	engineRouter := router.New(cfg.Router, cache)

	// ── 7. Fetch orchestrator ───────────────────────────────────────
	orchestrator := fetcher.New(cfg.Fetcher, engineRouter)
	orchestrator.SetProxyPool(pool)
	orchestrator.SetPagePool(pages)
	defer orchestrator.Close()

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(cfg.Metrics)
		orchestrator.SetTelemetry(recorder)
	}

	// ── 8. HTTP router ──────────────────────────────────────────────
	deps := api.Deps{
		Scraper:    orchestrator,
		ProxyAdmin: db,
		Pages:      pages,
		StartTime:  time.Now(),
	}
	if recorder != nil {
		deps.Metrics = recorder.Handler()
	}
	engine := api.NewRouter(cfg, deps)

	// ── 9. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 10. Graceful shutdown ───────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred closers drain the report and feedback queues and kill Chrome.
	slog.Info("harvester stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
