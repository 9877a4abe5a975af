// Command domtrack is the tracked-node daemon.
//
// Usage:
//
//	domtrack -config domtrack.yaml                 # track pages from YAML config
//	domtrack -url https://example.com              # quick single-page tracking
//	domtrack -config domtrack.yaml -db pages.db    # also track pages from SQLite, hot-reloaded
//	domtrack -url https://example.com -http :8090  # with status API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/domtrack/domtrack"
)

func main() {
	configPath := flag.String("config", "", "path to domtrack.yaml config file")
	singleURL := flag.String("url", "", "track a single URL (stdout sink)")
	dbPath := flag.String("db", "", "SQLite database with a tracked_pages table")
	httpAddr := flag.String("http", "", "status API listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath == "" && *singleURL == "" && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: domtrack -config <file> | -url <url> | -db <sqlite> [-http addr]")
		os.Exit(2)
	}

	if err := run(ctx, logger, *configPath, *singleURL, *dbPath, *httpAddr); err != nil {
		logger.Error("domtrack: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, dbPath, httpAddr string) error {
	cfg := &domtrack.Config{}
	if configPath != "" {
		var err error
		if cfg, err = domtrack.LoadConfigFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	sinks, journal, err := domtrack.BuildSinks(cfg, logger)
	if err != nil {
		return err
	}

	w := domtrack.New(cfg, logger, sinks...)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if singleURL != "" {
		if err := w.ObservePage(ctx, domtrack.PageConfig{URL: singleURL, TrackFixed: true}); err != nil {
			w.Stop()
			return fmt.Errorf("observe %s: %w", singleURL, err)
		}
	}
	if configPath != "" {
		go w.WatchConfigFile(ctx, configPath)
	}
	if dbPath != "" {
		db, err := domtrack.OpenPagesDB(dbPath)
		if err != nil {
			w.Stop()
			return fmt.Errorf("open pages db: %w", err)
		}
		defer db.Close()
		if err := w.WatchPagesDB(ctx, db, 2*time.Second); err != nil {
			w.Stop()
			return err
		}
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           domtrack.StatusHandler(w, journal, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("domtrack: status API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("domtrack: status API", "error", err)
			}
		}()
	}

	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		cancel()
	}
	w.Stop()
	return nil
}
