package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/provenance-feed/app/api"
	"github.com/lysyi3m/provenance-feed/app/cfg"
	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/feed"
	"github.com/lysyi3m/provenance-feed/app/observer"
	"github.com/lysyi3m/provenance-feed/app/tasks"
)

const observerDrainTimeout = 5 * time.Second

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	if appCfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Starting provenance-feed", "version", appCfg.Version)
	slog.Debug("Configuration loaded", "db_path", appCfg.DBPath, "sources_dir", appCfg.SourcesDir,
		"worker_count", appCfg.WorkerCount, "ingest_interval", appCfg.IngestInterval,
		"page_fetch", appCfg.PageFetch, "observe_enabled", appCfg.ObserveEnabled)

	itemRepo, closeDB, err := openRepository(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open item repository", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	if err := itemRepo.InitSchema(context.Background()); err != nil {
		slog.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	sourceCache := feed.NewSourceCache(appCfg.SourcesDir)
	if err := sourceCache.Run(); err != nil {
		slog.Error("Failed to load feed sources", "error", err)
		os.Exit(1)
	}
	slog.Info("Feed sources loaded", "count", sourceCache.GetSourceCount())

	httpClient := &http.Client{}
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent, appCfg.FeedTimeout, appCfg.PageTimeout)

	var pageFetcher feed.PageFetcher
	if appCfg.PageFetch {
		pageFetcher = fetcher
	}
	parser := feed.NewParser(feed.NewImageResolver(pageFetcher))

	sidecar, err := observer.New(observer.Config{
		Enabled:   appCfg.ObserveEnabled,
		URL:       appCfg.ObserveURL,
		APIKey:    appCfg.ObserveAPIKey,
		Timeout:   appCfg.ObserveTimeout,
		QueueSize: appCfg.ObserveQueueSize,
	})
	if err != nil {
		slog.Error("Failed to start observer", "error", err)
		os.Exit(1)
	}
	slog.Info("Observer configured", "enabled", sidecar.Enabled(), "url", appCfg.ObserveURL)

	scheduler := tasks.NewScheduler(func() tasks.TaskInterface {
		return tasks.NewIngestTask(sourceCache, fetcher, parser, itemRepo, sidecar, appCfg.WorkerCount)
	}, appCfg.IngestInterval, appCfg.RunTimeout, appCfg.IngestOnStartup)
	scheduler.Start()

	apiHandler := api.NewHandler(itemRepo, sourceCache, scheduler, appCfg.Version)
	server := api.NewServer(apiHandler, api.ServerOptions{
		APIAccessKey: appCfg.APIAccessKey,
		CORSOrigins:  appCfg.CORSOrigins,
		RateLimit:    appCfg.RateLimit,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	scheduler.Stop()
	slog.Info("Scheduler stopped")

	observerCtx, observerCancel := context.WithTimeout(context.Background(), observerDrainTimeout)
	defer observerCancel()

	if err := sidecar.Shutdown(observerCtx); err != nil {
		slog.Warn("Observer shutdown incomplete", "error", err)
	} else {
		slog.Info("Observer drained")
	}

	slog.Info("Shutdown complete")
}

// openRepository returns a SQLite-backed repository, or an in-memory one when
// no database path is configured.
func openRepository(path string) (database.ItemRepository, func(), error) {
	if path == "" {
		slog.Warn("No database path configured, items are kept in memory only")
		return database.NewMemoryItemRepository(), func() {}, nil
	}

	db, err := database.NewConnection(path)
	if err != nil {
		return nil, nil, err
	}

	return database.NewSQLiteItemRepository(db), func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}, nil
}
