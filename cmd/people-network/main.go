package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
	"github.com/ZanzyTHEbar/people-network-go/internal/bootstrap"
	"github.com/ZanzyTHEbar/people-network-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/people-network-go/internal/config"
	"github.com/ZanzyTHEbar/people-network-go/internal/database"
	"github.com/ZanzyTHEbar/people-network-go/internal/logging"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
	"github.com/ZanzyTHEbar/people-network-go/internal/server"
)

var (
	libsqlURL   = flag.String("libsql-url", "", "libSQL database URL (default: file:./people-network.db)")
	authToken   = flag.String("auth-token", "", "Authentication token for remote databases")
	transport   = flag.String("transport", "", "MCP transport: stdio or sse (default from TRANSPORT, else sse)")
	addr        = flag.String("addr", "", "Address the HTTP server listens on (default :8080)")
	sseEndpoint = flag.String("sse-endpoint", "", "SSE endpoint path (default /sse)")
	originURL   = flag.String("origin", "", "Upstream origin for assets; overrides -static-dir")
	staticDir   = flag.String("static-dir", "", "Directory of built assets (default ./public)")
	manifest    = flag.String("manifest", "", "YAML asset manifest with cachePrefix, version and assets")
	cacheStore  = flag.String("cache-store", "", "Asset cache backend: libsql or memory")
	noCache     = flag.Bool("no-offline-cache", false, "Disable asset pre-caching")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func applyFlags(cfg *config.Config) error {
	if *libsqlURL != "" {
		cfg.DB.URL = *libsqlURL
	}
	if *authToken != "" {
		cfg.DB.AuthToken = *authToken
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *sseEndpoint != "" {
		cfg.SSEEndpoint = *sseEndpoint
	}
	if *originURL != "" {
		cfg.OriginURL = *originURL
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *cacheStore != "" {
		cfg.CacheStore = *cacheStore
	}
	if *noCache {
		cfg.OfflineCache = false
	}
	if *manifest != "" {
		cache, err := config.LoadManifest(*manifest)
		if err != nil {
			return err
		}
		cfg.ManifestPath = *manifest
		cfg.Cache = cache
	}
	return nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.InitFromEnv()

	db, err := database.NewDBManager(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("error closing database", zap.Error(err))
		}
	}()

	var storage assetcache.Storage = db.CacheStore()
	if cfg.CacheStore == config.StoreMemory {
		storage = assetcache.NewMemoryStorage()
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	worker, err := assetcache.NewWorker(cfg.Cache, storage, fetcher, logger.Named("assetcache"))
	if err != nil {
		return fmt.Errorf("failed to create asset cache worker: %w", err)
	}

	mcpServer := server.NewMCPServer(db, worker, logger.Named("mcp"))
	go mcpServer.ReportPoolStats(ctx)

	app := &bootstrap.App{
		Worker:        worker,
		MCP:           mcpServer,
		OfflineCache:  cfg.OfflineCache,
		SSEEndpoint:   cfg.SSEEndpoint,
		CORSOrigins:   cfg.CORSOrigins,
		RetryInterval: 15 * time.Second,
		Logger:        logger,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Mount(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting people-network",
		zap.String("version", buildinfo.Version),
		zap.String("addr", cfg.Addr),
		zap.String("transport", cfg.Transport),
		zap.String("cache", worker.CacheName()),
		zap.String("cache_store", cfg.CacheStore))

	// the page is served immediately; pre-caching runs on its own
	app.Register(ctx)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.Transport == "stdio" {
		go func() {
			if err := mcpServer.Run(ctx); err != nil {
				errCh <- fmt.Errorf("stdio server: %w", err)
				return
			}
			// stdin closed
			stop()
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}
	return err
}

func newFetcher(cfg *config.Config, logger *zap.Logger) (assetcache.Fetcher, error) {
	if cfg.OriginURL != "" {
		client := &http.Client{Timeout: 15 * time.Second}
		f, err := assetcache.NewOriginFetcher(cfg.OriginURL, client, assetcache.DefaultBreakerConfig(), logger.Named("origin"))
		if err != nil {
			return nil, fmt.Errorf("failed to create origin fetcher: %w", err)
		}
		return f, nil
	}
	return assetcache.NewFSFetcher(os.DirFS(cfg.StaticDir), cfg.IndexFile), nil
}
