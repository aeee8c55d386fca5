// Package main wires together the hospital crawler service binary.
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

	"github.com/mednetlabs/hospital-crawler/internal/api"
	"github.com/mednetlabs/hospital-crawler/internal/clock/system"
	"github.com/mednetlabs/hospital-crawler/internal/config"
	"github.com/mednetlabs/hospital-crawler/internal/coordinator"
	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
	"github.com/mednetlabs/hospital-crawler/internal/id/uuid"
	"github.com/mednetlabs/hospital-crawler/internal/logging"
	"github.com/mednetlabs/hospital-crawler/internal/metrics"
	memoryStorage "github.com/mednetlabs/hospital-crawler/internal/storage/memory"
	postgresStorage "github.com/mednetlabs/hospital-crawler/internal/storage/postgres"
	"github.com/mednetlabs/hospital-crawler/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	var store crawler.Store
	switch cfg.Storage.Provider {
	case "postgres":
		pgStore, err := postgresStorage.New(ctx, postgresStorage.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
		}, logger.Named("storage"))
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
	default:
		logger.Warn("using in-memory storage, scraped pages will not survive restarts")
		store = memoryStorage.New()
	}

	clock := system.New()
	idGen := uuid.New()
	extractor := extract.New(logger.Named("extract"))

	selector := strategy.NewSelector(strategy.SelectorConfig{
		UserAgent:    cfg.Crawler.UserAgent,
		HostQPS:      cfg.Crawler.HostQPS,
		FetchTimeout: cfg.FetchTimeout(),
		ProxyTimeout: cfg.ProxyTimeout(),
		NativeBudget: crawler.Budget{
			MaxPages:  cfg.Crawler.MaxPages,
			MaxDepth:  cfg.Crawler.MaxDepth,
			BatchSize: cfg.Crawler.BatchSize,
		},
		AdvancedBudget: crawler.Budget{
			MaxPages:  cfg.Crawler.AdvancedMaxPages,
			MaxDepth:  cfg.Crawler.AdvancedMaxDepth,
			BatchSize: cfg.Crawler.BatchSize,
		},
		AdvancedTimeout: cfg.AdvancedTimeout(),
		ProxyBudget: crawler.Budget{
			MaxPages:  cfg.Crawler.MaxPages,
			MaxDepth:  cfg.Crawler.MaxDepth,
			BatchSize: cfg.Crawler.BatchSize,
		},
		ProxyEndpoint:    cfg.Providers.ProxyEndpoint,
		CrawlAPIEndpoint: cfg.Providers.CrawlEndpoint,
		CrawlPageLimit:   cfg.Providers.CrawlPageLimit,
		PollInterval:     cfg.CrawlPollInterval(),
		MaxPolls:         cfg.Providers.CrawlMaxPolls,
	}, extractor, clock, logger.Named("strategy"))

	coord := coordinator.New(store, clock, idGen, logger.Named("coordinator"))

	apiServer := api.NewServer(coord, selector, api.Options{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
