// Package main wires together the workherald service binary.
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

	"github.com/mferrill/workherald/internal/api"
	"github.com/mferrill/workherald/internal/browser"
	"github.com/mferrill/workherald/internal/clock/system"
	"github.com/mferrill/workherald/internal/config"
	"github.com/mferrill/workherald/internal/dispatcher"
	"github.com/mferrill/workherald/internal/fetcher"
	"github.com/mferrill/workherald/internal/id/uuid"
	"github.com/mferrill/workherald/internal/logging"
	"github.com/mferrill/workherald/internal/metrics"
	"github.com/mferrill/workherald/internal/policy"
	"github.com/mferrill/workherald/internal/storage/memory"
	"github.com/mferrill/workherald/internal/storage/postgres"
	"github.com/mferrill/workherald/internal/submit"
	"github.com/mferrill/workherald/internal/workmeta"
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
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	jobs, subs, settings, closeStores, err := buildStores(ctx, cfg, clock)
	if err != nil {
		logger.Error("store init failed", zap.Error(err))
		return
	}
	defer closeStores()

	idGen := uuid.NewGenerator()
	probeFetcher := fetcher.New(fetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})
	detector := fetcher.NewMetaDetector(cfg.Fetch.MinHTMLBytes, nil)
	pool := browser.New(browser.Config{
		MaxUses:        cfg.Browser.MaxUses,
		HealthInterval: time.Duration(cfg.Browser.HealthIntervalSec) * time.Second,
		NavTimeout:     cfg.NavTimeout(),
		UserAgents:     cfg.Browser.UserAgents,
	}, logger.Named("browser"))
	defer pool.Shutdown()

	screener := policy.New(cfg.Policy.DeniedRatings, cfg.Policy.DeniedTags)
	notifier := newLogNotifier(logger.Named("notify"))

	dispatch := dispatcher.New(
		jobs, subs, settings,
		probeFetcher, detector, pool,
		screener, notifier, clock,
		dispatcher.Config{
			TickInterval: cfg.TickInterval(),
			ClaimLimit:   cfg.Dispatcher.ClaimLimit,
			StaleAfter:   cfg.StaleAfter(),
		},
		logger.Named("dispatcher"),
	)

	service := submit.New(jobs, subs, idGen, clock, logger.Named("submit"))
	apiServer := api.NewServer(service, jobs, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started")
		dispatch.Run(ctx)
	}()

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

func buildStores(ctx context.Context, cfg config.Config, clock workmeta.Clock) (
	workmeta.JobStore, workmeta.SubscriberStore, workmeta.SettingsStore, func(), error,
) {
	switch cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		jobs, err := postgres.NewJobStoreWithPool(pool)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		subs, err := postgres.NewSubscriberStoreWithPool(pool)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		settings, err := postgres.NewSettingsStoreWithPool(pool)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return jobs, subs, settings, pool.Close, nil
	default:
		return memory.NewJobStore(clock), memory.NewSubscriberStore(), memory.NewSettingsStore(), func() {}, nil
	}
}
