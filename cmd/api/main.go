package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/dvloznov/fraud-ledger/internal/api"
	"github.com/dvloznov/fraud-ledger/internal/app"
	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		port       = flag.String("port", "", "HTTP server port (overrides server.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.Pretty)
	log.Debug().Interface("config", cfg.Redacted()).Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start submission worker")
	}

	handler := api.NewRouter(api.Deps{
		Transactions: a.Writer,
		Aggregates:   a.Writer,
		Records:      a.Store,
		Ledger:       a.Reconciler,
		Jobs:         a.Jobs,
		Gatherer:     a.Registry,
		APIKey:       cfg.Server.APIKey,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("store", cfg.Store.Driver).
			Str("ledger", cfg.Ledger.Driver).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// in-flight submissions resolve before the ledger connection closes
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Server exited")
}
