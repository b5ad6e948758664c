package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/dvloznov/fraud-ledger/internal/app"
	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/ingest"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML config file")
		metricsAddr = flag.String("metrics-addr", ":9090", "Address serving /metrics; empty disables it")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.Pretty)

	project := cfg.PubSub.Project
	if project == "" {
		project = cfg.Store.Project
	}
	if project == "" || cfg.PubSub.Subscription == "" {
		log.Fatal().Msg("pubsub.project and pubsub.subscription are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	// the queue outlives ctx so messages in flight at shutdown still resolve
	if err := a.Start(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start submission worker")
	}

	classifier, err := app.NewClassifier(ctx, cfg.Scoring, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scoring oracle")
	}
	if classifier == nil {
		log.Info().Msg("Scoring disabled, events without isFraudulent are recorded as not fraudulent")
	}

	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer client.Close()

	consumer := ingest.NewConsumer(ingest.ConsumerConfig{
		Subscription:   client.Subscription(cfg.PubSub.Subscription),
		Recorder:       a.Writer,
		Classifier:     classifier,
		Metrics:        a.Metrics,
		Logger:         log,
		MaxOutstanding: cfg.PubSub.MaxOutstanding,
	})

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down worker service...")
		cancel()
	}()

	log.Info().
		Str("project", project).
		Str("subscription", cfg.PubSub.Subscription).
		Msg("Worker service started")

	// Receive returns once ctx is cancelled and outstanding callbacks finish
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Consumer stopped with error")
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	log.Info().Msg("Worker service exited")
}
