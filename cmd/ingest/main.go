package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"

	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/ingest"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

func main() {
	log := logger.New()

	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		file       = flag.String("file", "", "CSV file with a header row, one transaction per line (required)")
		companyID  = flag.String("company", "", "companyId for rows that have none")
		interval   = flag.Duration("interval", 0, "Delay between messages, e.g. 500ms")
		topicID    = flag.String("topic", "", "Pub/Sub topic (overrides pubsub.topic)")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *topicID == "" {
		*topicID = cfg.PubSub.Topic
	}
	project := cfg.PubSub.Project
	if project == "" {
		project = cfg.Store.Project
	}
	if project == "" {
		log.Fatal().Msg("pubsub.project is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open CSV file")
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer client.Close()

	topic := client.Topic(*topicID)
	defer topic.Stop()

	publisher := ingest.NewPublisher(topic, log)

	log.Info().Str("file", *file).Str("topic", *topicID).Msg("Publishing transactions")

	n, err := publisher.PublishCSV(ctx, f, ingest.CSVOptions{
		CompanyID: *companyID,
		Interval:  *interval,
	})
	if err != nil {
		log.Error().Err(err).Int("published", n).Msg("Publishing stopped")
		os.Exit(1)
	}

	fmt.Printf("Published %d transactions to %s\n", n, *topicID)
}
