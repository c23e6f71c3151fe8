// Command postreplay publishes a post dataset to the post-events Kafka topic
// as insert events, so running indexers rebuild their trees from the stream.
//
// Usage:
//
//	go run ./cmd/postreplay -file data/posts.ndjson.zst [-limit 1000000] [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "dataset to publish (csv, json, ndjson, optionally .gz/.zst)")
	limit := flag.Int64("limit", 0, "stop after this many posts (0 = all)")
	batch := flag.Int("batch", 0, "events per Kafka write (0 = kafka.batchSize from config)")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "postreplay: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	dec, closer, err := ingestion.Open(*file, cfg.Ingest.MaxLineBytes)
	if err != nil {
		slog.Error("failed to open dataset", "path", *file, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PostEvents)
	defer producer.Close()
	slog.Info("replaying dataset", "path", *file, "topic", cfg.Kafka.Topics.PostEvents, "limit", *limit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchSize := *batch
	if batchSize <= 0 {
		batchSize = cfg.Kafka.BatchSize
	}
	res, err := publisher.Replay(ctx, dec, producer, publisher.Options{
		BatchSize: batchSize,
		Limit:     *limit,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
	})
	if err != nil {
		slog.Error("replay failed", "published", res.Published, "error", err)
		os.Exit(1)
	}
	fmt.Printf("published %d posts in %d batches (%d skipped) in %s\n",
		res.Published, res.Batches, res.Skipped, res.Elapsed.Round(1e6))
}
