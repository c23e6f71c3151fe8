// Package publisher replays a post dataset onto the post-events Kafka topic
// as insert events, so a running indexer can build its tree from the stream.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Options struct {
	BatchSize int
	Retry     resilience.RetryConfig
	// Limit stops the replay after this many events, zero means all.
	Limit int64
}

type Result struct {
	Published int64
	Skipped   int64
	Batches   int64
	Elapsed   time.Duration
}

// Replay publishes every decodable post from dec. Events are keyed by post
// id so later likes and deletes for the same id land on the same partition.
func Replay(ctx context.Context, dec ingestion.Decoder, pub BatchPublisher, opts Options) (Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	logger := slog.Default().With("component", "replay")
	start := time.Now()
	var res Result
	batch := make([]kafka.Event, 0, opts.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := resilience.Retry(ctx, "publish-batch", opts.Retry, func() error {
			return pub.PublishBatch(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("publishing batch %d: %w", res.Batches+1, err)
		}
		res.Published += int64(len(batch))
		res.Batches++
		batch = batch[:0]
		if res.Batches%100 == 0 {
			logger.Info("replay progress", "published", res.Published, "elapsed", time.Since(start).Round(time.Millisecond))
		}
		return nil
	}

	for opts.Limit == 0 || res.Published+int64(len(batch)) < opts.Limit {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		p, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, apperrors.ErrMalformedRecord) {
				res.Skipped++
				continue
			}
			res.Elapsed = time.Since(start)
			return res, err
		}
		if err := post.Validate(p); err != nil {
			res.Skipped++
			continue
		}
		batch = append(batch, kafka.Event{Key: p.ID, Value: post.InsertEvent(p)})
		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
	}
	err := flush()
	res.Elapsed = time.Since(start)
	if err == nil {
		logger.Info("replay complete", "published", res.Published, "skipped", res.Skipped, "elapsed", res.Elapsed.Round(time.Millisecond))
	}
	return res, err
}
