// Package consumer reads post events from Kafka and applies them to the
// indexer engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
)

// PostConsumer wraps a Kafka consumer to drive the tree.
type PostConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a PostConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *PostConsumer {
	return &PostConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "post-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (pc *PostConsumer) Start(ctx context.Context) error {
	pc.logger.Info("post consumer starting")
	return pc.consumer.Start(ctx)
}

// HandleEvents returns a Kafka MessageHandler that applies each post event
// to engine. Undecodable and invalid events are logged and dropped, so the
// message is committed. Capacity and allocation failures are returned and
// leave the message uncommitted. m may be nil.
func HandleEvents(engine *indexer.Engine, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "post-consumer")
	count := func(op post.Op, result string) {
		if m != nil {
			m.EventsConsumedTotal.WithLabelValues(string(op), result).Inc()
		}
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[post.Event](value)
		if err != nil {
			logger.Error("failed to decode post event",
				"error", err,
				"key", string(key),
			)
			count("unknown", "dropped")
			return nil
		}
		if err := post.ValidateEvent(event); err != nil {
			logger.Warn("dropping invalid post event",
				"op", event.Op,
				"id", event.ID,
				"error", err,
			)
			count(event.Op, "dropped")
			return nil
		}

		applied, err := engine.Apply(event)
		if err != nil {
			count(event.Op, "error")
			if errors.Is(err, apperrors.ErrCapacityExceeded) || errors.Is(err, apperrors.ErrAllocationFailed) {
				return fmt.Errorf("applying %s %s: %w", event.Op, event.ID, err)
			}
			logger.Error("post event failed", "op", event.Op, "id", event.ID, "error", err)
			return nil
		}
		if !applied {
			logger.Debug("post event matched nothing", "op", event.Op, "id", event.ID)
			count(event.Op, "miss")
			return nil
		}
		count(event.Op, "ok")
		return nil
	}
}
