package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/pnhp/nha-sync/internal/config"
	"github.com/pnhp/nha-sync/internal/domain"
)

// ScoreWriter publishes each site's priority score to a Kafka topic, keyed by
// join id so a compacted topic keeps the latest score per site.
type ScoreWriter struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewScoreWriter creates a producer for the configured score topic.
func NewScoreWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *ScoreWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaScoreTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &ScoreWriter{writer: w, clock: clock, logger: logger.With("component", "kafka")}
}

// WriteScores publishes the score table in a single WriteMessages call.
func (w *ScoreWriter) WriteScores(ctx context.Context, scores []domain.PriorityScore) error {
	if len(scores) == 0 {
		return nil
	}
	scoredAt := w.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(scores))
	for i := range scores {
		msg, err := serializeToMessage(scores[i], scoredAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish scores: %w", err)
	}
	w.logger.Info("scores published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *ScoreWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PriorityScore into a Kafka message.
func serializeToMessage(score domain.PriorityScore, scoredAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(score)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize score %s: %w", score.JoinID, err)
	}
	tier := ""
	if score.BotanyTier != nil {
		tier = string(*score.BotanyTier)
	}
	return kafkago.Message{
		Key:   []byte(score.JoinID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "botany_tier", Value: []byte(tier)},
			{Key: "scored_at", Value: []byte(scoredAt.Format(time.RFC3339))},
		},
	}, nil
}
