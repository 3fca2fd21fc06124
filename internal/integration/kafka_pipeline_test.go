//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/pnhp/nha-sync/internal/adapter/kafka"
	"github.com/pnhp/nha-sync/internal/config"
	"github.com/pnhp/nha-sync/internal/domain"
)

const testScoreTopic = "test-scores"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nha-sync-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// publishedScore is a message read back from the score topic.
type publishedScore struct {
	Score   domain.PriorityScore
	Key     string
	Headers map[string]string
}

func readScore(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedScore {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from score topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var score domain.PriorityScore
	require.NoError(t, json.Unmarshal(msg.Value, &score), "unmarshal score message")
	return publishedScore{Score: score, Key: string(msg.Key), Headers: headers}
}

// TestScoreWriterRoundTrip publishes a score table and reads it back in order.
func TestScoreWriterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testScoreTopic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaScoreTopic:    testScoreTopic,
		BatchSize:          10,
		BatchFlushInterval: 100 * time.Millisecond,
	}
	scoredAt := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	writer := kafka.NewScoreWriter(cfg, clockwork.NewFakeClockAt(scoredAt), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	tier := domain.Tier1
	pct := 1.0
	scores := []domain.PriorityScore{
		{JoinID: "NHA-1", SiteScore: 120, ScorePercentile: 1, BotanyScore: 100, BotanyPercentile: &pct, BotanyTier: &tier},
		{JoinID: "NHA-2", SiteScore: 10, ScorePercentile: 0.5},
	}
	require.NoError(t, writer.WriteScores(ctx, scores))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testScoreTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readScore(ctx, t, consumer)
	assert.Equal(t, "NHA-1", first.Key)
	assert.Equal(t, "Tier 1", first.Headers["botany_tier"])
	assert.Equal(t, scoredAt.Format(time.RFC3339), first.Headers["scored_at"])
	assert.Equal(t, scores[0], first.Score)

	second := readScore(ctx, t, consumer)
	assert.Equal(t, "NHA-2", second.Key)
	assert.Empty(t, second.Headers["botany_tier"])
	assert.Nil(t, second.Score.BotanyTier)
	assert.Equal(t, scores[1], second.Score)
}
