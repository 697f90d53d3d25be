// Package pubsubstream maps stream batches onto Google Cloud Pub/Sub topics so
// the stream client can deliver to Pub/Sub. The stream name is the topic ID,
// and every entry becomes one message with its partition key as an attribute.
package pubsubstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-batchsend/pkg/streamclient"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
)

// PartitionKeyAttribute carries StreamEntry.PartitionKey on each message.
const PartitionKeyAttribute = "partition_key"

// ErrorCodePublishFailed marks a message Pub/Sub did not accept.
const ErrorCodePublishFailed = "PublishFailed"

// Config holds settings for the Pub/Sub transport.
type Config struct {
	// PublishTimeout bounds the wait for each message's publish result.
	PublishTimeout time.Duration
	// VerifyTopics checks that a topic exists the first time it is used.
	VerifyTopics bool
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		PublishTimeout: 10 * time.Second,
		VerifyTopics:   true,
	}
}

// Transport publishes stream batches to Pub/Sub. Topics are opened on first
// use and kept until Stop.
type Transport struct {
	client *pubsub.Client
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

var _ streamclient.Transport = (*Transport)(nil)

// NewTransport creates a Transport. The client is not closed by Stop.
func NewTransport(client *pubsub.Client, cfg Config, logger zerolog.Logger) (*Transport, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for transport")
	}
	if cfg.PublishTimeout <= 0 {
		logger.Warn().Dur("invalid_timeout", cfg.PublishTimeout).Msg("PublishTimeout is non-positive, using default.")
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Transport{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "PubsubStreamTransport").Logger(),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

func (t *Transport) topic(ctx context.Context, topicID string) (*pubsub.Topic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if topic, ok := t.topics[topicID]; ok {
		return topic, nil
	}

	topic := t.client.Topic(topicID)
	if t.cfg.VerifyTopics {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check existence of topic %s: %w", topicID, err)
		}
		if !exists {
			return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
		}
	}
	t.topics[topicID] = topic
	t.logger.Info().Str("topic_id", topicID).Msg("Opened topic.")
	return topic, nil
}

// PutRecords publishes every entry to the topic named streamName and waits
// for all publish results. A message that fails to publish is reported at
// its position; only a missing or unreachable topic fails the whole call.
func (t *Transport) PutRecords(ctx context.Context, streamName string, entries []types.StreamEntry) (*types.PutRecordsOutput, error) {
	topic, err := t.topic(ctx, streamName)
	if err != nil {
		return nil, err
	}

	results := make([]*pubsub.PublishResult, len(entries))
	for i, e := range entries {
		results[i] = topic.Publish(ctx, &pubsub.Message{
			Data:       []byte(e.Blob),
			Attributes: map[string]string{PartitionKeyAttribute: e.PartitionKey},
		})
	}

	out := &types.PutRecordsOutput{Records: make([]types.RecordResult, len(entries))}
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, res := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			getCtx, cancel := context.WithTimeout(ctx, t.cfg.PublishTimeout)
			defer cancel()

			msgID, err := res.Get(getCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Records[i] = types.RecordResult{ErrorCode: ErrorCodePublishFailed, ErrorMessage: err.Error()}
				out.FailedCount++
				return
			}
			out.Records[i] = types.RecordResult{SequenceNumber: msgID, ShardID: streamName}
		}()
	}
	wg.Wait()

	if out.FailedCount > 0 {
		t.logger.Warn().Str("topic_id", streamName).Int("failed_count", out.FailedCount).
			Int("batch_size", len(entries)).Msg("Some messages failed to publish.")
	}
	return out, nil
}

// Stop flushes and stops every opened topic.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, topic := range t.topics {
		topic.Stop()
		delete(t.topics, id)
	}
	t.logger.Info().Msg("Pub/Sub stream transport stopped.")
}
