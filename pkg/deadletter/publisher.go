// Package deadletter forwards entries the delivery clients gave up on to a
// Google Pub/Sub topic. It only publishes; where that topic leads is up to
// the caller.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-batchsend/pkg/batching"
	"github.com/illmade-knight/go-batchsend/pkg/config"
	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	AttributePipeline = "pipeline"
	AttributeReason   = "reason"
	// ReasonRetriesExhausted is the reason attached to every dropped entry.
	ReasonRetriesExhausted = "retries_exhausted"
)

// Publisher sends one message and reports whether it was accepted.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	Stop()
}

// PubsubPublisher is a direct, non-batching Pub/Sub publisher.
type PubsubPublisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
	// owned is closed by Stop when the publisher created the client.
	owned *pubsub.Client
}

var _ Publisher = (*PubsubPublisher)(nil)

// NewPubsubPublisher creates a publisher for topicID.
func NewPubsubPublisher(client *pubsub.Client, topicID string, logger zerolog.Logger) (*PubsubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if topicID == "" {
		return nil, fmt.Errorf("dead-letter topic id cannot be empty")
	}
	return &PubsubPublisher{
		topic:  client.Topic(topicID),
		logger: logger.With().Str("component", "DeadLetterPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// NewPublisherFromConfig creates a Pub/Sub client for cfg.ProjectID and a
// publisher for cfg.TopicID. The client is closed by Stop.
func NewPublisherFromConfig(ctx context.Context, cfg config.DeadLetterConfig, logger zerolog.Logger, opts ...option.ClientOption) (*PubsubPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("dead-letter topic id cannot be empty")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("dead-letter project id cannot be empty")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client for dead-letter topic: %w", err)
	}
	pub, err := NewPubsubPublisher(client, cfg.TopicID, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	pub.owned = client
	return pub, nil
}

// Publish sends a message and waits for Pub/Sub to accept it.
func (p *PubsubPublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})
	msgID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish dead-letter message: %w", err)
	}
	p.logger.Debug().Str("dlt_msg_id", msgID).Msg("Message sent to dead-letter topic.")
	return nil
}

// Stop flushes any pending messages for the topic.
func (p *PubsubPublisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.owned != nil {
		if err := p.owned.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to close dead-letter pubsub client.")
		}
	}
}

// NewDropHandler returns a DropFunc that publishes each dropped entry as JSON,
// tagged with the pipeline it came from. Publish failures are logged; the
// entry is then lost as it would be without a handler.
func NewDropHandler[E any](pub Publisher, pipeline metrics.Pipeline, logger zerolog.Logger) batching.DropFunc[E] {
	logger = logger.With().Str("component", "DeadLetterHandler").Str("pipeline", string(pipeline)).Logger()
	attrs := map[string]string{
		AttributePipeline: string(pipeline),
		AttributeReason:   ReasonRetriesExhausted,
	}
	return func(ctx context.Context, dropped []E) {
		for _, e := range dropped {
			payload, err := json.Marshal(e)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to marshal dropped entry.")
				continue
			}
			if err := pub.Publish(ctx, payload, attrs); err != nil {
				logger.Error().Err(err).Msg("Failed to dead-letter dropped entry.")
			}
		}
	}
}
