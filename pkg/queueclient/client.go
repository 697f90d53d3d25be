// Package queueclient sends and deletes queue messages in batches. Entries
// are deduplicated by ID, split into batch calls sent concurrently, and the
// entries a response lists as failed are retried by ID with exponential
// backoff.
package queueclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-batchsend/pkg/batching"
	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNilTransport is returned by NewClient when no transport is given.
var ErrNilTransport = errors.New("queue transport cannot be nil")

// Transport is the queue service as seen by the Client.
type Transport interface {
	SendMessage(ctx context.Context, queueURL, body string) error
	SendMessageBatch(ctx context.Context, queueURL string, entries []types.SendEntry) (*types.BatchOutput, error)
	DeleteMessageBatch(ctx context.Context, queueURL string, entries []types.DeleteEntry) (*types.BatchOutput, error)
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff replaces the exponential backoff derived from Config.BasePause.
func WithBackoff(b batching.Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithSendDropHandler observes send entries given up on.
func WithSendDropHandler(fn batching.DropFunc[types.SendEntry]) Option {
	return func(c *Client) {
		c.onSendDrop = fn
	}
}

// WithDeleteDropHandler observes delete entries given up on.
func WithDeleteDropHandler(fn batching.DropFunc[types.DeleteEntry]) Option {
	return func(c *Client) {
		c.onDeleteDrop = fn
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client delivers messages to one queue. It is safe for concurrent use.
type Client struct {
	transport    Transport
	cfg          Config
	logger       zerolog.Logger
	backoff      batching.Backoff
	onSendDrop   batching.DropFunc[types.SendEntry]
	onDeleteDrop batching.DropFunc[types.DeleteEntry]
	metrics      metrics.Collector
}

// NewClient creates a Client for cfg.QueueURL.
func NewClient(transport Transport, cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}
	c := &Client{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With().Str("component", "QueueClient").Str("queue_url", cfg.QueueURL).Logger(),
		backoff:   batching.ExponentialBackoff{Base: cfg.BasePause},
		metrics:   metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info().Int("max_retry", cfg.MaxRetry).Dur("base_pause", cfg.BasePause).Msg("QueueClient initialized.")
	return c, nil
}

// Send enqueues one payload as a JSON message. There is no batching or retry.
func (c *Client) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := c.transport.SendMessage(ctx, c.cfg.QueueURL, string(body)); err != nil {
		return fmt.Errorf("sending message to %s: %w", c.cfg.QueueURL, err)
	}
	return nil
}

// SendBatch sends entries in batches of chunkSize. When chunkSize <= 0 the
// Config's ChunkSize is used, then DefaultChunkSize. Entries sharing an ID are sent once, first one wins.
// Entries still failing after MaxRetry retry rounds are dropped without an
// error; an error is returned only if a batch call itself fails.
func (c *Client) SendBatch(ctx context.Context, entries []types.SendEntry, chunkSize int) error {
	dispatch := func(ctx context.Context, batch []types.SendEntry) ([]types.SendEntry, error) {
		out, err := c.transport.SendMessageBatch(ctx, c.cfg.QueueURL, batch)
		if err != nil {
			return nil, err
		}
		return failedByID(batch, out), nil
	}
	if err := deliver(ctx, c, entries, chunkSize, metrics.PipelineQueueSend, dispatch, c.onSendDrop); err != nil {
		return fmt.Errorf("sending message batch to %s: %w", c.cfg.QueueURL, err)
	}
	return nil
}

// DeleteBatch deletes entries in batches of chunkSize, with the same
// deduplication and retry rules as SendBatch.
func (c *Client) DeleteBatch(ctx context.Context, entries []types.DeleteEntry, chunkSize int) error {
	dispatch := func(ctx context.Context, batch []types.DeleteEntry) ([]types.DeleteEntry, error) {
		out, err := c.transport.DeleteMessageBatch(ctx, c.cfg.QueueURL, batch)
		if err != nil {
			return nil, err
		}
		return failedByID(batch, out), nil
	}
	if err := deliver(ctx, c, entries, chunkSize, metrics.PipelineQueueDelete, dispatch, c.onDeleteDrop); err != nil {
		return fmt.Errorf("deleting message batch from %s: %w", c.cfg.QueueURL, err)
	}
	return nil
}

func deliver[E batching.Identifiable](
	ctx context.Context,
	c *Client,
	entries []E,
	chunkSize int,
	pipeline metrics.Pipeline,
	dispatch batching.DispatchFunc[E],
	onDrop batching.DropFunc[E],
) error {
	if len(entries) == 0 {
		return nil
	}
	chunkSize = c.chunkSize(chunkSize)

	retrier, err := batching.NewRetrier(batching.RetrierConfig[E]{
		RetryChunkSize: chunkSize,
		MaxRetry:       c.cfg.MaxRetry,
		Backoff:        c.backoff,
		Prepare:        batching.Dedupe[E],
		OnDrop:         onDrop,
		Metrics:        c.metrics,
		Pipeline:       pipeline,
	}, dispatch, c.logger)
	if err != nil {
		return err
	}

	unique := batching.Dedupe(entries)
	if len(unique) < len(entries) {
		c.logger.Debug().Int("entry_count", len(entries)).Int("unique_count", len(unique)).
			Str("pipeline", string(pipeline)).Msg("Removed duplicate entry IDs.")
	}
	return retrier.Deliver(ctx, batching.Chunk(unique, chunkSize))
}

func (c *Client) chunkSize(requested int) int {
	switch {
	case requested > 0:
		return requested
	case c.cfg.ChunkSize > 0:
		return c.cfg.ChunkSize
	default:
		return DefaultChunkSize
	}
}

// failedByID selects the request entries whose ID is in the response's failed
// set. Entries are returned unchanged so their ID survives the retry.
func failedByID[E batching.Identifiable](batch []E, out *types.BatchOutput) []E {
	if out == nil || len(out.Failed) == 0 {
		return nil
	}
	ids := out.FailedIDs()
	var failed []E
	for _, e := range batch {
		if _, ok := ids[e.Identity()]; ok {
			failed = append(failed, e)
		}
	}
	return failed
}
