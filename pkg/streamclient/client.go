// Package streamclient delivers arbitrary payloads to a record stream. Payloads
// are serialized to JSON, merged several to an entry, grouped into batch calls
// and sent concurrently; entries the stream rejects are retried with
// exponential backoff under a fresh partition key.
package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-batchsend/pkg/batching"
	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNilTransport is returned by NewClient when no transport is given.
var ErrNilTransport = errors.New("stream transport cannot be nil")

// Transport performs one batch call against a stream. Records in the output
// must be index-aligned with entries.
type Transport interface {
	PutRecords(ctx context.Context, streamName string, entries []types.StreamEntry) (*types.PutRecordsOutput, error)
}

// Option configures a Client.
type Option func(*Client)

// WithKeyFunc replaces the partition key generator. Default: uuid.NewString.
// fn is called from concurrent batches and must be safe for that.
func WithKeyFunc(fn func() string) Option {
	return func(c *Client) {
		c.newKey = fn
	}
}

// WithBackoff replaces the exponential backoff derived from Config.BasePause.
func WithBackoff(b batching.Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithDropHandler registers fn to observe entries given up on after the
// last retry round. Without it they are only logged.
func WithDropHandler(fn batching.DropFunc[types.StreamEntry]) Option {
	return func(c *Client) {
		c.onDrop = fn
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client sends payloads to a stream through a Transport. It is safe for
// concurrent use.
type Client struct {
	transport Transport
	logger    zerolog.Logger
	newKey    func() string
	backoff   batching.Backoff
	onDrop    batching.DropFunc[types.StreamEntry]
	metrics   metrics.Collector
}

// NewClient creates a Client.
func NewClient(transport Transport, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	c := &Client{
		transport: transport,
		logger:    logger.With().Str("component", "StreamClient").Logger(),
		newKey:    uuid.NewString,
		metrics:   metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PutRecords delivers payloads to cfg.StreamName on a best-effort basis.
//
// It returns only when every batch has succeeded or exhausted cfg.MaxRetry
// retry rounds; entries still failing then are dropped without an error. An
// error is returned if a payload cannot be serialized, cfg is invalid, or a
// batch call itself fails.
//
// Limits are enforced by entry count only. A payload larger than the
// stream's per-record byte limit is sent as is and will be rejected.
func (c *Client) PutRecords(ctx context.Context, payloads []any, cfg Config) error {
	if len(payloads) == 0 {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid stream config: %w", err)
	}

	entries, err := c.mergeEntries(payloads, cfg)
	if err != nil {
		return err
	}
	batches := batching.Chunk(entries, cfg.MaxBatchSize)

	backoff := c.backoff
	if backoff == nil {
		backoff = batching.ExponentialBackoff{Base: cfg.BasePause}
	}
	retrier, err := batching.NewRetrier(batching.RetrierConfig[types.StreamEntry]{
		RetryChunkSize: cfg.MaxMergeCount,
		MaxRetry:       cfg.MaxRetry,
		Backoff:        backoff,
		OnDrop:         c.onDrop,
		Metrics:        c.metrics,
		Pipeline:       metrics.PipelineStream,
	}, c.dispatcher(cfg.StreamName), c.logger)
	if err != nil {
		return fmt.Errorf("creating retrier: %w", err)
	}

	c.logger.Debug().
		Str("stream_name", cfg.StreamName).
		Int("payload_count", len(payloads)).
		Int("entry_count", len(entries)).
		Int("batch_count", len(batches)).
		Msg("Putting records.")

	if err := retrier.Deliver(ctx, batches); err != nil {
		return fmt.Errorf("putting records to stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

// mergeEntries serializes payloads and packs them MaxMergeCount to an entry.
func (c *Client) mergeEntries(payloads []any, cfg Config) ([]types.StreamEntry, error) {
	serialized := make([]string, len(payloads))
	for i, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload %d: %w", i, err)
		}
		serialized[i] = string(data)
	}

	groups := batching.Chunk(serialized, cfg.MaxMergeCount)
	entries := make([]types.StreamEntry, len(groups))
	for i, group := range groups {
		entries[i] = types.StreamEntry{
			Blob:         strings.Join(group, cfg.GroupSeparator),
			PartitionKey: c.newKey(),
		}
	}
	return entries, nil
}

func (c *Client) dispatcher(streamName string) batching.DispatchFunc[types.StreamEntry] {
	return func(ctx context.Context, batch []types.StreamEntry) ([]types.StreamEntry, error) {
		out, err := c.transport.PutRecords(ctx, streamName, batch)
		if err != nil {
			return nil, err
		}
		if out == nil || out.FailedCount == 0 {
			return nil, nil
		}
		return c.failedEntries(batch, out), nil
	}
}

// failedEntries selects the request entries whose result position carries an
// error. Each keeps its blob but gets a new partition key.
func (c *Client) failedEntries(batch []types.StreamEntry, out *types.PutRecordsOutput) []types.StreamEntry {
	var failed []types.StreamEntry
	for i, rec := range out.Records {
		if i >= len(batch) {
			c.logger.Warn().Int("record_count", len(out.Records)).Int("batch_size", len(batch)).
				Msg("Response has more records than the request, ignoring the excess.")
			break
		}
		if rec.Failed() {
			failed = append(failed, types.StreamEntry{
				Blob:         batch[i].Blob,
				PartitionKey: c.newKey(),
			})
		}
	}
	return failed
}
