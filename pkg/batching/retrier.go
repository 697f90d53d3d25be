package batching

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DispatchFunc performs one batch call and returns the entries of batch that
// the response reported as failed, ready to be sent again. An error means
// the call itself failed and is never retried.
type DispatchFunc[E any] func(ctx context.Context, batch []E) (failed []E, err error)

// DropFunc observes entries that were still failing after the last permitted
// retry round. It may be called concurrently from several batches.
type DropFunc[E any] func(ctx context.Context, dropped []E)

// RetrierConfig holds the retry policy of a Retrier.
type RetrierConfig[E any] struct {
	// RetryChunkSize bounds the size of the batches a failed subset is
	// re-split into.
	RetryChunkSize int
	// MaxRetry is the highest attempt number that is still dispatched.
	MaxRetry int
	// Backoff runs before every retry round. Defaults to no wait.
	Backoff Backoff
	// Prepare, if set, transforms each failed subset before re-chunking.
	Prepare func([]E) []E
	// OnDrop, if set, receives the entries given up on.
	OnDrop DropFunc[E]
	// Metrics defaults to metrics.NopCollector.
	Metrics  metrics.Collector
	Pipeline metrics.Pipeline
}

// Retrier dispatches batches concurrently and retries partial failures.
// It holds no per-call state and can be shared between calls.
type Retrier[E any] struct {
	cfg      RetrierConfig[E]
	dispatch DispatchFunc[E]
	logger   zerolog.Logger
}

// NewRetrier creates a Retrier for the given dispatch function.
func NewRetrier[E any](cfg RetrierConfig[E], dispatch DispatchFunc[E], logger zerolog.Logger) (*Retrier[E], error) {
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch function cannot be nil")
	}
	if cfg.RetryChunkSize <= 0 {
		return nil, fmt.Errorf("retry chunk size must be positive, got %d", cfg.RetryChunkSize)
	}
	if cfg.MaxRetry < 0 {
		return nil, fmt.Errorf("max retry cannot be negative, got %d", cfg.MaxRetry)
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NopCollector{}
	}
	return &Retrier[E]{
		cfg:      cfg,
		dispatch: dispatch,
		logger:   logger.With().Str("component", "Retrier").Str("pipeline", string(cfg.Pipeline)).Logger(),
	}, nil
}

// Deliver dispatches every batch concurrently and waits until each batch,
// including the retries it triggers, has either succeeded or been dropped.
// The first batch call error is returned once all branches have finished;
// one branch failing does not stop the others.
func (r *Retrier[E]) Deliver(ctx context.Context, batches [][]E) error {
	return r.round(ctx, batches, 0)
}

// round dispatches batches concurrently. Failures of each batch are retried
// as attempt next.
func (r *Retrier[E]) round(ctx context.Context, batches [][]E, next int) error {
	var g errgroup.Group
	for _, batch := range batches {
		g.Go(func() error {
			failed, err := r.send(ctx, batch)
			if err != nil {
				return err
			}
			if len(failed) == 0 {
				return nil
			}
			r.logger.Warn().
				Int("batch_size", len(batch)).
				Int("failed_count", len(failed)).
				Int("attempt", next).
				Msg("Batch partially failed, scheduling retry.")
			return r.retry(ctx, failed, next)
		})
	}
	return g.Wait()
}

// retry re-sends a failed subset. attempt is owned by this branch and is
// passed by value to the next round.
func (r *Retrier[E]) retry(ctx context.Context, failed []E, attempt int) error {
	if attempt > r.cfg.MaxRetry {
		r.drop(ctx, failed, attempt)
		return nil
	}

	if err := r.cfg.Backoff.Wait(ctx, attempt); err != nil {
		return fmt.Errorf("waiting before retry attempt %d of %d entries: %w", attempt, len(failed), err)
	}
	r.cfg.Metrics.IncRetryRound(r.cfg.Pipeline)

	if r.cfg.Prepare != nil {
		failed = r.cfg.Prepare(failed)
	}
	return r.round(ctx, Chunk(failed, r.cfg.RetryChunkSize), attempt+1)
}

// send performs one batch call and records its outcome.
func (r *Retrier[E]) send(ctx context.Context, batch []E) ([]E, error) {
	r.cfg.Metrics.IncBatchDispatched(r.cfg.Pipeline)
	start := time.Now()
	failed, err := r.dispatch(ctx, batch)
	r.cfg.Metrics.ObserveDispatchDuration(r.cfg.Pipeline, time.Since(start).Seconds())
	if err != nil {
		r.cfg.Metrics.IncTransportError(r.cfg.Pipeline)
		r.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch call failed.")
		return nil, err
	}
	r.cfg.Metrics.AddEntriesFailed(r.cfg.Pipeline, len(failed))
	r.logger.Debug().Int("batch_size", len(batch)).Int("failed_count", len(failed)).Msg("Batch dispatched.")
	return failed, nil
}

func (r *Retrier[E]) drop(ctx context.Context, dropped []E, attempt int) {
	r.cfg.Metrics.AddEntriesDropped(r.cfg.Pipeline, len(dropped))
	r.logger.Warn().
		Int("dropped_count", len(dropped)).
		Int("attempt", attempt).
		Int("max_retry", r.cfg.MaxRetry).
		Msg("Retries exhausted, dropping entries.")
	if r.cfg.OnDrop != nil {
		r.cfg.OnDrop(ctx, dropped)
	}
}
