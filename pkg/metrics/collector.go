// Package metrics defines the delivery metrics reported by the stream and
// queue clients, with a no-op default and a VictoriaMetrics implementation.
package metrics

// Pipeline labels the client a metric belongs to.
type Pipeline string

const (
	PipelineStream      Pipeline = "stream"
	PipelineQueueSend   Pipeline = "queue_send"
	PipelineQueueDelete Pipeline = "queue_delete"
)

// Pipelines lists every pipeline label a Collector must handle.
var Pipelines = []Pipeline{PipelineStream, PipelineQueueSend, PipelineQueueDelete}

// Collector receives delivery events. Implementations must be safe for
// concurrent use; every batch of a round reports from its own goroutine.
type Collector interface {
	// IncBatchDispatched counts one batch call issued to the transport.
	IncBatchDispatched(p Pipeline)

	// AddEntriesFailed counts entries reported as failed inside a
	// successful batch response.
	AddEntriesFailed(p Pipeline, n int)

	// IncRetryRound counts one retry round started for a failed subset.
	IncRetryRound(p Pipeline)

	// AddEntriesDropped counts entries abandoned after the last retry round.
	AddEntriesDropped(p Pipeline, n int)

	// IncTransportError counts batch calls that failed outright.
	IncTransportError(p Pipeline)

	// ObserveDispatchDuration records a batch call duration in seconds.
	ObserveDispatchDuration(p Pipeline, seconds float64)
}

// NopCollector discards all metrics. It is the default when no collector is
// configured, so callers never nil-check.
type NopCollector struct{}

var _ Collector = NopCollector{}

func (NopCollector) IncBatchDispatched(_ Pipeline) {}
func (NopCollector) AddEntriesFailed(_ Pipeline, _ int) {}
func (NopCollector) IncRetryRound(_ Pipeline) {}
func (NopCollector) AddEntriesDropped(_ Pipeline, _ int) {}
func (NopCollector) IncTransportError(_ Pipeline) {}
func (NopCollector) ObserveDispatchDuration(_ Pipeline, _ float64) {}
