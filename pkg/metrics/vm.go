package metrics

import (
	"fmt"
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// VMOption configures a VMCollector.
type VMOption func(*VMCollector)

// WithPrefix sets the metric name prefix. Default: "batchsend".
func WithPrefix(prefix string) VMOption {
	return func(c *VMCollector) {
		c.prefix = prefix
	}
}

// WithMetricsSet registers metrics in the given set instead of a new,
// globally registered one. The caller is responsible for exposing it.
func WithMetricsSet(set *vm.Set) VMOption {
	return func(c *VMCollector) {
		c.set = set
	}
}

type pipelineMetrics struct {
	dispatched      *vm.Counter
	failed          *vm.Counter
	retryRounds     *vm.Counter
	dropped         *vm.Counter
	transportErrors *vm.Counter
	duration        *vm.Histogram
}

// VMCollector implements Collector using VictoriaMetrics. All series are
// created up front, one set per pipeline label.
type VMCollector struct {
	set       *vm.Set
	prefix    string
	pipelines map[Pipeline]*pipelineMetrics
}

var _ Collector = (*VMCollector)(nil)

// NewVMCollector creates a collector. Without WithMetricsSet it creates its
// own set and registers it globally.
func NewVMCollector(opts ...VMOption) *VMCollector {
	c := &VMCollector{prefix: "batchsend"}
	for _, opt := range opts {
		opt(c)
	}
	if c.set == nil {
		c.set = vm.NewSet()
		vm.RegisterSet(c.set)
	}

	c.pipelines = make(map[Pipeline]*pipelineMetrics, len(Pipelines))
	for _, p := range Pipelines {
		c.pipelines[p] = &pipelineMetrics{
			dispatched:      c.set.NewCounter(c.name("batches_dispatched_total", p)),
			failed:          c.set.NewCounter(c.name("entries_failed_total", p)),
			retryRounds:     c.set.NewCounter(c.name("retry_rounds_total", p)),
			dropped:         c.set.NewCounter(c.name("entries_dropped_total", p)),
			transportErrors: c.set.NewCounter(c.name("transport_errors_total", p)),
			duration:        c.set.NewHistogram(c.name("dispatch_duration_seconds", p)),
		}
	}
	return c
}

func (c *VMCollector) name(metric string, p Pipeline) string {
	return fmt.Sprintf(`%s_%s{pipeline="%s"}`, c.prefix, metric, p)
}

// WritePrometheus writes the collector's metrics in Prometheus text format.
func (c *VMCollector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *VMCollector) get(p Pipeline) *pipelineMetrics {
	if m, ok := c.pipelines[p]; ok {
		return m
	}
	return nil
}

// IncBatchDispatched increments the dispatched batch counter.
func (c *VMCollector) IncBatchDispatched(p Pipeline) {
	if m := c.get(p); m != nil {
		m.dispatched.Inc()
	}
}

// AddEntriesFailed adds n to the failed entries counter.
func (c *VMCollector) AddEntriesFailed(p Pipeline, n int) {
	if m := c.get(p); m != nil && n > 0 {
		m.failed.Add(n)
	}
}

// IncRetryRound increments the retry round counter.
func (c *VMCollector) IncRetryRound(p Pipeline) {
	if m := c.get(p); m != nil {
		m.retryRounds.Inc()
	}
}

// AddEntriesDropped adds n to the dropped entries counter.
func (c *VMCollector) AddEntriesDropped(p Pipeline, n int) {
	if m := c.get(p); m != nil && n > 0 {
		m.dropped.Add(n)
	}
}

// IncTransportError increments the transport error counter.
func (c *VMCollector) IncTransportError(p Pipeline) {
	if m := c.get(p); m != nil {
		m.transportErrors.Inc()
	}
}

// ObserveDispatchDuration records a dispatch duration.
func (c *VMCollector) ObserveDispatchDuration(p Pipeline, seconds float64) {
	if m := c.get(p); m != nil {
		m.duration.Update(seconds)
	}
}
