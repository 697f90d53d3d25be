package metrics_test

import (
	"bytes"
	"testing"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/stretchr/testify/assert"
)

func TestVMCollector_WritesPipelineSeries(t *testing.T) {
	set := vm.NewSet()
	c := metrics.NewVMCollector(metrics.WithPrefix("test"), metrics.WithMetricsSet(set))

	c.IncBatchDispatched(metrics.PipelineStream)
	c.IncBatchDispatched(metrics.PipelineStream)
	c.AddEntriesFailed(metrics.PipelineQueueSend, 3)
	c.AddEntriesDropped(metrics.PipelineQueueDelete, 2)
	c.IncRetryRound(metrics.PipelineStream)
	c.IncTransportError(metrics.PipelineQueueSend)
	c.ObserveDispatchDuration(metrics.PipelineStream, 0.25)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `test_batches_dispatched_total{pipeline="stream"} 2`)
	assert.Contains(t, out, `test_entries_failed_total{pipeline="queue_send"} 3`)
	assert.Contains(t, out, `test_entries_dropped_total{pipeline="queue_delete"} 2`)
	assert.Contains(t, out, `test_retry_rounds_total{pipeline="stream"} 1`)
	assert.Contains(t, out, `test_transport_errors_total{pipeline="queue_send"} 1`)
}

func TestVMCollector_IgnoresUnknownPipeline(t *testing.T) {
	c := metrics.NewVMCollector(metrics.WithMetricsSet(vm.NewSet()))
	assert.NotPanics(t, func() {
		c.IncBatchDispatched("unknown")
		c.AddEntriesDropped("unknown", 4)
	})
}
