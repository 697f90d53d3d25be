package streamclient_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/illmade-knight/go-batchsend/pkg/batching"
	"github.com/illmade-knight/go-batchsend/pkg/metrics"
	"github.com/illmade-knight/go-batchsend/pkg/streamclient"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ====================================================================================
// Test Mocks & Helpers
// ====================================================================================

type putCall struct {
	streamName string
	entries    []types.StreamEntry
}

// MockTransport records every PutRecords call and replays scripted responses
// in order. Once the script is used up every call succeeds.
type MockTransport struct {
	mu        sync.Mutex
	calls     []putCall
	responses []*types.PutRecordsOutput
	err       error
}

func (m *MockTransport) PutRecords(_ context.Context, streamName string, entries []types.StreamEntry) (*types.PutRecordsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, putCall{streamName: streamName, entries: entries})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	return &types.PutRecordsOutput{}, nil
}

func (m *MockTransport) GetCalls() []putCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// firstRecordFails mirrors a stream response where position 0 was throttled.
func firstRecordFails() *types.PutRecordsOutput {
	return &types.PutRecordsOutput{
		FailedCount: 1,
		Records: []types.RecordResult{
			{ErrorCode: "ProvisionedThroughputExceededException", ErrorMessage: "slow down"},
			{SequenceNumber: "1", ShardID: "shardId-000000000000"},
		},
	}
}

type testPayload struct {
	Prop1 string `json:"prop1"`
}

const fixedKey = "00000000000000000000000000000000"

var noWait = batching.BackoffFunc(func(context.Context, int) error { return nil })

func newTestClient(t *testing.T, transport streamclient.Transport, opts ...streamclient.Option) *streamclient.Client {
	t.Helper()
	opts = append([]streamclient.Option{
		streamclient.WithKeyFunc(func() string { return fixedKey }),
		streamclient.WithBackoff(noWait),
	}, opts...)
	client, err := streamclient.NewClient(transport, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return client
}

func repeat(n int) []any {
	payloads := make([]any, n)
	for i := range payloads {
		payloads[i] = testPayload{Prop1: "prop"}
	}
	return payloads
}

// ====================================================================================
// Tests
// ====================================================================================

func TestPutRecords_SinglePayload(t *testing.T) {
	transport := &MockTransport{}
	client := newTestClient(t, transport)

	err := client.PutRecords(context.Background(), repeat(1), streamclient.DefaultConfig("myStream"))
	require.NoError(t, err)

	calls := transport.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "myStream", calls[0].streamName)
	assert.Equal(t, []types.StreamEntry{{Blob: `{"prop1":"prop"}`, PartitionKey: fixedKey}}, calls[0].entries)
}

func TestPutRecords_MergesPayloadsByMaxMergeCount(t *testing.T) {
	transport := &MockTransport{}
	client := newTestClient(t, transport)

	err := client.PutRecords(context.Background(), repeat(15), streamclient.DefaultConfig("myStream"))
	require.NoError(t, err)

	one := `{"prop1":"prop"}`
	calls := transport.GetCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].entries, 2)
	assert.Equal(t, strings.Repeat(one+"#-#", 9)+one, calls[0].entries[0].Blob)
	assert.Equal(t, strings.Repeat(one+"#-#", 4)+one, calls[0].entries[1].Blob)
	assert.Equal(t, fixedKey, calls[0].entries[1].PartitionKey)
}

func TestPutRecords_BatchCounts(t *testing.T) {
	testCases := []struct {
		name          string
		payloads      int
		maxMergeCount int
		maxBatchSize  int
		expectedCalls int
	}{
		{"merge 1 and batch 1", 10, 1, 1, 10},
		{"merge 2 and batch 2 with excess", 21, 2, 2, 6},
		{"defaults", 3001, 10, 300, 2},
		{"empty input", 0, 10, 300, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &MockTransport{}
			client := newTestClient(t, transport)
			cfg := streamclient.DefaultConfig("myStream")
			cfg.MaxMergeCount = tc.maxMergeCount
			cfg.MaxBatchSize = tc.maxBatchSize

			require.NoError(t, client.PutRecords(context.Background(), repeat(tc.payloads), cfg))
			assert.Len(t, transport.GetCalls(), tc.expectedCalls)
		})
	}
}

func TestPutRecords_CustomSeparator(t *testing.T) {
	transport := &MockTransport{}
	client := newTestClient(t, transport)
	cfg := streamclient.DefaultConfig("myStream")
	cfg.GroupSeparator = "\n"

	require.NoError(t, client.PutRecords(context.Background(), []any{1, "two", map[string]int{"three": 3}}, cfg))

	calls := transport.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "1\n\"two\"\n{\"three\":3}", calls[0].entries[0].Blob)
}

func TestPutRecords_Retry(t *testing.T) {
	t.Run("retries until the stream accepts the record", func(t *testing.T) {
		transport := &MockTransport{
			responses: []*types.PutRecordsOutput{firstRecordFails(), firstRecordFails(), firstRecordFails()},
		}
		client := newTestClient(t, transport)

		require.NoError(t, client.PutRecords(context.Background(), repeat(100), streamclient.DefaultConfig("myStream")))
		assert.Len(t, transport.GetCalls(), 4)
	})

	t.Run("gives up silently after max retry", func(t *testing.T) {
		transport := &MockTransport{
			responses: []*types.PutRecordsOutput{
				firstRecordFails(), firstRecordFails(), firstRecordFails(), firstRecordFails(), firstRecordFails(),
				firstRecordFails(), firstRecordFails(),
			},
		}
		var dropped []types.StreamEntry
		client := newTestClient(t, transport, streamclient.WithDropHandler(func(_ context.Context, entries []types.StreamEntry) {
			dropped = append(dropped, entries...)
		}))

		require.NoError(t, client.PutRecords(context.Background(), repeat(1), streamclient.DefaultConfig("myStream")))
		assert.Len(t, transport.GetCalls(), 5)
		require.Len(t, dropped, 1)
		assert.Equal(t, `{"prop1":"prop"}`, dropped[0].Blob)
	})

	t.Run("max retry override lowers the ceiling", func(t *testing.T) {
		transport := &MockTransport{
			responses: []*types.PutRecordsOutput{firstRecordFails(), firstRecordFails()},
		}
		client := newTestClient(t, transport)
		cfg := streamclient.DefaultConfig("myStream")
		cfg.MaxRetry = 1

		require.NoError(t, client.PutRecords(context.Background(), repeat(1), cfg))
		assert.Len(t, transport.GetCalls(), 3)
	})
}

func TestPutRecords_RetriesOnlyFailedPositionsWithNewKeys(t *testing.T) {
	transport := &MockTransport{
		responses: []*types.PutRecordsOutput{{
			FailedCount: 2,
			Records: []types.RecordResult{
				{SequenceNumber: "1"},
				{ErrorCode: "InternalFailure"},
				{SequenceNumber: "2"},
				{ErrorCode: "InternalFailure"},
			},
		}},
	}
	var keyMu sync.Mutex
	next := 0
	keys := func() string {
		keyMu.Lock()
		defer keyMu.Unlock()
		next++
		return string(rune('a' + next - 1))
	}
	client := newTestClient(t, transport, streamclient.WithKeyFunc(keys))
	cfg := streamclient.DefaultConfig("myStream")
	cfg.MaxMergeCount = 1

	require.NoError(t, client.PutRecords(context.Background(), []any{0, 1, 2, 3}, cfg))

	calls := transport.GetCalls()
	require.Len(t, calls, 3, "two failed entries re-chunked by max merge count 1")
	first := calls[0].entries
	require.Len(t, first, 4)

	var retried []types.StreamEntry
	retried = append(retried, calls[1].entries...)
	retried = append(retried, calls[2].entries...)
	blobs := []string{retried[0].Blob, retried[1].Blob}
	assert.ElementsMatch(t, []string{"1", "3"}, blobs)
	for _, e := range retried {
		assert.NotEqual(t, first[1].PartitionKey, e.PartitionKey)
		assert.NotEqual(t, first[3].PartitionKey, e.PartitionKey)
	}
}

func TestPutRecords_FailedCountZeroIgnoresRecords(t *testing.T) {
	transport := &MockTransport{
		responses: []*types.PutRecordsOutput{{
			FailedCount: 0,
			Records:     []types.RecordResult{{ErrorCode: "stale"}},
		}},
	}
	client := newTestClient(t, transport)

	require.NoError(t, client.PutRecords(context.Background(), repeat(1), streamclient.DefaultConfig("myStream")))
	assert.Len(t, transport.GetCalls(), 1)
}

func TestPutRecords_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("network unreachable")
	transport := &MockTransport{err: boom}
	client := newTestClient(t, transport)

	err := client.PutRecords(context.Background(), repeat(1), streamclient.DefaultConfig("myStream"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, transport.GetCalls(), 1)
}

func TestPutRecords_InvalidInput(t *testing.T) {
	transport := &MockTransport{}
	client := newTestClient(t, transport)

	err := client.PutRecords(context.Background(), repeat(1), streamclient.Config{})
	assert.ErrorIs(t, err, streamclient.ErrMissingStreamName)

	err = client.PutRecords(context.Background(), []any{make(chan int)}, streamclient.DefaultConfig("myStream"))
	assert.Error(t, err)

	assert.Empty(t, transport.GetCalls())
}

func TestNewClient_NilTransport(t *testing.T) {
	_, err := streamclient.NewClient(nil, zerolog.Nop())
	assert.ErrorIs(t, err, streamclient.ErrNilTransport)
}

func TestPutRecords_ReportsMetrics(t *testing.T) {
	transport := &MockTransport{
		responses: []*types.PutRecordsOutput{firstRecordFails(), firstRecordFails(), firstRecordFails()},
	}
	collector := metrics.NewVMCollector(metrics.WithPrefix("stream_test"), metrics.WithMetricsSet(vm.NewSet()))
	client := newTestClient(t, transport, streamclient.WithMetrics(collector))
	cfg := streamclient.DefaultConfig("myStream")
	cfg.MaxRetry = 1

	require.NoError(t, client.PutRecords(context.Background(), repeat(1), cfg))

	var buf bytes.Buffer
	collector.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `stream_test_batches_dispatched_total{pipeline="stream"} 3`)
	assert.Contains(t, out, `stream_test_entries_failed_total{pipeline="stream"} 3`)
	assert.Contains(t, out, `stream_test_retry_rounds_total{pipeline="stream"} 2`)
	assert.Contains(t, out, `stream_test_entries_dropped_total{pipeline="stream"} 1`)
}
