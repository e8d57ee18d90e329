package relay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/relay"
	"chronicle/pkg/platform/circuit"
)

type fakeProducer struct {
	mu      sync.Mutex
	batches [][]*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, records ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kgo.ProduceResults{{Err: f.err}}
	}
	f.batches = append(f.batches, records)
	return kgo.ProduceResults{}
}

func (f *fakeProducer) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncode(t *testing.T) {
	batch := []audit.Record{
		{CorrelationUID: "corr-1", TypeCode: audit.TypeCreated, EntityUID: "a"},
		{CorrelationUID: "corr-1", TypeCode: audit.TypeDetail, EntityUID: "a", PropertyName: "Name"},
	}

	records, err := relay.Encode("chronicle.audit", batch)
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, r := range records {
		assert.Equal(t, "chronicle.audit", r.Topic)
		assert.Equal(t, []byte("corr-1"), r.Key, "one commit stays in one partition")
		assert.Contains(t, string(r.Value), `"correlation_uid":"corr-1"`)
	}
}

func TestRelay_PublishesEnqueuedBatches(t *testing.T) {
	producer := &fakeProducer{}
	r := relay.New(producer, "chronicle.audit", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	r.Enqueue(ctx, []audit.Record{{CorrelationUID: "corr-1", TypeCode: audit.TypeCreated}})

	require.Eventually(t, func() bool {
		return producer.batchCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRelay_EnqueueNeverBlocks(t *testing.T) {
	producer := &fakeProducer{}
	r := relay.New(producer, "chronicle.audit", discardLogger(), relay.WithBufferSize(1))

	ctx := context.Background()
	// No Run loop draining; the second batch must be dropped, not block.
	r.Enqueue(ctx, []audit.Record{{CorrelationUID: "corr-1", TypeCode: audit.TypeCreated}})
	r.Enqueue(ctx, []audit.Record{{CorrelationUID: "corr-2", TypeCode: audit.TypeCreated}})
}

func TestRelay_BreakerSkipsAfterFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(1))
	r := relay.New(producer, "chronicle.audit", discardLogger(), relay.WithBreaker(breaker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	r.Enqueue(ctx, []audit.Record{{CorrelationUID: "corr-1", TypeCode: audit.TypeCreated}})

	require.Eventually(t, breaker.IsOpen, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
