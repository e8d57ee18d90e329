// Package relay fans freshly committed audit records out to Kafka for
// downstream consumers (SIEM, warehousing). The store remains the source of
// truth; the relay is best-effort and must never block or fail a commit.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"chronicle/pkg/audit"
	"chronicle/pkg/platform/circuit"
)

// Producer is the subset of the Kafka client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Relay buffers record batches from commit hooks and publishes them to one
// topic, keyed by correlation so all records of a commit land in one
// partition, in order.
type Relay struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	breaker  *circuit.Breaker
	inbox    chan []audit.Record
	skipped  int
}

// Option configures a Relay.
type Option func(*Relay)

// WithBufferSize sets the inbox capacity (default 256 batches).
func WithBufferSize(n int) Option {
	return func(r *Relay) { r.inbox = make(chan []audit.Record, n) }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

// New creates a relay publishing to topic through producer.
func New(producer Producer, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		producer: producer,
		topic:    topic,
		logger:   logger,
		breaker:  circuit.New("audit-relay", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		inbox:    make(chan []audit.Record, 256),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewClient connects a Kafka client suitable for the relay.
func NewClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the relay topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Enqueue hands a committed batch to the relay without blocking the caller.
// When the inbox is full the batch is dropped and logged; the store still
// holds the records.
func (r *Relay) Enqueue(ctx context.Context, records []audit.Record) {
	if len(records) == 0 {
		return
	}
	select {
	case r.inbox <- records:
	default:
		r.logger.WarnContext(ctx, "audit relay inbox full, dropping batch",
			"records", len(records),
			"correlation_uid", records[0].CorrelationUID,
		)
	}
}

// Run consumes the inbox until ctx is cancelled. Publish failures trip the
// circuit breaker; while it is open, batches are skipped instead of piling
// up behind a dead broker.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-r.inbox:
			r.publish(ctx, batch)
		}
	}
}

// probeInterval is how many batches are skipped while the circuit is open
// before one is attempted as a probe.
const probeInterval = 10

func (r *Relay) publish(ctx context.Context, batch []audit.Record) {
	if r.breaker.IsOpen() {
		r.skipped++
		if r.skipped%probeInterval != 0 {
			r.logger.WarnContext(ctx, "audit relay circuit open, skipping batch",
				"records", len(batch),
			)
			return
		}
	}

	records, err := Encode(r.topic, batch)
	if err != nil {
		r.logger.ErrorContext(ctx, "encode audit batch", "error", err)
		return
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		_, change := r.breaker.RecordFailure()
		r.logger.ErrorContext(ctx, "publish audit batch",
			"error", err,
			"records", len(batch),
			"circuit_opened", change.Opened,
		)
		return
	}
	r.breaker.RecordSuccess()
}

// Encode converts a committed batch into Kafka records: JSON values keyed by
// correlation so one commit stays in one partition.
func Encode(topic string, batch []audit.Record) ([]*kgo.Record, error) {
	out := make([]*kgo.Record, 0, len(batch))
	for _, r := range batch {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal audit record: %w", err)
		}
		out = append(out, &kgo.Record{
			Topic: topic,
			Key:   []byte(r.CorrelationUID),
			Value: value,
		})
	}
	return out, nil
}
