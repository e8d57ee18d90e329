// Package ingest accepts pre-captured audit batches from other services.
// Processes that cannot run the capture engine in-process (batch jobs,
// legacy systems) push flat records here; the collector validates, persists
// and relays them exactly like a local commit would.
package ingest

import (
	"context"
	"log/slog"

	"chronicle/internal/platform/metrics"
	"chronicle/pkg/audit"
	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/requestcontext"
)

// Recorder is the write side of the audit record store.
type Recorder interface {
	AppendBatch(ctx context.Context, records []audit.Record) error
}

// Relay fans persisted batches out to downstream consumers.
type Relay interface {
	Enqueue(ctx context.Context, records []audit.Record)
}

// Service validates and persists pushed audit batches.
type Service struct {
	store   Recorder
	relay   Relay
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithRelay forwards persisted batches to the journal relay.
func WithRelay(relay Relay) Option {
	return func(s *Service) { s.relay = relay }
}

// WithMetrics counts persisted records by type code.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Recorder, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var validTypeCodes = map[audit.TypeCode]bool{
	audit.TypeCreated:        true,
	audit.TypeUpdated:        true,
	audit.TypeDeleted:        true,
	audit.TypeDetail:         true,
	audit.TypeUnmodifiedRoot: true,
}

// Ingest validates and persists one pushed batch, then relays it. Missing
// header fields are filled from the request context and the anonymous
// sentinels; values are truncated to the persisted bound.
func (s *Service) Ingest(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return domainerrors.New(domainerrors.CodeBadRequest, "batch must not be empty")
	}

	prepared := make([]audit.Record, 0, len(records))
	for i, r := range records {
		normalized, err := s.normalize(ctx, i, r)
		if err != nil {
			return err
		}
		prepared = append(prepared, normalized)
	}

	if err := s.store.AppendBatch(ctx, prepared); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveBatch(prepared)
	}
	if s.relay != nil {
		s.relay.Enqueue(ctx, prepared)
		if s.metrics != nil {
			s.metrics.RelayBatchesSent.Inc()
		}
	}
	return nil
}

func (s *Service) normalize(ctx context.Context, i int, r audit.Record) (audit.Record, error) {
	if !validTypeCodes[r.TypeCode] {
		return audit.Record{}, domainerrors.Newf(domainerrors.CodeBadRequest, "record %d: unknown type code %q", i, r.TypeCode)
	}
	if r.EntityUID == "" {
		return audit.Record{}, domainerrors.Newf(domainerrors.CodeBadRequest, "record %d: entity uid must not be empty", i)
	}
	if r.EntityType == "" {
		return audit.Record{}, domainerrors.Newf(domainerrors.CodeBadRequest, "record %d: entity type must not be empty", i)
	}
	if r.TypeCode == audit.TypeDetail && r.PropertyName == "" {
		return audit.Record{}, domainerrors.Newf(domainerrors.CodeBadRequest, "record %d: detail records need a property name", i)
	}

	if r.CorrelationUID == "" {
		r.CorrelationUID = requestcontext.CorrelationUID(ctx)
	}
	if r.CorrelationUID == "" {
		return audit.Record{}, domainerrors.Newf(domainerrors.CodeBadRequest, "record %d: correlation uid must not be empty", i)
	}
	if r.Subject == "" {
		r.Subject = audit.AnonymousSubject
	}
	if r.UserName == "" {
		r.UserName = audit.AnonymousUserName
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = requestcontext.Now(ctx)
	}

	r.EntityDescription = audit.Truncate(r.EntityDescription)
	r.PreviousValue = audit.TruncatePtr(r.PreviousValue)
	r.CurrentValue = audit.TruncatePtr(r.CurrentValue)
	return r, nil
}
