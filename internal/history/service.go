// Package history serves reconstructed audit trails: recent commits, a
// single commit by correlation, and the full history of one entity. It runs
// the hierarchy engine over flat records from the store and optionally caches
// entity lookups in Redis.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chronicle/internal/platform/metrics"
	"chronicle/pkg/audit"
	"chronicle/pkg/audit/hierarchy"
	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store is the read side of the audit record store.
type Store interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Record, error)
	ListByCorrelation(ctx context.Context, correlationUID string) ([]audit.Record, error)
	ListByEntity(ctx context.Context, entityUID string) ([]audit.Record, error)
}

// Cache is an optional read-through cache for entity history lookups. Get
// reports a miss with found=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Limits on the number of commits a transaction listing returns.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Service reconstructs audit trails from flat records.
type Service struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables read-through caching of entity history. Entries expire
// after ttl; writes are not invalidated, so ttl bounds staleness.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithMetrics enables cache hit/miss counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transactions returns the most recent commits as reconstructed transaction
// groups, newest first. limit counts commits, not records; out-of-range
// values are clamped.
func (s *Service) Transactions(ctx context.Context, limit int) ([]hierarchy.TransactionGroup, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	records, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return hierarchy.ToHierarchy(records), nil
}

// Transaction returns the single commit stamped with correlationUID.
func (s *Service) Transaction(ctx context.Context, correlationUID string) (hierarchy.TransactionGroup, error) {
	if correlationUID == "" {
		return hierarchy.TransactionGroup{}, domainerrors.New(domainerrors.CodeBadRequest, "correlation uid must not be empty")
	}

	records, err := s.store.ListByCorrelation(ctx, correlationUID)
	if err != nil {
		return hierarchy.TransactionGroup{}, err
	}

	groups := hierarchy.ToHierarchy(records)
	if len(groups) == 0 {
		return hierarchy.TransactionGroup{}, sentinel.ErrNotFound
	}
	return groups[0], nil
}

// EntityHistory returns every commit in which the entity was directly
// recorded, newest first. Results are cached when a cache is configured.
func (s *Service) EntityHistory(ctx context.Context, entityUID string) ([]hierarchy.TransactionGroup, error) {
	if entityUID == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "entity uid must not be empty")
	}

	key := cacheKey(entityUID)
	if groups, ok := s.cachedHistory(ctx, key); ok {
		return groups, nil
	}

	records, err := s.store.ListByEntity(ctx, entityUID)
	if err != nil {
		return nil, err
	}
	groups := hierarchy.ToHierarchyForEntity(records, entityUID)

	s.storeInCache(ctx, key, groups)
	return groups, nil
}

func cacheKey(entityUID string) string {
	return "chronicle:history:entity:" + entityUID
}

func (s *Service) cachedHistory(ctx context.Context, key string) ([]hierarchy.TransactionGroup, bool) {
	if s.cache == nil {
		return nil, false
	}

	value, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "history cache read failed", "error", err)
		return nil, false
	}
	if !found {
		if s.metrics != nil {
			s.metrics.CacheMisses.Inc()
		}
		return nil, false
	}

	var groups []hierarchy.TransactionGroup
	if err := json.Unmarshal([]byte(value), &groups); err != nil {
		s.logger.WarnContext(ctx, "history cache entry corrupt, refetching", "error", err)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.Inc()
	}
	return groups, true
}

func (s *Service) storeInCache(ctx context.Context, key string, groups []hierarchy.TransactionGroup) {
	if s.cache == nil {
		return
	}
	value, err := json.Marshal(groups)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(value), s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "history cache write failed", "error", err)
	}
}
