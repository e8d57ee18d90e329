package history_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chronicle/internal/history"
	"chronicle/internal/history/mocks"
	"chronicle/pkg/audit"
	dErrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/platform/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecords(correlationUID string, at time.Time) []audit.Record {
	return []audit.Record{
		{
			CorrelationUID: correlationUID,
			Subject:        "user-7",
			UserName:       "Ada",
			OccurredAt:     at,
			TypeCode:       audit.TypeCreated,
			EntityType:     "billing.Invoice",
			EntityUID:      "inv-1",
		},
		{
			CorrelationUID: correlationUID,
			Subject:        "user-7",
			UserName:       "Ada",
			OccurredAt:     at,
			TypeCode:       audit.TypeDetail,
			EntityType:     "billing.Invoice",
			EntityUID:      "inv-1",
			PropertyName:   "Total",
		},
	}
}

func TestService_Transactions_ClampsLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := history.NewService(store, discardLogger())

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "zero uses default", limit: 0, wantLimit: history.DefaultLimit},
		{name: "negative uses default", limit: -3, wantLimit: history.DefaultLimit},
		{name: "in range passes through", limit: 20, wantLimit: 20},
		{name: "over max is capped", limit: 10_000, wantLimit: history.MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.EXPECT().ListRecent(gomock.Any(), tt.wantLimit).Return(nil, nil)

			groups, err := svc.Transactions(context.Background(), tt.limit)
			require.NoError(t, err)
			assert.NotNil(t, groups, "empty store yields an empty list, not null")
			assert.Empty(t, groups)
		})
	}
}

func TestService_Transactions_Reconstructs(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := history.NewService(store, discardLogger())

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.EXPECT().ListRecent(gomock.Any(), history.DefaultLimit).Return(sampleRecords("corr-1", at), nil)

	groups, err := svc.Transactions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "corr-1", groups[0].CorrelationUID)
	require.Len(t, groups[0].Entities, 1)
	assert.Len(t, groups[0].Entities[0].Properties, 1)
}

func TestService_Transaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := history.NewService(store, discardLogger())
	ctx := context.Background()

	t.Run("empty uid is a bad request", func(t *testing.T) {
		_, err := svc.Transaction(ctx, "")
		var derr *dErrors.Error
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, dErrors.CodeBadRequest, derr.Code)
	})

	t.Run("unknown correlation is not found", func(t *testing.T) {
		store.EXPECT().ListByCorrelation(gomock.Any(), "corr-missing").Return(nil, nil)

		_, err := svc.Transaction(ctx, "corr-missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("known correlation returns its commit", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		store.EXPECT().ListByCorrelation(gomock.Any(), "corr-1").Return(sampleRecords("corr-1", at), nil)

		group, err := svc.Transaction(ctx, "corr-1")
		require.NoError(t, err)
		assert.Equal(t, "corr-1", group.CorrelationUID)
		assert.Equal(t, "Ada", group.UserName)
	})
}

func TestService_EntityHistory_CacheMissThenHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	cache := mocks.NewMockCache(ctrl)
	svc := history.NewService(store, discardLogger(), history.WithCache(cache, time.Minute))
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := sampleRecords("corr-1", at)

	// Miss: fetch from the store, then populate the cache.
	var cached string
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
	store.EXPECT().ListByEntity(gomock.Any(), "inv-1").Return(records, nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), time.Minute).
		DoAndReturn(func(_ context.Context, _ string, value string, _ time.Duration) error {
			cached = value
			return nil
		})

	first, err := svc.EntityHistory(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Hit: served from the cached payload, no store call.
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(cached, true, nil)

	second, err := svc.EntityHistory(ctx, "inv-1")
	require.NoError(t, err)

	want, err := json.Marshal(first)
	require.NoError(t, err)
	got, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestService_EntityHistory_CacheFailuresFallThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	cache := mocks.NewMockCache(ctrl)
	svc := history.NewService(store, discardLogger(), history.WithCache(cache, time.Minute))
	ctx := context.Background()

	t.Run("read error falls back to the store", func(t *testing.T) {
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, assert.AnError)
		store.EXPECT().ListByEntity(gomock.Any(), "inv-1").Return(nil, nil)
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		groups, err := svc.EntityHistory(ctx, "inv-1")
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("corrupt entry falls back to the store", func(t *testing.T) {
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return("{not json", true, nil)
		store.EXPECT().ListByEntity(gomock.Any(), "inv-1").Return(nil, nil)
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

		_, err := svc.EntityHistory(ctx, "inv-1")
		require.NoError(t, err)
	})

	t.Run("write error does not fail the read", func(t *testing.T) {
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
		store.EXPECT().ListByEntity(gomock.Any(), "inv-1").Return(nil, nil)
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(assert.AnError)

		_, err := svc.EntityHistory(ctx, "inv-1")
		require.NoError(t, err)
	})
}

func TestService_EntityHistory_NoCacheConfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := history.NewService(store, discardLogger())

	store.EXPECT().ListByEntity(gomock.Any(), "inv-1").Return(nil, nil)

	groups, err := svc.EntityHistory(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.NotNil(t, groups)
}

func TestService_EntityHistory_EmptyUID(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := history.NewService(mocks.NewMockStore(ctrl), discardLogger())

	_, err := svc.EntityHistory(context.Background(), "")
	var derr *dErrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, dErrors.CodeBadRequest, derr.Code)
}
