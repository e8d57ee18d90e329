package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/store/memory"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func record(correlation string, code audit.TypeCode, entityUID string, at time.Time) audit.Record {
	return audit.Record{
		CorrelationUID: correlation,
		Subject:        "user-7",
		UserName:       "Ada",
		OccurredAt:     at,
		TypeCode:       code,
		EntityType:     "Client",
		EntityUID:      entityUID,
	}
}

func TestStore_ListByCorrelation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.AppendBatch(ctx, []audit.Record{
		record("corr-1", audit.TypeCreated, "a", baseTime),
		record("corr-1", audit.TypeDetail, "a", baseTime),
		record("corr-2", audit.TypeCreated, "b", baseTime),
	}))

	got, err := store.ListByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.ListByCorrelation(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ListByEntity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.AppendBatch(ctx, []audit.Record{
		record("corr-1", audit.TypeUnmodifiedRoot, "root-1", baseTime),
		record("corr-1", audit.TypeCreated, "child-1", baseTime),
		record("corr-2", audit.TypeUpdated, "other-1", baseTime),
	}))

	t.Run("unmodified root qualifies the whole correlation", func(t *testing.T) {
		got, err := store.ListByEntity(ctx, "root-1")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("detail-only match does not qualify", func(t *testing.T) {
		require.NoError(t, store.AppendBatch(ctx, []audit.Record{
			{CorrelationUID: "corr-3", TypeCode: audit.TypeDetail, EntityUID: "ghost-1", PropertyName: "Name", OccurredAt: baseTime},
		}))

		got, err := store.ListByEntity(ctx, "ghost-1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.AppendBatch(ctx, []audit.Record{
		record("corr-old", audit.TypeCreated, "a", baseTime.Add(-time.Hour)),
		record("corr-old", audit.TypeDetail, "a", baseTime.Add(-time.Hour)),
	}))
	require.NoError(t, store.AppendBatch(ctx, []audit.Record{
		record("corr-new", audit.TypeCreated, "b", baseTime),
	}))

	t.Run("returns whole commits newest first", func(t *testing.T) {
		got, err := store.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "corr-new", got[0].CorrelationUID)
	})

	t.Run("never splits a correlation", func(t *testing.T) {
		got, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("zero limit yields nothing", func(t *testing.T) {
		got, err := store.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
