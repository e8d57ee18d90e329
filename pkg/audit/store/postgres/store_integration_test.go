//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/store/postgres"
	txcontext "chronicle/pkg/platform/tx"
	"chronicle/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_records"))
}

func (s *PostgresStoreSuite) record(correlation string, code audit.TypeCode, entityUID string, at time.Time) audit.Record {
	return audit.Record{
		CorrelationUID:    correlation,
		Subject:           "user-7",
		UserName:          "Ada",
		OccurredAt:        at,
		TypeCode:          code,
		EntityType:        "Client",
		EntityUID:         entityUID,
		EntityDescription: "Client " + entityUID,
	}
}

func (s *PostgresStoreSuite) TestAppendAndListByCorrelation() {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)

	previous := "Acme"
	current := "Acme Corp"
	detail := s.record("corr-1", audit.TypeDetail, "client-1", at)
	detail.PropertyName = "Name"
	detail.PreviousValue = &previous
	detail.CurrentValue = &current

	s.Require().NoError(s.store.AppendBatch(ctx, []audit.Record{
		s.record("corr-1", audit.TypeUpdated, "client-1", at),
		detail,
	}))

	records, err := s.store.ListByCorrelation(ctx, "corr-1")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(audit.TypeUpdated, records[0].TypeCode)
	s.Require().NotNil(records[1].PreviousValue)
	s.Equal("Acme", *records[1].PreviousValue)
	s.Equal("Acme Corp", *records[1].CurrentValue)
	s.True(records[0].OccurredAt.Equal(at))
}

func (s *PostgresStoreSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()
	at := time.Now().UTC()

	s.Run("rolled back transaction leaves no records", func() {
		tx, err := s.postgres.DB.BeginTx(ctx, nil)
		s.Require().NoError(err)

		txCtx := txcontext.WithTx(ctx, tx)
		s.Require().NoError(s.store.AppendBatch(txCtx, []audit.Record{
			s.record("corr-rollback", audit.TypeCreated, "client-1", at),
		}))
		s.Require().NoError(tx.Rollback())

		records, err := s.store.ListByCorrelation(ctx, "corr-rollback")
		s.Require().NoError(err)
		s.Empty(records)
	})

	s.Run("committed transaction persists records", func() {
		tx, err := s.postgres.DB.BeginTx(ctx, nil)
		s.Require().NoError(err)

		txCtx := txcontext.WithTx(ctx, tx)
		s.Require().NoError(s.store.AppendBatch(txCtx, []audit.Record{
			s.record("corr-commit", audit.TypeCreated, "client-1", at),
		}))
		s.Require().NoError(tx.Commit())

		records, err := s.store.ListByCorrelation(ctx, "corr-commit")
		s.Require().NoError(err)
		s.Len(records, 1)
	})
}

func (s *PostgresStoreSuite) TestListByEntity() {
	ctx := context.Background()
	at := time.Now().UTC()

	s.Require().NoError(s.store.AppendBatch(ctx, []audit.Record{
		s.record("corr-1", audit.TypeUnmodifiedRoot, "root-1", at),
		s.record("corr-1", audit.TypeCreated, "child-1", at),
		s.record("corr-2", audit.TypeUpdated, "other-1", at),
	}))

	records, err := s.store.ListByEntity(ctx, "root-1")
	s.Require().NoError(err)
	s.Len(records, 2, "unmodified root qualifies its whole correlation")

	records, err = s.store.ListByEntity(ctx, "nonexistent")
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *PostgresStoreSuite) TestListRecent() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.AppendBatch(ctx, []audit.Record{
		s.record("corr-old", audit.TypeCreated, "a", now.Add(-time.Hour)),
		s.record("corr-old", audit.TypeDetail, "a", now.Add(-time.Hour)),
	}))
	s.Require().NoError(s.store.AppendBatch(ctx, []audit.Record{
		s.record("corr-new", audit.TypeCreated, "b", now),
	}))

	records, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("corr-new", records[0].CorrelationUID)

	records, err = s.store.ListRecent(ctx, 5)
	s.Require().NoError(err)
	s.Len(records, 3, "correlations are returned whole")
}
