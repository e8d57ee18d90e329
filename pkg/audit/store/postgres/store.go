// Package postgres persists audit records in a single flat table.
//
// Writes route through the transaction carried by the context when present,
// so records produced by a unit of work commit atomically with the data
// mutations that caused them.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chronicle/pkg/audit"
	txcontext "chronicle/pkg/platform/tx"
)

// Store implements audit.Store over database/sql. It works with any driver
// registered under the configured name (pgx stdlib and lib/pq are both wired
// in cmd).
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit record store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id                 BIGSERIAL PRIMARY KEY,
	correlation_uid    TEXT        NOT NULL,
	subject            TEXT        NOT NULL,
	user_name          TEXT        NOT NULL,
	occurred_at        TIMESTAMPTZ NOT NULL,
	type_code          TEXT        NOT NULL,
	entity_type        TEXT        NOT NULL,
	entity_uid         TEXT        NOT NULL,
	entity_description TEXT        NOT NULL DEFAULT '',
	property_name      TEXT        NOT NULL DEFAULT '',
	previous_value     TEXT,
	current_value      TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_records_correlation ON audit_records (correlation_uid);
CREATE INDEX IF NOT EXISTS idx_audit_records_entity ON audit_records (entity_uid) WHERE type_code <> 'Detail';
CREATE INDEX IF NOT EXISTS idx_audit_records_occurred_at ON audit_records (occurred_at DESC);
`

// EnsureSchema creates the audit_records table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

const insertRecord = `
INSERT INTO audit_records (
	correlation_uid, subject, user_name, occurred_at, type_code,
	entity_type, entity_uid, entity_description,
	property_name, previous_value, current_value
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// AppendBatch inserts all records through the context transaction when one
// is present. Without a transaction the batch is still written atomically in
// a local one.
func (s *Store) AppendBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	if _, joined := txcontext.From(ctx); !joined {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin audit batch: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := appendAll(ctx, tx, records); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit audit batch: %w", err)
		}
		return nil
	}

	return appendAll(ctx, txcontext.Execer(ctx, s.db), records)
}

func appendAll(ctx context.Context, execer txcontext.Executor, records []audit.Record) error {
	for _, r := range records {
		_, err := execer.ExecContext(ctx, insertRecord,
			r.CorrelationUID,
			r.Subject,
			r.UserName,
			r.OccurredAt,
			string(r.TypeCode),
			r.EntityType,
			r.EntityUID,
			r.EntityDescription,
			r.PropertyName,
			r.PreviousValue,
			r.CurrentValue,
		)
		if err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
	}
	return nil
}

const selectColumns = `
SELECT correlation_uid, subject, user_name, occurred_at, type_code,
       entity_type, entity_uid, entity_description,
       property_name, previous_value, current_value
FROM audit_records
`

// ListByCorrelation returns every record stamped with correlationUID.
func (s *Store) ListByCorrelation(ctx context.Context, correlationUID string) ([]audit.Record, error) {
	query := selectColumns + `WHERE correlation_uid = $1 ORDER BY id`
	return s.queryRecords(ctx, query, correlationUID)
}

// ListByEntity returns every record of every correlation in which entityUID
// appears in a non-Detail record.
func (s *Store) ListByEntity(ctx context.Context, entityUID string) ([]audit.Record, error) {
	query := selectColumns + `
WHERE correlation_uid IN (
	SELECT DISTINCT correlation_uid FROM audit_records
	WHERE entity_uid = $1 AND type_code <> 'Detail'
)
ORDER BY occurred_at DESC, id`
	return s.queryRecords(ctx, query, entityUID)
}

// ListRecent returns the records of the limit most recent commits, whole
// correlations only, newest commit first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := selectColumns + `
WHERE correlation_uid IN (
	SELECT correlation_uid FROM audit_records
	GROUP BY correlation_uid
	ORDER BY MAX(occurred_at) DESC
	LIMIT $1
)
ORDER BY occurred_at DESC, id`
	return s.queryRecords(ctx, query, limit)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]audit.Record, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var r audit.Record
		var previous, current sql.NullString
		err := rows.Scan(
			&r.CorrelationUID,
			&r.Subject,
			&r.UserName,
			&r.OccurredAt,
			&r.TypeCode,
			&r.EntityType,
			&r.EntityUID,
			&r.EntityDescription,
			&r.PropertyName,
			&previous,
			&current,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if previous.Valid {
			r.PreviousValue = &previous.String
		}
		if current.Valid {
			r.CurrentValue = &current.String
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
