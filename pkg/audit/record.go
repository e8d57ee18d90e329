// Package audit defines the flat record schema shared by the change-capture
// and hierarchy-reconstruction engines, and the policy registry that decides
// which entity types are recorded at all.
//
// Records are write-once: the capture engine produces them in a batch
// immediately before a commit, and the reconstruction engine only reads and
// re-groups them. Everything that groups records back into a transaction view
// keys off CorrelationUID.
package audit

import (
	"context"
	"time"
)

// TypeCode classifies an audit record.
type TypeCode string

const (
	TypeCreated        TypeCode = "Created"
	TypeUpdated        TypeCode = "Updated"
	TypeDeleted        TypeCode = "Deleted"
	TypeDetail         TypeCode = "Detail"
	TypeUnmodifiedRoot TypeCode = "UnmodifiedRoot"
)

// Sentinels recorded when no authenticated operator is present.
const (
	AnonymousSubject  = "anonymous"
	AnonymousUserName = "Anonymous"
)

// MaxValueLen bounds entity descriptions and property values. Longer values
// are hard-truncated, never elided with an ellipsis.
const MaxValueLen = 500

// Record is the single persisted audit unit. All records produced by one
// commit share CorrelationUID and OccurredAt. PropertyName, PreviousValue
// and CurrentValue are only meaningful for Detail records; PreviousValue is
// absent for newly created entities.
type Record struct {
	CorrelationUID    string    `json:"correlation_uid"`
	Subject           string    `json:"subject"`
	UserName          string    `json:"user_name"`
	OccurredAt        time.Time `json:"occurred_at"`
	TypeCode          TypeCode  `json:"type_code"`
	EntityType        string    `json:"entity_type"`
	EntityUID         string    `json:"entity_uid"`
	EntityDescription string    `json:"entity_description"`
	PropertyName      string    `json:"property_name,omitempty"`
	PreviousValue     *string   `json:"previous_value,omitempty"`
	CurrentValue      *string   `json:"current_value,omitempty"`
}

// IsDetail reports whether the record is a valid detail row. Rows without a
// property name are never treated as details, whatever their type code says.
func (r Record) IsDetail() bool {
	return r.TypeCode == TypeDetail && r.PropertyName != ""
}

// Truncate bounds s to MaxValueLen characters.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxValueLen {
		return s
	}
	return string(runes[:MaxValueLen])
}

// TruncatePtr bounds the pointed-to value, preserving nil.
func TruncatePtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := Truncate(*s)
	return &t
}

// Store persists flat audit records and serves them back for history reads.
// Implementations must treat records as immutable once appended.
type Store interface {
	// AppendBatch persists all records or none. When the context carries a
	// transaction the write joins it so records commit atomically with the
	// mutations that produced them.
	AppendBatch(ctx context.Context, records []Record) error

	// ListByCorrelation returns every record stamped with correlationUID.
	ListByCorrelation(ctx context.Context, correlationUID string) ([]Record, error)

	// ListByEntity returns every record of every correlation in which
	// entityUID appears in a non-Detail record. UnmodifiedRoot rows qualify a
	// correlation here even though reconstruction excludes them from output.
	ListByEntity(ctx context.Context, entityUID string) ([]Record, error)

	// ListRecent returns the records of the limit most recent commits, whole
	// correlations only, newest commit first.
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
