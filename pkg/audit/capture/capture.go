// Package capture implements the change-capture engine: given the snapshot
// of an about-to-commit unit of work, it produces the flat audit records
// that must be persisted alongside that commit.
//
// The engine is a pure function. It performs no I/O, holds no state between
// invocations, and raises no errors of its own; whatever surrounds the
// commit owns atomicity. Calling it twice for the same commit duplicates
// records, so the transaction boundary must invoke it exactly once per
// attempt.
package capture

import (
	"fmt"
	"time"

	"chronicle/pkg/audit"
	"chronicle/pkg/domain"
)

// State describes how a tracked entity changed within the unit of work.
type State int

const (
	Unchanged State = iota
	Added
	Modified
	Deleted
)

// PropertyState carries the rendered before/after values of one property of
// a tracked entity. Values are rendered strings; nil means the value is
// absent (null).
type PropertyState struct {
	Name     string
	Previous *string
	Current  *string
	// Modified is the tracker's per-property dirty flag. Only consulted for
	// modified entities.
	Modified bool
	// Transient marks ORM bookkeeping and navigation properties. Never
	// recorded.
	Transient bool
	// SurrogateKey marks the storage-assigned key. Excluded from the
	// details of newly created entities.
	SurrogateKey bool
}

// EntityChange is one tracked object in the about-to-commit snapshot.
type EntityChange struct {
	Entity     any
	State      State
	Properties []PropertyState
}

// Scope carries the identity and correlation stamped onto every record of
// one commit. Empty Subject and UserName fall back to the anonymous
// sentinels; a zero OccurredAt falls back to the current UTC time.
type Scope struct {
	CorrelationUID string
	Subject        string
	UserName       string
	OccurredAt     time.Time
}

func (s Scope) normalized() Scope {
	if s.Subject == "" {
		s.Subject = audit.AnonymousSubject
	}
	if s.UserName == "" {
		s.UserName = audit.AnonymousUserName
	}
	if s.OccurredAt.IsZero() {
		s.OccurredAt = time.Now()
	}
	s.OccurredAt = s.OccurredAt.UTC()
	return s
}

// Run scans the snapshot and returns the audit records for this commit.
//
// An entry is recorded only when its object implements domain.Entity and its
// semantic type is registered with Write enabled; audit records themselves
// are never audited. Added entities yield one Created record plus, under a
// Detailed policy, one Detail record per persisted property with a non-null
// value. Modified entities yield one Updated record plus one Detail record
// per property the tracker flagged modified whose rendering actually
// changed. Deleted entities yield a single Deleted record.
//
// Aggregate roots reachable from changed children but not directly changed
// themselves yield one UnmodifiedRoot record each, which is what lets an
// entity-scoped history query find child-only commits.
func Run(changes []EntityChange, scope Scope, policies *audit.Registry) []audit.Record {
	scope = scope.normalized()

	records := make([]audit.Record, 0, len(changes))

	modifiedRootUIDs := make(map[string]struct{})
	unmodifiedRoots := make(map[string]domain.Entity)
	var rootOrder []string

	for _, change := range changes {
		if change.State == Unchanged {
			continue
		}

		switch change.Entity.(type) {
		case audit.Record, *audit.Record:
			// Never audit the audit trail.
			continue
		}

		entity, ok := change.Entity.(domain.Entity)
		if !ok {
			continue
		}
		policy, ok := policies.Lookup(entity)
		if !ok || !policy.Write {
			continue
		}

		resolved := domain.Resolve(entity)
		uid := resolved.UID()

		if _, isRoot := resolved.(domain.AggregateRoot); isRoot {
			modifiedRootUIDs[uid] = struct{}{}
		}
		if child, isChild := resolved.(domain.AggregateChild); isChild {
			if root, found := child.Root(); found && root != nil {
				rootEntity := domain.Resolve(root)
				rootUID := rootEntity.UID()
				if _, seen := unmodifiedRoots[rootUID]; !seen {
					unmodifiedRoots[rootUID] = rootEntity
					rootOrder = append(rootOrder, rootUID)
				}
			}
		}

		base := audit.Record{
			CorrelationUID:    scope.CorrelationUID,
			Subject:           scope.Subject,
			UserName:          scope.UserName,
			OccurredAt:        scope.OccurredAt,
			EntityType:        policy.EntityName,
			EntityUID:         uid,
			EntityDescription: audit.Truncate(describe(resolved, policy.EntityName)),
		}

		switch change.State {
		case Added:
			created := base
			created.TypeCode = audit.TypeCreated
			records = append(records, created)
			if policy.Detailed {
				records = append(records, addedDetails(base, change.Properties)...)
			}
		case Modified:
			updated := base
			updated.TypeCode = audit.TypeUpdated
			records = append(records, updated)
			if policy.Detailed {
				records = append(records, modifiedDetails(base, change.Properties)...)
			}
		case Deleted:
			deleted := base
			deleted.TypeCode = audit.TypeDeleted
			records = append(records, deleted)
		}
	}

	// Root-linkage pass: roots touched only through their children get an
	// UnmodifiedRoot marker so entity-scoped lookups still find the commit.
	// Roots directly changed in the same commit already have a real record.
	for _, rootUID := range rootOrder {
		if _, direct := modifiedRootUIDs[rootUID]; direct {
			continue
		}
		root := unmodifiedRoots[rootUID]

		label := ""
		if policy, ok := policies.Lookup(root); ok {
			if !policy.Write {
				continue
			}
			label = policy.EntityName
		} else {
			label = audit.TypeLabelOf(root)
		}

		records = append(records, audit.Record{
			CorrelationUID:    scope.CorrelationUID,
			Subject:           scope.Subject,
			UserName:          scope.UserName,
			OccurredAt:        scope.OccurredAt,
			TypeCode:          audit.TypeUnmodifiedRoot,
			EntityType:        label,
			EntityUID:         rootUID,
			EntityDescription: audit.Truncate(describe(root, label)),
		})
	}

	return records
}

func addedDetails(base audit.Record, properties []PropertyState) []audit.Record {
	var details []audit.Record
	for _, p := range properties {
		if p.Transient || p.SurrogateKey {
			continue
		}
		// New entities should carry values; a nil rendering has nothing
		// worth recording.
		if p.Current == nil {
			continue
		}
		detail := base
		detail.TypeCode = audit.TypeDetail
		detail.PropertyName = p.Name
		detail.CurrentValue = audit.TruncatePtr(p.Current)
		details = append(details, detail)
	}
	return details
}

func modifiedDetails(base audit.Record, properties []PropertyState) []audit.Record {
	var details []audit.Record
	for _, p := range properties {
		if p.Transient || !p.Modified {
			continue
		}
		// Trackers can flag complex-typed properties modified even when the
		// rendered value is unchanged. Identical renderings are noise.
		if renderedEqual(p.Previous, p.Current) {
			continue
		}
		detail := base
		detail.TypeCode = audit.TypeDetail
		detail.PropertyName = p.Name
		detail.PreviousValue = audit.TruncatePtr(p.Previous)
		detail.CurrentValue = audit.TruncatePtr(p.Current)
		details = append(details, detail)
	}
	return details
}

func renderedEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// describe renders the free-text entity description. Entities that implement
// fmt.Stringer control their own rendering.
func describe(e domain.Entity, label string) string {
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	return label + " " + e.UID()
}
