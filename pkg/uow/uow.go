// Package uow provides the unit-of-work boundary the change-capture engine
// observes. Callers register entity mutations against it, perform their
// writes inside Commit, and the audit records for the commit are produced
// and persisted atomically with those writes.
//
// A UnitOfWork belongs to one logical operation. It is not safe for
// concurrent use and must be committed exactly once; independent operations
// each build their own instance.
package uow

import (
	"context"
	"database/sql"
	"fmt"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/capture"
	"chronicle/pkg/domain"
	"chronicle/pkg/platform/sentinel"
	txcontext "chronicle/pkg/platform/tx"
	"chronicle/pkg/requestcontext"
)

type tracked struct {
	entity   domain.Entity
	state    capture.State
	original []renderedProperty
}

type renderedProperty struct {
	property Property
	value    *string
}

// UnitOfWork tracks entity mutations for one commit.
type UnitOfWork struct {
	store       audit.Store
	registry    *audit.Registry
	mappers     *Mappers
	tracked     []*tracked
	byKey       map[string]*tracked
	committed   bool
	afterCommit func(ctx context.Context, records []audit.Record)
}

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithAfterCommit registers a hook invoked with the captured records after a
// successful commit. Used for metrics and journal fan-out; failures there
// cannot undo the commit, so the hook returns nothing.
func WithAfterCommit(fn func(ctx context.Context, records []audit.Record)) Option {
	return func(u *UnitOfWork) { u.afterCommit = fn }
}

// New builds a unit of work writing its audit records to store under the
// policies in registry. Mappers supply per-type property rendering; entities
// without a mapper still get their top-level record, just no details.
func New(store audit.Store, registry *audit.Registry, mappers *Mappers, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		store:    store,
		registry: registry,
		mappers:  mappers,
		byKey:    make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RegisterNew tracks e as created in this unit of work.
func (u *UnitOfWork) RegisterNew(e domain.Entity) {
	u.register(e, capture.Added)
}

// RegisterDirty tracks e as modified. Call it before mutating the entity:
// the current property renderings are snapshotted as the previous values.
func (u *UnitOfWork) RegisterDirty(e domain.Entity) {
	u.register(e, capture.Modified)
}

// RegisterDeleted tracks e as deleted.
func (u *UnitOfWork) RegisterDeleted(e domain.Entity) {
	u.register(e, capture.Deleted)
}

// RegisterClean tracks e without marking it changed. Clean entities produce
// no records, but their property renderings are snapshotted so a later
// RegisterDirty on the same entity still yields previous values.
func (u *UnitOfWork) RegisterClean(e domain.Entity) {
	u.register(e, capture.Unchanged)
}

func (u *UnitOfWork) register(e domain.Entity, state capture.State) {
	if e == nil {
		return
	}
	key := domain.Key(e)
	if existing, ok := u.byKey[key]; ok {
		existing.state = mergeStates(existing.state, state)
		if existing.state == capture.Modified && existing.original == nil {
			existing.original = u.snapshot(e)
		}
		return
	}

	t := &tracked{entity: e, state: state}
	if state == capture.Modified || state == capture.Unchanged {
		t.original = u.snapshot(e)
	}
	u.tracked = append(u.tracked, t)
	u.byKey[key] = t
}

// mergeStates folds a re-registration into the tracked state. A new entity
// stays new through later modifications; deleting a never-persisted entity
// cancels out; deletion otherwise wins.
func mergeStates(current, next capture.State) capture.State {
	switch {
	case current == capture.Added && next == capture.Deleted:
		return capture.Unchanged
	case current == capture.Added:
		return capture.Added
	case next == capture.Deleted:
		return capture.Deleted
	case current == capture.Deleted:
		return capture.Deleted
	case current == capture.Modified || next == capture.Modified:
		return capture.Modified
	default:
		return next
	}
}

func (u *UnitOfWork) snapshot(e domain.Entity) []renderedProperty {
	mapper, ok := u.mappers.lookup(e)
	if !ok {
		return nil
	}
	properties := mapper(domain.Resolve(e))
	rendered := make([]renderedProperty, 0, len(properties))
	for _, p := range properties {
		rendered = append(rendered, renderedProperty{property: p, value: Render(p.Value)})
	}
	return rendered
}

// Changes builds the mutation snapshot the capture engine consumes. Exposed
// for tests and custom transaction boundaries.
func (u *UnitOfWork) Changes() []capture.EntityChange {
	changes := make([]capture.EntityChange, 0, len(u.tracked))
	for _, t := range u.tracked {
		change := capture.EntityChange{Entity: t.entity, State: t.state}
		switch t.state {
		case capture.Added:
			change.Properties = u.addedProperties(t.entity)
		case capture.Modified:
			change.Properties = u.modifiedProperties(t)
		}
		changes = append(changes, change)
	}
	return changes
}

func (u *UnitOfWork) addedProperties(e domain.Entity) []capture.PropertyState {
	mapper, ok := u.mappers.lookup(e)
	if !ok {
		return nil
	}
	var states []capture.PropertyState
	for _, p := range mapper(domain.Resolve(e)) {
		states = append(states, capture.PropertyState{
			Name:         p.Name,
			Current:      Render(p.Value),
			Modified:     true,
			Transient:    p.Transient,
			SurrogateKey: p.SurrogateKey,
		})
	}
	return states
}

func (u *UnitOfWork) modifiedProperties(t *tracked) []capture.PropertyState {
	mapper, ok := u.mappers.lookup(t.entity)
	if !ok {
		return nil
	}

	current := make(map[string]*string)
	var surrogate, transient map[string]bool
	surrogate = make(map[string]bool)
	transient = make(map[string]bool)
	for _, p := range mapper(domain.Resolve(t.entity)) {
		current[p.Name] = Render(p.Value)
		surrogate[p.Name] = p.SurrogateKey
		transient[p.Name] = p.Transient
	}

	var states []capture.PropertyState
	for _, original := range t.original {
		name := original.property.Name
		cur := current[name]
		states = append(states, capture.PropertyState{
			Name:         name,
			Previous:     original.value,
			Current:      cur,
			Modified:     !renderedEqual(original.value, cur),
			Transient:    transient[name] || original.property.Transient,
			SurrogateKey: surrogate[name] || original.property.SurrogateKey,
		})
	}
	return states
}

func renderedEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// scope reads the identity and correlation for this commit once, at the
// transaction boundary.
func scope(ctx context.Context) capture.Scope {
	return capture.Scope{
		CorrelationUID: requestcontext.CorrelationUID(ctx),
		Subject:        requestcontext.Subject(ctx),
		UserName:       requestcontext.UserName(ctx),
		OccurredAt:     requestcontext.Now(ctx).UTC(),
	}
}

// Commit captures the audit records for the tracked mutations and appends
// them to the store. Without a database the store write is the whole commit.
// Returns sentinel.ErrCommitted when invoked twice.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.committed {
		return sentinel.ErrCommitted
	}
	u.committed = true

	records := capture.Run(u.Changes(), scope(ctx), u.registry)
	if len(records) > 0 {
		if err := u.store.AppendBatch(ctx, records); err != nil {
			return fmt.Errorf("append audit records: %w", err)
		}
	}
	u.notify(ctx, records)
	return nil
}

// CommitTx opens a transaction on db, runs apply with the transaction in
// context, captures the audit records and appends them through the same
// transaction, then commits. Either everything lands or nothing does; a
// failed commit discards the records with the data.
func (u *UnitOfWork) CommitTx(ctx context.Context, db *sql.DB, apply func(ctx context.Context) error) error {
	if u.committed {
		return sentinel.ErrCommitted
	}
	u.committed = true

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txCtx := txcontext.WithTx(ctx, tx)
	if apply != nil {
		if err := apply(txCtx); err != nil {
			return err
		}
	}

	records := capture.Run(u.Changes(), scope(ctx), u.registry)
	if len(records) > 0 {
		if err := u.store.AppendBatch(txCtx, records); err != nil {
			return fmt.Errorf("append audit records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	u.notify(ctx, records)
	return nil
}

func (u *UnitOfWork) notify(ctx context.Context, records []audit.Record) {
	if u.afterCommit != nil && len(records) > 0 {
		u.afterCommit(ctx, records)
	}
}
