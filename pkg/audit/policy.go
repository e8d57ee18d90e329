package audit

import (
	"reflect"
	"sync"

	"chronicle/pkg/domain"
)

// Policy controls what the capture engine records for one entity type.
// The zero value is not useful; policies are built by Registry.Register.
type Policy struct {
	// Write gates all records for the type. False suppresses Created,
	// Updated, Deleted and Detail records unconditionally.
	Write bool
	// Detailed gates the per-property Detail records. The top-level
	// Created/Updated/Deleted record is produced either way.
	Detailed bool
	// EntityName is the type label written into records. Defaults to the
	// fully-qualified Go type name of the registered type.
	EntityName string
}

// PolicyOption adjusts a policy at registration time.
type PolicyOption func(*Policy)

// WithEntityName overrides the type label used in records.
func WithEntityName(name string) PolicyOption {
	return func(p *Policy) { p.EntityName = name }
}

// WithoutDetails keeps the top-level record but suppresses Detail records.
func WithoutDetails() PolicyOption {
	return func(p *Policy) { p.Detailed = false }
}

// Disabled registers the type without emitting any records for it.
func Disabled() PolicyOption {
	return func(p *Policy) { p.Write = false }
}

// Registry maps concrete entity types to audit policies. Registration at
// wiring time replaces runtime attribute discovery: a type absent from the
// registry is simply not audited.
//
// Lookup resolves wrappers first, so a lazy-loading proxy is audited under
// the policy of the entity it wraps.
type Registry struct {
	mu       sync.RWMutex
	policies map[reflect.Type]Policy
}

// NewRegistry returns an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[reflect.Type]Policy)}
}

// Register records the audit policy for prototype's concrete type. Write and
// Detailed default to true; EntityName defaults to the fully-qualified type
// name. Registering the same type again replaces the previous policy.
func (r *Registry) Register(prototype domain.Entity, opts ...PolicyOption) {
	t := semanticType(prototype)
	policy := Policy{
		Write:      true,
		Detailed:   true,
		EntityName: typeLabel(t),
	}
	for _, opt := range opts {
		opt(&policy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[t] = policy
}

// Lookup returns the policy for e's semantic type. Wrapped entities are
// resolved before the lookup.
func (r *Registry) Lookup(e domain.Entity) (Policy, bool) {
	if e == nil {
		return Policy{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[semanticType(e)]
	return policy, ok
}

// TypeLabelOf returns the default type label for e: the fully-qualified name
// of its semantic type.
func TypeLabelOf(e domain.Entity) string {
	return typeLabel(semanticType(e))
}

func semanticType(e domain.Entity) reflect.Type {
	return reflect.TypeOf(domain.Resolve(e))
}

// typeLabel renders the fully-qualified name of t, following pointers to the
// named type they point at.
func typeLabel(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
