// Package domain defines the identity model shared by audited entities.
//
// Entities are compared by identity, not by value: two references are the
// same entity when their UIDs match and their semantic types agree. Lazy
// loading wrappers participate through the Unwrapper capability so a proxy
// compares equal to the entity it wraps.
package domain

import (
	"hash/fnv"
	"reflect"
)

// Entity is the capability every audited domain object exposes: a stable,
// string-valued unique identifier independent of any storage surrogate key.
type Entity interface {
	UID() string
}

// Unwrapper is implemented by lazy-loading wrappers so identity comparison
// reaches the semantic entity instead of the wrapper. Resolve follows the
// chain; wrappers must not form cycles.
type Unwrapper interface {
	Unwrap() Entity
}

// AggregateRoot marks an entity as the top of an aggregate for audit
// correlation purposes. It carries no extra data.
type AggregateRoot interface {
	Entity
	IsAggregateRoot()
}

// AggregateChild is an entity belonging to an aggregate. Root returns the
// root entity this child belongs to; ok is false when the reference is not
// currently resolvable (for example an unloaded relation).
type AggregateChild interface {
	Entity
	Root() (Entity, bool)
}

// Resolve follows Unwrap links until it reaches the underlying entity.
func Resolve(e Entity) Entity {
	for e != nil {
		w, ok := e.(Unwrapper)
		if !ok {
			return e
		}
		inner := w.Unwrap()
		if inner == nil {
			return e
		}
		e = inner
	}
	return e
}

// Equal reports identity-based equality: both sides resolve to the same UID
// and their semantic types are assignable to one another. Wrapped entities
// are resolved first, so a proxy equals the entity it wraps.
func Equal(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b = Resolve(a), Resolve(b)
	if a.UID() == "" || a.UID() != b.UID() {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta.AssignableTo(tb) || tb.AssignableTo(ta)
}

// Key returns the identity key for e: the UID of the resolved entity. Equal
// entities always share a key, proxy or not.
func Key(e Entity) string {
	if e == nil {
		return ""
	}
	return Resolve(e).UID()
}

// HashUID hashes the identity key. Derived from the UID alone so equal
// entities hash equally across proxy and non-proxy representations.
func HashUID(e Entity) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(Key(e)))
	return h.Sum64()
}
