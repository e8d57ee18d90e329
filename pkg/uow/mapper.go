package uow

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"chronicle/pkg/domain"
)

// Property is one persisted property of an entity as seen by its mapper.
type Property struct {
	Name string
	// Value is rendered with Render at snapshot and commit time.
	Value any
	// Transient marks navigation and bookkeeping properties that never
	// appear in detail records.
	Transient bool
	// SurrogateKey marks the storage-assigned key, excluded from the details
	// of created entities.
	SurrogateKey bool
}

// Mapper renders the persisted properties of an entity. Registered per type,
// invoked with the resolved (unwrapped) entity.
type Mapper func(e domain.Entity) []Property

// Mappers maps semantic entity types to their property mappers.
type Mappers struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Mapper
}

// NewMappers returns an empty mapper registry.
func NewMappers() *Mappers {
	return &Mappers{byType: make(map[reflect.Type]Mapper)}
}

// Register stores the mapper for prototype's concrete type.
func (m *Mappers) Register(prototype domain.Entity, mapper Mapper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType[reflect.TypeOf(domain.Resolve(prototype))] = mapper
}

func (m *Mappers) lookup(e domain.Entity) (Mapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mapper, ok := m.byType[reflect.TypeOf(domain.Resolve(e))]
	return mapper, ok
}

// Render converts a property value to its recorded string form. Nil values
// and nil pointers render as absent.
func Render(v any) *string {
	if v == nil {
		return nil
	}

	switch t := v.(type) {
	case string:
		return &t
	case *string:
		if t == nil {
			return nil
		}
		s := *t
		return &s
	case time.Time:
		s := t.UTC().Format(time.RFC3339Nano)
		return &s
	case fmt.Stringer:
		if isNilPointer(v) {
			return nil
		}
		s := t.String()
		return &s
	}

	if isNilPointer(v) {
		return nil
	}
	s := fmt.Sprintf("%v", v)
	return &s
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
