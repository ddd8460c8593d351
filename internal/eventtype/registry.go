package eventtype

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/mrzor/rawtrace/internal/kbuffer"
)

// Registry maps event ids to types and carries the byte order and long size
// of the traced machine.
type Registry struct {
	mu       sync.RWMutex
	order    binary.ByteOrder
	longSize kbuffer.LongSize
	byID     map[int]*Type
	byName   map[string]*Type // "system:name" -> type

	// idField locates common_type in every payload.
	idField Field
}

// NewRegistry creates an empty registry for pages written with the given
// byte order and long size.
func NewRegistry(order binary.ByteOrder, longSize kbuffer.LongSize) *Registry {
	return &Registry{
		order:    order,
		longSize: longSize,
		byID:     make(map[int]*Type),
		byName:   make(map[string]*Type),
		idField:  Field{Name: "common_type", Offset: 0, Size: 2},
	}
}

// Add registers t. The first registered type that declares common_type
// fixes where EventID reads the id from.
func (r *Registry) Add(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[t.ID]; ok {
		return fmt.Errorf("%w: %d used by %s and %s", ErrDuplicateID, t.ID, old, t)
	}
	if len(r.byID) == 0 {
		if f := t.Field("common_type"); f != nil && f.Size > 0 {
			r.idField = *f
		}
	}
	r.byID[t.ID] = t
	r.byName[t.String()] = t
	return nil
}

// Type returns the type registered under id, or nil.
func (r *Registry) Type(id int) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Find returns the type with the given system and name, or nil.
func (r *Registry) Find(system, name string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[system+":"+name]
}

// EventID extracts the event id from a raw payload. It returns -1 when the
// payload is too short to hold one.
func (r *Registry) EventID(data []byte) int {
	r.mu.RLock()
	f := r.idField
	r.mu.RUnlock()

	id, err := f.Uint(r.order, data)
	if err != nil {
		return -1
	}
	return int(id)
}

// ByteOrder returns the byte order of the traced machine.
func (r *Registry) ByteOrder() binary.ByteOrder {
	return r.order
}

// LongSize returns the size of a kernel long on the traced machine.
func (r *Registry) LongSize() int {
	return int(r.longSize)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Types returns every registered type ordered by id.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Type, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Type) int { return a.ID - b.ID })
	return out
}
