package cidmap

import (
	"iter"
	"maps"

	"github.com/ipfs/go-cid"
)

// Map is a hash map from CIDs to values of type V.
//
// The zero Map is empty and ready to use.
type Map[V any] struct {
	m map[Key]V
	// highWater is the largest size the map has been allocated for.
	highWater int
}

// New returns an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

// NewWithCapacity returns an empty map with room for at least n entries.
func NewWithCapacity[V any](n int) *Map[V] {
	if n < 0 {
		n = 0
	}
	return &Map[V]{m: make(map[Key]V, n), highWater: n}
}

// Collect builds a map from a sequence of pairs. Later pairs overwrite
// earlier ones with the same CID.
func Collect[V any](seq iter.Seq2[cid.Cid, V]) *Map[V] {
	m := New[V]()
	m.Extend(seq)
	return m
}

// Insert stores v under c. If c was already present, the previous value is
// returned with true.
func (m *Map[V]) Insert(c cid.Cid, v V) (V, bool) {
	if m.m == nil {
		m.m = make(map[Key]V)
	}
	k := KeyOf(c)
	old, ok := m.m[k]
	m.m[k] = v
	if len(m.m) > m.highWater {
		m.highWater = len(m.m)
	}
	return old, ok
}

// Get returns the value stored under c.
func (m *Map[V]) Get(c cid.Cid) (V, bool) {
	v, ok := m.m[KeyOf(c)]
	return v, ok
}

// ContainsKey reports whether c is present.
func (m *Map[V]) ContainsKey(c cid.Cid) bool {
	_, ok := m.m[KeyOf(c)]
	return ok
}

// Remove deletes c, returning its value if it was present.
func (m *Map[V]) Remove(c cid.Cid) (V, bool) {
	k := KeyOf(c)
	v, ok := m.m[k]
	if ok {
		delete(m.m, k)
	}
	return v, ok
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return len(m.m) }

// Capacity returns the number of entries the map has storage reserved for:
// the larger of the capacity requested at construction and the largest size
// the map has reached. Go maps never release buckets on delete, so this is a
// lower bound on the slots held.
func (m *Map[V]) Capacity() int { return m.highWater }

// Extend inserts every pair of seq.
func (m *Map[V]) Extend(seq iter.Seq2[cid.Cid, V]) {
	for c, v := range seq {
		m.Insert(c, v)
	}
}

// All yields every (CID, value) pair in unspecified order.
func (m *Map[V]) All() iter.Seq2[cid.Cid, V] {
	return func(yield func(cid.Cid, V) bool) {
		for k, v := range m.m {
			if !yield(k.Cid(), v) {
				return
			}
		}
	}
}

// Keys yields every CID in unspecified order.
func (m *Map[V]) Keys() iter.Seq[cid.Cid] {
	return func(yield func(cid.Cid) bool) {
		for k := range m.m {
			if !yield(k.Cid()) {
				return
			}
		}
	}
}

// Clear removes every entry, keeping the allocated storage.
func (m *Map[V]) Clear() {
	clear(m.m)
}

// Clone returns a shallow copy of m.
func (m *Map[V]) Clone() *Map[V] {
	return &Map[V]{m: maps.Clone(m.m), highWater: m.highWater}
}

// Equal reports whether a and b hold the same pairs.
func Equal[V comparable](a, b *Map[V]) bool {
	return maps.Equal(a.m, b.m)
}

// EqualFunc is like Equal but compares values with eq.
func EqualFunc[V any](a, b *Map[V], eq func(V, V) bool) bool {
	return maps.EqualFunc(a.m, b.m, eq)
}
