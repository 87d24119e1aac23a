package cidmap

import (
	"iter"

	"github.com/ipfs/go-cid"
)

// Set is a set of CIDs backed by a Map.
//
// The zero Set is empty and ready to use.
type Set struct {
	m Map[struct{}]
}

// NewSet returns an empty set with room for at least n CIDs.
func NewSet(n int) *Set {
	return &Set{m: *NewWithCapacity[struct{}](n)}
}

// Insert adds c and reports whether it was newly added.
func (s *Set) Insert(c cid.Cid) bool {
	_, existed := s.m.Insert(c, struct{}{})
	return !existed
}

// Contains reports whether c is in the set.
func (s *Set) Contains(c cid.Cid) bool { return s.m.ContainsKey(c) }

// Remove deletes c and reports whether it was present.
func (s *Set) Remove(c cid.Cid) bool {
	_, ok := s.m.Remove(c)
	return ok
}

// Len returns the number of CIDs in the set.
func (s *Set) Len() int { return s.m.Len() }

// All yields every CID in unspecified order.
func (s *Set) All() iter.Seq[cid.Cid] { return s.m.Keys() }
