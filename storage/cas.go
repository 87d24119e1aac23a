// Package storage defines the block store contract shared by every backend
// and the fan-out stores built on top of it.
package storage

import "github.com/ipfs/go-cid"

// CAS is a content-addressable block store.
//
// Contract:
// - Put MUST verify that bytes hash to id under id's prefix (ErrCIDMismatch otherwise).
// - Put MUST be idempotent; a different payload under a stored id is ErrImmutable.
// - Get MUST return ErrNotFound when the CID is absent.
// - Undefined CIDs are rejected with ErrInvalidCID and are never present.
type CAS interface {
	Put(id cid.Cid, bytes []byte) error
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
