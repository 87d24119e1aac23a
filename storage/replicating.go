package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes are verified once against the CID and then
// go to every backend; the first failure aborts the write.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes the block to all backends and reports the names of the
// backends that accepted it, in order.
//
// On error the returned names are the backends written before the failure.
func (r ReplicatingCAS) PutAll(id cid.Cid, bytes []byte) ([]string, error) {
	if err := Verify(id, bytes); err != nil {
		return nil, err
	}
	if len(r.Backends) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	written := make([]string, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return written, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		if err := b.CAS.Put(id, bytes); err != nil {
			return written, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		written = append(written, b.Name)
	}
	return written, nil
}

func (r ReplicatingCAS) Put(id cid.Cid, bytes []byte) error {
	_, err := r.PutAll(id, bytes)
	return err
}

func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
