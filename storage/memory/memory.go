package memory

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/cidstore/cidmap"
	"xdao.co/cidstore/storage"
)

// CAS is an in-memory block store.
//
// Blocks are held in a cidmap.Map, so the common dag-cbor/blake2b-256 keys
// cost no allocation beyond the block itself. A single RWMutex guards the map.
type CAS struct {
	mu     sync.RWMutex
	blocks *cidmap.Map[[]byte]
}

var _ storage.CAS = (*CAS)(nil)

// New returns an empty store sized for about sizeHint blocks.
func New(sizeHint int) *CAS {
	return &CAS{blocks: cidmap.NewWithCapacity[[]byte](sizeHint)}
}

func (c *CAS) Put(id cid.Cid, data []byte) error {
	if err := storage.Verify(id, data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.blocks.Get(id); ok {
		if !bytes.Equal(existing, data) {
			return storage.ErrImmutable
		}
		return nil
	}
	c.blocks.Insert(id, bytes.Clone(data))
	return nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.blocks.Get(id)
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks.ContainsKey(id)
}

// Len returns the number of stored blocks.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks.Len()
}

// ForEach calls fn for every stored block until fn returns an error. The
// store is read-locked for the duration.
func (c *CAS) ForEach(fn func(id cid.Cid, data []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, data := range c.blocks.All() {
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return nil
}
