package storage_test

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/memory"
	"xdao.co/cidstore/storage/testkit"
)

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{memory.New(0), memory.New(0)}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: memory.New(0)},
			{Name: "b", CAS: memory.New(0)},
		}}
	})
}

func TestMultiCAS_FallsBackInOrder(t *testing.T) {
	first, second := memory.New(0), memory.New(0)
	block := []byte("only in second")
	id := cidutil.CIDv1DagCBORBlake2b256(block)
	require.NoError(t, second.Put(id, block))

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	got, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, block, got)
	assert.True(t, m.Has(id))

	_, err = storage.MultiCAS{}.Get(id)
	assert.True(t, storage.IsNotFound(err))
	assert.Error(t, storage.MultiCAS{}.Put(id, block))
}

// failingCAS refuses every write.
type failingCAS struct{ storage.CAS }

func (failingCAS) Put(cid.Cid, []byte) error { return storage.ErrReadOnly }

func TestReplicatingCAS_ReportsPartialWrites(t *testing.T) {
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "ok", CAS: memory.New(0)},
		{Name: "ro", CAS: failingCAS{memory.New(0)}},
		{Name: "never", CAS: memory.New(0)},
	}}
	block := []byte("partial")
	id := cidutil.CIDv1DagCBORBlake2b256(block)

	written, err := r.PutAll(id, block)
	assert.True(t, errors.Is(err, storage.ErrReadOnly), "got %v", err)
	assert.Equal(t, []string{"ok"}, written)
	assert.False(t, r.Backends[2].CAS.Has(id))

	_, err = storage.ReplicatingCAS{}.PutAll(id, block)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	block := []byte("verify me")
	id := cidutil.CIDv1DagCBORBlake2b256(block)
	assert.NoError(t, storage.Verify(id, block))
	assert.ErrorIs(t, storage.Verify(id, []byte("other")), storage.ErrCIDMismatch)
	assert.ErrorIs(t, storage.Verify(cid.Undef, block), storage.ErrInvalidCID)
}
