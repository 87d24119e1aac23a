package testkit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, block storage")
		id := cidutil.CIDv1DagCBORBlake2b256(want)

		require.NoError(t, cas.Put(id, want))
		got, err := cas.Get(id)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(got, want), "Get bytes mismatch")
	})

	t.Run("RawSHA256Blocks", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("raw block")
		id, err := cidutil.CIDv1RawSHA256CID(want)
		require.NoError(t, err)

		require.NoError(t, cas.Put(id, want))
		got, err := cas.Get(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")
		id := cidutil.CIDv1DagCBORBlake2b256(b)

		require.NoError(t, cas.Put(id, b))
		require.NoError(t, cas.Put(id, b))
		assert.True(t, cas.Has(id))
	})

	t.Run("PutRejectsMismatch", func(t *testing.T) {
		cas := newCAS(t)
		id := cidutil.CIDv1DagCBORBlake2b256([]byte("claimed"))
		err := cas.Put(id, []byte("actual"))
		assert.True(t, errors.Is(err, storage.ErrCIDMismatch), "got %v", err)
		assert.False(t, cas.Has(id))
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id := cidutil.CIDv1DagCBORBlake2b256(b)

		assert.False(t, cas.Has(id), "Has returned true for missing CID")
		_, err := cas.Get(id)
		assert.True(t, storage.IsNotFound(err), "Get missing: got err=%v want ErrNotFound", err)

		require.NoError(t, cas.Put(id, b))
		assert.True(t, cas.Has(id), "Has returned false after Put")
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		assert.False(t, cas.Has(undef), "Has should be false for undefined CID")
		_, err := cas.Get(undef)
		assert.Error(t, err, "Get should fail for undefined CID")
		assert.Error(t, cas.Put(undef, []byte("x")), "Put should fail for undefined CID")
	})
}

// RunReadOnlyConformance checks a store that was populated out of band with
// blocks. Put of a new block must fail with ErrReadOnly.
func RunReadOnlyConformance(t *testing.T, cas storage.CAS, blocks map[cid.Cid][]byte) {
	t.Helper()

	for id, want := range blocks {
		assert.True(t, cas.Has(id), "Has(%s)", id)
		got, err := cas.Get(id)
		require.NoError(t, err, "Get(%s)", id)
		assert.Equal(t, want, got, "Get(%s)", id)
	}

	missing := cidutil.CIDv1DagCBORBlake2b256([]byte("not in the store"))
	assert.False(t, cas.Has(missing))
	_, err := cas.Get(missing)
	assert.True(t, storage.IsNotFound(err), "got %v", err)

	err = cas.Put(missing, []byte("not in the store"))
	assert.True(t, errors.Is(err, storage.ErrReadOnly), "got %v", err)
}
