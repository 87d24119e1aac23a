package cidmap

import (
	"testing"
	"unsafe"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/internal/testutil"
)

func TestKeyOf_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := testutil.CID().Draw(t, "cid")
		got := KeyOf(c).Cid()
		if !got.Equals(c) {
			t.Fatalf("round trip: got %q want %q", got.KeyString(), c.KeyString())
		}
	})
}

func TestKeyOf_EqualityMatchesCIDEquality(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := testutil.CID().Draw(t, "a")
		var b cid.Cid
		if rapid.Bool().Draw(t, "same") {
			// A distinct copy of the same bytes.
			b = cid.Undef
			if a.Defined() {
				var err error
				b, err = cid.Cast([]byte(a.KeyString()))
				if err != nil {
					t.Fatalf("cast: %v", err)
				}
			}
		} else {
			b = testutil.CID().Draw(t, "b")
		}

		ka, kb := KeyOf(a), KeyOf(b)
		if (ka == kb) != a.Equals(b) {
			t.Fatalf("key equality %v, cid equality %v for %q / %q", ka == kb, a.Equals(b), a.KeyString(), b.KeyString())
		}

		// Equal keys must hash alike: a lookup under one finds the other.
		probe := map[Key]struct{}{ka: {}}
		if _, found := probe[kb]; found != a.Equals(b) {
			t.Fatalf("map lookup %v, cid equality %v", found, a.Equals(b))
		}
	})
}

func TestKeyOf_ChoosesInlineOnlyForCanonicalShape(t *testing.T) {
	digest := make([]byte, DigestSize)
	for i := range digest {
		digest[i] = byte(i + 1)
	}
	mk := func(codec, code uint64, d []byte) cid.Cid {
		mh, err := multihash.Encode(d, code)
		require.NoError(t, err)
		return cid.NewCidV1(codec, mh)
	}
	sha, err := multihash.Encode(digest, multihash.SHA2_256)
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		cid    cid.Cid
		inline bool
	}{
		{"canonical", mk(cid.DagCBOR, cidutil.Blake2b256, digest), true},
		{"hashed block", cidutil.CIDv1DagCBORBlake2b256([]byte("block")), true},
		{"raw codec", mk(cid.Raw, cidutil.Blake2b256, digest), false},
		{"sha2-256", mk(cid.DagCBOR, multihash.SHA2_256, digest), false},
		{"short digest", mk(cid.DagCBOR, cidutil.Blake2b256, digest[:31]), false},
		{"long digest", mk(cid.DagCBOR, cidutil.Blake2b256, append(digest, 0)), false},
		{"cidv0", cid.NewCidV0(sha), false},
		{"undef", cid.Undef, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := KeyOf(tc.cid)
			assert.Equal(t, tc.inline, k.Inline())
			assert.True(t, k.Cid().Equals(tc.cid))
		})
	}
}

func TestKey_ZeroValueIsUndef(t *testing.T) {
	var k Key
	assert.Equal(t, KeyOf(cid.Undef), k)
	assert.False(t, k.Cid().Defined())

	zeroDigest := make([]byte, DigestSize)
	mh, err := multihash.Encode(zeroDigest, cidutil.Blake2b256)
	require.NoError(t, err)
	assert.NotEqual(t, k, KeyOf(cid.NewCidV1(cid.DagCBOR, mh)))
}

func TestKeyOf_CanonicalDoesNotAllocate(t *testing.T) {
	c := cidutil.CIDv1DagCBORBlake2b256([]byte("no allocs"))
	var sink Key
	allocs := testing.AllocsPerRun(100, func() { sink = KeyOf(c) })
	assert.Zero(t, allocs)
	assert.True(t, sink.Inline())
}

func TestKey_Size(t *testing.T) {
	assert.Equal(t, uintptr(48), unsafe.Sizeof(Key{}))
}

func TestKeyOf_ZeroDigestCanonical(t *testing.T) {
	k := KeyOf(inlineMark)
	assert.True(t, k.Inline())
	assert.True(t, k.Cid().Equals(inlineMark))
	assert.NotEqual(t, Key{}, k)
}
