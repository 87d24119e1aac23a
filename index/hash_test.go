package index

import (
	"math"
	"math/bits"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/internal/testutil"
)

type fataler interface {
	Fatalf(format string, args ...any)
}

// fromIdealSlotIx returns the smallest hash mapped to ideal and the number of
// consecutive hashes, starting there, that map to it as well.
func fromIdealSlotIx(t fataler, ideal, numBuckets int) (uint64, uint64) {
	if ideal < 0 || ideal >= numBuckets {
		t.Fatalf("ideal %d impossible with %d buckets", ideal, numBuckets)
	}
	// ceil(2^64 * ideal / numBuckets); ideal < numBuckets keeps the quotient in range.
	q, r := bits.Div64(uint64(ideal), 0, uint64(numBuckets))
	if r != 0 {
		q++
	}
	return q, math.MaxUint64 / uint64(numBuckets)
}

func checkBackwards(t fataler, ideal, numBuckets int) {
	first, height := fromIdealSlotIx(t, ideal, numBuckets)
	if height == 0 {
		t.Fatalf("no candidates for %d of %d", ideal, numBuckets)
	}
	// Bounded: a small table owns billions of hashes per bucket.
	for off := uint64(0); off < height && off < 1024; off++ {
		h, ok := NewNonMaximalU64(first + off)
		if !ok {
			break
		}
		if got := IdealSlotIx(h, numBuckets); got != ideal {
			t.Fatalf("IdealSlotIx(%d, %d) = %d, want %d", h.Get(), numBuckets, got, ideal)
		}
	}
}

func TestIdealSlotIx_AlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := FitNonMaximalU64(rapid.Uint64().Draw(t, "hash"))
		n := rapid.IntRange(1, math.MaxInt).Draw(t, "numBuckets")
		ix := IdealSlotIx(h, n)
		if ix < 0 || ix >= n {
			t.Fatalf("IdealSlotIx(%d, %d) = %d out of range", h.Get(), n, ix)
		}
	})
}

func TestIdealSlotIx_Backwards(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, math.MaxInt).Draw(rt, "numBuckets")
		ideal := rapid.IntRange(0, n-1).Draw(rt, "ideal")
		checkBackwards(rt, ideal, n)
	})
}

func TestIdealSlotIx_SmallBackwardsExhaustive(t *testing.T) {
	for n := 1; n < math.MaxUint8; n++ {
		for ideal := 0; ideal < n; ideal++ {
			checkBackwards(t, ideal, n)
		}
	}
}

func TestIdealSlotIx_SingleBucket(t *testing.T) {
	for _, h := range []uint64{0, 1, 1 << 32, math.MaxUint64 / 2, math.MaxUint64 - 1} {
		v, ok := NewNonMaximalU64(h)
		require.True(t, ok)
		assert.Equal(t, 0, IdealSlotIx(v, 1))
	}
	rapid.Check(t, func(t *rapid.T) {
		h := FitNonMaximalU64(rapid.Uint64().Draw(t, "hash"))
		if got := IdealSlotIx(h, 1); got != 0 {
			t.Fatalf("IdealSlotIx(%d, 1) = %d", h.Get(), got)
		}
	})
}

func TestIdealSlotIx_PanicsOnEmptyTable(t *testing.T) {
	assert.Panics(t, func() { IdealSlotIx(NonMaximalU64{}, 0) })
	assert.Panics(t, func() { IdealSlotIx(NonMaximalU64{}, -1) })
}

func TestIdealSlotIx_PartitionsEvenly(t *testing.T) {
	// Two buckets split the space at 2^63.
	lo, _ := NewNonMaximalU64(1<<63 - 1)
	hi, _ := NewNonMaximalU64(1 << 63)
	assert.Equal(t, 0, IdealSlotIx(lo, 2))
	assert.Equal(t, 1, IdealSlotIx(hi, 2))

	top, _ := NewNonMaximalU64(math.MaxUint64 - 1)
	assert.Equal(t, 9, IdealSlotIx(top, 10))
}

func TestNonMaximalU64(t *testing.T) {
	_, ok := NewNonMaximalU64(math.MaxUint64)
	assert.False(t, ok)

	v, ok := NewNonMaximalU64(math.MaxUint64 - 1)
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64-1), v.Get())

	assert.Equal(t, uint64(0), FitNonMaximalU64(0).Get())
	assert.Equal(t, uint64(41), FitNonMaximalU64(42).Get())
	assert.Equal(t, uint64(math.MaxUint64-1), FitNonMaximalU64(math.MaxUint64).Get())
	assert.Equal(t, FitNonMaximalU64(math.MaxUint64), FitNonMaximalU64(math.MaxUint64))
}

func TestSummary_NeverMaximal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := testutil.CID().Draw(t, "cid")
		if Summary(c).Get() == math.MaxUint64 {
			t.Fatalf("Summary(%s) returned the reserved value", c)
		}
	})
}

func TestSummary_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := testutil.CID().Draw(t, "cid")
		if !c.Defined() {
			return
		}
		again, err := cid.Cast(c.Bytes())
		if err != nil {
			t.Fatalf("cast %s: %v", c, err)
		}
		if Summary(c) != Summary(again) {
			t.Fatalf("Summary differs for equal CIDs %s", c)
		}
	})
}

func TestSummary_SeedSeparatesCodecAndHash(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	a := identityLike(t, cid.DagCBOR, cidutil.Blake2b256, digest)
	b := identityLike(t, cid.Raw, cidutil.Blake2b256, digest)
	c := identityLike(t, cid.DagCBOR, multihash.SHA2_256, digest)
	assert.NotEqual(t, Summary(a), Summary(b))
	assert.NotEqual(t, Summary(a), Summary(c))
}

func TestSummary_Snapshots(t *testing.T) {
	fromCBOR := func(v string) cid.Cid {
		id, _, err := cidutil.FromCBORBlake2b256(v)
		require.NoError(t, err)
		return id
	}

	for _, tc := range []struct {
		name string
		cid  cid.Cid
		want uint64
	}{
		{"default", identityLike(t, 0, multihash.IDENTITY, nil), 0},
		{"forest", fromCBOR("forest"), 7060553106844083342},
		{"lotus", fromCBOR("lotus"), 10998694778601859716},
		{"libp2p", fromCBOR("libp2p"), 15878333306608412239},
		{"ChainSafe", fromCBOR("ChainSafe"), 17464860692676963753},
		{"haskell", fromCBOR("haskell"), 10392497608425502268},
		{"identity empty", identityLike(t, 0xAB, multihash.IDENTITY, nil), 170},
		{"identity short tail", identityLike(t, 0xAC, multihash.IDENTITY, []byte{1, 2, 3, 4}), 171},
		{"identity one chunk", identityLike(t, 0xAD, multihash.IDENTITY, []byte{1, 2, 3, 4, 5, 6, 7, 8}), 578437695752307371},
	} {
		t.Run(tc.name, func(t *testing.T) {
			want, ok := NewNonMaximalU64(tc.want)
			require.True(t, ok)
			assert.Equal(t, want, Summary(tc.cid))
		})
	}
}

func TestSummary_Undef(t *testing.T) {
	assert.Equal(t, uint64(0), Summary(cid.Undef).Get())
}

func identityLike(t *testing.T, codec, code uint64, digest []byte) cid.Cid {
	t.Helper()
	mh, err := multihash.Encode(digest, code)
	require.NoError(t, err)
	return cid.NewCidV1(codec, mh)
}
