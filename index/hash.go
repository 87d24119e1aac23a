// Package index places content identifiers into fixed-size bucket tables.
//
// A CID is first folded into a 64-bit [Summary]. The summary is then mapped to
// its ideal bucket with [IdealSlotIx], a multiply-high range reduction that
// avoids a division on the lookup path. Summaries never take the value
// math.MaxUint64; bucket tables use that bit pattern to mark empty slots.
//
// Both functions are pure and safe for concurrent use.
package index

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// NonMaximalU64 is a uint64 that is never math.MaxUint64.
//
// The zero value is valid and holds 0.
type NonMaximalU64 struct {
	v uint64
}

// NewNonMaximalU64 returns u as a NonMaximalU64, or false if u is the
// reserved maximum.
func NewNonMaximalU64(u uint64) (NonMaximalU64, bool) {
	if u == math.MaxUint64 {
		return NonMaximalU64{}, false
	}
	return NonMaximalU64{v: u}, true
}

// FitNonMaximalU64 squeezes any uint64 into the non-maximal range with a
// saturating decrement. The mapping is part of the persisted hash scheme and
// must not change.
func FitNonMaximalU64(u uint64) NonMaximalU64 {
	if u == 0 {
		return NonMaximalU64{}
	}
	return NonMaximalU64{v: u - 1}
}

// Get returns the underlying value.
func (n NonMaximalU64) Get() uint64 { return n.v }

// Summary folds a CID's digest into a 64-bit hash.
//
// The accumulator starts as codec XOR multihash code so identical digests
// under different codecs or hash functions land apart. Every complete 8-byte
// little-endian chunk of the digest is XORed in; a trailing partial chunk is
// ignored.
//
// Summary is total: a CID whose multihash cannot be decoded (including
// cid.Undef) contributes only its codec.
func Summary(c cid.Cid) NonMaximalU64 {
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return FitNonMaximalU64(c.Type())
	}
	acc := c.Type() ^ dec.Code
	for d := dec.Digest; len(d) >= 8; d = d[8:] {
		acc ^= binary.LittleEndian.Uint64(d)
	}
	return FitNonMaximalU64(acc)
}

// IdealSlotIx returns the bucket a hash would occupy in a table of numBuckets
// slots, absent collisions.
//
// The hash space is cut into numBuckets contiguous ranges of near-equal width
// and each range maps to one index, so the result is the high word of
// hash*numBuckets. See
// https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/.
//
// numBuckets must be positive; callers own that invariant and IdealSlotIx
// panics if it is violated.
func IdealSlotIx(hash NonMaximalU64, numBuckets int) int {
	if numBuckets <= 0 {
		panic("index: IdealSlotIx called with non-positive bucket count")
	}
	hi, _ := bits.Mul64(hash.v, uint64(numBuckets))
	return int(hi)
}
