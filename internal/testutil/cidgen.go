// Package testutil provides property-test generators for CIDs.
package testutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"pgregory.net/rapid"

	"xdao.co/cidstore/cidutil"
)

// CanonicalCID generates CIDv1 dag-cbor/blake2b-256 identifiers with a
// 32-byte digest, the shape almost every chain block has.
func CanonicalCID() *rapid.Generator[cid.Cid] {
	return rapid.Custom(func(t *rapid.T) cid.Cid {
		digest := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "digest")
		return mustV1(cid.DagCBOR, digest, cidutil.Blake2b256)
	})
}

// CID generates identifiers of every shape: canonical, near-canonical
// (one field off), CIDv0, arbitrary v1 and cid.Undef.
func CID() *rapid.Generator[cid.Cid] {
	return rapid.Custom(func(t *rapid.T) cid.Cid {
		switch rapid.IntRange(0, 9).Draw(t, "shape") {
		case 0, 1, 2, 3:
			return CanonicalCID().Draw(t, "canonical")
		case 4:
			// Canonical codec and hash with a non-canonical digest length.
			n := rapid.SampledFrom([]int{0, 8, 20, 31, 33, 64}).Draw(t, "digestLen")
			digest := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "digest")
			return mustV1(cid.DagCBOR, digest, cidutil.Blake2b256)
		case 5:
			// Canonical digest and hash under another codec.
			codec := rapid.SampledFrom([]uint64{cid.Raw, cid.DagProtobuf, cid.DagJSON, 0xAB}).Draw(t, "codec")
			digest := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "digest")
			return mustV1(codec, digest, cidutil.Blake2b256)
		case 6:
			// Canonical codec and digest length under another hash function.
			code := rapid.SampledFrom([]uint64{multihash.SHA2_256, multihash.IDENTITY, multihash.BLAKE2B_MIN + 63}).Draw(t, "code")
			digest := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "digest")
			return mustV1(cid.DagCBOR, digest, code)
		case 7:
			digest := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "digest")
			mh, err := multihash.Encode(digest, multihash.SHA2_256)
			if err != nil {
				t.Fatalf("encode multihash: %v", err)
			}
			return cid.NewCidV0(mh)
		case 8:
			codec := rapid.Uint64Range(0, 1<<20).Draw(t, "codec")
			code := rapid.Uint64Range(0, 1<<20).Draw(t, "code")
			digest := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "digest")
			return mustV1(codec, digest, code)
		default:
			return cid.Undef
		}
	})
}

// Block pairs a CID with the bytes it addresses.
type Block struct {
	CID  cid.Cid
	Data []byte
}

// HashedBlock generates verifiable blocks of up to maxLen bytes, addressed
// either canonically or as raw sha2-256.
func HashedBlock(maxLen int) *rapid.Generator[Block] {
	return rapid.Custom(func(t *rapid.T) Block {
		data := rapid.SliceOfN(rapid.Byte(), 0, maxLen).Draw(t, "data")
		if rapid.Bool().Draw(t, "canonical") {
			return Block{CID: cidutil.CIDv1DagCBORBlake2b256(data), Data: data}
		}
		id, err := cidutil.CIDv1RawSHA256CID(data)
		if err != nil {
			t.Fatalf("raw cid: %v", err)
		}
		return Block{CID: id, Data: data}
	})
}

func mustV1(codec uint64, digest []byte, code uint64) cid.Cid {
	mh, err := multihash.Encode(digest, code)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(codec, mh)
}
