package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"

	"xdao.co/cidstore/codec"
)

// Blake2b256 is the multihash code of blake2b with a 32-byte digest (0xb220).
const Blake2b256 = multihash.BLAKE2B_MIN + 31

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// CIDv1DagCBORBlake2b256 returns the CIDv1 (dag-cbor + blake2b-256) of data.
// This is the shape of nearly every block a chain node stores.
func CIDv1DagCBORBlake2b256(data []byte) cid.Cid {
	sum := blake2b.Sum256(data)
	mh, err := multihash.Encode(sum[:], Blake2b256)
	if err != nil {
		// multihash.Encode only prefixes varints; this should be unreachable.
		return cid.Undef
	}
	return cid.NewCidV1(cid.DagCBOR, mh)
}

// FromCBORBlake2b256 encodes v as deterministic CBOR and returns the CID of
// the encoded bytes together with the bytes themselves.
func FromCBORBlake2b256(v any) (cid.Cid, []byte, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return cid.Undef, nil, err
	}
	return CIDv1DagCBORBlake2b256(b), b, nil
}

// Matches reports whether data hashes to id under id's own prefix
// (version, codec, multihash type and length).
//
// An error is returned only when the prefix cannot be used to hash data, for
// example an unregistered multihash code.
func Matches(id cid.Cid, data []byte) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return false, err
	}
	return got.Equals(id), nil
}
