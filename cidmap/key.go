// Package cidmap provides maps and sets keyed by CIDs that store the common
// CID shape without a per-key heap allocation.
//
// A go-cid Cid is a string holding the binary CID, so every key in a
// map[cid.Cid]V is a 16-byte string header plus a separate 38-byte heap
// allocation (a 48-byte size class), 64 bytes in all. Almost every identifier
// a chain node handles is CIDv1, dag-cbor, blake2b-256 with a 32-byte digest;
// for those, [Key] keeps only the digest inline in a 48-byte value and
// allocates nothing. Any other CID is stored as-is next to an unused digest.
//
// Map and Set behave exactly like their map[cid.Cid] counterparts. Neither is
// safe for concurrent mutation.
package cidmap

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"

	"xdao.co/cidstore/cidutil"
)

// DigestSize is the digest length of the inline representation.
const DigestSize = 32

// inlinePrefix is the binary CID prefix shared by every inline key:
// version 1, dag-cbor, blake2b-256, 32-byte digest.
var inlinePrefix = func() string {
	var b []byte
	b = append(b, varint.ToUvarint(1)...)
	b = append(b, varint.ToUvarint(cid.DagCBOR)...)
	b = append(b, varint.ToUvarint(cidutil.Blake2b256)...)
	b = append(b, varint.ToUvarint(DigestSize)...)
	return string(b)
}()

// inlineMark fills Key.full for inline keys. It is itself a canonical CID,
// so KeyOf never stores it as a full CID and the two forms cannot collide.
// All inline keys share its backing string.
var inlineMark = func() cid.Cid {
	c, err := cid.Cast([]byte(inlinePrefix + string(make([]byte, DigestSize))))
	if err != nil {
		panic("cidmap: inline prefix does not decode: " + err.Error())
	}
	return c
}()

// Key is a compact, comparable encoding of a CID.
//
// Canonical CIDs keep their digest inline; every other CID, including
// cid.Undef (the zero Key), is held in full. Two Keys are == exactly when the
// CIDs they encode are equal.
type Key struct {
	digest [DigestSize]byte
	full   cid.Cid
}

// KeyOf encodes c. It never fails.
func KeyOf(c cid.Cid) Key {
	s := c.KeyString()
	if len(s) == len(inlinePrefix)+DigestSize && s[:len(inlinePrefix)] == inlinePrefix {
		k := Key{full: inlineMark}
		copy(k.digest[:], s[len(inlinePrefix):])
		return k
	}
	return Key{full: c}
}

// Cid decodes the key back into the CID it was built from.
func (k Key) Cid() cid.Cid {
	if !k.Inline() {
		return k.full
	}
	b := make([]byte, 0, len(inlinePrefix)+DigestSize)
	b = append(b, inlinePrefix...)
	b = append(b, k.digest[:]...)
	c, err := cid.Cast(b)
	if err != nil {
		// The prefix is a fixed, valid CIDv1 header; this should be unreachable.
		panic("cidmap: inline key does not decode: " + err.Error())
	}
	return c
}

// Inline reports whether the key uses the compact representation.
func (k Key) Inline() bool { return k.full == inlineMark }

// String returns the CID's default string form.
func (k Key) String() string { return k.Cid().String() }
