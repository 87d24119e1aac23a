package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// emptySlot marks an unoccupied slot. No summary can take this value.
const emptySlot = math.MaxUint64

// DefaultLoadFactor is the occupancy Build targets when none is given.
const DefaultLoadFactor = 0.8

// MinLoadFactor is the smallest load factor Build accepts.
const MinLoadFactor = 0.01

// maxPrealloc bounds the slots ReadTable reserves before they are read.
const maxPrealloc = 1 << 16

// ErrCorruptTable is returned when a serialized table is malformed.
var ErrCorruptTable = errors.New("index: corrupt table")

// Entry associates a CID summary with the offset of the frame holding the
// block.
type Entry struct {
	Hash   NonMaximalU64
	Offset uint64
}

type slot struct {
	hash   uint64
	offset uint64
}

// Table is an immutable open-addressing bucket table of entries.
//
// Entries start at IdealSlotIx of their hash and probe linearly (wrapping) to
// the next empty slot. A table always keeps at least one empty slot, so every
// probe sequence terminates. Several entries may share a hash; Lookup returns
// all of their offsets and the caller decides identity.
type Table struct {
	slots   []slot
	entries int
}

// Build constructs a table for entries. loadFactor must be in
// [MinLoadFactor, 1]; zero selects DefaultLoadFactor. Duplicate
// (hash, offset) pairs are stored once.
func Build(entries []Entry, loadFactor float64) (*Table, error) {
	if loadFactor == 0 {
		loadFactor = DefaultLoadFactor
	}
	if !(loadFactor >= MinLoadFactor && loadFactor <= 1) {
		return nil, fmt.Errorf("index: load factor %v out of range [%v, 1]", loadFactor, MinLoadFactor)
	}

	numBuckets := int(math.Ceil(float64(len(entries)) / loadFactor))
	if numBuckets <= len(entries) {
		numBuckets = len(entries) + 1
	}

	t := &Table{slots: make([]slot, numBuckets)}
	for i := range t.slots {
		t.slots[i].hash = emptySlot
	}

	for _, e := range entries {
		t.insert(e)
	}
	return t, nil
}

func (t *Table) insert(e Entry) {
	n := len(t.slots)
	for i := IdealSlotIx(e.Hash, n); ; i = (i + 1) % n {
		s := &t.slots[i]
		switch {
		case s.hash == emptySlot:
			s.hash = e.Hash.Get()
			s.offset = e.Offset
			t.entries++
			return
		case s.hash == e.Hash.Get() && s.offset == e.Offset:
			return
		}
	}
}

// Lookup returns the offsets of every entry whose hash equals hash, in probe
// order. The result is nil when there are none.
func (t *Table) Lookup(hash NonMaximalU64) []uint64 {
	n := len(t.slots)
	if n == 0 {
		return nil
	}
	var out []uint64
	for i, probed := IdealSlotIx(hash, n), 0; probed < n; i, probed = (i+1)%n, probed+1 {
		s := t.slots[i]
		if s.hash == emptySlot {
			break
		}
		if s.hash == hash.Get() {
			out = append(out, s.offset)
		}
	}
	return out
}

// Len returns the number of stored entries.
func (t *Table) Len() int { return t.entries }

// NumBuckets returns the number of slots, occupied or not.
func (t *Table) NumBuckets() int { return len(t.slots) }

// tableHeader precedes the slot array in the serialized form.
type tableHeader struct {
	Magic      [8]byte
	NumBuckets uint64
	Entries    uint64
}

var tableMagic = [8]byte{'c', 'i', 'd', 'x', 't', 'b', 'l', '1'}

// WriteTo serializes the table as a little-endian header followed by
// (hash, offset) pairs for every slot.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	hdr := tableHeader{Magic: tableMagic, NumBuckets: uint64(len(t.slots)), Entries: uint64(t.entries)}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return 0, err
	}
	written := int64(binary.Size(&hdr))

	buf := make([]byte, 16)
	for _, s := range t.slots {
		binary.LittleEndian.PutUint64(buf[:8], s.hash)
		binary.LittleEndian.PutUint64(buf[8:], s.offset)
		n, err := w.Write(buf)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadTable decodes a table written by WriteTo.
func ReadTable(r io.Reader) (*Table, error) {
	var hdr tableHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptTable, err)
	}
	if hdr.Magic != tableMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptTable)
	}
	if hdr.NumBuckets == 0 || hdr.Entries >= hdr.NumBuckets || hdr.NumBuckets > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d entries in %d buckets", ErrCorruptTable, hdr.Entries, hdr.NumBuckets)
	}

	// Readers that know their remaining length reject a short table up front.
	if lr, ok := r.(interface{ Len() int }); ok && uint64(lr.Len())/16 < hdr.NumBuckets {
		return nil, fmt.Errorf("%w: %d buckets in %d bytes", ErrCorruptTable, hdr.NumBuckets, lr.Len())
	}

	t := &Table{slots: make([]slot, 0, min(hdr.NumBuckets, maxPrealloc))}
	buf := make([]byte, 16)
	for i := uint64(0); i < hdr.NumBuckets; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrCorruptTable, i, err)
		}
		s := slot{
			hash:   binary.LittleEndian.Uint64(buf[:8]),
			offset: binary.LittleEndian.Uint64(buf[8:]),
		}
		if s.hash != emptySlot {
			t.entries++
		}
		t.slots = append(t.slots, s)
	}
	if uint64(t.entries) != hdr.Entries {
		return nil, fmt.Errorf("%w: header claims %d entries, found %d", ErrCorruptTable, hdr.Entries, t.entries)
	}
	return t, nil
}
