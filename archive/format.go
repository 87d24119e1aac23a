package archive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-varint"
	"github.com/zeebo/blake3"
)

var (
	// ErrCorrupt is returned when an archive does not decode or a block does
	// not hash to its CID.
	ErrCorrupt = errors.New("archive: corrupt")
	// ErrClosed is returned by operations on a closed Reader or Writer.
	ErrClosed = errors.New("archive: closed")
)

var (
	headerMagic  = [8]byte{'C', 'I', 'D', 'X', 'A', 'R', 'C', '1'}
	trailerMagic = [8]byte{'C', 'I', 'D', 'X', 'E', 'N', 'D', '1'}
)

const headerSize = len(headerMagic)

// maxFrameLen bounds the decoded size of one frame.
const maxFrameLen = 1 << 30

type trailer struct {
	IndexOffset uint64
	IndexLen    uint64
	Blocks      uint64
	Frames      uint64
	Checksum    [32]byte
	Magic       [8]byte
}

var trailerSize = binary.Size(trailer{})

// checksum covers the index bytes and every trailer field before Checksum.
func (t *trailer) checksum(index []byte) [32]byte {
	h := blake3.New()
	_, _ = h.Write(index)
	var b [32]byte
	binary.LittleEndian.PutUint64(b[0:], t.IndexOffset)
	binary.LittleEndian.PutUint64(b[8:], t.IndexLen)
	binary.LittleEndian.PutUint64(b[16:], t.Blocks)
	binary.LittleEndian.PutUint64(b[24:], t.Frames)
	_, _ = h.Write(b[:])
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// frameHeaderMax is the longest possible frame header: tag plus two uvarints.
const frameHeaderMax = 1 + 2*varint.MaxLenUvarint63

func appendFrameHeader(dst []byte, c Compression, rawLen, payloadLen int) []byte {
	dst = append(dst, byte(c))
	dst = append(dst, varint.ToUvarint(uint64(rawLen))...)
	return append(dst, varint.ToUvarint(uint64(payloadLen))...)
}

// parseFrameHeader decodes the header at the start of b and returns the
// header length.
func parseFrameHeader(b []byte) (c Compression, rawLen, payloadLen, n int, err error) {
	if len(b) < 1 {
		return 0, 0, 0, 0, fmt.Errorf("%w: truncated frame header", ErrCorrupt)
	}
	c = Compression(b[0])
	n = 1
	raw, k, err := varint.FromUvarint(b[n:])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("%w: frame length: %v", ErrCorrupt, err)
	}
	n += k
	payload, k, err := varint.FromUvarint(b[n:])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("%w: frame payload length: %v", ErrCorrupt, err)
	}
	n += k
	if raw > maxFrameLen || payload > maxFrameLen {
		return 0, 0, 0, 0, fmt.Errorf("%w: frame of %d/%d bytes exceeds limit", ErrCorrupt, raw, payload)
	}
	return c, int(raw), int(payload), n, nil
}

func appendRecord(dst []byte, id cid.Cid, data []byte) []byte {
	idb := id.Bytes()
	dst = append(dst, varint.ToUvarint(uint64(len(idb)+len(data)))...)
	dst = append(dst, idb...)
	return append(dst, data...)
}

// eachRecord calls fn for every record of a decoded frame. data aliases raw.
func eachRecord(raw []byte, fn func(id cid.Cid, data []byte) (bool, error)) error {
	for len(raw) > 0 {
		size, n, err := varint.FromUvarint(raw)
		if err != nil {
			return fmt.Errorf("%w: record length: %v", ErrCorrupt, err)
		}
		raw = raw[n:]
		if size > uint64(len(raw)) {
			return fmt.Errorf("%w: record of %d bytes overruns frame", ErrCorrupt, size)
		}
		rec := raw[:size]
		raw = raw[size:]

		k, id, err := cid.CidFromBytes(rec)
		if err != nil {
			return fmt.Errorf("%w: record cid: %v", ErrCorrupt, err)
		}
		more, err := fn(id, rec[k:])
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// findRecord returns the data of the record for id in raw, if any.
func findRecord(raw []byte, id cid.Cid) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := eachRecord(raw, func(got cid.Cid, data []byte) (bool, error) {
		if got.Equals(id) {
			out, found = data, true
			return false, nil
		}
		return true, nil
	})
	return out, found, err
}
