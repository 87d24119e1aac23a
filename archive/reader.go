package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/cidstore/index"
	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/metrics"
	"xdao.co/cidstore/storage"
)

type ReaderOptions struct {
	Metrics metrics.Collector
	Logger  *logging.Logger
}

// Reader serves blocks from an archive. It implements storage.CAS; Put always
// fails with storage.ErrReadOnly. A Reader is safe for concurrent use.
type Reader struct {
	r       io.ReaderAt
	closer  io.Closer
	table   *index.Table
	trailer trailer
	metrics metrics.Collector
	logger  *logging.Logger
	closed  atomic.Bool
}

var _ storage.CAS = (*Reader)(nil)

// NewReader opens the archive held in the first size bytes of r. The index is
// loaded into memory and checked against the trailer checksum.
func NewReader(r io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if size < int64(headerSize+trailerSize) {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, size)
	}

	var magic [headerSize]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return nil, fmt.Errorf("archive: read header: %w", err)
	}
	if magic != headerMagic {
		return nil, fmt.Errorf("%w: bad header magic", ErrCorrupt)
	}

	var t trailer
	tr := io.NewSectionReader(r, size-int64(trailerSize), int64(trailerSize))
	if err := binary.Read(tr, binary.LittleEndian, &t); err != nil {
		return nil, fmt.Errorf("archive: read trailer: %w", err)
	}
	if t.Magic != trailerMagic {
		return nil, fmt.Errorf("%w: bad trailer magic", ErrCorrupt)
	}
	// size >= headerSize+trailerSize, so neither subtraction wraps.
	body := uint64(size) - uint64(trailerSize)
	if t.IndexLen > body-uint64(headerSize) || t.IndexOffset != body-t.IndexLen {
		return nil, fmt.Errorf("%w: index at %d+%d does not fit %d bytes", ErrCorrupt, t.IndexOffset, t.IndexLen, size)
	}

	raw := make([]byte, t.IndexLen)
	if _, err := r.ReadAt(raw, int64(t.IndexOffset)); err != nil {
		return nil, fmt.Errorf("archive: read index: %w", err)
	}
	if t.checksum(raw) != t.Checksum {
		return nil, fmt.Errorf("%w: index checksum mismatch", ErrCorrupt)
	}
	table, err := index.ReadTable(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Reader{
		r:       r,
		table:   table,
		trailer: t,
		metrics: metrics.OrNoop(opts.Metrics),
		logger:  logging.OrNoop(opts.Logger),
	}, nil
}

// Open opens the archive file at path. Close releases the file.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rd, err := NewReader(f, st.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("archive: %s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Len returns the number of blocks in the archive.
func (r *Reader) Len() int { return int(r.trailer.Blocks) }

// Frames returns the number of frames in the archive.
func (r *Reader) Frames() int { return int(r.trailer.Frames) }

func (r *Reader) Put(cid.Cid, []byte) error { return storage.ErrReadOnly }

func (r *Reader) Get(id cid.Cid) ([]byte, error) {
	start := time.Now()
	data, err := r.get(id)
	r.metrics.RecordGet(time.Since(start), len(data), err)
	return data, err
}

func (r *Reader) get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if r.closed.Load() {
		return nil, ErrClosed
	}
	data, found, err := r.locate(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	if err := storage.Verify(id, data); err != nil {
		return nil, fmt.Errorf("%w: block %s: %v", ErrCorrupt, id, err)
	}
	return data, nil
}

func (r *Reader) Has(id cid.Cid) bool {
	if !id.Defined() || r.closed.Load() {
		return false
	}
	start := time.Now()
	_, found, err := r.locate(id)
	if err != nil {
		r.logger.WithCID(id).Warn("archive lookup failed", "error", err)
	}
	r.metrics.RecordHas(time.Since(start), found)
	return found
}

// locate probes every candidate frame whose summary matches id and returns
// the record whose CID equals id.
func (r *Reader) locate(id cid.Cid) ([]byte, bool, error) {
	candidates := r.table.Lookup(index.Summary(id))
	for _, off := range candidates {
		raw, err := r.readFrame(off)
		if err != nil {
			return nil, false, err
		}
		data, ok, err := findRecord(raw, id)
		if err != nil {
			return nil, false, err
		}
		if ok {
			r.metrics.RecordLookup(len(candidates), true)
			return data, true, nil
		}
	}
	r.metrics.RecordLookup(len(candidates), false)
	return nil, false, nil
}

// readFrame decodes the frame starting at off.
func (r *Reader) readFrame(off uint64) ([]byte, error) {
	end := r.trailer.IndexOffset
	if off < uint64(headerSize) || off >= end {
		return nil, fmt.Errorf("%w: frame offset %d outside data section", ErrCorrupt, off)
	}

	hdr := make([]byte, min(uint64(frameHeaderMax), end-off))
	if _, err := r.r.ReadAt(hdr, int64(off)); err != nil {
		return nil, fmt.Errorf("archive: read frame at %d: %w", off, err)
	}
	tag, rawLen, payloadLen, n, err := parseFrameHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("frame at %d: %w", off, err)
	}
	start := off + uint64(n)
	next := start + uint64(payloadLen)
	if next > end {
		return nil, fmt.Errorf("%w: frame at %d overruns data section", ErrCorrupt, off)
	}

	payload := make([]byte, payloadLen)
	if _, err := r.r.ReadAt(payload, int64(start)); err != nil {
		return nil, fmt.Errorf("archive: read frame at %d: %w", off, err)
	}
	raw, err := decompressFrame(payload, tag, rawLen)
	if err != nil {
		return nil, fmt.Errorf("frame at %d: %w", off, err)
	}
	return raw, nil
}

// frameOffsets walks frame headers from the start of the data section.
func (r *Reader) frameOffsets() ([]uint64, error) {
	var offs []uint64
	end := r.trailer.IndexOffset
	for off := uint64(headerSize); off < end; {
		hdr := make([]byte, min(uint64(frameHeaderMax), end-off))
		if _, err := r.r.ReadAt(hdr, int64(off)); err != nil {
			return nil, fmt.Errorf("archive: read frame at %d: %w", off, err)
		}
		_, _, payloadLen, n, err := parseFrameHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("frame at %d: %w", off, err)
		}
		offs = append(offs, off)
		off += uint64(n) + uint64(payloadLen)
		if off > end {
			return nil, fmt.Errorf("%w: frame overruns data section", ErrCorrupt)
		}
	}
	if uint64(len(offs)) != r.trailer.Frames {
		return nil, fmt.Errorf("%w: trailer claims %d frames, found %d", ErrCorrupt, r.trailer.Frames, len(offs))
	}
	return offs, nil
}

// ForEach calls fn for every block in file order. data is only valid for the
// duration of the call.
func (r *Reader) ForEach(fn func(id cid.Cid, data []byte) error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	offs, err := r.frameOffsets()
	if err != nil {
		return err
	}
	for _, off := range offs {
		raw, err := r.readFrame(off)
		if err != nil {
			return err
		}
		err = eachRecord(raw, func(id cid.Cid, data []byte) (bool, error) {
			return true, fn(id, data)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
