package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"

	"xdao.co/cidstore/cidmap"
	"xdao.co/cidstore/index"
	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/storage"
)

// DefaultFrameSize is the uncompressed size at which a frame is closed.
const DefaultFrameSize = 256 << 10

type WriterOptions struct {
	// Compression applies to every frame; incompressible frames are stored
	// as-is.
	Compression Compression
	// FrameSize closes a frame once its records reach this many bytes. A
	// block larger than FrameSize gets a frame of its own. Zero selects
	// DefaultFrameSize.
	FrameSize int
	// LoadFactor is passed to index.Build.
	LoadFactor float64
	// Logger receives per-frame debug records. Nil discards.
	Logger *logging.Logger
}

// Writer appends blocks to an archive. Blocks are buffered into frames; the
// index and trailer are written by Close. A Writer is not safe for concurrent
// use.
type Writer struct {
	w    io.Writer
	opts WriterOptions

	off     uint64
	pending []byte
	summary []index.NonMaximalU64 // of blocks in pending
	entries []index.Entry
	seen    cidmap.Set
	frames  uint64
	closed  bool
}

// NewWriter writes the archive header to w. The caller owns w and closes it
// after Close returns.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.FrameSize <= 0 {
		opts.FrameSize = DefaultFrameSize
	}
	opts.Logger = logging.OrNoop(opts.Logger)
	if _, err := w.Write(headerMagic[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w, opts: opts, off: uint64(headerSize)}, nil
}

// Put adds a block. The bytes are verified against id. Adding a CID a second
// time is a no-op.
func (w *Writer) Put(id cid.Cid, data []byte) error {
	if w.closed {
		return ErrClosed
	}
	if err := storage.Verify(id, data); err != nil {
		return err
	}
	if !w.seen.Insert(id) {
		return nil
	}
	w.pending = appendRecord(w.pending, id, data)
	w.summary = append(w.summary, index.Summary(id))
	if len(w.pending) >= w.opts.FrameSize {
		return w.Flush()
	}
	return nil
}

// Len returns the number of distinct blocks added so far.
func (w *Writer) Len() int { return w.seen.Len() }

// Flush closes the current frame, if any.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if len(w.pending) == 0 {
		return nil
	}
	if len(w.pending) > maxFrameLen {
		return fmt.Errorf("archive: frame of %d bytes exceeds limit", len(w.pending))
	}

	payload, tag, err := compressFrame(w.pending, w.opts.Compression)
	if err != nil {
		return err
	}
	hdr := appendFrameHeader(make([]byte, 0, frameHeaderMax), tag, len(w.pending), len(payload))
	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}

	for _, h := range w.summary {
		w.entries = append(w.entries, index.Entry{Hash: h, Offset: w.off})
	}
	w.opts.Logger.Debug("archive frame written",
		"offset", w.off,
		"blocks", len(w.summary),
		"raw_bytes", len(w.pending),
		"stored_bytes", len(payload),
		"compression", tag.String(),
	)

	w.off += uint64(len(hdr) + len(payload))
	w.frames++
	w.pending = w.pending[:0]
	w.summary = w.summary[:0]
	return nil
}

// Close flushes the last frame and writes the index and trailer.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true

	table, err := index.Build(w.entries, w.opts.LoadFactor)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := table.WriteTo(&buf); err != nil {
		return err
	}
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}

	t := trailer{
		IndexOffset: w.off,
		IndexLen:    uint64(buf.Len()),
		Blocks:      uint64(w.seen.Len()),
		Frames:      w.frames,
		Magic:       trailerMagic,
	}
	t.Checksum = t.checksum(buf.Bytes())
	if err := binary.Write(w.w, binary.LittleEndian, &t); err != nil {
		return err
	}
	w.opts.Logger.Info("archive written",
		"blocks", t.Blocks,
		"frames", t.Frames,
		"buckets", table.NumBuckets(),
		"bytes", t.IndexOffset+t.IndexLen+uint64(trailerSize),
	)
	return nil
}
