package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"xdao.co/cidstore/archive"
	"xdao.co/cidstore/cidutil"
	"xdao.co/cidstore/index"
	"xdao.co/cidstore/logging"
	"xdao.co/cidstore/storage"
	"xdao.co/cidstore/storage/casconfig"
	"xdao.co/cidstore/storage/casregistry"
	"xdao.co/cidstore/storage/localfs"

	_ "xdao.co/cidstore/storage/grpccas"
	_ "xdao.co/cidstore/storage/ipfs"
	_ "xdao.co/cidstore/storage/memory"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "has":
		return cmdHas(args[1:], out, errOut)
	case "summary":
		return cmdSummary(args[1:], out, errOut)
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cidstore: content-addressed block store tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cidstore put --backend localfs --localfs-dir <dir> [--codec dag-cbor|raw] <file>")
	fmt.Fprintln(w, "  cidstore get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cidstore has --backend archive --archive-path <file> --cid <cid>")
	fmt.Fprintln(w, "  cidstore summary [--buckets <n>] <cid>...")
	fmt.Fprintln(w, "  cidstore archive build --out <file> [--compression zstd|lz4|none] [--from-dir <dir>] [<file>...]")
	fmt.Fprintln(w, "  cidstore archive verify [--concurrency <n>] <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Any command taking --backend also accepts --config <yaml> to open several")
	fmt.Fprintln(w, "backends at once (see storage/casconfig).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - grpc backend talks to cidstored (or any CAS gRPC server)")
	fmt.Fprintln(w, "  - archive backend is read-only")
}

type commonFlags struct {
	backend      string
	config       string
	listBackends bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name")
	fs.StringVar(&c.config, "config", "", "YAML backend configuration (overrides --backend)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	if c.config != "" {
		cfg, err := casconfig.LoadFile(c.config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageCLI, "")
	}
	return casregistry.Open(c.backend, casregistry.UsageCLI)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func newFlagSet(name string, errOut io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	return fs
}

// blockID addresses data under the named codec.
func blockID(codec string, data []byte) (cid.Cid, error) {
	switch codec {
	case "dag-cbor":
		return cidutil.CIDv1DagCBORBlake2b256(data), nil
	case "raw":
		return cidutil.CIDv1RawSHA256CID(data)
	default:
		return cid.Undef, fmt.Errorf("unknown --codec %q (want dag-cbor or raw)", codec)
	}
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("put", errOut)
	var common commonFlags
	common.add(fs)
	codec := fs.String("codec", "dag-cbor", "CID codec for the block: dag-cbor (blake2b-256) or raw (sha2-256)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cidstore put [common flags] <file>")
		return 2
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := blockID(*codec, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	if err := cas.Put(id, b); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("get", errOut)
	var common commonFlags
	common.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cidstore get [common flags] --cid <cid> [--out <file>]")
		return 2
	}
	id, err := cid.Decode(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

// cmdHas exits 0 when the block is present and 1 when it is not.
func cmdHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("has", errOut)
	var common commonFlags
	common.add(fs)
	cidStr := fs.String("cid", "", "CID to look up")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cidstore has [common flags] --cid <cid>")
		return 2
	}
	id, err := cid.Decode(*cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	if !cas.Has(id) {
		_, _ = fmt.Fprintln(out, "absent")
		return 1
	}
	_, _ = fmt.Fprintln(out, "present")
	return 0
}

// cmdSummary prints the index summary of each CID, and its ideal bucket when
// --buckets is set.
func cmdSummary(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("summary", errOut)
	buckets := fs.Int("buckets", 0, "Also print the ideal slot in a table of this many buckets")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 || *buckets < 0 {
		fmt.Fprintln(errOut, "usage: cidstore summary [--buckets <n>] <cid>...")
		return 2
	}

	for _, s := range fs.Args() {
		id, err := cid.Decode(s)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", s, storage.ErrInvalidCID)
			return 1
		}
		h := index.Summary(id)
		if *buckets == 0 {
			_, _ = fmt.Fprintf(out, "%s\t%d\n", s, h.Get())
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\t%d\t%d\n", s, h.Get(), index.IdealSlotIx(h, *buckets))
	}
	return 0
}

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: cidstore archive build|verify ...")
		return 2
	}
	switch args[0] {
	case "build":
		return cmdArchiveBuild(args[1:], out, errOut)
	case "verify":
		return cmdArchiveVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown archive command: %s\n", args[0])
		return 2
	}
}

func cmdArchiveBuild(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("archive build", errOut)
	outPath := fs.String("out", "", "Archive file to create")
	fromDir := fs.String("from-dir", "", "Copy every block of this localfs directory")
	codec := fs.String("codec", "dag-cbor", "CID codec for file arguments: dag-cbor or raw")
	frameSize := fs.Int("frame-size", archive.DefaultFrameSize, "Uncompressed bytes per frame")
	loadFactor := fs.Float64("load-factor", 0, "Index load factor in [0.01, 1]; 0 uses the default")
	verbose := fs.BoolP("verbose", "v", false, "Log each frame")
	compression := archive.CompressionZstd
	fs.Var(&compression, "compression", "Frame compression: zstd, lz4 or none")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *outPath == "" || (*fromDir == "" && fs.NArg() == 0) {
		fmt.Fprintln(errOut, "usage: cidstore archive build --out <file> [--from-dir <dir>] [<file>...]")
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewTextLogger(errOut, level)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(*outPath)
		}
	}()

	w, err := archive.NewWriter(f, archive.WriterOptions{
		Compression: compression,
		FrameSize:   *frameSize,
		LoadFactor:  *loadFactor,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if *fromDir != "" {
		src, err := localfs.New(*fromDir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if _, err := archive.Copy(w, src); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	for _, p := range fs.Args() {
		b, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
			return 1
		}
		id, err := blockID(*codec, b)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		if err := w.Put(id, b); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", id, p)
	}

	if err := w.Close(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	ok = true
	return 0
}

func cmdArchiveVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := newFlagSet("archive verify", errOut)
	concurrency := fs.Int("concurrency", runtime.GOMAXPROCS(0), "Frames verified in parallel")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cidstore archive verify [--concurrency <n>] <file>")
		return 2
	}

	r, err := archive.Open(fs.Arg(0), archive.ReaderOptions{})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer r.Close()

	if err := r.Verify(context.Background(), *concurrency); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "ok\t%d blocks\t%d frames\n", r.Len(), r.Frames())
	return 0
}
