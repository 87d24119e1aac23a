package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/cidstore/storage"
)

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Blocks keep their own prefix: codec, hash function and digest length are
//   passed to "ipfs block put" from the CID being stored.
// - Every returned block is re-verified against the requested CID.
//
// Kubo reports CIDv0 blocks as CIDv1 dag-pb; identity is compared on codec
// and multihash so both forms address the same block.
type CAS struct {
	bin string
	env []string
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env}
}

func (c *CAS) Put(id cid.Cid, data []byte) error {
	if err := storage.Verify(id, data); err != nil {
		return err
	}
	args, err := putArgs(id)
	if err != nil {
		return err
	}

	out, err := c.run(data, args...)
	if err != nil {
		return err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !sameBlock(got, id) {
		return storage.ErrCIDMismatch
	}
	return nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

// codecNames maps the codecs this backend stores to their multicodec names,
// as accepted by "ipfs block put --cid-codec".
var codecNames = map[uint64]string{
	cid.Raw:         "raw",
	cid.DagProtobuf: "dag-pb",
	cid.DagCBOR:     "dag-cbor",
	cid.DagJSON:     "dag-json",
	cid.Libp2pKey:   "libp2p-key",
}

// putArgs builds the "ipfs block put" arguments reproducing id's prefix.
func putArgs(id cid.Cid) ([]string, error) {
	p := id.Prefix()
	codec, ok := codecNames[p.Codec]
	if !ok {
		return nil, fmt.Errorf("ipfs: codec 0x%x is not supported", p.Codec)
	}
	mhName, ok := multihash.Codes[p.MhType]
	if !ok {
		return nil, fmt.Errorf("ipfs: multihash 0x%x has no name", p.MhType)
	}
	return []string{
		"block", "put",
		"--quiet",
		"--cid-codec=" + codec,
		"--mhtype=" + mhName,
		"--mhlen=" + strconv.Itoa(p.MhLength),
		"/dev/stdin",
	}, nil
}

func sameBlock(a, b cid.Cid) bool {
	return a.Type() == b.Type() && bytes.Equal(a.Hash(), b.Hash())
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
