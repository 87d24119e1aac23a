package archive

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/cidstore/index"
	"xdao.co/cidstore/storage"
)

// Verify decodes every frame and re-hashes every block, using up to
// concurrency goroutines (zero selects GOMAXPROCS). It also checks that each
// block is reachable through the index and that the block count matches the
// trailer. The first failure cancels the remaining work.
func (r *Reader) Verify(ctx context.Context, concurrency int) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	offs, err := r.frameOffsets()
	if err != nil {
		return err
	}

	var blocks atomic.Uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, off := range offs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			raw, err := r.readFrame(off)
			if err != nil {
				return err
			}
			return eachRecord(raw, func(id cid.Cid, data []byte) (bool, error) {
				if err := gctx.Err(); err != nil {
					return false, err
				}
				if err := storage.Verify(id, data); err != nil {
					return false, fmt.Errorf("%w: block %s in frame %d: %v", ErrCorrupt, id, off, err)
				}
				if !slices.Contains(r.table.Lookup(index.Summary(id)), off) {
					return false, fmt.Errorf("%w: block %s in frame %d is not indexed", ErrCorrupt, id, off)
				}
				blocks.Add(1)
				return true, nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if got := blocks.Load(); got != r.trailer.Blocks {
		return fmt.Errorf("%w: trailer claims %d blocks, found %d", ErrCorrupt, r.trailer.Blocks, got)
	}
	r.logger.Info("archive verified", "blocks", r.trailer.Blocks, "frames", len(offs))
	return nil
}
