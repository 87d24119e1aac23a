package archive

import (
	"github.com/ipfs/go-cid"
)

// Source is a block store that can enumerate its contents, such as
// memory.CAS, localfs.CAS or another Reader.
type Source interface {
	ForEach(fn func(id cid.Cid, data []byte) error) error
}

// Copy adds every block of src to w and returns the number of blocks seen.
func Copy(w *Writer, src Source) (int, error) {
	n := 0
	err := src.ForEach(func(id cid.Cid, data []byte) error {
		n++
		return w.Put(id, data)
	})
	return n, err
}
