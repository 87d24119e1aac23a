package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/cidstore/cidutil"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrReadOnly    = errors.New("storage: read-only store")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Verify checks that data hashes to id. It returns ErrInvalidCID for an
// undefined id and ErrCIDMismatch when the bytes do not match.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	ok, err := cidutil.Matches(id, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if !ok {
		return ErrCIDMismatch
	}
	return nil
}
