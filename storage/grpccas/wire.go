package grpccas

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/cidstore/codec"
	"xdao.co/cidstore/storage"
)

// putRequest is the CBOR payload of a Put call. The CID travels in binary
// form so the server can rebuild it without parsing a multibase string.
type putRequest struct {
	CID  []byte `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

func encodePut(id cid.Cid, data []byte) ([]byte, error) {
	return codec.Marshal(putRequest{CID: id.Bytes(), Data: data})
}

func decodePut(b []byte) (cid.Cid, []byte, error) {
	var req putRequest
	if err := codec.Unmarshal(b, &req); err != nil {
		return cid.Undef, nil, fmt.Errorf("%w: put envelope: %v", storage.ErrInvalidCID, err)
	}
	id, err := cid.Cast(req.CID)
	if err != nil || !id.Defined() {
		return cid.Undef, nil, storage.ErrInvalidCID
	}
	return id, req.Data, nil
}
