// Package archive stores blocks in a single immutable file with a hashed
// bucket index, so a block can be located without scanning.
//
// Layout, all integers little-endian unless noted:
//
//	header   "CIDXARC1"
//	frames   repeated: tag u8 | uvarint rawLen | uvarint payloadLen | payload
//	index    index.Table as written by Table.WriteTo
//	trailer  indexOffset u64 | indexLen u64 | blocks u64 | frames u64 |
//	         blake3(index | first four trailer fields) [32]byte | "CIDXEND1"
//
// A frame payload decompresses to rawLen bytes holding consecutive records
// of the form uvarint(len(cid)+len(data)) | cid | data. Each block gets one
// index entry: the Summary of its CID and the offset of its frame. Since
// summaries collide, a lookup yields candidate frames and the reader
// confirms the block by comparing full CIDs.
package archive
