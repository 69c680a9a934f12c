// Package storage is the content-addressed store for token metadata.
//
// Objects are addressed by CIDv1 (raw codec, sha1 multihash), the same
// identifiers `ipfs add --hash sha1 --raw-leaves` produces. A token's content
// digest is the sha1 of its metadata bytes, so tokenid.ID.ContentCID names
// the object a token was derived from.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be CIDv1 raw sha1 of the bytes written.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
