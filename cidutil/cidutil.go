package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// SHA1Size is the length of a sha1 content digest.
const SHA1Size = 20

// CIDv1RawSHA1 returns a CIDv1 using the "raw" multicodec and a sha1 multihash.
//
// This matches `ipfs add --hash sha1 --raw-leaves` for single-block content,
// which is how token metadata is addressed.
func CIDv1RawSHA1(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA1, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// SHA1Digest returns the raw sha1 digest of data, computed through multihash.
func SHA1Digest(data []byte) [SHA1Size]byte {
	var out [SHA1Size]byte
	sum, err := multihash.Sum(data, multihash.SHA1, -1)
	if err != nil {
		// multihash.Sum only errors for unknown codes or invalid lengths.
		panic(err)
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		panic(err)
	}
	copy(out[:], dec.Digest)
	return out
}

// DigestFromCID extracts the sha1 digest carried by id.
// It fails for undefined CIDs and for any hash function other than sha1.
func DigestFromCID(id cid.Cid) ([SHA1Size]byte, error) {
	var out [SHA1Size]byte
	if !id.Defined() {
		return out, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if dec.Code != multihash.SHA1 || len(dec.Digest) != SHA1Size {
		return out, fmt.Errorf("cidutil: cid %s is not sha1-addressed", id)
	}
	copy(out[:], dec.Digest)
	return out, nil
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
