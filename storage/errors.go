package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
)

// Metadata stores report these; match them with errors.Is.
var (
	// ErrNotFound means no metadata object is stored under the CID.
	ErrNotFound = errors.New("storage: metadata not found")
	// ErrInvalidCID means the CID cannot name token content: it is undefined
	// or not a CIDv1 raw sha1 identifier.
	ErrInvalidCID = errors.New("storage: invalid metadata cid")
	// ErrCIDMismatch means bytes do not hash to the CID they were stored or
	// read under.
	ErrCIDMismatch = errors.New("storage: metadata does not match cid")
	// ErrImmutable means a write would replace metadata a token may already
	// be derived from.
	ErrImmutable = errors.New("storage: metadata is immutable")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CheckCID returns ErrInvalidCID unless id has the shape of a token content
// CID (CIDv1, raw codec, sha1 multihash).
func CheckCID(id cid.Cid) error {
	if !id.Defined() || id.Version() != 1 || id.Type() != cid.Raw {
		return ErrInvalidCID
	}
	if _, err := cidutil.DigestFromCID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return nil
}
