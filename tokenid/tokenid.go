package tokenid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/calm/cidutil"
)

// Size is the byte length of an ID (uint256).
const Size = 32

// TagSize is the number of low-order bytes binding an ID to its creator.
const TagSize = Size - cidutil.SHA1Size

// ID is a content identity: a uint256 stored big-endian.
//
// The upper 160 bits are sha1(content); the lower 96 bits are the first
// 12 bytes of keccak256(abi.encode(uint160 digest, address creator)).
type ID [Size]byte

var bindingArgs = abi.Arguments{
	{Name: "digest", Type: mustType("uint160")},
	{Name: "creator", Type: mustType("address")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Derive computes the identity of content minted by creator.
func Derive(content []byte, creator common.Address) ID {
	return FromDigest(cidutil.SHA1Digest(content), creator)
}

// DeriveFromCID computes the identity from a sha1-addressed CID without the content bytes.
func DeriveFromCID(id cid.Cid, creator common.Address) (ID, error) {
	d, err := cidutil.DigestFromCID(id)
	if err != nil {
		return ID{}, err
	}
	return FromDigest(d, creator), nil
}

// FromDigest assembles an ID from a sha1 content digest and a creator.
func FromDigest(digest [cidutil.SHA1Size]byte, creator common.Address) ID {
	var id ID
	copy(id[:cidutil.SHA1Size], digest[:])
	tag := creatorTag(digest, creator)
	copy(id[cidutil.SHA1Size:], tag[:])
	return id
}

func creatorTag(digest [cidutil.SHA1Size]byte, creator common.Address) [TagSize]byte {
	enc, err := bindingArgs.Pack(new(big.Int).SetBytes(digest[:]), creator)
	if err != nil {
		// Both arguments are fixed-size and always in range.
		panic(err)
	}
	var tag [TagSize]byte
	copy(tag[:], crypto.Keccak256(enc)[:TagSize])
	return tag
}

// Content returns the sha1 digest carried in the upper 160 bits.
func (id ID) Content() [cidutil.SHA1Size]byte {
	var d [cidutil.SHA1Size]byte
	copy(d[:], id[:cidutil.SHA1Size])
	return d
}

// Tag returns the creator-binding low 96 bits.
func (id ID) Tag() [TagSize]byte {
	var t [TagSize]byte
	copy(t[:], id[cidutil.SHA1Size:])
	return t
}

// BoundTo reports whether id was derived for creator.
func (id ID) BoundTo(creator common.Address) bool {
	return creatorTag(id.Content(), creator) == id.Tag()
}

// ContentCID returns the CIDv1 raw sha1 address of the content behind id.
func (id ID) ContentCID() cid.Cid {
	d := id.Content()
	mh, err := multihash.Encode(d[:], multihash.SHA1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh)
}

func (id ID) Big() *big.Int { return new(big.Int).SetBytes(id[:]) }

func (id ID) IsZero() bool { return id == ID{} }

// String returns the 0x-prefixed, zero-padded 64 digit hex form.
func (id ID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// FromBig converts a uint256 value into an ID.
func FromBig(v *big.Int) (ID, error) {
	var id ID
	if v == nil || v.Sign() < 0 {
		return id, errors.New("tokenid: negative or missing value")
	}
	if v.BitLen() > Size*8 {
		return id, fmt.Errorf("tokenid: value exceeds %d bits", Size*8)
	}
	v.FillBytes(id[:])
	return id, nil
}

// Parse accepts a hex string with or without 0x, of up to 64 digits.
//
// Short forms are accepted because JavaScript tooling renders the digest
// half without leading zeros before appending the tag.
func Parse(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" || len(s) > Size*2 {
		return ID{}, fmt.Errorf("tokenid: invalid hex length %d", len(s))
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return ID{}, fmt.Errorf("tokenid: invalid hex %q", s)
	}
	return FromBig(v)
}

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
