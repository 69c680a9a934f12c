package tokenid

import (
	"crypto/sha1"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"xdao.co/calm/cidutil"
)

var (
	creatorA = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	creatorB = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dC79C8")
	metadata = []byte(`{"name":"CALM #0","description":"lazy minted","image":"ipfs://bafkq"}`)
)

// referenceID recomputes the identity the way the JavaScript tooling does:
// hex(sha1) followed by the first 24 hex digits of the binding hash.
func referenceID(t *testing.T, content []byte, creator common.Address) *big.Int {
	t.Helper()
	digest := sha1.Sum(content)

	word := make([]byte, 64)
	copy(word[12:32], digest[:])
	copy(word[44:64], creator.Bytes())
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(word)
	binding := hex.EncodeToString(h.Sum(nil))

	digestHex := new(big.Int).SetBytes(digest[:]).Text(16)
	v, ok := new(big.Int).SetString(digestHex+binding[:24], 16)
	if !ok {
		t.Fatalf("reference id did not parse")
	}
	return v
}

func TestDeriveMatchesReference(t *testing.T) {
	id := Derive(metadata, creatorA)
	want := referenceID(t, metadata, creatorA)
	if id.Big().Cmp(want) != 0 {
		t.Fatalf("Derive mismatch:\n got %s\nwant 0x%064x", id, want)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	a := Derive(metadata, creatorA)
	b := Derive(append([]byte(nil), metadata...), creatorA)
	if a != b {
		t.Fatalf("expected deterministic derivation: %s vs %s", a, b)
	}
}

func TestCreatorBinding(t *testing.T) {
	a := Derive(metadata, creatorA)
	b := Derive(metadata, creatorB)
	if a == b {
		t.Fatalf("different creators must not collide")
	}
	if a.Content() != b.Content() {
		t.Fatalf("content half must not depend on creator")
	}
	if !a.BoundTo(creatorA) {
		t.Fatalf("expected id bound to its creator")
	}
	if a.BoundTo(creatorB) {
		t.Fatalf("id must not verify for another creator")
	}
	if !b.BoundTo(creatorB) {
		t.Fatalf("expected id bound to creator B")
	}
}

func TestDeriveFromCID(t *testing.T) {
	c, err := cidutil.CIDv1RawSHA1(metadata)
	if err != nil {
		t.Fatalf("CIDv1RawSHA1: %v", err)
	}
	id, err := DeriveFromCID(c, creatorA)
	if err != nil {
		t.Fatalf("DeriveFromCID: %v", err)
	}
	if id != Derive(metadata, creatorA) {
		t.Fatalf("cid and content derivations disagree")
	}
	if id.ContentCID() != c {
		t.Fatalf("ContentCID: got %s want %s", id.ContentCID(), c)
	}

	other, err := cidutil.CIDv1RawSHA256CID(metadata)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if _, err := DeriveFromCID(other, creatorA); err == nil {
		t.Fatalf("expected sha2-256 cid to be rejected")
	}
}

func TestParseAcceptsShortAndFullForms(t *testing.T) {
	id := Derive(metadata, creatorA)

	full, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse(full): %v", err)
	}
	if full != id {
		t.Fatalf("full form round trip mismatch")
	}

	short := "0x" + strings.TrimLeft(strings.TrimPrefix(id.String(), "0x"), "0")
	parsed, err := Parse(short)
	if err != nil {
		t.Fatalf("Parse(short): %v", err)
	}
	if parsed != id {
		t.Fatalf("short form round trip mismatch")
	}

	var small ID
	small[Size-1] = 1
	if p, err := Parse("0x1"); err != nil || p != small {
		t.Fatalf("Parse(0x1) = %s, %v", p, err)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("f", 65)} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected Parse(%q) to fail", in)
		}
	}
}

func TestFromBigRange(t *testing.T) {
	if _, err := FromBig(big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative value to be rejected")
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := FromBig(tooBig); err == nil {
		t.Fatalf("expected 2^256 to be rejected")
	}
	max := new(big.Int).Sub(tooBig, big.NewInt(1))
	id, err := FromBig(max)
	if err != nil {
		t.Fatalf("FromBig(max): %v", err)
	}
	if id.Big().Cmp(max) != 0 {
		t.Fatalf("FromBig(max) round trip mismatch")
	}
}

func TestTextMarshaling(t *testing.T) {
	id := Derive(metadata, creatorB)
	b, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var back ID
	if err := back.UnmarshalText(b); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back != id {
		t.Fatalf("text round trip mismatch")
	}
}
