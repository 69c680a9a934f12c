package testkit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/storage"
	"xdao.co/calm/tokenid"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte(`{"name":"Sunrise","image":"ipfs://sunrise.png"}`)

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA1(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA1 failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}

		gotID, err := cidutil.CIDv1RawSHA1(got)
		if err != nil {
			t.Fatalf("CIDv1RawSHA1(got) failed: %v", err)
		}
		if gotID != id {
			t.Fatalf("Get returned bytes not matching requested CID")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA1(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA1 failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		_, err = cas.Put(b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("RejectNonSHA1CID", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("sha256 addressed")
		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		other, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if cas.Has(other) {
			t.Fatalf("Has should be false for a sha256 CID")
		}
		if _, err := cas.Get(other); !errors.Is(err, storage.ErrInvalidCID) {
			t.Fatalf("Get sha256 CID: got err=%v want ErrInvalidCID", err)
		}
	})

	t.Run("TokenContentCIDResolves", func(t *testing.T) {
		cas := newCAS(t)
		metadata := []byte(`{"name":"Dawn"}`)
		id, err := cas.Put(metadata)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		creator := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
		tok := tokenid.Derive(metadata, creator)
		if tok.ContentCID() != id {
			t.Fatalf("token content CID %s does not match stored %s", tok.ContentCID(), id)
		}
		got, err := cas.Get(tok.ContentCID())
		if err != nil {
			t.Fatalf("Get by token content CID failed: %v", err)
		}
		if !bytes.Equal(got, metadata) {
			t.Fatalf("Get bytes mismatch")
		}
	})
}
