package bundle_test

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/storage"
	"xdao.co/calm/storage/bundle"
	"xdao.co/calm/storage/localfs"
	"xdao.co/calm/tokenid"
)

func newStore(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cas
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas := newStore(t)
	id1, err := cas.Put([]byte(`{"name":"Sunrise"}`))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put([]byte(`{"name":"Sunset"}`))
	if err != nil {
		t.Fatal(err)
	}

	var outA, outB bytes.Buffer
	if err := bundle.Export(&outA, cas, []cid.Cid{id2, id1, id2}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Export(&outB, cas, []cid.Cid{id1, id2}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTripByTokenLabel(t *testing.T) {
	src := newStore(t)
	creator := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	payload := []byte(`{"name":"Sunrise"}`)
	id, err := src.Put(payload)
	if err != nil {
		t.Fatal(err)
	}
	token := tokenid.Derive(payload, creator)

	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{token.String(): id}}
	if err := bundle.Export(&buf, src, []cid.Cid{id}, opts); err != nil {
		t.Fatal(err)
	}

	index := readIndex(t, buf.Bytes())
	if index.Multihash != "sha1" || len(index.Labels) != 1 || index.Labels[0].Name != token.String() {
		t.Fatalf("unexpected index %+v", index)
	}

	dst := newStore(t)
	got, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Equals(token.ContentCID()) {
		t.Fatalf("imported %v want %s", got, token.ContentCID())
	}
	b, err := dst.Get(token.ContentCID())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ExportMissingBlock(t *testing.T) {
	cas := newStore(t)
	missing, _ := cidutil.CIDv1RawSHA1([]byte("missing"))
	err := bundle.Export(io.Discard, cas, []cid.Cid{missing}, bundle.ExportOptions{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	other, err := cidutil.CIDv1RawSHA1([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	archive := makeTar(t, "blocks/"+other.String(), good)
	if _, err := bundle.Import(bytes.NewReader(archive), newStore(t)); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsSHA256Blocks(t *testing.T) {
	payload := []byte("payload")
	legacy, err := cidutil.CIDv1RawSHA256CID(payload)
	if err != nil {
		t.Fatal(err)
	}
	archive := makeTar(t, "blocks/"+legacy.String(), payload)
	if _, err := bundle.Import(bytes.NewReader(archive), newStore(t)); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportUnknownEntries(t *testing.T) {
	archive := makeTar(t, "notes.txt", []byte("hello"))
	if _, err := bundle.Import(bytes.NewReader(archive), newStore(t)); err == nil {
		t.Fatalf("expected unknown entry to fail closed")
	}
	got, err := bundle.ImportWithOptions(bytes.NewReader(archive), newStore(t), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || len(got) != 0 {
		t.Fatalf("IgnoreUnknown: %v, %v", got, err)
	}
	if _, err := bundle.Import(bytes.NewReader(makeTar(t, "blocks/../x", []byte("x"))), newStore(t)); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

type testIndex struct {
	Multihash string `json:"multihash"`
	Labels    []struct {
		Name string `json:"name"`
		CID  string `json:"cid"`
	} `json:"labels"`
}

func readIndex(t *testing.T, archive []byte) testIndex {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(archive))
	for {
		h, err := tr.Next()
		if err != nil {
			t.Fatalf("index.json not found: %v", err)
		}
		if h.Name != "index.json" {
			continue
		}
		var idx testIndex
		if err := json.NewDecoder(tr).Decode(&idx); err != nil {
			t.Fatal(err)
		}
		return idx
	}
}

func makeTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
