package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
)

// NamedCAS is one metadata replica. Name appears in errors and PutAll
// results.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS keeps every replica holding the metadata of every token it
// stores, so a claim never points at content that lives on one disk only.
// Reads try replicas in order.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll stores b on every replica in order and returns the content CID
// with the CID each replica reported. A replica that answers with another
// CID fails the write with ErrCIDMismatch; replicas already written keep the
// object.
func (r ReplicatingCAS) PutAll(b []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, errors.New("storage: no metadata replicas")
	}
	want, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		return cid.Undef, nil, err
	}
	got := make(map[string]cid.Cid, len(r.Backends))
	for _, rep := range r.Backends {
		if rep.CAS == nil {
			return cid.Undef, got, fmt.Errorf("storage: replica %q is nil", rep.Name)
		}
		id, err := rep.CAS.Put(b)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("storage: replica %s: %w", rep.Name, err)
		}
		got[rep.Name] = id
		if !id.Equals(want) {
			return cid.Undef, got, fmt.Errorf("storage: replica %s returned %s: %w", rep.Name, id, ErrCIDMismatch)
		}
	}
	return want, got, nil
}

func (r ReplicatingCAS) Put(b []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(b)
	return id, err
}

// Get returns the first replica's copy. Missing copies fall through to the
// next replica; any other failure is returned.
func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	for _, rep := range r.Backends {
		if rep.CAS == nil {
			continue
		}
		b, err := rep.CAS.Get(id)
		switch {
		case err == nil:
			return b, nil
		case !IsNotFound(err):
			return nil, fmt.Errorf("storage: replica %s: %w", rep.Name, err)
		}
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	return len(r.Missing(id)) < len(r.Backends)
}

// Missing names the replicas that do not hold id.
func (r ReplicatingCAS) Missing(id cid.Cid) []string {
	var out []string
	for _, rep := range r.Backends {
		if rep.CAS == nil || !rep.CAS.Has(id) {
			out = append(out, rep.Name)
		}
	}
	return out
}
