package storage_test

import (
	"bytes"
	"testing"

	"xdao.co/calm/storage"
	"xdao.co/calm/storage/localfs"
	"xdao.co/calm/storage/testkit"
)

func newLocal(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return cas
}

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{newLocal(t), newLocal(t)}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: newLocal(t)},
			{Name: "b", CAS: newLocal(t)},
		}}
	})
}

func TestMultiCAS_WritesFirstReadsAll(t *testing.T) {
	first, second := newLocal(t), newLocal(t)
	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}

	onlySecond := []byte("only in second")
	id, err := second.Put(onlySecond)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(id)
	if err != nil || !bytes.Equal(got, onlySecond) {
		t.Fatalf("fallback read: %q, %v", got, err)
	}

	id, err = m.Put([]byte("written"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !first.Has(id) || second.Has(id) {
		t.Fatalf("MultiCAS must write only to the first adapter")
	}

	if _, err := (storage.MultiCAS{}).Put([]byte("x")); err == nil {
		t.Fatalf("expected error with no adapters")
	}
}

func TestReplicatingCAS_WritesEverywhere(t *testing.T) {
	a, b := newLocal(t), newLocal(t)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, per, err := r.PutAll([]byte("replicated"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if per["a"] != id || per["b"] != id {
		t.Fatalf("per-backend CIDs %v do not match %s", per, id)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatalf("object missing from a backend")
	}
	if missing := r.Missing(id); len(missing) != 0 {
		t.Fatalf("Missing=%v after PutAll", missing)
	}

	onlyB, err := b.Put([]byte("only on b"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if missing := r.Missing(onlyB); len(missing) != 1 || missing[0] != "a" {
		t.Fatalf("Missing=%v want [a]", missing)
	}
	if !r.Has(onlyB) {
		t.Fatalf("Has must see a copy on any replica")
	}

	if _, _, err := (storage.ReplicatingCAS{}).PutAll([]byte("x")); err == nil {
		t.Fatalf("expected error with no replicas")
	}
}
