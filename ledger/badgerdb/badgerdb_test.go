package badgerdb

import (
	"context"
	"errors"
	"testing"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/ledgertest"
)

func TestBadger_Conformance(t *testing.T) {
	ledgertest.RunConformance(t, func(t *testing.T) ledger.Store {
		t.Helper()
		s, err := Open("")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Update(ctx, func(txn ledger.Txn) error {
		return txn.Set([]byte("k"), []byte("durable"))
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := s.View(ctx, func(txn ledger.Txn) error {
		b, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		if string(b) != "durable" {
			t.Fatalf("got %q want durable", b)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestBadger_ConflictIsReported(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// A write committed between this transaction's read and its commit
	// must surface as ledger.ErrConflict.
	err = s.Update(ctx, func(txn ledger.Txn) error {
		if _, err := txn.Get([]byte("k")); err != nil && !ledger.IsNotFound(err) {
			return err
		}
		if err := s.Update(ctx, func(inner ledger.Txn) error {
			return inner.Set([]byte("k"), []byte("other"))
		}); err != nil {
			return err
		}
		return txn.Set([]byte("k"), []byte("mine"))
	})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}
}
