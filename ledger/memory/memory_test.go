package memory

import (
	"context"
	"errors"
	"testing"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/ledgertest"
)

func TestMemory_Conformance(t *testing.T) {
	ledgertest.RunConformance(t, func(t *testing.T) ledger.Store {
		t.Helper()
		return New()
	})
}

func TestMemory_ClosedStore(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := s.Update(context.Background(), func(ledger.Txn) error { return nil })
	if !errors.Is(err, ledger.ErrClosed) {
		t.Fatalf("Update after Close: got %v want ErrClosed", err)
	}
}

func TestMemory_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(ledger.Txn) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("Update with canceled ctx: err=%v called=%v", err, called)
	}
}
