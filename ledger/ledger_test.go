package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/memory"
)

// conflicting fails the first n Updates with ErrConflict.
type conflicting struct {
	ledger.Store
	n     int
	calls int
}

func (c *conflicting) Update(ctx context.Context, fn func(ledger.Txn) error) error {
	c.calls++
	if c.calls <= c.n {
		return ledger.ErrConflict
	}
	return c.Store.Update(ctx, fn)
}

func TestRetry_RerunsOnConflict(t *testing.T) {
	s := &conflicting{Store: memory.New(), n: 3}
	runs := 0
	err := ledger.Retry(context.Background(), s, func(txn ledger.Txn) error {
		runs++
		return txn.Set([]byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.calls != 4 || runs != 1 {
		t.Fatalf("calls=%d runs=%d want 4/1", s.calls, runs)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	s := &conflicting{Store: memory.New(), n: ledger.MaxAttempts}
	err := ledger.Retry(context.Background(), s, func(ledger.Txn) error { return nil })
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}
	if s.calls != ledger.MaxAttempts {
		t.Fatalf("calls=%d want %d", s.calls, ledger.MaxAttempts)
	}
}

func TestRetry_DoesNotRetryOtherErrors(t *testing.T) {
	s := &conflicting{Store: memory.New()}
	boom := errors.New("boom")
	err := ledger.Retry(context.Background(), s, func(ledger.Txn) error { return boom })
	if !errors.Is(err, boom) || s.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, s.calls)
	}
}

func TestUintAndAddressCodec(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	addr := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dC79C8")
	key := ledger.BalanceKey(common.Address{}, addr)

	err := s.Update(ctx, func(txn ledger.Txn) error {
		v, err := ledger.GetUint(txn, key)
		if err != nil {
			return err
		}
		if v.Sign() != 0 {
			t.Fatalf("absent balance=%s want 0", v)
		}
		if err := ledger.PutUint(txn, key, big.NewInt(42)); err != nil {
			return err
		}
		if err := ledger.PutUint(txn, key, big.NewInt(-1)); err == nil {
			t.Fatalf("expected error for negative value")
		}
		_, ok, err := ledger.GetAddress(txn, ledger.OwnerKey([32]byte{1}))
		if err != nil || ok {
			t.Fatalf("absent owner: ok=%v err=%v", ok, err)
		}
		return ledger.PutAddress(txn, ledger.OwnerKey([32]byte{1}), addr)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = s.View(ctx, func(txn ledger.Txn) error {
		v, err := ledger.GetUint(txn, key)
		if err != nil {
			return err
		}
		if v.Int64() != 42 {
			t.Fatalf("balance=%s want 42", v)
		}
		got, ok, err := ledger.GetAddress(txn, ledger.OwnerKey([32]byte{1}))
		if err != nil || !ok || got != addr {
			t.Fatalf("owner=%s ok=%v err=%v", got.Hex(), ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestKeysAreDistinct(t *testing.T) {
	a := common.HexToAddress("0x01")
	keys := [][]byte{
		ledger.NonceKey(a),
		ledger.BalanceKey(common.Address{}, a),
		ledger.BalanceKey(a, a),
		ledger.OwnerKey([32]byte{}),
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[string(k)] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[string(k)] = true
	}
}
