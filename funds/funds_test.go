package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/memory"
)

var (
	alice = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dC79C8")
	usd   = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
)

func TestParseFormatEther(t *testing.T) {
	cases := map[string]string{
		"1":      "1000000000000000000",
		"0.01":   "10000000000000000",
		"0.005":  "5000000000000000",
		"0":      "0",
		"1.5e-3": "1500000000000000",
	}
	for in, want := range cases {
		got, err := ParseEther(in)
		if err != nil {
			t.Fatalf("ParseEther(%q): %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("ParseEther(%q)=%s want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "-1", "0.0000000000000000001"} {
		if _, err := ParseEther(bad); err == nil {
			t.Fatalf("ParseEther(%q): expected error", bad)
		}
	}
	if got := FormatEther(big.NewInt(10_000_000_000_000_000)); got != "0.01" {
		t.Fatalf("FormatEther=%q want 0.01", got)
	}
	if got := FormatEther(new(big.Int)); got != "0" {
		t.Fatalf("FormatEther(0)=%q want 0", got)
	}
}

func TestMove(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	err := s.Update(ctx, func(txn ledger.Txn) error {
		if err := Credit(txn, Native, alice, big.NewInt(100)); err != nil {
			return err
		}
		if err := Move(txn, Native, alice, bob, big.NewInt(30)); err != nil {
			return err
		}
		if err := Move(txn, Native, alice, bob, big.NewInt(71)); !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("overdraft: got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = s.View(ctx, func(txn ledger.Txn) error {
		a, _ := Balance(txn, Native, alice)
		b, _ := Balance(txn, Native, bob)
		if a.Int64() != 70 || b.Int64() != 30 {
			t.Fatalf("alice=%s bob=%s want 70/30", a, b)
		}
		u, _ := Balance(txn, usd, bob)
		if u.Sign() != 0 {
			t.Fatalf("currencies not separated: usd=%s", u)
		}
		return nil
	})
}

func TestNegativeAmountsRejected(t *testing.T) {
	s := memory.New()
	_ = s.Update(context.Background(), func(txn ledger.Txn) error {
		if err := Credit(txn, Native, alice, big.NewInt(-1)); err == nil {
			t.Fatalf("expected error for negative credit")
		}
		if err := Debit(txn, Native, alice, big.NewInt(-1)); err == nil {
			t.Fatalf("expected error for negative debit")
		}
		return nil
	})
}
