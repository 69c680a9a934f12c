// Package funds keeps per-currency account balances on the ledger.
//
// The zero currency address is the chain's native coin; any other address
// names a fungible token's balance table.
package funds

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"xdao.co/calm/ledger"
)

// Native is the currency address of the chain's native coin.
var Native = common.Address{}

// EtherDecimals is the number of decimals of one ether in wei.
const EtherDecimals = 18

var ErrInsufficientFunds = errors.New("funds: insufficient balance")

func Balance(txn ledger.Txn, currency, account common.Address) (*big.Int, error) {
	return ledger.GetUint(txn, ledger.BalanceKey(currency, account))
}

// Credit adds amount to account's balance.
func Credit(txn ledger.Txn, currency, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("funds: negative credit %s", amount)
	}
	bal, err := Balance(txn, currency, account)
	if err != nil {
		return err
	}
	return ledger.PutUint(txn, ledger.BalanceKey(currency, account), bal.Add(bal, amount))
}

// Debit removes amount from account's balance.
func Debit(txn ledger.Txn, currency, account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("funds: negative debit %s", amount)
	}
	bal, err := Balance(txn, currency, account)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, account.Hex(), bal, amount)
	}
	return ledger.PutUint(txn, ledger.BalanceKey(currency, account), bal.Sub(bal, amount))
}

// Move transfers amount from one account to another.
func Move(txn ledger.Txn, currency, from, to common.Address, amount *big.Int) error {
	if err := Debit(txn, currency, from, amount); err != nil {
		return err
	}
	return Credit(txn, currency, to, amount)
}

// ParseEther converts a decimal ether amount ("0.01") to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("funds: invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("funds: negative amount %q", s)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("funds: amount %q has more than %d decimals", s, EtherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal ether amount without trailing zeros.
func FormatEther(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
