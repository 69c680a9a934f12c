// Package nonce tracks the next unused permit nonce of each creator.
//
// A creator's nonce starts at 0 and only ever moves forward by one, when a
// claim authorized by a permit carrying the current nonce succeeds. There is
// no way to lower or reset it.
package nonce

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/ledger"
)

// Current returns creator's next unused nonce.
func Current(txn ledger.Txn, creator common.Address) (*big.Int, error) {
	return ledger.GetUint(txn, ledger.NonceKey(creator))
}

// Advance increments creator's nonce by exactly one and returns the value
// that was consumed. It must run in the same transaction as the effects the
// nonce authorizes.
func Advance(txn ledger.Txn, creator common.Address) (*big.Int, error) {
	cur, err := Current(txn, creator)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(cur, big.NewInt(1))
	if err := ledger.PutUint(txn, ledger.NonceKey(creator), next); err != nil {
		return nil, err
	}
	return cur, nil
}
