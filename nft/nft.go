// Package nft is the token-ownership ledger claims mint into.
package nft

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/ledger"
	"xdao.co/calm/tokenid"
)

var (
	ErrAlreadyMinted = errors.New("nft: token already minted")
	ErrNotMinted     = errors.New("nft: token not minted")
	ErrNotOwner      = errors.New("nft: sender is not the owner")
	ErrZeroAddress   = errors.New("nft: zero address")
)

// TransferEvent records one ownership change. A mint has From == zero.
type TransferEvent struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	TokenID tokenid.ID     `json:"tokenId"`
}

func (e TransferEvent) IsMint() bool { return e.From == (common.Address{}) }

// OwnerOf returns the owner of id; ok is false if id was never minted.
func OwnerOf(txn ledger.Txn, id tokenid.ID) (owner common.Address, ok bool, err error) {
	return ledger.GetAddress(txn, ledger.OwnerKey(id))
}

// Mint creates id owned by to.
func Mint(txn ledger.Txn, id tokenid.ID, to common.Address) (TransferEvent, error) {
	if to == (common.Address{}) {
		return TransferEvent{}, ErrZeroAddress
	}
	_, exists, err := OwnerOf(txn, id)
	if err != nil {
		return TransferEvent{}, err
	}
	if exists {
		return TransferEvent{}, fmt.Errorf("%w: %s", ErrAlreadyMinted, id)
	}
	if err := ledger.PutAddress(txn, ledger.OwnerKey(id), to); err != nil {
		return TransferEvent{}, err
	}
	return TransferEvent{To: to, TokenID: id}, nil
}

// Transfer moves id from its current owner from to to.
func Transfer(txn ledger.Txn, id tokenid.ID, from, to common.Address) (TransferEvent, error) {
	if to == (common.Address{}) {
		return TransferEvent{}, ErrZeroAddress
	}
	owner, exists, err := OwnerOf(txn, id)
	if err != nil {
		return TransferEvent{}, err
	}
	if !exists {
		return TransferEvent{}, fmt.Errorf("%w: %s", ErrNotMinted, id)
	}
	if owner != from {
		return TransferEvent{}, fmt.Errorf("%w: %s owns %s", ErrNotOwner, owner.Hex(), id)
	}
	if err := ledger.PutAddress(txn, ledger.OwnerKey(id), to); err != nil {
		return TransferEvent{}, err
	}
	return TransferEvent{From: from, To: to, TokenID: id}, nil
}
