package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout. Addresses and token ids are raw bytes, not hex.
const (
	noncePrefix   = "NONCE:"
	balancePrefix = "BALANCE:"
	ownerPrefix   = "TOKEN:OWNER:"
)

// NonceKey is the key of creator's permit nonce.
func NonceKey(creator common.Address) []byte {
	return append([]byte(noncePrefix), creator.Bytes()...)
}

// BalanceKey is the key of account's balance in currency. The zero currency
// is the native coin.
func BalanceKey(currency, account common.Address) []byte {
	k := append([]byte(balancePrefix), currency.Bytes()...)
	return append(k, account.Bytes()...)
}

// OwnerKey is the key of the owner of token id.
func OwnerKey(id [32]byte) []byte {
	return append([]byte(ownerPrefix), id[:]...)
}

// GetUint reads a big-endian unsigned integer. Absent keys read as zero.
func GetUint(txn Txn, key []byte) (*big.Int, error) {
	b, err := txn.Get(key)
	if IsNotFound(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("ledger: value at %q is %d bytes, want <= 32", key, len(b))
	}
	return new(big.Int).SetBytes(b), nil
}

// PutUint stores v as a 32-byte big-endian word.
func PutUint(txn Txn, key []byte, v *big.Int) error {
	if v.Sign() < 0 || v.BitLen() > 256 {
		return fmt.Errorf("ledger: value %s is not a uint256", v)
	}
	var w [32]byte
	v.FillBytes(w[:])
	return txn.Set(key, w[:])
}

// GetAddress reads a 20-byte address. ok is false for absent keys.
func GetAddress(txn Txn, key []byte) (addr common.Address, ok bool, err error) {
	b, err := txn.Get(key)
	if IsNotFound(err) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	if len(b) != common.AddressLength {
		return common.Address{}, false, fmt.Errorf("ledger: value at %q is %d bytes, want %d", key, len(b), common.AddressLength)
	}
	return common.BytesToAddress(b), true, nil
}

func PutAddress(txn Txn, key []byte, addr common.Address) error {
	return txn.Set(key, addr.Bytes())
}
