package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"xdao.co/calm/permit"
)

// AccountSeedSize is the byte length of a secp256k1 private key scalar.
const AccountSeedSize = 32

// ParsePrivateKeyHex parses a 0x-prefixed or bare hex secp256k1 private key.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("private key is not hex: %w", err)
	}
	return AccountFromSeed(b)
}

// AccountFromSeed interprets a 32-byte seed as a secp256k1 private key.
func AccountFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	if len(seed) != AccountSeedSize {
		return nil, fmt.Errorf("expected %d byte private key, got %d", AccountSeedSize, len(seed))
	}
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 private key: %w", err)
	}
	return key, nil
}

// GenerateAccount returns a fresh secp256k1 key read from rand.
func GenerateAccount(rand io.Reader) (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(crypto.S256(), rand)
}

// Address returns the account address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SignPermit signs p under d with key. The returned signature uses the
// 27/28 recovery id convention of wallet tooling.
func SignPermit(p *permit.MintPermit, d permit.Domain, key *ecdsa.PrivateKey) (permit.Signature, error) {
	if key == nil {
		return permit.Signature{}, fmt.Errorf("missing private key")
	}
	h, err := permit.Hash(p, d)
	if err != nil {
		return permit.Signature{}, err
	}
	raw, err := crypto.Sign(h[:], key)
	if err != nil {
		return permit.Signature{}, err
	}
	raw[64] += 27
	return permit.ParseSignature(raw)
}
