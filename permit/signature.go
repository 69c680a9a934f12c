package permit

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of an r ‖ s ‖ v signature.
const SignatureLength = crypto.SignatureLength

// Signature is a secp256k1 recoverable signature in the (v, r, s) form the
// claim payload carries. V may be 0/1 or 27/28.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// ParseSignature splits a 65-byte r ‖ s ‖ v signature.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, wrapError(KindSignature, ErrMalformedSignature.RuleID, "signature must be 65 bytes", nil)
	}
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[64]
	return sig, nil
}

// ParseSignatureHex parses a 0x-prefixed or bare hex signature.
func ParseSignatureHex(s string) (Signature, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Signature{}, wrapError(KindSignature, ErrMalformedSignature.RuleID, "signature is not hex", err)
	}
	return ParseSignature(b)
}

// Bytes returns r ‖ s ‖ v with V as given.
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

func (s Signature) Hex() string { return "0x" + hex.EncodeToString(s.Bytes()) }

func (s Signature) recoveryID() (byte, error) {
	switch s.V {
	case 0, 1:
		return s.V, nil
	case 27, 28:
		return s.V - 27, nil
	default:
		return 0, wrapError(KindSignature, ErrMalformedSignature.RuleID, "signature v must be 0, 1, 27 or 28", nil)
	}
}

// Recover returns the account that signed p under d. It never consults
// ledger state.
//
// Encoding problems (v, or r/s outside the curve order or in the upper half)
// are reported as ErrMalformedSignature; a well-formed signature that does
// not recover to a public key is ErrInvalidSignature.
func Recover(p *MintPermit, d Domain, sig Signature) (common.Address, error) {
	v, err := sig.recoveryID()
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, wrapError(KindSignature, ErrMalformedSignature.RuleID, "signature values out of range", nil)
	}
	hash, err := Hash(p, d)
	if err != nil {
		return common.Address{}, err
	}
	raw := sig.Bytes()
	raw[64] = v
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, wrapError(KindSignature, ErrInvalidSignature.RuleID, "signature does not recover to an account", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
