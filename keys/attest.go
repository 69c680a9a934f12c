package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// Attestation algorithms.
const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// ErrBadAttestation reports an attestation that does not verify.
var ErrBadAttestation = errors.New("attestation does not verify")

// Attestation is an operator signature over a receipt.
//
// Key has the form "<alg>:" + base64(public key).
type Attestation struct {
	Alg       string `json:"alg"`
	HashAlg   string `json:"hash_alg"`
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

// Attester signs receipts with a fixed operator key.
type Attester struct {
	alg     string
	hashAlg string
	key     string
	ed      ed25519.PrivateKey
	dl      *mode3.PrivateKey
}

// NewAttester builds an attester from a 32-byte seed. hashAlg is only used by
// dilithium3 (sha256, sha512 or sha3-256); ed25519 always signs sha256(msg).
func NewAttester(alg string, seed []byte, hashAlg string) (*Attester, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("attester seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	switch alg {
	case AlgEd25519, "":
		priv := ed25519.NewKeyFromSeed(seed)
		return &Attester{
			alg:     AlgEd25519,
			hashAlg: "sha256",
			key:     AttesterKey(AlgEd25519, priv.Public().(ed25519.PublicKey)),
			ed:      priv,
		}, nil
	case AlgDilithium3:
		if hashAlg == "" {
			hashAlg = "sha3-256"
		}
		if _, err := digestFor(hashAlg, nil); err != nil {
			return nil, err
		}
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		return &Attester{
			alg:     AlgDilithium3,
			hashAlg: hashAlg,
			key:     AttesterKey(AlgDilithium3, pk.Bytes()),
			dl:      sk,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported attestation algorithm: %q", alg)
	}
}

// Key returns the attester's public key string.
func (a *Attester) Key() string { return a.key }

// Attest signs msg.
func (a *Attester) Attest(msg []byte) (Attestation, error) {
	att := Attestation{Alg: a.alg, HashAlg: a.hashAlg, Key: a.key}
	switch a.alg {
	case AlgEd25519:
		att.Signature = SignEd25519SHA256(msg, a.ed)
	case AlgDilithium3:
		sig, err := SignDilithium3(msg, a.hashAlg, a.dl)
		if err != nil {
			return Attestation{}, err
		}
		att.Signature = sig
	}
	return att, nil
}

// AttesterKey encodes a public key as "<alg>:" + base64(pub).
func AttesterKey(alg string, pub []byte) string {
	return alg + ":" + base64.StdEncoding.EncodeToString(pub)
}

// ParseAttesterKey splits an attester key string.
func ParseAttesterKey(s string) (alg string, pub []byte, err error) {
	alg, b64, ok := strings.Cut(s, ":")
	if !ok || alg == "" {
		return "", nil, fmt.Errorf("attester key must be <alg>:<base64>")
	}
	pub, err = base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("attester key is not base64: %w", err)
	}
	return alg, pub, nil
}

// VerifyAttestation checks att over msg against the key it carries. Callers
// that pin an operator must also compare att.Key.
func VerifyAttestation(msg []byte, att Attestation) error {
	alg, pub, err := ParseAttesterKey(att.Key)
	if err != nil {
		return err
	}
	if alg != att.Alg {
		return fmt.Errorf("attestation alg %q does not match key alg %q", att.Alg, alg)
	}
	sig, err := base64.StdEncoding.DecodeString(att.Signature)
	if err != nil {
		return fmt.Errorf("attestation signature is not base64: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
		}
		digest := sha256.Sum256(msg)
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return ErrBadAttestation
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("dilithium3 public key: %w", err)
		}
		digest, err := digestFor(att.HashAlg, msg)
		if err != nil {
			return err
		}
		if !mode3.Verify(&pk, digest, sig) {
			return ErrBadAttestation
		}
	default:
		return fmt.Errorf("unsupported attestation algorithm: %q", alg)
	}
	return nil
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(message)
	sig := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("missing private key")
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}
