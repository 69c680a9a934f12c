package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"xdao.co/calm/claim"
	"xdao.co/calm/permit"
	"xdao.co/calm/tokenid"
)

// Permit is the JSON form of a MintPermit.
type Permit struct {
	TokenID      string `json:"tokenId"`
	Nonce        string `json:"nonce"`
	Currency     string `json:"currency"`
	MinimumPrice string `json:"minimumPrice"`
	Payee        string `json:"payee"`
	Kickoff      string `json:"kickoff"`
	Deadline     string `json:"deadline"`
	Recipient    string `json:"recipient"`
	Data         string `json:"data"`
}

// SignedPermit is what a creator hands to claimants.
type SignedPermit struct {
	Permit    Permit `json:"permit"`
	Signature string `json:"signature"`
	Signer    string `json:"signer,omitempty"`
}

// ClaimRequest is the transaction payload of a claim: the permit, the
// signature split into v, r, s, the claimant and the attached native value.
type ClaimRequest struct {
	Permit   Permit `json:"permit"`
	V        uint8  `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
	Claimant string `json:"claimant"`
	Value    string `json:"value"`
}

type Info struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Version     string `json:"version"`
	ChainID     string `json:"chainId"`
	Contract    string `json:"contract"`
	Cost        string `json:"cost"`
	AttesterKey string `json:"attesterKey,omitempty"`
	Faucet      bool   `json:"faucet"`
}

type NonceRequest struct {
	Creator string `json:"creator"`
}

type NonceResponse struct {
	Creator string `json:"creator"`
	Nonce   string `json:"nonce"`
}

type OwnerRequest struct {
	TokenID string `json:"tokenId"`
}

type OwnerResponse struct {
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner,omitempty"`
	Minted  bool   `json:"minted"`
}

type BalanceRequest struct {
	Account  string `json:"account"`
	Currency string `json:"currency,omitempty"`
}

type BalanceResponse struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

type FaucetRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount,omitempty"`
}

type MetadataRequest struct {
	Bytes   []byte `json:"bytes"`
	Creator string `json:"creator,omitempty"`
}

type MetadataResponse struct {
	CID     string `json:"cid"`
	TokenID string `json:"tokenId,omitempty"`
}

// FromPermit encodes p.
func FromPermit(p *permit.MintPermit) Permit {
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	return Permit{
		TokenID:      p.TokenID.String(),
		Nonce:        p.Nonce.String(),
		Currency:     p.Currency.Hex(),
		MinimumPrice: p.MinimumPrice.String(),
		Payee:        p.Payee.Hex(),
		Kickoff:      p.Kickoff.String(),
		Deadline:     p.Deadline.String(),
		Recipient:    p.Recipient.Hex(),
		Data:         hexutil.Encode(data),
	}
}

// ToMintPermit decodes and validates the encoding of m. It does not check
// permit invariants; see permit.MintPermit.Validate.
func (m Permit) ToMintPermit() (*permit.MintPermit, error) {
	id, err := tokenid.Parse(m.TokenID)
	if err != nil {
		return nil, invalid("tokenId: %v", err)
	}
	p := &permit.MintPermit{TokenID: id}
	ints := []struct {
		name string
		in   string
		out  **big.Int
	}{
		{"nonce", m.Nonce, &p.Nonce},
		{"minimumPrice", m.MinimumPrice, &p.MinimumPrice},
		{"kickoff", m.Kickoff, &p.Kickoff},
		{"deadline", m.Deadline, &p.Deadline},
	}
	for _, f := range ints {
		if *f.out, err = ParseUint(f.name, f.in); err != nil {
			return nil, err
		}
	}
	addrs := []struct {
		name string
		in   string
		out  *common.Address
	}{
		{"currency", m.Currency, &p.Currency},
		{"payee", m.Payee, &p.Payee},
		{"recipient", m.Recipient, &p.Recipient},
	}
	for _, f := range addrs {
		if *f.out, err = ParseAddress(f.name, f.in, true); err != nil {
			return nil, err
		}
	}
	p.Data = []byte{}
	if m.Data != "" && m.Data != "0x" {
		if p.Data, err = hexutil.Decode(m.Data); err != nil {
			return nil, invalid("data: %v", err)
		}
	}
	return p, nil
}

// NewClaimRequest encodes a claim.
func NewClaimRequest(p *permit.MintPermit, sig permit.Signature, claimant common.Address, value *big.Int) ClaimRequest {
	if value == nil {
		value = new(big.Int)
	}
	return ClaimRequest{
		Permit:   FromPermit(p),
		V:        sig.V,
		R:        hexutil.Encode(sig.R[:]),
		S:        hexutil.Encode(sig.S[:]),
		Claimant: claimant.Hex(),
		Value:    value.String(),
	}
}

// ToRequest decodes c. An undecodable r or s does not fail the decode: it
// is carried as the request's SignatureErr so the claim is rejected as a
// malformed signature.
func (c ClaimRequest) ToRequest() (claim.Request, error) {
	p, err := c.Permit.ToMintPermit()
	if err != nil {
		return claim.Request{}, err
	}
	sig := permit.Signature{V: c.V}
	sigErr := decodeWord("r", c.R, &sig.R)
	if sigErr == nil {
		sigErr = decodeWord("s", c.S, &sig.S)
	}
	claimant, err := ParseAddress("claimant", c.Claimant, false)
	if err != nil {
		return claim.Request{}, err
	}
	value := new(big.Int)
	if c.Value != "" {
		if value, err = ParseUint("value", c.Value); err != nil {
			return claim.Request{}, err
		}
	}
	return claim.Request{Permit: p, Signature: sig, Claimant: claimant, Value: value, SignatureErr: sigErr}, nil
}

// ParseUint parses a decimal or 0x-hex uint256.
func ParseUint(name, s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := math.ParseBig256(s)
	if !ok || s == "" || v.Sign() < 0 {
		return nil, invalid("%s: %q is not a uint256", name, s)
	}
	return v, nil
}

// ParseAddress parses a hex address. When allowEmpty is set, "" is the zero
// address.
func ParseAddress(name, s string, allowEmpty bool) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" && allowEmpty {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, invalid("%s: %q is not an address", name, s)
	}
	return common.HexToAddress(s), nil
}

func decodeWord(name, s string, out *[32]byte) error {
	b, err := hexutil.Decode(s)
	if err != nil {
		return permit.MalformedSignatureError(fmt.Sprintf("signature %s: %v", name, err), err)
	}
	if len(b) > 32 {
		return permit.MalformedSignatureError(fmt.Sprintf("signature %s: %d bytes, want at most 32", name, len(b)), nil)
	}
	copy(out[32-len(b):], b)
	return nil
}
