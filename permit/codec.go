package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// DomainVersion is the EIP-712 domain version of the MintPermit schema.
	DomainVersion = "1"
	// PrimaryType is the EIP-712 primary type name.
	PrimaryType = "MintPermit"
)

// Domain separates signatures across deployments and chains.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain returns the domain for a deployment named name (the token
// display name) on chainID at contract.
func NewDomain(name string, chainID *big.Int, contract common.Address) Domain {
	return Domain{
		Name:              name,
		Version:           DomainVersion,
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: contract,
	}
}

func (d Domain) Validate() error {
	if d.Name == "" {
		return newError(KindDomain, "CALM-DOMAIN-001", "domain name is required")
	}
	if d.Version == "" {
		return newError(KindDomain, "CALM-DOMAIN-002", "domain version is required")
	}
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return newError(KindDomain, "CALM-DOMAIN-003", "domain chain id must be positive")
	}
	return nil
}

// Field order is part of the signing contract: changing it invalidates
// every issued signature.
var mintPermitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "tokenId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "currency", Type: "address"},
		{Name: "minimumPrice", Type: "uint256"},
		{Name: "payee", Type: "address"},
		{Name: "kickoff", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "data", Type: "bytes"},
	},
}

// TypedData returns the EIP-712 document a creator signs for p under d.
func TypedData(p *MintPermit, d Domain) apitypes.TypedData {
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	return apitypes.TypedData{
		Types:       mintPermitTypes,
		PrimaryType: PrimaryType,
		Domain:      typedDomain(d),
		Message: apitypes.TypedDataMessage{
			"tokenId":      p.TokenID.Big(),
			"nonce":        cloneInt(p.Nonce),
			"currency":     p.Currency.Hex(),
			"minimumPrice": cloneInt(p.MinimumPrice),
			"payee":        p.Payee.Hex(),
			"kickoff":      cloneInt(p.Kickoff),
			"deadline":     cloneInt(p.Deadline),
			"recipient":    p.Recipient.Hex(),
			"data":         data,
		},
	}
}

func typedDomain(d Domain) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(cloneInt(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// Hash returns the EIP-712 digest keccak256(0x1901 ‖ domainSeparator ‖ hashStruct(p)).
func Hash(p *MintPermit, d Domain) (common.Hash, error) {
	if err := p.checkRange(); err != nil {
		return common.Hash{}, err
	}
	if err := d.Validate(); err != nil {
		return common.Hash{}, err
	}
	sum, _, err := apitypes.TypedDataAndHash(TypedData(p, d))
	if err != nil {
		return common.Hash{}, wrapError(KindCodec, "CALM-CODEC-001", "typed data encoding failed", err)
	}
	return common.BytesToHash(sum), nil
}

// DomainSeparator returns hashStruct(EIP712Domain) for d.
func DomainSeparator(d Domain) (common.Hash, error) {
	if err := d.Validate(); err != nil {
		return common.Hash{}, err
	}
	td := apitypes.TypedData{Types: mintPermitTypes, Domain: typedDomain(d)}
	sum, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, wrapError(KindCodec, "CALM-CODEC-002", "domain encoding failed", err)
	}
	return common.BytesToHash(sum), nil
}
