package permit

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/tokenid"
)

var (
	// NativeCurrency is the Currency sentinel for payment in the chain's native coin.
	NativeCurrency = common.Address{}
	// Anyone is the Recipient sentinel allowing any claimant.
	Anyone = common.Address{}
)

// DefaultValidity is the window New opens when no deadline is given.
const DefaultValidity = 31622400 * time.Second

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MintPermit is a creator's off-chain authorization to mint TokenID.
//
// A permit is a value: once signed it must not be mutated. Use Clone before
// deriving a variant.
type MintPermit struct {
	TokenID      tokenid.ID
	Nonce        *big.Int
	Currency     common.Address
	MinimumPrice *big.Int
	Payee        common.Address
	Kickoff      *big.Int
	Deadline     *big.Int
	Recipient    common.Address
	Data         []byte
}

// New returns a permit for id with the defaults used by the signing tooling:
// native currency, free, paid to creator, valid from now for DefaultValidity,
// claimable by anyone, no data.
func New(id tokenid.ID, creator common.Address, nonce uint64, now time.Time) *MintPermit {
	kickoff := now.Unix()
	return &MintPermit{
		TokenID:      id,
		Nonce:        new(big.Int).SetUint64(nonce),
		Currency:     NativeCurrency,
		MinimumPrice: new(big.Int),
		Payee:        creator,
		Kickoff:      big.NewInt(kickoff),
		Deadline:     big.NewInt(kickoff + int64(DefaultValidity/time.Second)),
		Recipient:    Anyone,
		Data:         []byte{},
	}
}

// IsNative reports whether the permit is priced in the native currency.
func (p *MintPermit) IsNative() bool { return p.Currency == NativeCurrency }

// OpenToAnyone reports whether any account may claim the permit.
func (p *MintPermit) OpenToAnyone() bool { return p.Recipient == Anyone }

// Clone returns a deep copy.
func (p *MintPermit) Clone() *MintPermit {
	if p == nil {
		return nil
	}
	c := *p
	c.Nonce = cloneInt(p.Nonce)
	c.MinimumPrice = cloneInt(p.MinimumPrice)
	c.Kickoff = cloneInt(p.Kickoff)
	c.Deadline = cloneInt(p.Deadline)
	c.Data = bytes.Clone(p.Data)
	return &c
}

// Equal reports whether two permits encode identically.
func (p *MintPermit) Equal(o *MintPermit) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.TokenID == o.TokenID &&
		intEqual(p.Nonce, o.Nonce) &&
		p.Currency == o.Currency &&
		intEqual(p.MinimumPrice, o.MinimumPrice) &&
		p.Payee == o.Payee &&
		intEqual(p.Kickoff, o.Kickoff) &&
		intEqual(p.Deadline, o.Deadline) &&
		p.Recipient == o.Recipient &&
		bytes.Equal(p.Data, o.Data)
}

// Validate checks the permit invariants: every integer is a uint256 and
// Kickoff < Deadline.
func (p *MintPermit) Validate() error {
	if err := p.checkRange(); err != nil {
		return err
	}
	if p.Kickoff.Cmp(p.Deadline) >= 0 {
		return newError(KindPermit, "CALM-PERMIT-003", "kickoff must be before deadline")
	}
	return nil
}

func (p *MintPermit) checkRange() error {
	if p == nil {
		return newError(KindPermit, "CALM-PERMIT-001", "nil permit")
	}
	for _, f := range []struct {
		name string
		v    *big.Int
	}{
		{"nonce", p.Nonce},
		{"minimumPrice", p.MinimumPrice},
		{"kickoff", p.Kickoff},
		{"deadline", p.Deadline},
	} {
		if f.v == nil {
			return newError(KindPermit, "CALM-PERMIT-001", "missing "+f.name)
		}
		if f.v.Sign() < 0 || f.v.Cmp(maxUint256) > 0 {
			return newError(KindPermit, "CALM-PERMIT-002", f.name+" is not a uint256")
		}
	}
	return nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
