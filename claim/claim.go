// Package claim finalizes lazy mints.
//
// An Executor checks a claim request against the permit's rules and the
// ledger, then applies every effect of a successful claim in one ledger
// transaction: the creator's nonce advances, the payment settles, and the
// token is minted to the creator and transferred to the claimant. A rejected
// claim changes nothing.
package claim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/funds"
	"xdao.co/calm/ledger"
	"xdao.co/calm/nft"
	"xdao.co/calm/nonce"
	"xdao.co/calm/permit"
	"xdao.co/calm/tokenid"
)

// Config configures an Executor.
type Config struct {
	// Domain is the signing domain of this deployment.
	Domain permit.Domain
	Store  ledger.Store
	// Account receives native payment in excess of a permit's minimum price.
	Account common.Address
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Request is one claim attempt.
type Request struct {
	Permit    *permit.MintPermit
	Signature permit.Signature
	Claimant  common.Address
	// Value is the native amount attached to the claim. nil means zero.
	Value *big.Int
	// SignatureErr is set when the signature could not be decoded from the
	// payload. The claim is then rejected as MalformedSignature at the
	// signature check.
	SignatureErr error
}

// Result describes the effects of a successful claim.
type Result struct {
	TokenID  tokenid.ID     `json:"tokenId"`
	Creator  common.Address `json:"creator"`
	Owner    common.Address `json:"owner"`
	Currency common.Address `json:"currency"`
	Payee    common.Address `json:"payee"`
	// Settled is the amount credited to Payee.
	Settled *big.Int `json:"settled"`
	// Retained is native value kept by the executor Account.
	Retained *big.Int `json:"retained"`
	// Nonce is the creator nonce the claim consumed.
	Nonce  *big.Int            `json:"nonce"`
	Events []nft.TransferEvent `json:"events"`
}

type Executor struct {
	domain  permit.Domain
	store   ledger.Store
	account common.Address
	now     func() time.Time
	log     *slog.Logger
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Domain.Validate(); err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if cfg.Store == nil {
		return nil, errors.New("claim: store is required")
	}
	e := &Executor{
		domain:  cfg.Domain,
		store:   cfg.Store,
		account: cfg.Account,
		now:     cfg.Clock,
		log:     cfg.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e, nil
}

func (e *Executor) Domain() permit.Domain { return e.domain }

func (e *Executor) Account() common.Address { return e.account }

// Claim validates req and, if every rule passes, applies its effects.
//
// Rules are checked in a fixed order and the first failure is returned:
// window, recipient, signature, nonce, payment, not yet minted. Rejections
// are *Error (or a signature error from package permit); ReasonOf
// classifies both. Any other error is a ledger failure.
func (e *Executor) Claim(ctx context.Context, req Request) (*Result, error) {
	res, err := e.claim(ctx, req)
	if err != nil {
		if IsRejection(err) {
			e.log.Warn("claim rejected",
				"rule", RuleID(err), "reason", string(ReasonOf(err)),
				"claimant", req.Claimant.Hex(), "error", err)
		} else {
			e.log.Error("claim failed", "claimant", req.Claimant.Hex(), "error", err)
		}
		return nil, err
	}
	e.log.Info("claim settled",
		"token_id", res.TokenID.String(), "creator", res.Creator.Hex(),
		"owner", res.Owner.Hex(), "nonce", res.Nonce.String(),
		"settled", res.Settled.String(), "retained", res.Retained.String())
	return res, nil
}

func (e *Executor) claim(ctx context.Context, req Request) (*Result, error) {
	p := req.Permit
	if p == nil {
		return nil, reject(ErrMalformedRequest, "missing permit", nil)
	}
	if req.Claimant == (common.Address{}) {
		return nil, reject(ErrMalformedRequest, "missing claimant", nil)
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, reject(ErrMalformedRequest, "negative value", nil)
	}
	if err := p.Validate(); err != nil {
		// An empty window (kickoff >= deadline) can never be satisfied.
		if permit.RuleID(err) == "CALM-PERMIT-003" {
			return nil, reject(ErrPermitWindowInvalid, "", err)
		}
		return nil, reject(ErrMalformedRequest, err.Error(), err)
	}

	now := big.NewInt(e.now().Unix())
	if now.Cmp(p.Kickoff) < 0 {
		return nil, reject(ErrPermitWindowInvalid, "permit is not yet valid", nil)
	}
	if now.Cmp(p.Deadline) >= 0 {
		return nil, reject(ErrPermitWindowInvalid, "permit has expired", nil)
	}

	if !p.OpenToAnyone() && p.Recipient != req.Claimant {
		return nil, reject(ErrRecipientMismatch, "", nil)
	}

	if req.SignatureErr != nil {
		if errors.Is(req.SignatureErr, permit.ErrMalformedSignature) {
			return nil, req.SignatureErr
		}
		return nil, permit.MalformedSignatureError(req.SignatureErr.Error(), req.SignatureErr)
	}
	signer, err := permit.Recover(p, e.domain, req.Signature)
	if err != nil {
		return nil, err
	}
	if !p.TokenID.BoundTo(signer) {
		return nil, reject(ErrUnauthorizedSigner, fmt.Sprintf("signer %s is not the creator of %s", signer.Hex(), p.TokenID), nil)
	}
	creator := signer

	payee := p.Payee
	if payee == (common.Address{}) {
		payee = creator
	}

	var res *Result
	err = ledger.Retry(ctx, e.store, func(txn ledger.Txn) error {
		res = nil
		cur, err := nonce.Current(txn, creator)
		if err != nil {
			return err
		}
		if cur.Cmp(p.Nonce) != 0 {
			return reject(ErrStaleOrReusedPermit, fmt.Sprintf("permit nonce %s, creator nonce %s", p.Nonce, cur), nil)
		}

		settled, retained, err := e.settle(txn, p, payee, req.Claimant, value)
		if err != nil {
			return err
		}

		mint, err := nft.Mint(txn, p.TokenID, creator)
		if errors.Is(err, nft.ErrAlreadyMinted) {
			return reject(ErrTokenAlreadyMinted, "", err)
		}
		if err != nil {
			return err
		}
		transfer, err := nft.Transfer(txn, p.TokenID, creator, req.Claimant)
		if err != nil {
			return err
		}
		used, err := nonce.Advance(txn, creator)
		if err != nil {
			return err
		}

		res = &Result{
			TokenID:  p.TokenID,
			Creator:  creator,
			Owner:    req.Claimant,
			Currency: p.Currency,
			Payee:    payee,
			Settled:  settled,
			Retained: retained,
			Nonce:    used,
			Events:   []nft.TransferEvent{mint, transfer},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// settle moves the payment for p. Native payments debit the full attached
// value from the claimant; the payee receives the minimum price and the
// executor account keeps the rest. Fungible payments move exactly the
// minimum price and ignore the attached value.
func (e *Executor) settle(txn ledger.Txn, p *permit.MintPermit, payee, claimant common.Address, value *big.Int) (settled, retained *big.Int, err error) {
	price := p.MinimumPrice
	if p.IsNative() {
		if value.Cmp(price) < 0 {
			return nil, nil, reject(ErrInsufficientPayment, fmt.Sprintf("sent %s, minimum price %s", value, price), nil)
		}
		if err := funds.Debit(txn, funds.Native, claimant, value); err != nil {
			return nil, nil, paymentErr(err)
		}
		if err := funds.Credit(txn, funds.Native, payee, price); err != nil {
			return nil, nil, err
		}
		retained = new(big.Int).Sub(value, price)
		if err := funds.Credit(txn, funds.Native, e.account, retained); err != nil {
			return nil, nil, err
		}
		return new(big.Int).Set(price), retained, nil
	}
	if err := funds.Move(txn, p.Currency, claimant, payee, price); err != nil {
		return nil, nil, paymentErr(err)
	}
	return new(big.Int).Set(price), new(big.Int), nil
}

func paymentErr(err error) error {
	if errors.Is(err, funds.ErrInsufficientFunds) {
		return reject(ErrInsufficientPayment, err.Error(), err)
	}
	return err
}

// Nonce returns creator's current nonce.
func (e *Executor) Nonce(ctx context.Context, creator common.Address) (*big.Int, error) {
	var n *big.Int
	err := e.store.View(ctx, func(txn ledger.Txn) error {
		var err error
		n, err = nonce.Current(txn, creator)
		return err
	})
	return n, err
}

// OwnerOf returns the owner of id; ok is false if it has not been claimed.
func (e *Executor) OwnerOf(ctx context.Context, id tokenid.ID) (owner common.Address, ok bool, err error) {
	err = e.store.View(ctx, func(txn ledger.Txn) error {
		owner, ok, err = nft.OwnerOf(txn, id)
		return err
	})
	return owner, ok, err
}

// Balance returns account's balance in currency.
func (e *Executor) Balance(ctx context.Context, currency, account common.Address) (*big.Int, error) {
	var b *big.Int
	err := e.store.View(ctx, func(txn ledger.Txn) error {
		var err error
		b, err = funds.Balance(txn, currency, account)
		return err
	})
	return b, err
}
