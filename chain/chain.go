// Package chain turns claim requests into transactions with receipts.
//
// A Submitter plays the part of the chain in front of a claim Executor: it
// charges the claimant a flat transaction cost, runs the claim, and returns a
// receipt that records either the transfer events or the rejection. The
// receipt is content addressed and optionally attested by the operator.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"xdao.co/calm/claim"
	"xdao.co/calm/funds"
	"xdao.co/calm/keys"
	"xdao.co/calm/ledger"
	"xdao.co/calm/metrics"
)

// DefaultFaucetAmount is what Faucet grants when no amount is given: 1 ether.
var DefaultFaucetAmount = new(big.Int).Exp(big.NewInt(10), big.NewInt(funds.EtherDecimals), nil)

var (
	// ErrInsufficientFunds reports a claimant who cannot pay the transaction
	// cost. No receipt is produced and nothing is charged.
	ErrInsufficientFunds = errors.New("chain: insufficient funds for transaction cost")
	ErrFaucetDisabled    = errors.New("chain: faucet disabled")
	ErrFaucetRequest     = errors.New("chain: invalid faucet request")
)

type Config struct {
	Executor *claim.Executor
	Store    ledger.Store
	// Cost is charged to the claimant for every submitted claim, accepted
	// or rejected. nil means free.
	Cost *big.Int
	// Collector receives transaction costs.
	Collector common.Address
	Attester  *keys.Attester
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// Faucet enables Faucet grants of up to FaucetMax per call.
	Faucet    bool
	FaucetMax *big.Int
}

type Submitter struct {
	exec      *claim.Executor
	store     ledger.Store
	cost      *big.Int
	collector common.Address
	attester  *keys.Attester
	metrics   *metrics.Metrics
	log       *slog.Logger
	faucet    bool
	faucetMax *big.Int
}

func NewSubmitter(cfg Config) (*Submitter, error) {
	if cfg.Executor == nil {
		return nil, errors.New("chain: executor is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("chain: store is required")
	}
	s := &Submitter{
		exec:      cfg.Executor,
		store:     cfg.Store,
		cost:      new(big.Int),
		collector: cfg.Collector,
		attester:  cfg.Attester,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		faucet:    cfg.Faucet,
		faucetMax: cfg.FaucetMax,
	}
	if cfg.Cost != nil {
		if cfg.Cost.Sign() < 0 {
			return nil, errors.New("chain: negative cost")
		}
		s.cost.Set(cfg.Cost)
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.faucetMax == nil {
		s.faucetMax = DefaultFaucetAmount
	}
	return s, nil
}

func (s *Submitter) Executor() *claim.Executor { return s.exec }

func (s *Submitter) Cost() *big.Int { return new(big.Int).Set(s.cost) }

func (s *Submitter) FaucetEnabled() bool { return s.faucet }

// AttesterKey returns the operator key that signs receipts, or "".
func (s *Submitter) AttesterKey() string {
	if s.attester == nil {
		return ""
	}
	return s.attester.Key()
}

// Submit charges the transaction cost and runs the claim.
//
// A rejected claim yields a receipt with StatusRejected, the rule id and no
// events; the cost stays charged. An error is returned only when the cost
// cannot be paid or the ledger fails.
func (s *Submitter) Submit(ctx context.Context, req claim.Request) (*Receipt, error) {
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveClaim(start)
	}

	rcpt := &Receipt{
		ID:       uuid.NewString(),
		Claimant: req.Claimant,
		Cost:     new(big.Int),
	}
	if req.Permit != nil {
		rcpt.TokenID = req.Permit.TokenID
	}

	if req.Claimant != (common.Address{}) && s.cost.Sign() > 0 {
		err := ledger.Retry(ctx, s.store, func(txn ledger.Txn) error {
			return funds.Move(txn, funds.Native, req.Claimant, s.collector, s.cost)
		})
		if errors.Is(err, funds.ErrInsufficientFunds) {
			s.count("unfunded")
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		if err != nil {
			return nil, fmt.Errorf("chain: charge cost: %w", err)
		}
		rcpt.Cost.Set(s.cost)
	}

	res, err := s.exec.Claim(ctx, req)
	switch {
	case err == nil:
		rcpt.Status = StatusSuccess
		rcpt.Result = res
		rcpt.Events = res.Events
		s.count("settled")
	case claim.IsRejection(err):
		rcpt.Status = StatusRejected
		rcpt.Rule = claim.RuleID(err)
		rcpt.Reason = string(claim.ReasonOf(err))
		rcpt.Message = err.Error()
		s.count(rcpt.Reason)
	default:
		s.count("error")
		return nil, fmt.Errorf("chain: claim: %w", err)
	}

	if err := rcpt.seal(s.attester); err != nil {
		return nil, err
	}
	s.log.Info("transaction",
		"receipt", rcpt.ID, "status", rcpt.Status, "rule", rcpt.Rule,
		"token_id", rcpt.TokenID.String(), "claimant", rcpt.Claimant.Hex(), "cid", rcpt.CID)
	return rcpt, nil
}

func (s *Submitter) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementClaim(outcome)
	}
}

// Faucet credits native funds to to. A nil amount grants
// DefaultFaucetAmount. It is development tooling and must be enabled.
func (s *Submitter) Faucet(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error) {
	if !s.faucet {
		return nil, ErrFaucetDisabled
	}
	if amount == nil {
		amount = DefaultFaucetAmount
	}
	if amount.Sign() <= 0 || amount.Cmp(s.faucetMax) > 0 {
		return nil, fmt.Errorf("%w: amount must be in (0, %s]", ErrFaucetRequest, s.faucetMax)
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero recipient", ErrFaucetRequest)
	}
	var bal *big.Int
	err := ledger.Retry(ctx, s.store, func(txn ledger.Txn) error {
		if err := funds.Credit(txn, funds.Native, to, amount); err != nil {
			return err
		}
		var err error
		bal, err = funds.Balance(txn, funds.Native, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chain: faucet: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementFaucet()
	}
	s.log.Info("faucet", "to", to.Hex(), "amount", funds.FormatEther(amount))
	return bal, nil
}
