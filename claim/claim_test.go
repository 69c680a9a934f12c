package claim

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/funds"
	"xdao.co/calm/keys"
	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/badgerdb"
	"xdao.co/calm/ledger/memory"
	"xdao.co/calm/permit"
	"xdao.co/calm/tokenid"
)

const (
	creatorKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	claimantKeyHex = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	contract  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	operator  = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	stranger  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	metadata  = []byte(`{"name":"Sunrise","image":"ipfs://bafkreia"}`)
	startTime = time.Unix(1_700_000_000, 0)
)

type fixture struct {
	t        *testing.T
	store    ledger.Store
	exec     *Executor
	now      time.Time
	creator  *ecdsa.PrivateKey
	claimant common.Address
}

func newFixture(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	creator, err := keys.ParsePrivateKeyHex(creatorKeyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	claimantKey, err := keys.ParsePrivateKeyHex(claimantKeyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	f := &fixture{t: t, store: store, now: startTime, creator: creator, claimant: keys.Address(claimantKey)}
	f.exec, err = New(Config{
		Domain:  permit.NewDomain("Calm Token", big.NewInt(1337), contract),
		Store:   store,
		Account: operator,
		Clock:   func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) creatorAddr() common.Address { return keys.Address(f.creator) }

func (f *fixture) tokenID() tokenid.ID { return tokenid.Derive(metadata, f.creatorAddr()) }

func (f *fixture) permit(nonce uint64) *permit.MintPermit {
	return permit.New(f.tokenID(), f.creatorAddr(), nonce, startTime)
}

func (f *fixture) sign(p *permit.MintPermit, key *ecdsa.PrivateKey) permit.Signature {
	f.t.Helper()
	sig, err := keys.SignPermit(p, f.exec.Domain(), key)
	if err != nil {
		f.t.Fatalf("SignPermit: %v", err)
	}
	return sig
}

func (f *fixture) fund(currency, account common.Address, amount *big.Int) {
	f.t.Helper()
	err := f.store.Update(context.Background(), func(txn ledger.Txn) error {
		return funds.Credit(txn, currency, account, amount)
	})
	if err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) balance(currency, account common.Address) *big.Int {
	f.t.Helper()
	b, err := f.exec.Balance(context.Background(), currency, account)
	if err != nil {
		f.t.Fatalf("Balance: %v", err)
	}
	return b
}

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := funds.ParseEther(s)
	if err != nil {
		t.Fatalf("ParseEther: %v", err)
	}
	return v
}

func TestClaim_PaymentSettlement(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(funds.Native, f.claimant, ether(t, "1"))

	p := f.permit(0)
	p.MinimumPrice = ether(t, "0.01")
	res, err := f.exec.Claim(context.Background(), Request{
		Permit:    p,
		Signature: f.sign(p, f.creator),
		Claimant:  f.claimant,
		Value:     ether(t, "0.01"),
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if got := f.balance(funds.Native, f.creatorAddr()); got.Cmp(ether(t, "0.01")) != 0 {
		t.Fatalf("creator balance=%s want 0.01 ether", got)
	}
	if got := f.balance(funds.Native, f.claimant); got.Cmp(ether(t, "0.99")) != 0 {
		t.Fatalf("claimant balance=%s want 0.99 ether", got)
	}
	if len(res.Events) != 2 {
		t.Fatalf("events=%d want 2", len(res.Events))
	}
	want := tokenid.Derive(metadata, f.creatorAddr())
	for i, ev := range res.Events {
		if ev.TokenID != want {
			t.Fatalf("event %d token=%s want %s", i, ev.TokenID, want)
		}
	}
	if !res.Events[0].IsMint() || res.Events[0].To != f.creatorAddr() {
		t.Fatalf("first event %+v is not a mint to the creator", res.Events[0])
	}
	if res.Events[1].From != f.creatorAddr() || res.Events[1].To != f.claimant {
		t.Fatalf("second event %+v is not creator -> claimant", res.Events[1])
	}
	if res.Owner != f.claimant || res.Creator != f.creatorAddr() || res.Nonce.Sign() != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	owner, ok, err := f.exec.OwnerOf(context.Background(), want)
	if err != nil || !ok || owner != f.claimant {
		t.Fatalf("owner=%s ok=%v err=%v", owner.Hex(), ok, err)
	}
	n, err := f.exec.Nonce(context.Background(), f.creatorAddr())
	if err != nil || n.Int64() != 1 {
		t.Fatalf("nonce=%v err=%v want 1", n, err)
	}
}

func TestClaim_Underpayment(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(funds.Native, f.claimant, ether(t, "1"))

	p := f.permit(0)
	p.MinimumPrice = ether(t, "0.01")
	res, err := f.exec.Claim(context.Background(), Request{
		Permit:    p,
		Signature: f.sign(p, f.creator),
		Claimant:  f.claimant,
		Value:     ether(t, "0.005"),
	})
	if ReasonOf(err) != InsufficientPayment || res != nil {
		t.Fatalf("got res=%v err=%v want InsufficientPayment", res, err)
	}
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("errors.Is(ErrInsufficientPayment) failed")
	}
	if got := f.balance(funds.Native, f.claimant); got.Cmp(ether(t, "1")) != 0 {
		t.Fatalf("claimant balance=%s changed", got)
	}
	if got := f.balance(funds.Native, f.creatorAddr()); got.Sign() != 0 {
		t.Fatalf("creator balance=%s changed", got)
	}
	if _, ok, _ := f.exec.OwnerOf(context.Background(), p.TokenID); ok {
		t.Fatalf("token minted despite rejection")
	}
}

func TestClaim_UnfundedClaimant(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	p.MinimumPrice = ether(t, "0.01")
	_, err := f.exec.Claim(context.Background(), Request{
		Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant, Value: ether(t, "0.01"),
	})
	if ReasonOf(err) != InsufficientPayment {
		t.Fatalf("got %v want InsufficientPayment", err)
	}
	n, _ := f.exec.Nonce(context.Background(), f.creatorAddr())
	if n.Sign() != 0 {
		t.Fatalf("nonce advanced on rejected claim")
	}
}

func TestClaim_OverpaymentRetained(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(funds.Native, f.claimant, ether(t, "1"))
	p := f.permit(0)
	p.MinimumPrice = ether(t, "0.01")
	res, err := f.exec.Claim(context.Background(), Request{
		Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant, Value: ether(t, "0.03"),
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Retained.Cmp(ether(t, "0.02")) != 0 || res.Settled.Cmp(ether(t, "0.01")) != 0 {
		t.Fatalf("settled=%s retained=%s", res.Settled, res.Retained)
	}
	if got := f.balance(funds.Native, operator); got.Cmp(ether(t, "0.02")) != 0 {
		t.Fatalf("operator balance=%s want 0.02 ether", got)
	}
	if got := f.balance(funds.Native, f.claimant); got.Cmp(ether(t, "0.97")) != 0 {
		t.Fatalf("claimant balance=%s want 0.97 ether", got)
	}
}

func TestClaim_FungibleCurrencyAndPayee(t *testing.T) {
	f := newFixture(t, memory.New())
	usd := common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	f.fund(usd, f.claimant, big.NewInt(500))
	f.fund(funds.Native, f.claimant, big.NewInt(7))

	p := f.permit(0)
	p.Currency = usd
	p.MinimumPrice = big.NewInt(200)
	p.Payee = stranger
	res, err := f.exec.Claim(context.Background(), Request{
		Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant, Value: big.NewInt(7),
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Payee != stranger {
		t.Fatalf("payee=%s want %s", res.Payee.Hex(), stranger.Hex())
	}
	if got := f.balance(usd, stranger); got.Int64() != 200 {
		t.Fatalf("payee usd=%s want 200", got)
	}
	if got := f.balance(usd, f.claimant); got.Int64() != 300 {
		t.Fatalf("claimant usd=%s want 300", got)
	}
	if got := f.balance(funds.Native, f.claimant); got.Int64() != 7 {
		t.Fatalf("native value moved on fungible claim: %s", got)
	}
}

func TestClaim_ZeroPayeeResolvesToCreator(t *testing.T) {
	f := newFixture(t, memory.New())
	f.fund(funds.Native, f.claimant, big.NewInt(10))
	p := f.permit(0)
	p.Payee = common.Address{}
	p.MinimumPrice = big.NewInt(10)
	res, err := f.exec.Claim(context.Background(), Request{
		Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant, Value: big.NewInt(10),
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Payee != f.creatorAddr() || f.balance(funds.Native, f.creatorAddr()).Int64() != 10 {
		t.Fatalf("zero payee did not resolve to creator")
	}
}

func TestClaim_WindowBounds(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	sig := f.sign(p, f.creator)
	req := Request{Permit: p, Signature: sig, Claimant: f.claimant}

	f.now = time.Unix(p.Kickoff.Int64()-1, 0)
	if _, err := f.exec.Claim(context.Background(), req); ReasonOf(err) != PermitWindowInvalid {
		t.Fatalf("before kickoff: got %v want PermitWindowInvalid", err)
	}
	f.now = time.Unix(p.Deadline.Int64(), 0)
	if _, err := f.exec.Claim(context.Background(), req); ReasonOf(err) != PermitWindowInvalid {
		t.Fatalf("at deadline: got %v want PermitWindowInvalid", err)
	}
	f.now = time.Unix(p.Kickoff.Int64(), 0)
	if _, err := f.exec.Claim(context.Background(), req); err != nil {
		t.Fatalf("at kickoff: %v", err)
	}
}

func TestClaim_EmptyWindow(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	p.Deadline = new(big.Int).Set(p.Kickoff)
	_, err := f.exec.Claim(context.Background(), Request{Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant})
	if ReasonOf(err) != PermitWindowInvalid {
		t.Fatalf("got %v want PermitWindowInvalid", err)
	}
}

func TestClaim_RecipientRestriction(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	p.Recipient = f.claimant
	sig := f.sign(p, f.creator)

	_, err := f.exec.Claim(context.Background(), Request{Permit: p, Signature: sig, Claimant: stranger})
	if ReasonOf(err) != RecipientMismatch {
		t.Fatalf("got %v want RecipientMismatch", err)
	}
	if RuleID(err) != "CALM-CLAIM-002" {
		t.Fatalf("rule=%q want CALM-CLAIM-002", RuleID(err))
	}
	if _, err := f.exec.Claim(context.Background(), Request{Permit: p, Signature: sig, Claimant: f.claimant}); err != nil {
		t.Fatalf("named recipient: %v", err)
	}
}

func TestClaim_UnauthorizedSigner(t *testing.T) {
	f := newFixture(t, memory.New())
	other, err := keys.ParsePrivateKeyHex(claimantKeyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	p := f.permit(0)
	_, err = f.exec.Claim(context.Background(), Request{Permit: p, Signature: f.sign(p, other), Claimant: f.claimant})
	if ReasonOf(err) != UnauthorizedSigner {
		t.Fatalf("got %v want UnauthorizedSigner", err)
	}
}

func TestClaim_TamperedPermit(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	p.MinimumPrice = ether(t, "1")
	sig := f.sign(p, f.creator)
	cheap := p.Clone()
	cheap.MinimumPrice = new(big.Int)
	_, err := f.exec.Claim(context.Background(), Request{Permit: cheap, Signature: sig, Claimant: f.claimant})
	if ReasonOf(err) != UnauthorizedSigner {
		t.Fatalf("got %v want UnauthorizedSigner", err)
	}
}

func TestClaim_SignatureErrors(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)

	bad := f.sign(p, f.creator)
	bad.V = 5
	_, err := f.exec.Claim(context.Background(), Request{Permit: p, Signature: bad, Claimant: f.claimant})
	if ReasonOf(err) != MalformedSignature || RuleID(err) != "CALM-SIG-001" {
		t.Fatalf("got %v (%s) want MalformedSignature", err, RuleID(err))
	}

	var invalid permit.Signature
	invalid.R[31] = 5
	invalid.S[31] = 1
	_, err = f.exec.Claim(context.Background(), Request{Permit: p, Signature: invalid, Claimant: f.claimant})
	if ReasonOf(err) != InvalidSignature {
		t.Fatalf("got %v want InvalidSignature", err)
	}

	undecoded := Request{Permit: p, Claimant: f.claimant, SignatureErr: errors.New("r: not hex")}
	_, err = f.exec.Claim(context.Background(), undecoded)
	if ReasonOf(err) != MalformedSignature || RuleID(err) != "CALM-SIG-001" {
		t.Fatalf("undecoded signature: got %v (%s) want MalformedSignature", err, RuleID(err))
	}
}

func TestClaim_StaleAndFutureNonce(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	sig := f.sign(p, f.creator)
	req := Request{Permit: p, Signature: sig, Claimant: f.claimant}
	if _, err := f.exec.Claim(context.Background(), req); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.exec.Claim(context.Background(), req); ReasonOf(err) != StaleOrReusedPermit {
		t.Fatalf("replay: got %v want StaleOrReusedPermit", err)
	}

	other := permit.New(tokenid.Derive([]byte("other"), f.creatorAddr()), f.creatorAddr(), 5, startTime)
	_, err := f.exec.Claim(context.Background(), Request{Permit: other, Signature: f.sign(other, f.creator), Claimant: f.claimant})
	if ReasonOf(err) != StaleOrReusedPermit {
		t.Fatalf("future nonce: got %v want StaleOrReusedPermit", err)
	}
}

func TestClaim_TokenAlreadyMinted(t *testing.T) {
	f := newFixture(t, memory.New())
	first := f.permit(0)
	if _, err := f.exec.Claim(context.Background(), Request{Permit: first, Signature: f.sign(first, f.creator), Claimant: f.claimant}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second := f.permit(1)
	_, err := f.exec.Claim(context.Background(), Request{Permit: second, Signature: f.sign(second, f.creator), Claimant: stranger})
	if ReasonOf(err) != TokenAlreadyMinted {
		t.Fatalf("got %v want TokenAlreadyMinted", err)
	}
	n, _ := f.exec.Nonce(context.Background(), f.creatorAddr())
	if n.Int64() != 1 {
		t.Fatalf("nonce=%s want 1", n)
	}
}

func TestClaim_MalformedRequest(t *testing.T) {
	f := newFixture(t, memory.New())
	p := f.permit(0)
	sig := f.sign(p, f.creator)
	cases := map[string]Request{
		"nil permit":     {Signature: sig, Claimant: f.claimant},
		"zero claimant":  {Permit: p, Signature: sig},
		"negative value": {Permit: p, Signature: sig, Claimant: f.claimant, Value: big.NewInt(-1)},
	}
	for name, req := range cases {
		if _, err := f.exec.Claim(context.Background(), req); ReasonOf(err) != MalformedRequest {
			t.Fatalf("%s: got %v want MalformedRequest", name, err)
		}
	}
}

func TestClaim_SingleUseUnderConcurrency(t *testing.T) {
	backends := map[string]func(t *testing.T) ledger.Store{
		"memory": func(t *testing.T) ledger.Store { return memory.New() },
		"badger": func(t *testing.T) ledger.Store {
			s, err := badgerdb.Open("")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open(t))
			p := f.permit(0)
			req := Request{Permit: p, Signature: f.sign(p, f.creator), Claimant: f.claimant}

			const attempts = 8
			var wg sync.WaitGroup
			errs := make([]error, attempts)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.exec.Claim(context.Background(), req)
				}(i)
			}
			wg.Wait()

			ok := 0
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case ReasonOf(err) != StaleOrReusedPermit:
					t.Fatalf("loser failed with %v, want StaleOrReusedPermit", err)
				}
			}
			if ok != 1 {
				t.Fatalf("%d claims succeeded, want exactly 1", ok)
			}
		})
	}
}

func TestNew_RequiresDomainAndStore(t *testing.T) {
	if _, err := New(Config{Store: memory.New()}); err == nil {
		t.Fatalf("expected error for empty domain")
	}
	if _, err := New(Config{Domain: permit.NewDomain("x", big.NewInt(1), contract)}); err == nil {
		t.Fatalf("expected error for missing store")
	}
}

func TestReasonOf_NonRejection(t *testing.T) {
	if ReasonOf(errors.New("disk full")) != "" || IsRejection(ledger.ErrConflict) {
		t.Fatalf("storage errors must not classify as rejections")
	}
}
