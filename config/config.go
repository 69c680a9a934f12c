// Package config loads the claim daemon's JSON configuration and opens the
// components it names.
//
// Example:
//
//	{
//	  "listen": "127.0.0.1:7788",
//	  "metrics_listen": "127.0.0.1:9464",
//	  "chain_id": "1337",
//	  "contract": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
//	  "token": {"name": "Calm Token", "symbol": "CALM"},
//	  "ledger": {"backend": "badger", "config": {"badger-dir": "/var/lib/calm/ledger"}},
//	  "metadata": {
//	    "write_policy": "all",
//	    "backends": [{"id": "primary", "dir": "/var/lib/calm/meta"}, {"id": "ipfs", "type": "ipfs"}]
//	  },
//	  "cost": "0.001",
//	  "collector": "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
//	  "faucet": {"enabled": true, "amount": "1"},
//	  "attester": {"alg": "ed25519", "seed_hex": "..."}
//	}
//
// Ledger backends are resolved through ledger/registry, so binaries must
// link the backends they accept (see ledger/registry/builtin).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/calm/funds"
	"xdao.co/calm/keys"
	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/registry"
	"xdao.co/calm/model"
	"xdao.co/calm/permit"
	"xdao.co/calm/storage"
	"xdao.co/calm/storage/ipfs"
	"xdao.co/calm/storage/localfs"
)

const (
	DefaultListen  = "127.0.0.1:7788"
	DefaultBackend = "memory"
	DefaultChainID = "1337"
)

type Config struct {
	Listen        string `json:"listen,omitempty"`
	MetricsListen string `json:"metrics_listen,omitempty"`

	ChainID  string      `json:"chain_id"`
	Contract string      `json:"contract"`
	Token    TokenConfig `json:"token"`

	// Account receives overpayments. Defaults to Contract.
	Account string `json:"account,omitempty"`

	Ledger   LedgerConfig   `json:"ledger"`
	Metadata MetadataConfig `json:"metadata"`

	// Cost is the flat transaction cost in ether, charged to the claimant
	// and paid to Collector (default Account).
	Cost      string `json:"cost,omitempty"`
	Collector string `json:"collector,omitempty"`

	Faucet   FaucetConfig    `json:"faucet"`
	Attester *AttesterConfig `json:"attester,omitempty"`
}

type TokenConfig struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type LedgerConfig struct {
	// Backend is a ledger/registry backend name ("memory", "badger", "redis").
	Backend string `json:"backend"`
	// Config values are backend-specific and mirror the backend's flag names.
	Config map[string]string `json:"config,omitempty"`
}

type FaucetConfig struct {
	Enabled bool `json:"enabled"`
	// Amount is the most one request may grant, in ether. Defaults to 1.
	Amount string `json:"amount,omitempty"`
}

type AttesterConfig struct {
	Alg     string `json:"alg"`
	SeedHex string `json:"seed_hex"`
	HashAlg string `json:"hash_alg,omitempty"`
}

// Default returns a configuration for a throwaway local node.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		ChainID:  DefaultChainID,
		Contract: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Token:    TokenConfig{Name: "Calm Token", Symbol: "CALM"},
		Ledger:   LedgerConfig{Backend: DefaultBackend},
	}
}

// LoadFile reads path. Missing fields take their Default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := c.Domain(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		return errors.New("config: token.symbol is required")
	}
	if c.Ledger.Backend == "" {
		return errors.New("config: ledger.backend is required")
	}
	if _, err := c.AccountAddress(); err != nil {
		return err
	}
	if _, err := c.CostWei(); err != nil {
		return err
	}
	if _, err := c.CollectorAddress(); err != nil {
		return err
	}
	if _, err := c.FaucetMax(); err != nil {
		return err
	}
	if err := c.Metadata.Validate(); err != nil {
		return err
	}
	if c.Attester != nil {
		if _, err := c.Attester.Open(); err != nil {
			return err
		}
	}
	return nil
}

// Domain is the signing domain of the deployment.
func (c Config) Domain() (permit.Domain, error) {
	name := strings.TrimSpace(c.Token.Name)
	if name == "" {
		return permit.Domain{}, errors.New("config: token.name is required")
	}
	id, err := model.ParseUint("chain_id", c.ChainID)
	if err != nil || id.Sign() == 0 {
		return permit.Domain{}, fmt.Errorf("config: chain_id %q must be a positive integer", c.ChainID)
	}
	contract, err := model.ParseAddress("contract", c.Contract, false)
	if err != nil {
		return permit.Domain{}, fmt.Errorf("config: %w", err)
	}
	return permit.NewDomain(name, id, contract), nil
}

// AccountAddress is the executor account, defaulting to the contract.
func (c Config) AccountAddress() (common.Address, error) {
	s := c.Account
	if s == "" {
		s = c.Contract
	}
	a, err := model.ParseAddress("account", s, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("config: %w", err)
	}
	return a, nil
}

func (c Config) CollectorAddress() (common.Address, error) {
	if c.Collector == "" {
		return c.AccountAddress()
	}
	a, err := model.ParseAddress("collector", c.Collector, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("config: %w", err)
	}
	return a, nil
}

// CostWei is the transaction cost in wei; zero when unset.
func (c Config) CostWei() (*big.Int, error) {
	if c.Cost == "" {
		return new(big.Int), nil
	}
	v, err := funds.ParseEther(c.Cost)
	if err != nil {
		return nil, fmt.Errorf("config: cost: %w", err)
	}
	return v, nil
}

// FaucetMax is the per-request faucet cap in wei.
func (c Config) FaucetMax() (*big.Int, error) {
	if c.Faucet.Amount == "" {
		return funds.ParseEther("1")
	}
	v, err := funds.ParseEther(c.Faucet.Amount)
	if err != nil || v.Sign() <= 0 {
		return nil, fmt.Errorf("config: faucet.amount %q must be a positive ether amount", c.Faucet.Amount)
	}
	return v, nil
}

// OpenLedger opens the configured ledger backend.
func (c Config) OpenLedger() (ledger.Store, func() error, error) {
	return registry.OpenWithConfig(c.Ledger.Backend, c.Ledger.Config)
}

// Open builds the receipt attester.
func (a AttesterConfig) Open() (*keys.Attester, error) {
	seed, err := keys.ParseSeedHex(a.SeedHex)
	if err != nil {
		return nil, fmt.Errorf("config: attester.seed_hex: %w", err)
	}
	att, err := keys.NewAttester(a.Alg, seed, a.HashAlg)
	if err != nil {
		return nil, fmt.Errorf("config: attester: %w", err)
	}
	return att, nil
}

// OpenAttester returns nil when no attester is configured.
func (c Config) OpenAttester() (*keys.Attester, error) {
	if c.Attester == nil {
		return nil, nil
	}
	return c.Attester.Open()
}

// MetadataConfig describes where token metadata is kept.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends and require CID equality (see storage.ReplicatingCAS)
type MetadataConfig struct {
	WritePolicy string                  `json:"write_policy,omitempty"`
	Backends    []MetadataBackendConfig `json:"backends,omitempty"`
}

// Metadata backend types.
const (
	MetadataLocalFS = "localfs"
	MetadataIPFS    = "ipfs"
)

type MetadataBackendConfig struct {
	// Type is MetadataLocalFS (default) or MetadataIPFS.
	Type string `json:"type,omitempty"`
	// ID is a stable alias used in per-backend CID maps. Defaults to Dir,
	// or to Type when Dir is empty.
	ID string `json:"id,omitempty"`
	// Dir is the localfs root, or the IPFS repo (IPFS_PATH) for ipfs.
	Dir string `json:"dir,omitempty"`
	// Bin is the ipfs binary for MetadataIPFS.
	Bin string `json:"bin,omitempty"`
}

func (m MetadataConfig) Validate() error {
	seen := make(map[string]struct{}, len(m.Backends))
	for _, b := range m.Backends {
		switch b.Type {
		case "", MetadataLocalFS:
			if b.Dir == "" {
				return errors.New("config: metadata localfs backend dir is required")
			}
		case MetadataIPFS:
		default:
			return fmt.Errorf("config: unknown metadata backend type %q", b.Type)
		}
		id := b.name()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("config: duplicate metadata backend id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch m.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("config: invalid metadata write_policy %q", m.WritePolicy)
	}
}

func (b MetadataBackendConfig) name() string {
	switch {
	case b.ID != "":
		return b.ID
	case b.Dir != "":
		return b.Dir
	case b.Type != "":
		return b.Type
	default:
		return MetadataLocalFS
	}
}

func (b MetadataBackendConfig) open() (storage.CAS, error) {
	if b.Type == MetadataIPFS {
		return ipfs.New(ipfs.Options{Bin: b.Bin, RepoPath: b.Dir, Timeout: 30 * time.Second}), nil
	}
	return localfs.New(b.Dir)
}

// Open opens the metadata store. It returns nil when no backends are
// configured.
func (m MetadataConfig) Open() (storage.CAS, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(m.Backends) == 0 {
		return nil, nil
	}
	named := make([]storage.NamedCAS, 0, len(m.Backends))
	for _, b := range m.Backends {
		cas, err := b.open()
		if err != nil {
			return nil, fmt.Errorf("config: metadata %q: %w", b.name(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.name(), CAS: cas})
	}
	if len(named) == 1 {
		return named[0].CAS, nil
	}
	switch m.WritePolicy {
	case "", "first":
		adapters := make([]storage.CAS, 0, len(named))
		for _, n := range named {
			adapters = append(adapters, n.CAS)
		}
		return storage.MultiCAS{Adapters: adapters}, nil
	default:
		return storage.ReplicatingCAS{Backends: named}, nil
	}
}
