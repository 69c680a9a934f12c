package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"xdao.co/calm/config"
	"xdao.co/calm/keys"
	"xdao.co/calm/model"
	"xdao.co/calm/permit"
	"xdao.co/calm/rpc"
)

type signerFlags struct {
	seedHex string
	name    string
	role    string
	keyFile string
	keysDir string
}

func (s *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "Account seed as 64 hex chars")
	fs.StringVar(&s.name, "signer", "", "Stored key name")
	fs.StringVar(&s.role, "signer-role", "", "Optional derived role of --signer")
	fs.StringVar(&s.keyFile, "key-file", "", "Path to a seed file")
	fs.StringVar(&s.keysDir, "keys-dir", "", "Key store directory (default ~/.calm/keys)")
}

func (s *signerFlags) provided() bool {
	return s.seedHex != "" || s.name != "" || s.keyFile != ""
}

func (s *signerFlags) load() (*ecdsa.PrivateKey, error) {
	ks, err := keys.CreateKeyStore(s.keysDir)
	if err != nil {
		return nil, err
	}
	return ks.LoadAccount(s.seedHex, s.name, s.role, s.keyFile)
}

type serverFlags struct {
	target  string
	timeout time.Duration
}

func (s *serverFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.target, "server", "", "calmd gRPC address host:port")
	fs.DurationVar(&s.timeout, "timeout", 10*time.Second, "Per-RPC timeout")
}

func (s *serverFlags) dial() (*rpc.Client, error) {
	if s.target == "" {
		return nil, errors.New("missing --server")
	}
	c, err := rpc.Dial(s.target, rpc.DialOptions{Timeout: s.timeout})
	if err != nil {
		return nil, err
	}
	c.Timeout = s.timeout
	return c, nil
}

// domainFlags resolves the signing domain from a node or from flags.
type domainFlags struct {
	server   serverFlags
	name     string
	chainID  string
	contract string
}

func (d *domainFlags) register(fs *flag.FlagSet) {
	def := config.Default()
	d.server.register(fs)
	fs.StringVar(&d.name, "name", def.Token.Name, "Token name (signing domain name)")
	fs.StringVar(&d.chainID, "chain-id", def.ChainID, "Chain id")
	fs.StringVar(&d.contract, "contract", def.Contract, "Verifying contract address")
}

func (d *domainFlags) resolve(ctx context.Context) (permit.Domain, error) {
	if d.server.target == "" {
		cfg := config.Default()
		cfg.Token.Name, cfg.ChainID, cfg.Contract = d.name, d.chainID, d.contract
		return cfg.Domain()
	}
	c, err := d.server.dial()
	if err != nil {
		return permit.Domain{}, err
	}
	defer c.Close()
	info, err := c.Info(ctx)
	if err != nil {
		return permit.Domain{}, err
	}
	return domainFromInfo(info)
}

func domainFromInfo(info *model.Info) (permit.Domain, error) {
	if info.Version != permit.DomainVersion {
		return permit.Domain{}, fmt.Errorf("node uses domain version %q, want %q", info.Version, permit.DomainVersion)
	}
	chainID, err := model.ParseUint("chainId", info.ChainID)
	if err != nil {
		return permit.Domain{}, err
	}
	contract, err := model.ParseAddress("contract", info.Contract, false)
	if err != nil {
		return permit.Domain{}, err
	}
	return permit.NewDomain(info.Name, chainID, contract), nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return errors.New("missing file path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSignedPermit loads a signed permit file and decodes it.
func readSignedPermit(path string) (*permit.MintPermit, permit.Signature, error) {
	var sp model.SignedPermit
	if err := readJSON(path, &sp); err != nil {
		return nil, permit.Signature{}, fmt.Errorf("read permit: %w", err)
	}
	p, err := sp.Permit.ToMintPermit()
	if err != nil {
		return nil, permit.Signature{}, err
	}
	var sig permit.Signature
	if sp.Signature != "" {
		if sig, err = permit.ParseSignatureHex(sp.Signature); err != nil {
			return nil, permit.Signature{}, err
		}
	}
	return p, sig, nil
}
