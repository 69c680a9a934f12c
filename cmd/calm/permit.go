package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ipfs/go-cid"

	"xdao.co/calm/cidutil"
	"xdao.co/calm/funds"
	"xdao.co/calm/keys"
	"xdao.co/calm/model"
	"xdao.co/calm/permit"
	"xdao.co/calm/tokenid"
)

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: calm cid <file>")
		return 2
	}
	path := fs.Arg(0)
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(path), err)
		return 1
	}
	id, err := cidutil.CIDv1RawSHA1(b)
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdTokenID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("token-id", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var creatorHex string
	var cidStr string
	fs.StringVar(&creatorHex, "creator", "", "Creator address")
	fs.StringVar(&cidStr, "cid", "", "Content CID (CIDv1 raw sha1) instead of a file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	creator, err := model.ParseAddress("creator", creatorHex, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --creator: %v\n", err)
		return 2
	}

	var id tokenid.ID
	switch {
	case cidStr != "" && fs.NArg() == 0:
		c, err := cid.Decode(cidStr)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --cid: %v\n", err)
			return 2
		}
		if id, err = tokenid.DeriveFromCID(c, creator); err != nil {
			fmt.Fprintf(errOut, "invalid --cid: %v\n", err)
			return 2
		}
	case cidStr == "" && fs.NArg() == 1:
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
			return 1
		}
		id = tokenid.Derive(b, creator)
	default:
		fmt.Fprintln(errOut, "usage: calm token-id --creator <addr> (<file> | --cid <CID>)")
		return 2
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdPermit(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: calm permit <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: sign, hash, verify")
		return 2
	}
	switch args[0] {
	case "sign":
		return cmdPermitSign(args[1:], out, errOut)
	case "hash":
		return cmdPermitHash(args[1:], out, errOut)
	case "verify":
		return cmdPermitVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown permit subcommand: %s\n", args[0])
		return 2
	}
}

func cmdPermitSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("permit sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var signer signerFlags
	var domain domainFlags
	signer.register(fs)
	domain.register(fs)

	var file, tokenIDStr, price, currency, payee, recipient, data string
	var nonce, kickoff, deadline int64
	fs.StringVar(&file, "file", "", "Metadata file the token is derived from")
	fs.StringVar(&tokenIDStr, "token-id", "", "Token id (instead of --file)")
	fs.Int64Var(&nonce, "nonce", -1, "Creator nonce (default: read from --server, else 0)")
	fs.StringVar(&price, "price", "0", "Minimum price in ether (or token units with 18 decimals)")
	fs.StringVar(&currency, "currency", "", "ERC-20 currency address (default: native)")
	fs.StringVar(&payee, "payee", "", "Payee address (default: creator)")
	fs.StringVar(&recipient, "recipient", "", "Only this claimant may claim (default: anyone)")
	fs.Int64Var(&kickoff, "kickoff", 0, "Window start, unix seconds (default: now)")
	fs.Int64Var(&deadline, "deadline", 0, "Window end, unix seconds (default: kickoff + 366 days)")
	fs.StringVar(&data, "data", "", "Opaque hex data")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !signer.provided() {
		fmt.Fprintln(errOut, "missing signer: provide --seed-hex, --signer, or --key-file")
		return 2
	}
	if (file == "") == (tokenIDStr == "") {
		fmt.Fprintln(errOut, "provide exactly one of --file or --token-id")
		return 2
	}
	key, err := signer.load()
	if err != nil {
		fmt.Fprintf(errOut, "load signer: %v\n", err)
		return 1
	}
	creator := keys.Address(key)

	var id tokenid.ID
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(errOut, "read --file: %v\n", err)
			return 1
		}
		id = tokenid.Derive(b, creator)
	} else {
		if id, err = tokenid.Parse(tokenIDStr); err != nil {
			fmt.Fprintf(errOut, "invalid --token-id: %v\n", err)
			return 2
		}
		if !id.BoundTo(creator) {
			fmt.Fprintf(errOut, "token %s is not bound to signer %s\n", id, creator.Hex())
			return 1
		}
	}

	ctx := context.Background()
	d, err := domain.resolve(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "domain: %v\n", err)
		return 1
	}
	if nonce < 0 {
		nonce = 0
		if domain.server.target != "" {
			n, err := currentNonce(ctx, &domain.server, creator)
			if err != nil {
				fmt.Fprintf(errOut, "nonce: %v\n", err)
				return 1
			}
			nonce = n.Int64()
		}
	}

	start := time.Now()
	if kickoff > 0 {
		start = time.Unix(kickoff, 0)
	}
	p := permit.New(id, creator, uint64(nonce), start)
	if deadline > 0 {
		p.Deadline = big.NewInt(deadline)
	}
	if p.MinimumPrice, err = funds.ParseEther(price); err != nil {
		fmt.Fprintf(errOut, "invalid --price: %v\n", err)
		return 2
	}
	addrs := []struct {
		flag string
		in   string
		out  *common.Address
	}{
		{"currency", currency, &p.Currency},
		{"payee", payee, &p.Payee},
		{"recipient", recipient, &p.Recipient},
	}
	for _, a := range addrs {
		if a.in == "" {
			continue
		}
		if *a.out, err = model.ParseAddress(a.flag, a.in, false); err != nil {
			fmt.Fprintf(errOut, "invalid --%s: %v\n", a.flag, err)
			return 2
		}
	}
	if data != "" {
		if p.Data, err = hexutil.Decode(data); err != nil {
			fmt.Fprintf(errOut, "invalid --data: %v\n", err)
			return 2
		}
	}
	if err := p.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid permit: %v\n", err)
		return 2
	}

	sig, err := keys.SignPermit(p, d, key)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	sp := model.SignedPermit{Permit: model.FromPermit(p), Signature: sig.Hex(), Signer: creator.Hex()}
	if err := writeJSON(out, sp); err != nil {
		fmt.Fprintf(errOut, "write: %v\n", err)
		return 1
	}
	return 0
}

func currentNonce(ctx context.Context, s *serverFlags, creator common.Address) (*big.Int, error) {
	c, err := s.dial()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	n, err := c.Nonce(ctx, creator)
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() {
		return nil, fmt.Errorf("nonce %s out of range", n)
	}
	return n, nil
}

func cmdPermitHash(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("permit hash", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var domain domainFlags
	var path string
	domain.register(fs)
	fs.StringVar(&path, "permit", "", "Permit JSON file (signed or unsigned)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	p, _, err := readSignedPermit(path)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	d, err := domain.resolve(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "domain: %v\n", err)
		return 1
	}
	h, err := permit.Hash(p, d)
	if err != nil {
		fmt.Fprintf(errOut, "hash: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, h.Hex())
	return 0
}

// cmdPermitVerify prints the recovered signer and fails unless the token is
// bound to it.
func cmdPermitVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("permit verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var domain domainFlags
	var path string
	domain.register(fs)
	fs.StringVar(&path, "permit", "", "Signed permit JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	p, sig, err := readSignedPermit(path)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	d, err := domain.resolve(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "domain: %v\n", err)
		return 1
	}
	signer, err := permit.Recover(p, d, sig)
	if err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	if !p.TokenID.BoundTo(signer) {
		fmt.Fprintf(errOut, "invalid: token %s is not bound to signer %s\n", p.TokenID, signer.Hex())
		return 1
	}
	_, _ = fmt.Fprintln(out, signer.Hex())
	return 0
}
