package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"xdao.co/calm/chain"
	"xdao.co/calm/funds"
	"xdao.co/calm/keys"
	"xdao.co/calm/model"
	"xdao.co/calm/storage/bundle"
	"xdao.co/calm/storage/localfs"
	"xdao.co/calm/tokenid"
)

func cmdClaim(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	var signer signerFlags
	var path, claimantHex, value string
	server.register(fs)
	signer.register(fs)
	fs.StringVar(&path, "permit", "", "Signed permit JSON file")
	fs.StringVar(&claimantHex, "claimant", "", "Claimant address (default: address of the signer flags)")
	fs.StringVar(&value, "value", "", "Native value in ether (default: the permit's minimum price when native)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	p, sig, err := readSignedPermit(path)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 1
	}
	var claimant common.Address
	switch {
	case claimantHex != "":
		if claimant, err = model.ParseAddress("claimant", claimantHex, false); err != nil {
			fmt.Fprintf(errOut, "invalid --claimant: %v\n", err)
			return 2
		}
	case signer.provided():
		key, err := signer.load()
		if err != nil {
			fmt.Fprintf(errOut, "load signer: %v\n", err)
			return 1
		}
		claimant = keys.Address(key)
	case !p.OpenToAnyone():
		claimant = p.Recipient
	default:
		fmt.Fprintln(errOut, "missing claimant: provide --claimant or signer flags")
		return 2
	}

	amount := new(big.Int)
	switch {
	case value != "":
		if amount, err = funds.ParseEther(value); err != nil {
			fmt.Fprintf(errOut, "invalid --value: %v\n", err)
			return 2
		}
	case p.IsNative():
		amount.Set(p.MinimumPrice)
	}

	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	rcpt, err := c.Claim(context.Background(), model.NewClaimRequest(p, sig, claimant, amount))
	if err != nil {
		fmt.Fprintf(errOut, "claim: %v\n", err)
		return 1
	}
	if err := writeJSON(out, rcpt); err != nil {
		fmt.Fprintf(errOut, "write: %v\n", err)
		return 1
	}
	if !rcpt.Succeeded() {
		fmt.Fprintf(errOut, "rejected: %s (%s)\n", rcpt.Reason, rcpt.Rule)
		return 1
	}
	return 0
}

func cmdReceipt(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprintln(errOut, "usage: calm receipt verify --receipt <file> [--attester-key <key>]")
		return 2
	}
	fs := flag.NewFlagSet("receipt verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var path, attesterKey string
	fs.StringVar(&path, "receipt", "", "Receipt JSON file")
	fs.StringVar(&attesterKey, "attester-key", "", "Expected attester key (alg:base64)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	var rcpt chain.Receipt
	if err := readJSON(path, &rcpt); err != nil {
		fmt.Fprintf(errOut, "read receipt: %v\n", err)
		return 1
	}
	if err := chain.VerifyReceipt(&rcpt, attesterKey); err != nil {
		fmt.Fprintf(errOut, "invalid: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, rcpt.CID)
	return 0
}

func cmdNonce(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("nonce", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	var creatorHex string
	server.register(fs)
	fs.StringVar(&creatorHex, "creator", "", "Creator address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	creator, err := model.ParseAddress("creator", creatorHex, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --creator: %v\n", err)
		return 2
	}
	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	n, err := c.Nonce(context.Background(), creator)
	if err != nil {
		fmt.Fprintf(errOut, "nonce: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, n.String())
	return 0
}

func cmdOwner(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("owner", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	var idStr string
	server.register(fs)
	fs.StringVar(&idStr, "token-id", "", "Token id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, err := tokenid.Parse(idStr)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --token-id: %v\n", err)
		return 2
	}
	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	owner, ok, err := c.OwnerOf(context.Background(), id)
	if err != nil {
		fmt.Fprintf(errOut, "owner: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintf(errOut, "token %s is not minted\n", id)
		return 1
	}
	_, _ = fmt.Fprintln(out, owner.Hex())
	return 0
}

func cmdBalance(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	var accountHex, currencyHex string
	var wei bool
	server.register(fs)
	fs.StringVar(&accountHex, "account", "", "Account address")
	fs.StringVar(&currencyHex, "currency", "", "Currency address (default: native)")
	fs.BoolVar(&wei, "wei", false, "Print the raw integer amount")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	account, err := model.ParseAddress("account", accountHex, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --account: %v\n", err)
		return 2
	}
	currency, err := model.ParseAddress("currency", currencyHex, true)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --currency: %v\n", err)
		return 2
	}
	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	bal, err := c.Balance(context.Background(), currency, account)
	if err != nil {
		fmt.Fprintf(errOut, "balance: %v\n", err)
		return 1
	}
	if wei {
		_, _ = fmt.Fprintln(out, bal.String())
	} else {
		_, _ = fmt.Fprintln(out, funds.FormatEther(bal))
	}
	return 0
}

func cmdFaucet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("faucet", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	var toHex, amountStr string
	server.register(fs)
	fs.StringVar(&toHex, "to", "", "Recipient address")
	fs.StringVar(&amountStr, "amount", "", "Amount in ether (default: node default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	to, err := model.ParseAddress("to", toHex, false)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --to: %v\n", err)
		return 2
	}
	var amount *big.Int
	if amountStr != "" {
		if amount, err = funds.ParseEther(amountStr); err != nil {
			fmt.Fprintf(errOut, "invalid --amount: %v\n", err)
			return 2
		}
	}
	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	bal, err := c.Faucet(context.Background(), to, amount)
	if err != nil {
		fmt.Fprintf(errOut, "faucet: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, funds.FormatEther(bal))
	return 0
}

func cmdInfo(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	server.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c, err := server.dial()
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return 2
	}
	defer c.Close()
	info, err := c.Info(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "info: %v\n", err)
		return 1
	}
	if err := writeJSON(out, info); err != nil {
		fmt.Fprintf(errOut, "write: %v\n", err)
		return 1
	}
	return 0
}

func cmdMetadata(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: calm metadata <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: put, get, export, import")
		return 2
	}
	fs := flag.NewFlagSet("metadata "+args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	var server serverFlags
	server.register(fs)
	switch args[0] {
	case "put":
		var creatorHex string
		fs.StringVar(&creatorHex, "creator", "", "Creator address (prints the derived token id)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: calm metadata put --server <addr> [--creator <addr>] <file>")
			return 2
		}
		creator, err := model.ParseAddress("creator", creatorHex, true)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --creator: %v\n", err)
			return 2
		}
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
			return 1
		}
		c, err := server.dial()
		if err != nil {
			fmt.Fprintf(errOut, "%v\n", err)
			return 2
		}
		defer c.Close()
		resp, err := c.PutMetadata(context.Background(), b, creator)
		if err != nil {
			fmt.Fprintf(errOut, "put: %v\n", err)
			return 1
		}
		if err := writeJSON(out, resp); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
		return 0
	case "get":
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: calm metadata get --server <addr> <CID>")
			return 2
		}
		id, err := cid.Decode(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid: %v\n", err)
			return 2
		}
		c, err := server.dial()
		if err != nil {
			fmt.Fprintf(errOut, "%v\n", err)
			return 2
		}
		defer c.Close()
		b, err := c.GetMetadata(context.Background(), id)
		if err != nil {
			fmt.Fprintf(errOut, "get: %v\n", err)
			return 1
		}
		_, _ = out.Write(b)
		return 0
	case "export":
		var dir, outPath string
		labels := labelFlags{}
		fs.StringVar(&dir, "dir", "", "Local metadata directory")
		fs.StringVar(&outPath, "out", "", "Output bundle path (default stdout)")
		fs.Var(labels, "label", "Index label name=CID (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if dir == "" || fs.NArg() == 0 {
			fmt.Fprintln(errOut, "usage: calm metadata export --dir <dir> [--out <file>] [--label name=CID]... <CID>...")
			return 2
		}
		ids := make([]cid.Cid, 0, fs.NArg())
		for _, s := range fs.Args() {
			id, err := cid.Decode(s)
			if err != nil {
				fmt.Fprintf(errOut, "invalid cid %q: %v\n", s, err)
				return 2
			}
			ids = append(ids, id)
		}
		cas, err := localfs.New(dir)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", dir, err)
			return 1
		}
		w := out
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				fmt.Fprintf(errOut, "create %s: %v\n", filepath.Base(outPath), err)
				return 1
			}
			defer f.Close()
			w = f
		}
		opts := bundle.ExportOptions{IncludeIndex: true, Labels: labels}
		if err := bundle.Export(w, cas, ids, opts); err != nil {
			fmt.Fprintf(errOut, "export: %v\n", err)
			return 1
		}
		return 0
	case "import":
		var dir string
		fs.StringVar(&dir, "dir", "", "Local metadata directory")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if dir == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: calm metadata import --dir <dir> <bundle>")
			return 2
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(fs.Arg(0)), err)
			return 1
		}
		defer f.Close()
		cas, err := localfs.New(dir)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", dir, err)
			return 1
		}
		ids, err := bundle.Import(f, cas)
		if err != nil {
			fmt.Fprintf(errOut, "import: %v\n", err)
			return 1
		}
		for _, id := range ids {
			fmt.Fprintln(out, id.String())
		}
		return 0
	default:
		fmt.Fprintf(errOut, "unknown metadata subcommand: %s\n", args[0])
		return 2
	}
}

// labelFlags collects repeated --label name=CID values.
type labelFlags map[string]cid.Cid

func (l labelFlags) String() string { return fmt.Sprintf("%d labels", len(l)) }

func (l labelFlags) Set(v string) error {
	name, raw, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("label must be name=CID")
	}
	id, err := cid.Decode(raw)
	if err != nil {
		return err
	}
	l[name] = id
	return nil
}
