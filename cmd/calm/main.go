// Command calm derives token ids, signs mint permits and talks to a calmd
// node.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "token-id":
		return cmdTokenID(args[1:], out, errOut)
	case "permit":
		return cmdPermit(args[1:], out, errOut)
	case "claim":
		return cmdClaim(args[1:], out, errOut)
	case "receipt":
		return cmdReceipt(args[1:], out, errOut)
	case "nonce":
		return cmdNonce(args[1:], out, errOut)
	case "owner":
		return cmdOwner(args[1:], out, errOut)
	case "balance":
		return cmdBalance(args[1:], out, errOut)
	case "faucet":
		return cmdFaucet(args[1:], out, errOut)
	case "info":
		return cmdInfo(args[1:], out, errOut)
	case "metadata":
		return cmdMetadata(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "calm: content addressed lazy mint CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  calm cid <file>")
	fmt.Fprintln(w, "  calm token-id --creator <addr> (<file> | --cid <CID>)")
	fmt.Fprintln(w, "  calm permit sign (--file <metadata> | --token-id <id>) [--nonce <n>] [--price <ether>] [--currency <addr>] [--payee <addr>] [--recipient <addr>] [--kickoff <unix>] [--deadline <unix>] [--data <hex>] <signer> <domain>")
	fmt.Fprintln(w, "  calm permit hash --permit <file> <domain>")
	fmt.Fprintln(w, "  calm permit verify --permit <file> <domain>")
	fmt.Fprintln(w, "  calm claim --server <addr> --permit <file> (--claimant <addr> | <signer>) [--value <ether>]")
	fmt.Fprintln(w, "  calm receipt verify --receipt <file> [--attester-key <key>]")
	fmt.Fprintln(w, "  calm nonce --server <addr> --creator <addr>")
	fmt.Fprintln(w, "  calm owner --server <addr> --token-id <id>")
	fmt.Fprintln(w, "  calm balance --server <addr> --account <addr> [--currency <addr>]")
	fmt.Fprintln(w, "  calm faucet --server <addr> --to <addr> [--amount <ether>]")
	fmt.Fprintln(w, "  calm info --server <addr>")
	fmt.Fprintln(w, "  calm metadata put --server <addr> [--creator <addr>] <file>")
	fmt.Fprintln(w, "  calm metadata get --server <addr> <CID>")
	fmt.Fprintln(w, "  calm metadata export --dir <dir> [--out <file>] [--label name=CID]... <CID>...")
	fmt.Fprintln(w, "  calm metadata import --dir <dir> <bundle>")
	fmt.Fprintln(w, "  calm key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  calm key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  calm key list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signer flags: --seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>")
	fmt.Fprintln(w, "Domain flags: --server <addr> | [--name <token name>] [--chain-id <id>] [--contract <addr>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - cid prints the CIDv1 (raw, sha1) that names a token's content")
	fmt.Fprintln(w, "  - keys are secp256k1 seeds stored under ~/.calm/keys/<name> (0600 files)")
	fmt.Fprintln(w, "  - with --server, permit commands read the signing domain and creator nonce from the node")
	fmt.Fprintln(w, "  - claim prints the receipt and exits 1 when the claim is rejected")
}
