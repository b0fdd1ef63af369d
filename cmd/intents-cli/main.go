// intents-cli is a command-line client for an intentsd node: it manages
// signer keys, signs intents and submits batches.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-intents/config"
	"github.com/Klingon-tech/klingnet-intents/internal/intents"
	"github.com/Klingon-tech/klingnet-intents/internal/nonce"
	"github.com/Klingon-tech/klingnet-intents/internal/payload"
	"github.com/Klingon-tech/klingnet-intents/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-intents/internal/wallet"
	"github.com/Klingon-tech/klingnet-intents/pkg/crypto"
	"github.com/Klingon-tech/klingnet-intents/pkg/types"
	"golang.org/x/term"
)

// passwordEnv, when set, replaces the interactive password prompt.
const passwordEnv = "INTENTS_WALLET_PASSWORD"

// keystoreDir returns the keystore path matching intentsd's layout:
// <datadir>/<network>/keystore
func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8545"
	dataDir := config.DefaultDataDir()
	network := "mainnet"

	// Scan for --rpc, --datadir and --network before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ksDir := keystoreDir(dataDir, network)
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "account":
		cmdAccount(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "nonce":
		cmdNonce(client, cmdArgs)
	case "wallet":
		cmdWallet(cmdArgs, ksDir)
	case "sign":
		cmdSign(client, cmdArgs, ksDir)
	case "transfer":
		cmdTransfer(client, cmdArgs, ksDir)
	case "diff":
		cmdDiff(client, cmdArgs, ksDir)
	case "submit":
		cmdSubmit(client, cmdArgs, "intents_execute")
	case "simulate":
		cmdSubmit(client, cmdArgs, "intents_simulate")
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: intents-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8545)
  --datadir <path>    Data directory (default: ~/.klingnet-intents)
  --network <net>     mainnet (default) or testnet

Commands:
  status                          Show protocol parameters
  account <account_id>            Show account flags, keys and balances
  balance <account_id> <token>... Show balances of tokens
  nonce new [--ttl 1h]            Print a fresh expirable nonce
  nonce check <account_id> <nonce>
                                  Report whether a nonce is used

  wallet create --name <n>        Create a wallet (prints the mnemonic)
  wallet import --name <n> --mnemonic "..."
                                  Import a wallet from its mnemonic
  wallet list                     List wallets
  wallet keys --wallet <w>        List keys of a wallet
  wallet new-key --wallet <w> [--curve ed25519|secp256k1] [--account <id>]
                                  Derive a key; without --account it signs
                                  for its implicit account

  sign --wallet <w> --account <id> --intents <file|-> [--ttl 1h]
                                  Sign a batch of intents, print the payload
  transfer --wallet <w> --account <id> --to <id> --token <t>=<amt>...
                                  Sign and execute a transfer
  diff --wallet <w> --account <id> --token <t>=<+/-amt>...
                                  Sign a token_diff for a solver to match
  submit <signed.json>...         Execute signed payloads as one batch
  simulate <signed.json>...       Dry-run signed payloads
`)
}

// ── status / queries ────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	info, err := client.ProtocolInfo(context.Background())
	if err != nil {
		fatal("protocol_getInfo: %v", err)
	}

	fmt.Printf("Version:             %s\n", info.Version)
	fmt.Printf("Verifying contract:  %s\n", info.VerifyingContract)
	fmt.Printf("wNEAR:               %s\n", info.WNearID)
	fmt.Printf("Fee:                 %d pips\n", info.Fee)
	fmt.Printf("Fee collector:       %s\n", info.FeeCollector)
	fmt.Printf("Pending withdrawals: %d\n", info.PendingWithdrawals)
	fmt.Printf("Time:                %s\n", info.Time)
}

func cmdAccount(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: intents-cli account <account_id>")
	}
	info, err := client.Account(context.Background(), types.AccountID(args[0]))
	if err != nil {
		fatal("account_getInfo: %v", err)
	}

	fmt.Printf("Account:           %s\n", info.Account)
	fmt.Printf("Locked:            %v\n", info.Locked)
	fmt.Printf("Predecessor auth:  %v\n", info.AuthByPredecessorIDEnabled)
	fmt.Printf("Public keys:       %d\n", len(info.PublicKeys))
	for _, k := range info.PublicKeys {
		fmt.Printf("  %s\n", k)
	}
	fmt.Printf("Balances:          %d\n", len(info.Balances))
	for _, t := range intents.SortedTokens(info.Balances) {
		fmt.Printf("  %-40s %s\n", t, info.Balances[t])
	}
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("Usage: intents-cli balance <account_id> <token>...")
	}
	tokens := make([]types.TokenID, 0, len(args)-1)
	for _, s := range args[1:] {
		t, err := types.ParseTokenID(s)
		if err != nil {
			fatal("%v", err)
		}
		tokens = append(tokens, t)
	}

	balances, err := client.BalanceOf(context.Background(), types.AccountID(args[0]), tokens)
	if err != nil {
		fatal("account_balanceOf: %v", err)
	}
	for i, t := range tokens {
		fmt.Printf("%-40s %s\n", t, balances[i])
	}
}

func cmdNonce(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: intents-cli nonce <new|check> ...")
	}
	switch args[0] {
	case "new":
		fs := flag.NewFlagSet("nonce new", flag.ExitOnError)
		ttl := fs.Duration("ttl", time.Hour, "Nonce lifetime")
		fs.Parse(args[1:])

		n, err := nonce.NewExpirable(types.DeadlineIn(*ttl))
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(n.Nonce())
	case "check":
		if len(args) != 3 {
			fatal("Usage: intents-cli nonce check <account_id> <nonce>")
		}
		n, err := types.ParseNonce(args[2])
		if err != nil {
			fatal("%v", err)
		}
		used, err := client.IsNonceUsed(context.Background(), types.AccountID(args[1]), n)
		if err != nil {
			fatal("account_isNonceUsed: %v", err)
		}
		if used {
			fmt.Println("used")
		} else {
			fmt.Println("unused")
		}
	default:
		fatal("Unknown nonce command: %s", args[0])
	}
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: intents-cli wallet <create|import|list|keys|new-key> [flags]")
	}

	switch args[0] {
	case "create":
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
		cmdWalletInit("wallet create", args[1:], ksDir, mnemonic)
	case "import":
		cmdWalletInit("wallet import", args[1:], ksDir, "")
	case "list":
		cmdWalletList(ksDir)
	case "keys":
		cmdWalletKeys(args[1:], ksDir)
	case "new-key":
		cmdWalletNewKey(args[1:], ksDir)
	default:
		fatal("Unknown wallet command: %s\nUsage: intents-cli wallet <create|import|list|keys|new-key> [flags]", args[0])
	}
}

// cmdWalletInit stores a wallet and its first ed25519 key. An empty
// mnemonic is read from --mnemonic.
func cmdWalletInit(name string, args []string, ksDir, mnemonic string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	walletName := fs.String("name", "", "Wallet name")
	flagMnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (import only)")
	fs.Parse(args)

	if mnemonic == "" {
		mnemonic = *flagMnemonic
	}
	if *walletName == "" || mnemonic == "" {
		fatal("Usage: intents-cli %s --name <name>", name)
	}
	if !wallet.ValidateMnemonic(mnemonic) {
		fatal("invalid mnemonic")
	}

	password := newPassword()
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if err := ks.Create(*walletName, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}

	entry, err := deriveKey(seed, 0, types.CurveEd25519, "")
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("derive key: %v", err)
	}
	entry.Name = "default"
	if err := ks.AddKey(*walletName, entry); err != nil {
		fatal("add key: %v", err)
	}

	fmt.Printf("\nWallet created: %s\n", *walletName)
	fmt.Printf("Account:    %s\n", entry.Account)
	fmt.Printf("Public key: %s\n", entry.PublicKey)
}

func cmdWalletList(ksDir string) {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func cmdWalletKeys(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet keys", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: intents-cli wallet keys --wallet <name>")
	}
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	keys, err := ks.Keys(*walletName)
	if err != nil {
		fatal("%v", err)
	}
	for _, k := range keys {
		fmt.Printf("[%d] %-10s %-64s %s\n", k.Index, k.Curve(), k.Account, k.PublicKey)
	}
}

func cmdWalletNewKey(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet new-key", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	curveName := fs.String("curve", "ed25519", "Key curve (ed25519 or secp256k1)")
	account := fs.String("account", "", "Named account the key will sign for")
	name := fs.String("name", "", "Label")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: intents-cli wallet new-key --wallet <name> [--curve c] [--account id]")
	}
	curve, err := parseCurve(*curveName)
	if err != nil {
		fatal("%v", err)
	}
	if *account != "" {
		if err := types.AccountID(*account).Validate(); err != nil {
			fatal("%v", err)
		}
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	index, err := ks.NextIndex(*walletName)
	if err != nil {
		fatal("%v", err)
	}
	password := promptPassword("Enter password: ")
	seed, err := ks.Load(*walletName, password)
	if err != nil {
		fatal("%v", err)
	}
	entry, err := deriveKey(seed, index, curve, types.AccountID(*account))
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("derive key: %v", err)
	}
	entry.Name = *name
	if err := ks.AddKey(*walletName, entry); err != nil {
		fatal("add key: %v", err)
	}

	fmt.Printf("Account:    %s\n", entry.Account)
	fmt.Printf("Public key: %s\n", entry.PublicKey)
	if *account != "" {
		fmt.Println("Register it on the account with an add_public_key intent before signing.")
	}
}

// deriveKey derives the key at index and describes it as a keystore entry.
// An empty account selects the key's implicit account.
func deriveKey(seed []byte, index uint32, curve types.Curve, account types.AccountID) (wallet.KeyEntry, error) {
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return wallet.KeyEntry{}, err
	}
	leaf, err := master.DeriveSigner(0, index)
	if err != nil {
		return wallet.KeyEntry{}, err
	}
	signer, err := leaf.Signer(curve)
	if err != nil {
		return wallet.KeyEntry{}, err
	}
	if account == "" {
		account = crypto.ImplicitAccountID(signer.Key())
	}
	return wallet.KeyEntry{Index: index, Account: account, PublicKey: signer.Key()}, nil
}

// ── signing ─────────────────────────────────────────────────────────────

// unlock loads the signer for account from a wallet.
func unlock(ksDir, walletName string, account types.AccountID) crypto.Signer {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	entry, err := ks.FindKey(walletName, account)
	if err != nil {
		fatal("%v", err)
	}
	signer, err := ks.Signer(walletName, promptPassword("Enter password: "), entry)
	if err != nil {
		fatal("%v", err)
	}
	return signer
}

func verifyingContract(client *rpcclient.Client) types.AccountID {
	info, err := client.ProtocolInfo(context.Background())
	if err != nil {
		fatal("protocol_getInfo: %v", err)
	}
	return info.VerifyingContract
}

func cmdSign(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.String("account", "", "Signer account")
	intentsFile := fs.String("intents", "", "JSON array of intents (- for stdin)")
	ttl := fs.Duration("ttl", time.Hour, "Payload lifetime")
	contract := fs.String("verifying-contract", "", "Override the node's verifying contract")
	out := fs.String("out", "", "Write the signed payload to a file")
	fs.Parse(args)

	if *walletName == "" || *account == "" || *intentsFile == "" {
		fatal("Usage: intents-cli sign --wallet <w> --account <id> --intents <file>")
	}
	batch, err := readIntents(*intentsFile)
	if err != nil {
		fatal("%v", err)
	}
	vc := types.AccountID(*contract)
	if vc == "" {
		vc = verifyingContract(client)
	}

	msg, err := newMessage(types.AccountID(*account), vc, *ttl, batch)
	if err != nil {
		fatal("%v", err)
	}
	signed, err := signMessage(msg, unlock(ksDir, *walletName, types.AccountID(*account)))
	if err != nil {
		fatal("sign: %v", err)
	}

	data, _ := json.MarshalIndent(signed, "", "  ")
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fatal("write %s: %v", *out, err)
	}
	fmt.Printf("Signed payload written to %s\n", *out)
}

func cmdTransfer(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.String("account", "", "Sender account")
	to := fs.String("to", "", "Receiver account")
	memo := fs.String("memo", "", "Optional memo")
	var tokens listFlag
	fs.Var(&tokens, "token", "<token>=<amount>, repeatable")
	fs.Parse(args)

	if *walletName == "" || *account == "" || *to == "" || len(tokens) == 0 {
		fatal("Usage: intents-cli transfer --wallet <w> --account <id> --to <id> --token <t>=<amt>")
	}
	amounts, err := parseTokenAmounts(tokens)
	if err != nil {
		fatal("%v", err)
	}

	transfer := intents.Transfer{ReceiverID: types.AccountID(*to), Tokens: amounts, Memo: *memo}
	msg, err := newMessage(types.AccountID(*account), verifyingContract(client), time.Hour, intents.Intents{transfer})
	if err != nil {
		fatal("%v", err)
	}
	signed, err := signMessage(msg, unlock(ksDir, *walletName, types.AccountID(*account)))
	if err != nil {
		fatal("sign: %v", err)
	}
	submit(client, "intents_execute", []payload.Signed{signed})
}

func cmdDiff(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.String("account", "", "Signer account")
	ttl := fs.Duration("ttl", 5*time.Minute, "Payload lifetime")
	var deltas listFlag
	fs.Var(&deltas, "token", "<token>=<+/-amount>, repeatable")
	fs.Parse(args)

	if *walletName == "" || *account == "" || len(deltas) == 0 {
		fatal("Usage: intents-cli diff --wallet <w> --account <id> --token <t>=<delta>")
	}
	diff, err := parseTokenDeltas(deltas)
	if err != nil {
		fatal("%v", err)
	}

	msg, err := newMessage(types.AccountID(*account), verifyingContract(client), *ttl, intents.Intents{intents.TokenDiff{Diff: diff}})
	if err != nil {
		fatal("%v", err)
	}
	signed, err := signMessage(msg, unlock(ksDir, *walletName, types.AccountID(*account)))
	if err != nil {
		fatal("sign: %v", err)
	}
	data, _ := json.MarshalIndent(signed, "", "  ")
	fmt.Println(string(data))
}

func cmdSubmit(client *rpcclient.Client, args []string, method string) {
	if len(args) == 0 {
		fatal("Usage: intents-cli %s <signed.json>...", strings.TrimPrefix(method, "intents_"))
	}
	batch, err := readSigned(args)
	if err != nil {
		fatal("%v", err)
	}
	submit(client, method, batch)
}

func submit(client *rpcclient.Client, method string, batch []payload.Signed) {
	result, err := client.Submit(context.Background(), method, batch)
	if err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Kind() != "" {
			fatal("%s rejected (%s): %s", method, rpcErr.Kind(), rpcErr.Message)
		}
		fatal("%s: %v", method, err)
	}
	var pretty any
	json.Unmarshal(result, &pretty)
	data, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(data))
}

// ── Password helpers ────────────────────────────────────────────────────

func promptPassword(prompt string) []byte {
	if p, ok := os.LookupEnv(passwordEnv); ok {
		return []byte(p)
	}
	password, err := readPassword(prompt)
	if err != nil {
		fatal("read password: %v", err)
	}
	return password
}

func newPassword() []byte {
	if p, ok := os.LookupEnv(passwordEnv); ok {
		return []byte(p)
	}
	password := promptPassword("Enter password: ")
	confirm := promptPassword("Confirm password: ")
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
