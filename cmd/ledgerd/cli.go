package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"powledger/core"
	"powledger/core/config"
	"powledger/net"
)

// CLI commands that talk to a running node
func handleCLICommands() {
	if len(os.Args) < 2 {
		return // No subcommand, run as daemon
	}

	var err error
	switch subcommand := os.Args[1]; subcommand {
	case "chain":
		err = handleChainCommand(os.Args[2:])
	case "peers":
		err = handlePeersCommand(os.Args[2:])
	case "pool":
		err = handlePoolCommand(os.Args[2:])
	case "send":
		err = handleSendCommand(os.Args[2:])
	case "mine":
		err = handleMineCommand(os.Args[2:])
	case "help":
		printHelp()
	default:
		// Unknown subcommand, run as daemon
		return
	}
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	os.Exit(0)
}

// remote holds the flags every subcommand shares.
type remote struct {
	node    *string
	timeout *time.Duration
}

func remoteFlags(fs *flag.FlagSet) remote {
	return remote{
		node:    fs.String("node", fmt.Sprintf("127.0.0.1:%d", config.DefaultPort), "Node api address as ip:port or multiaddr"),
		timeout: fs.Duration("timeout", 30*time.Second, "Request timeout"),
	}
}

func (r remote) dial() (context.Context, context.CancelFunc, core.Peer, *net.HTTPClient, error) {
	target, err := net.ParsePeer(*r.node)
	if err != nil {
		return nil, nil, core.Peer{}, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *r.timeout)
	return ctx, cancel, target, net.NewHTTPClient(config.DefaultDifficulty), nil
}

func handleChainCommand(args []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	r := remoteFlags(fs)
	fs.Parse(args)

	ctx, cancel, target, client, err := r.dial()
	if err != nil {
		return err
	}
	defer cancel()

	content, err := client.FetchChain(ctx, target)
	if err != nil {
		return fmt.Errorf("fetch chain from %s: %w", target, err)
	}
	data := pterm.TableData{{"Index", "Time", "Proof", "Hash", "Previous", "Txs"}}
	for _, b := range content.Chain {
		data = append(data, []string{
			strconv.FormatUint(b.Index, 10),
			time.UnixMilli(b.Timestamp).Format(time.DateTime),
			strconv.FormatUint(b.Proof, 10),
			short(b.Hash()),
			short(b.PreviousHash),
			strconv.Itoa(len(b.Transactions)),
		})
	}
	pterm.Info.Printfln("Chain of %s: length %d, difficulty %d", target, content.Length, content.Difficulty)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func handlePeersCommand(args []string) error {
	fs := flag.NewFlagSet("peers", flag.ExitOnError)
	r := remoteFlags(fs)
	fs.Parse(args)

	ctx, cancel, target, client, err := r.dial()
	if err != nil {
		return err
	}
	defer cancel()

	peers, err := client.Neighbors(ctx, target)
	if err != nil {
		return fmt.Errorf("fetch neighbors from %s: %w", target, err)
	}
	data := pterm.TableData{{"IP", "Port"}}
	for _, p := range peers {
		data = append(data, []string{p.IP, strconv.Itoa(p.Port)})
	}
	pterm.Info.Printfln("%s has %d neighbors", target, len(peers))
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func handlePoolCommand(args []string) error {
	fs := flag.NewFlagSet("pool", flag.ExitOnError)
	r := remoteFlags(fs)
	fs.Parse(args)

	ctx, cancel, target, client, err := r.dial()
	if err != nil {
		return err
	}
	defer cancel()

	txs, err := client.Pool(ctx, target)
	if err != nil {
		return fmt.Errorf("fetch pool from %s: %w", target, err)
	}
	data := pterm.TableData{{"ID", "Sender", "Receiver", "Value"}}
	for _, tx := range txs {
		data = append(data, []string{short(tx.ID), tx.Sender, tx.Receiver, string(tx.Value)})
	}
	pterm.Info.Printfln("%s has %d pending transactions", target, len(txs))
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func handleSendCommand(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	r := remoteFlags(fs)
	from := fs.String("from", "", "Sender identifier")
	to := fs.String("to", "", "Receiver identifier")
	value := fs.String("value", "", "Amount to send")
	fs.Parse(args)

	tx := core.NewTx(*from, *to, core.Amount(*value))
	if err := tx.Check(); err != nil {
		fmt.Println("Usage: ledgerd send -from=<id> -to=<id> -value=<amount> [-node=<ip:port>]")
		return err
	}

	ctx, cancel, target, client, err := r.dial()
	if err != nil {
		return err
	}
	defer cancel()

	spinner, _ := pterm.DefaultSpinner.Start("Submitting and mining ", tx, " ...")
	msg, err := client.Submit(ctx, target, tx)
	if err != nil {
		spinner.Fail(err)
		return fmt.Errorf("submit to %s: %w", target, err)
	}
	spinner.Success(msg, " (id ", short(tx.ID()), ")")
	return nil
}

func handleMineCommand(args []string) error {
	fs := flag.NewFlagSet("mine", flag.ExitOnError)
	r := remoteFlags(fs)
	fs.Parse(args)

	ctx, cancel, target, client, err := r.dial()
	if err != nil {
		return err
	}
	defer cancel()

	spinner, _ := pterm.DefaultSpinner.Start("Mining on ", target, " ...")
	block, msg, err := client.Mine(ctx, target)
	if err != nil {
		spinner.Fail(err)
		return fmt.Errorf("mine on %s: %w", target, err)
	}
	spinner.Success(msg)
	pterm.Info.Printfln("Tail is block #%d %s (proof %d, %d txs)", block.Index, block.Hash(), block.Proof, len(block.Transactions))
	return nil
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}

func printHelp() {
	fmt.Println("ledgerd - proof-of-work ledger node")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ledgerd [flags]                  - Run as daemon")
	fmt.Println("  ledgerd chain [flags]            - Show a node's chain")
	fmt.Println("  ledgerd peers [flags]            - Show a node's neighbors")
	fmt.Println("  ledgerd pool [flags]             - Show a node's pending transactions")
	fmt.Println("  ledgerd send [flags]             - Submit a transaction")
	fmt.Println("  ledgerd mine [flags]             - Ask a node to mine a block")
	fmt.Println("  ledgerd help                     - Show this help")
	fmt.Println()
	fmt.Println("Daemon Flags:")
	fmt.Println("  --ip=<ip> --port=<port>          - API address (default 127.0.0.1:3002)")
	fmt.Println("  --bootstrap=<ip:port|multiaddr>  - Peer to start discovery from")
	fmt.Println("  --difficulty=<n>                 - Trailing zero hex characters (default 4)")
	fmt.Println("  --max-attempts=<n>               - Proof attempts per block (0 = unbounded)")
	fmt.Println("  --pack=<latest|all>              - Pending transactions per block")
	fmt.Println("  --peer-cap=<n>                   - Maximum neighbors (default 4)")
	fmt.Println("  --peer-timeout=<duration>        - Timeout of each peer call (default 5s)")
	fmt.Println("  --genesis=<path>                 - Genesis block JSON")
	fmt.Println("  --data-dir=<path>                - Block archive directory")
	fmt.Println("  --gossip-port=<port>             - libp2p head gossip port")
	fmt.Println("  --gossip-peer=<multiaddr>        - Gossip host to connect to")
	fmt.Println("  --lan                            - zeroconf LAN discovery")
	fmt.Println("  --log-level=<level>              - debug, info, warn, error")
	fmt.Println()
	fmt.Println("Client Flags (all subcommands):")
	fmt.Println("  --node=<ip:port>                 - Node to talk to (default 127.0.0.1:3002)")
	fmt.Println("  --timeout=<duration>             - Request timeout (default 30s)")
	fmt.Println()
	fmt.Println("Send Flags:")
	fmt.Println("  --from=<id> --to=<id> --value=<amount>")
}
