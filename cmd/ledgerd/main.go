package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"

	"powledger/core/config"
	"powledger/node"
)

var log = logging.Logger("ledgerd")

func main() {
	// Handle CLI commands first
	handleCLICommands()

	cfg := config.Default()
	var packPolicy string
	flag.StringVar(&cfg.ListenIP, "ip", cfg.ListenIP, "IP address to listen on and advertise to peers")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "API listen port")
	flag.StringVar(&cfg.Bootstrap, "bootstrap", "", "Bootstrap peer as ip:port or multiaddr (default: this node)")
	flag.IntVar(&cfg.Difficulty, "difficulty", cfg.Difficulty, "Trailing zero hex characters required in a block hash")
	flag.Uint64Var(&cfg.MaxAttempts, "max-attempts", 0, "Proof attempts per block before giving up (0 = unbounded)")
	flag.StringVar(&packPolicy, "pack", string(cfg.PackPolicy), "Pending transactions per block: latest or all")
	flag.IntVar(&cfg.PeerCap, "peer-cap", cfg.PeerCap, "Maximum number of neighbors")
	flag.DurationVar(&cfg.PeerTimeout, "peer-timeout", cfg.PeerTimeout, "Timeout of each call to a peer")
	flag.StringVar(&cfg.GenesisPath, "genesis", "", "Genesis block JSON file (default: embedded)")
	flag.StringVar(&cfg.DataDir, "data-dir", "", "Directory for the block archive (default: in memory)")
	flag.IntVar(&cfg.GossipPort, "gossip-port", 0, "libp2p head gossip port (0 = disabled)")
	flag.StringVar(&cfg.GossipPeer, "gossip-peer", "", "Multiaddr of a gossip host to connect to (optional)")
	flag.BoolVar(&cfg.LAN, "lan", false, "Advertise and discover nodes on the LAN with zeroconf")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logging.SetAllLoggers(lvl)

	policy, err := config.ParsePackPolicy(packPolicy)
	if err != nil {
		log.Fatalf("Invalid pack policy: %v", err)
	}
	cfg.PackPolicy = policy

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("[FATAL] Failed to create node: %v", err)
	}

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		log.Fatalf("[FATAL] Failed to start node: %v", err)
	}
	log.Infof("Neighbors after discovery: %v", n.Neighbors())

	// Wait for shutdown signal
	<-ctx.Done()
	log.Infof("Shutting down...")
	if err := n.Close(); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
}
