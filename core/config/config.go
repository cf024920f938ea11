// Package config holds node configuration and its defaults.
package config

import (
	"fmt"
	"time"
)

// Reference parameters of the network.
const (
	DefaultDifficulty  = 4
	DefaultPeerCap     = 4
	DefaultPort        = 3002
	DefaultPeerTimeout = 5 * time.Second
	MaxDifficulty      = 64 // hex length of a SHA-256 digest
)

// PackPolicy selects which pending transactions go into the next block.
type PackPolicy string

const (
	// PackLatest packs only the most recently submitted transaction.
	PackLatest PackPolicy = "latest"
	// PackAll drains the whole pool into one block.
	PackAll PackPolicy = "all"
)

// ParsePackPolicy validates a policy name.
func ParsePackPolicy(s string) (PackPolicy, error) {
	switch PackPolicy(s) {
	case PackLatest, PackAll:
		return PackPolicy(s), nil
	}
	return "", fmt.Errorf("unknown pack policy %q (want %q or %q)", s, PackLatest, PackAll)
}

// Config is everything a node needs at startup. The daemon fills it from flags.
type Config struct {
	ListenIP string
	Port     int

	// Bootstrap is the peer contacted once at startup, as ip:port or a
	// multiaddr. Empty means the node bootstraps from itself.
	Bootstrap string

	Difficulty  int
	MaxAttempts uint64 // 0 = unbounded search
	PackPolicy  PackPolicy

	PeerCap     int
	PeerTimeout time.Duration

	GenesisPath string // empty = embedded genesis
	DataDir     string // empty = in-memory block archive

	GossipPort int    // 0 disables libp2p head gossip
	GossipPeer string // optional multiaddr of a gossip host to dial
	LAN        bool   // zeroconf advertise and browse

	LogLevel string
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		ListenIP:    "127.0.0.1",
		Port:        DefaultPort,
		Difficulty:  DefaultDifficulty,
		PackPolicy:  PackLatest,
		PeerCap:     DefaultPeerCap,
		PeerTimeout: DefaultPeerTimeout,
		LogLevel:    "info",
	}
}

// Validate rejects configurations the node cannot run with.
func (c Config) Validate() error {
	if c.ListenIP == "" {
		return fmt.Errorf("listen ip is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Difficulty < 1 || c.Difficulty > MaxDifficulty {
		return fmt.Errorf("difficulty %d out of range [1, %d]", c.Difficulty, MaxDifficulty)
	}
	if c.PeerCap < 1 {
		return fmt.Errorf("peer cap must be positive, got %d", c.PeerCap)
	}
	if c.PeerTimeout <= 0 {
		return fmt.Errorf("peer timeout must be positive, got %s", c.PeerTimeout)
	}
	if _, err := ParsePackPolicy(string(c.PackPolicy)); err != nil {
		return err
	}
	if c.GossipPort < 0 || c.GossipPort > 65535 {
		return fmt.Errorf("gossip port %d out of range", c.GossipPort)
	}
	return nil
}
