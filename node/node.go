// Package node assembles a ledger node: chain, miner, peer directory,
// transport and the optional gossip and LAN layers.
package node

import (
	"context"
	"errors"
	"fmt"
	gonet "net"
	"net/http"
	"strconv"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"powledger/api"
	"powledger/core"
	"powledger/core/config"
	"powledger/miner"
	"powledger/net"
)

var log = logging.Logger("node")

const lanBrowseWindow = 2 * time.Second

// Node owns every piece of a running node. All shared state lives here or
// below; there are no package-level singletons.
type Node struct {
	cfg  config.Config
	self core.Peer

	chain       *core.Chain
	store       *core.BadgerStore
	dir         *core.Directory
	discovery   *core.Discovery
	broadcaster *core.Broadcaster
	client      *net.HTTPClient
	worker      *miner.Worker
	api         *api.Server

	httpSrv *http.Server
	gossip  *net.GossipNode
	lan     *net.LAN

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	report core.DiscoveryReport
}

var _ api.Service = (*Node)(nil)

// New builds a node from cfg. Nothing listens until Start or Serve.
func New(cfg config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pow := core.NewProofOfWork(cfg.Difficulty, cfg.MaxAttempts)
	genesis, err := core.LoadGenesis(cfg.GenesisPath, pow)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenBadgerStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	self := core.Peer{IP: cfg.ListenIP, Port: cfg.Port}
	client := net.NewHTTPClient(cfg.Difficulty)
	dir := core.NewDirectory(self, cfg.PeerCap)
	chain := core.NewChain(genesis, pow, core.NewMempool(cfg.PackPolicy), store)

	n := &Node{
		cfg:         cfg,
		self:        self,
		chain:       chain,
		store:       store,
		dir:         dir,
		discovery:   core.NewDiscovery(dir, client, cfg.PeerTimeout),
		broadcaster: core.NewBroadcaster(client, cfg.PeerTimeout),
		client:      client,
		worker:      miner.NewWorker(chain),
	}
	n.api = api.NewServer(n)
	return n, nil
}

// Start listens on the configured address and calls Serve.
func (n *Node) Start(ctx context.Context) error {
	ln, err := gonet.Listen("tcp", gonet.JoinHostPort(n.cfg.ListenIP, strconv.Itoa(n.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return n.Serve(ctx, ln)
}

// Serve starts the miner and the api on ln, brings up gossip and LAN
// advertising when configured, then runs peer discovery from the bootstrap
// peer. It returns once discovery is complete; the node keeps running until
// Close.
func (n *Node) Serve(ctx context.Context, ln gonet.Listener) error {
	ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.worker.Run(ctx)
	}()

	n.httpSrv = &http.Server{Handler: n.api, ReadHeaderTimeout: 10 * time.Second}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[ERROR] api server: %v", err)
		}
	}()
	log.Infof("🚀 Node %s listening (difficulty %d, pack %s, cap %d)", n.self, n.cfg.Difficulty, n.cfg.PackPolicy, n.cfg.PeerCap)

	if n.cfg.GossipPort > 0 {
		if err := n.startGossip(ctx); err != nil {
			log.Warnf("[P2P] gossip disabled: %v", err)
		}
	}
	if n.cfg.LAN {
		lan, err := net.AdvertiseLAN(n.self)
		if err != nil {
			log.Warnf("[LAN] advertising disabled: %v", err)
		} else {
			n.lan = lan
		}
	}

	n.Bootstrap(ctx)
	return nil
}

func (n *Node) startGossip(ctx context.Context) error {
	g, err := net.NewGossipNode(ctx, n.cfg.GossipPort, n.self, n.chain, n.onHead)
	if err != nil {
		return err
	}
	n.gossip = g
	if n.cfg.GossipPeer != "" {
		if err := g.Connect(ctx, n.cfg.GossipPeer); err != nil {
			log.Warnf("[P2P] %v", err)
		}
	}
	changes := n.chain.SubscribeToHeadChanges()
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		g.AnnounceHeads(ctx, changes)
	}()
	return nil
}

// Bootstrap registers with the bootstrap peer, or with itself when none is
// configured, and walks the peer graph from there. LAN nodes join the
// frontier when LAN discovery is on.
func (n *Node) Bootstrap(ctx context.Context) core.DiscoveryReport {
	seeds := []core.Peer{n.self}
	if n.cfg.Bootstrap != "" {
		p, err := net.ParsePeer(n.cfg.Bootstrap)
		if err != nil {
			log.Warnf("[DISCOVERY] ignoring bootstrap peer: %v", err)
		} else {
			seeds = []core.Peer{p}
		}
	}
	if n.cfg.LAN {
		found, err := net.BrowseLAN(ctx, lanBrowseWindow)
		if err != nil {
			log.Warnf("[LAN] browse failed: %v", err)
		}
		seeds = append(seeds, found...)
	}

	report := n.discovery.Discover(ctx, seeds...)
	n.mu.Lock()
	n.report = report
	n.mu.Unlock()
	return report
}

// LastDiscovery returns the report of the most recent discovery run.
func (n *Node) LastDiscovery() core.DiscoveryReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.report
}

// Close stops every component and waits for background goroutines.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	var errs []error
	if n.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown api: %w", err))
		}
		cancel()
	}
	if n.gossip != nil {
		if err := n.gossip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gossip: %w", err))
		}
	}
	if n.lan != nil {
		n.lan.Close()
	}
	n.wg.Wait()
	if err := n.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}
	log.Infof("Node %s stopped", n.self)
	return errors.Join(errs...)
}

// Self returns the node's own address.
func (n *Node) Self() core.Peer { return n.self }

// Ledger returns the node's chain.
func (n *Node) Ledger() *core.Chain { return n.chain }

// Directory returns the node's peer directory.
func (n *Node) Directory() *core.Directory { return n.dir }

// Handler returns the node's api.
func (n *Node) Handler() http.Handler { return n.api }
