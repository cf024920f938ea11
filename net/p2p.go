// Package net carries node-to-node traffic: the HTTP peer client, libp2p
// head gossip and zeroconf LAN discovery.
package net

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"powledger/core"
	"powledger/core/storage"
)

var log = logging.Logger("net")

const (
	mdnsServiceName = "ledgerd-mdns"
	maxWireHead     = 4 * 1024
)

// HeadHandler is called for every announcement of a chain longer than ours.
type HeadHandler func(ctx context.Context, ann HeadAnnouncement)

// GossipNode is an optional libp2p host that announces new chain heads to
// other nodes and tells the owner about longer ones. Chains themselves still
// travel over HTTP.
type GossipNode struct {
	Host   host.Host
	PubSub *pubsub.PubSub

	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	mdns   mdns.Service
	origin core.Peer
	chain  storage.Reader
	onHead HeadHandler
}

// NewGossipNode starts a libp2p host on listenPort, joins the heads topic and
// enables mDNS so that gossip hosts on the same LAN find each other.
func NewGossipNode(ctx context.Context, listenPort int, origin core.Peer, chain storage.Reader, onHead HeadHandler) (*GossipNode, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort),
	))
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("start gossipsub: %w", err)
	}
	topic, err := ps.Join(TopicHeads)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("join %s: %w", TopicHeads, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		h.Close()
		return nil, fmt.Errorf("subscribe %s: %w", TopicHeads, err)
	}

	n := &GossipNode{
		Host:   h,
		PubSub: ps,
		topic:  topic,
		sub:    sub,
		origin: origin,
		chain:  chain,
		onHead: onHead,
	}

	n.mdns = mdns.NewMdnsService(h, mdnsServiceName, &mdnsNotifee{ctx: ctx, host: h})
	if err := n.mdns.Start(); err != nil {
		log.Warnf("[P2P] mDNS disabled: %v", err)
		n.mdns = nil
	} else {
		log.Infof("[P2P] mDNS peer discovery enabled")
	}

	go n.handleHeads(ctx)
	go n.logPeers(ctx)

	log.Infof("[P2P] gossip host %s listening on %v", h.ID(), h.Addrs())
	return n, nil
}

// Connect dials a gossip host given as a full /p2p multiaddr.
func (n *GossipNode) Connect(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parse gossip peer %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("gossip peer %q: %w", addr, err)
	}
	if err := n.Host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect %s: %w", info.ID, err)
	}
	log.Infof("[P2P] connected to gossip peer %s", info.ID)
	return nil
}

// Announce publishes the current chain head.
func (n *GossipNode) Announce(ctx context.Context) error {
	last := n.chain.LastBlock()
	msg := HeadAnnouncement{
		Length: n.chain.Length(),
		Hash:   last.Hash(),
		Origin: n.origin,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	log.Debugf("[P2P] NewHead length=%d %.8s...", msg.Length, msg.Hash)
	return n.topic.Publish(ctx, payload)
}

// AnnounceHeads publishes the head each time changes fires, until ctx ends.
func (n *GossipNode) AnnounceHeads(ctx context.Context, changes <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := n.Announce(ctx); err != nil && ctx.Err() == nil {
				log.Warnf("[P2P] failed to announce head: %v", err)
			}
		}
	}
}

func (n *GossipNode) handleHeads(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("[P2P] heads subscription ended: %v", err)
			}
			return
		}
		if msg.ReceivedFrom == n.Host.ID() {
			continue
		}
		if len(msg.Data) > maxWireHead {
			log.Warnf("[P2P] oversized head msg (%d bytes) from %s", len(msg.Data), msg.ReceivedFrom)
			continue
		}
		var ann HeadAnnouncement
		if err := json.Unmarshal(msg.Data, &ann); err != nil {
			log.Warnf("[P2P] failed to decode head from %s: %v", msg.ReceivedFrom, err)
			continue
		}
		local := n.chain.Length()
		if !wantsHead(ann, n.origin, local) {
			continue
		}
		log.Infof("[SYNC] NewHead length %d from %s > local %d", ann.Length, ann.Origin, local)
		if n.onHead != nil {
			n.onHead(ctx, ann)
		}
	}
}

// wantsHead reports whether an announcement is worth fetching: it comes
// from another well-formed node and is longer than our chain.
func wantsHead(ann HeadAnnouncement, self core.Peer, local int) bool {
	if ann.Origin == self || ann.Origin.Check() != nil {
		return false
	}
	return ann.Length > local
}

func (n *GossipNode) logPeers(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debugf("[P2P] Connected peers: %v", n.Host.Network().Peers())
		}
	}
}

// Close leaves the topic and shuts the host down.
func (n *GossipNode) Close() error {
	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		log.Debugf("[P2P] close topic: %v", err)
	}
	if n.mdns != nil {
		n.mdns.Close()
	}
	return n.Host.Close()
}

// mdnsNotifee connects to every gossip host mDNS finds.
type mdnsNotifee struct {
	ctx  context.Context
	host host.Host
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == m.host.ID() {
		return
	}
	log.Infof("[P2P] mDNS discovered peer: %s", info.ID)
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	if err := m.host.Connect(ctx, info); err != nil {
		log.Debugf("[P2P] connect to %s failed: %v", info.ID, err)
	}
}
