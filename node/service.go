package node

import (
	"context"

	"powledger/api"
	"powledger/core"
	"powledger/net"
)

// SubmitTransaction queues tx, mines it and broadcasts the new chain.
func (n *Node) SubmitTransaction(ctx context.Context, tx core.Transaction) (*core.Block, error) {
	block, err := n.worker.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	n.broadcast(ctx)
	return block, nil
}

// Mine mines one block from the pool and broadcasts the new chain. It
// returns the tail after reconciling with every neighbor's answer, which
// may be a neighbor's block if a longer chain came back.
func (n *Node) Mine(ctx context.Context) (*core.Block, error) {
	if _, err := n.worker.Mine(ctx); err != nil {
		return nil, err
	}
	n.broadcast(ctx)
	return n.chain.LastBlock(), nil
}

// broadcast pushes the chain to every neighbor and resolves against each
// chain they send back. Failures are logged and never fail the caller.
func (n *Node) broadcast(ctx context.Context) {
	peers := n.dir.Peers()
	if len(peers) == 0 {
		return
	}
	results, _ := n.broadcaster.BroadcastChain(ctx, peers, n.chain.Blocks())
	for _, r := range results {
		if r.Err != nil || len(r.Chain) == 0 {
			continue
		}
		if n.chain.Resolve(r.Chain) {
			log.Infof("[SYNC] adopted longer chain from %s", r.Peer)
		}
	}
}

// onHead pulls the chain of a node that announced a longer head.
func (n *Node) onHead(ctx context.Context, ann net.HeadAnnouncement) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.PeerTimeout)
	defer cancel()
	content, err := n.client.FetchChain(ctx, ann.Origin)
	if err != nil {
		log.Warnf("[SYNC] %v", core.PeerFailure{Peer: ann.Origin, Op: "fetch chain", Err: err})
		return
	}
	if n.chain.Resolve(content.Chain) {
		log.Infof("[SYNC] adopted announced chain from %s", ann.Origin)
	}
}

// Chain returns the local chain for the wire.
func (n *Node) Chain() api.ChainContent {
	return api.NewChainContent(n.chain.Blocks(), n.chain.Difficulty())
}

// Neighbors returns the peer directory.
func (n *Node) Neighbors() []core.Peer {
	return n.dir.Peers()
}

// RegisterPeer records a node that registered with us. Links may end up
// one-directional: the registering node is added here even if we are not
// in its directory.
func (n *Node) RegisterPeer(p core.Peer) error {
	err := n.dir.Add(p)
	switch err {
	case nil:
		log.Infof("[PEERS] new node detected: %s", p)
	case core.ErrDirectoryFull:
		log.Infof("[PEERS] %s registered but directory is full", p)
	}
	return err
}

// Resolve runs the longest-valid-chain rule against candidate.
func (n *Node) Resolve(candidate []*core.Block) bool {
	return n.chain.Resolve(candidate)
}

// Pending returns the transactions waiting in the pool.
func (n *Node) Pending() []core.Transaction {
	return n.chain.Pool().GetAllTransactions()
}

// BlockByHash looks a block up by hash.
func (n *Node) BlockByHash(hash string) (*core.Block, error) {
	return n.chain.BlockByHash(hash)
}
