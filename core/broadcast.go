package core

import (
	"context"
	"sync"
	"time"
)

// ChainPusher sends a chain to a peer's resolver and returns the chain the
// peer holds afterwards.
type ChainPusher interface {
	PushChain(ctx context.Context, target Peer, chain []*Block) ([]*Block, error)
}

// PushResult is one peer's answer to a broadcast.
type PushResult struct {
	Peer  Peer
	Chain []*Block // the peer's chain after its resolve; nil on failure
	Err   error
}

// Broadcaster fans a chain out to every neighbor after a block is mined.
type Broadcaster struct {
	pusher  ChainPusher
	timeout time.Duration
}

// NewBroadcaster creates a broadcaster; timeout bounds each push.
func NewBroadcaster(pusher ChainPusher, timeout time.Duration) *Broadcaster {
	return &Broadcaster{pusher: pusher, timeout: timeout}
}

// BroadcastChain pushes chain to all peers concurrently and waits for every
// answer. Pushes are independent and unordered; a failed push is reported in
// its result and in the returned failure list, never as an error.
func (b *Broadcaster) BroadcastChain(ctx context.Context, peers []Peer, chain []*Block) ([]PushResult, []PeerFailure) {
	results := make([]PushResult, len(peers))
	var wg sync.WaitGroup
	for i, p := range peers {
		wg.Add(1)
		go func(i int, p Peer) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			log.Debugf("[BROADCAST] send resolve to %s", p)
			remote, err := b.pusher.PushChain(callCtx, p, chain)
			results[i] = PushResult{Peer: p, Chain: remote, Err: err}
		}(i, p)
	}
	wg.Wait()

	var failures []PeerFailure
	for _, r := range results {
		if r.Err != nil {
			f := PeerFailure{Peer: r.Peer, Op: "resolve", Err: r.Err}
			log.Warnf("[BROADCAST] %v", f)
			failures = append(failures, f)
		}
	}
	log.Infof("📤 Broadcast chain of length %d to %d peers (%d failed)", len(chain), len(peers), len(failures))
	return results, failures
}
