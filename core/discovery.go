package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Registrar is the remote side of discovery.
type Registrar interface {
	// Register announces self to target.
	Register(ctx context.Context, target, self Peer) error
	// Neighbors fetches target's own directory.
	Neighbors(ctx context.Context, target Peer) ([]Peer, error)
}

// PeerFailure records a remote call that did not succeed. It is a soft
// failure: the peer is treated as unreachable and the operation goes on.
type PeerFailure struct {
	Peer Peer
	Op   string
	Err  error
}

func (f PeerFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Peer, f.Err)
}

// DiscoveryReport summarizes one discovery run.
type DiscoveryReport struct {
	Added    []Peer
	Failures []PeerFailure
}

// Discovery fills a Directory with neighbors and neighbors-of-neighbors.
type Discovery struct {
	dir     *Directory
	client  Registrar
	timeout time.Duration
}

// NewDiscovery creates a discovery service; timeout bounds every remote call.
func NewDiscovery(dir *Directory, client Registrar, timeout time.Duration) *Discovery {
	return &Discovery{dir: dir, client: client, timeout: timeout}
}

// Discover walks the peer graph breadth-first from seeds. A candidate is
// skipped when it is self or already known, and the walk stops once the
// directory is full. Each candidate is registered with first and only added
// on success; its neighbors are then queued. Every candidate is visited at
// most once per run.
func (d *Discovery) Discover(ctx context.Context, seeds ...Peer) DiscoveryReport {
	var report DiscoveryReport
	self := d.dir.Self()

	frontier := make([]Peer, 0, len(seeds))
	queued := make(map[Peer]bool)
	for _, s := range seeds {
		if !queued[s] {
			queued[s] = true
			frontier = append(frontier, s)
		}
	}

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		candidate := frontier[0]
		frontier = frontier[1:]

		if candidate == self || d.dir.Contains(candidate) {
			continue
		}
		if d.dir.Full() {
			break
		}

		if err := d.call(ctx, func(ctx context.Context) error {
			return d.client.Register(ctx, candidate, self)
		}); err != nil {
			report.fail(candidate, "register", err)
			continue
		}
		if err := d.dir.Add(candidate); err != nil {
			if errors.Is(err, ErrDirectoryFull) {
				break
			}
			// ErrKnownPeer: candidate registered with us meanwhile; keep walking through it.
		} else {
			report.Added = append(report.Added, candidate)
		}
		if d.dir.Full() {
			break
		}

		var neighbors []Peer
		if err := d.call(ctx, func(ctx context.Context) error {
			var err error
			neighbors, err = d.client.Neighbors(ctx, candidate)
			return err
		}); err != nil {
			report.fail(candidate, "neighbors", err)
			continue
		}
		for _, n := range neighbors {
			if n.Check() != nil || queued[n] {
				continue
			}
			queued[n] = true
			frontier = append(frontier, n)
		}
	}

	log.Infof("[DISCOVERY] complete: %d added, %d unreachable, neighbors %v", len(report.Added), len(report.Failures), d.dir.Peers())
	return report
}

func (d *Discovery) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return fn(callCtx)
}

func (r *DiscoveryReport) fail(p Peer, op string, err error) {
	f := PeerFailure{Peer: p, Op: op, Err: err}
	log.Warnf("[DISCOVERY] %v", f)
	r.Failures = append(r.Failures, f)
}
