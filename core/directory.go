package core

import (
	"errors"
	"sync"
)

var (
	ErrSelfPeer      = errors.New("peer is this node")
	ErrKnownPeer     = errors.New("peer already known")
	ErrDirectoryFull = errors.New("peer directory is full")
)

// Directory is the bounded set of neighbors a node talks to. Peers are
// never removed.
type Directory struct {
	mu    sync.RWMutex
	self  Peer
	limit int
	peers []Peer
}

// NewDirectory creates an empty directory for self holding at most limit peers.
func NewDirectory(self Peer, limit int) *Directory {
	return &Directory{self: self, limit: limit}
}

// Self returns the owning node's address.
func (d *Directory) Self() Peer {
	return d.self
}

// Cap returns the maximum number of peers.
func (d *Directory) Cap() int {
	return d.limit
}

// Add inserts p unless it is self, already present, or the directory is full.
func (d *Directory) Add(p Peer) error {
	if p == d.self {
		return ErrSelfPeer
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, known := range d.peers {
		if known == p {
			return ErrKnownPeer
		}
	}
	if len(d.peers) >= d.limit {
		return ErrDirectoryFull
	}
	d.peers = append(d.peers, p)
	log.Infof("[PEERS] Added neighbor %s (%d/%d)", p, len(d.peers), d.limit)
	return nil
}

// Contains reports whether p is a known neighbor.
func (d *Directory) Contains(p Peer) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, known := range d.peers {
		if known == p {
			return true
		}
	}
	return false
}

// Len returns the number of known neighbors.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// Full reports whether the cap has been reached.
func (d *Directory) Full() bool {
	return d.Len() >= d.limit
}

// Peers returns a copy of the neighbors in insertion order.
func (d *Directory) Peers() []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Peer, len(d.peers))
	copy(out, d.peers)
	return out
}
