package storage

import "powledger/core"

// Reader is the tiny, read-only chain view that gossip and the api need.
// core.Chain satisfies it.
type Reader interface {
	// Length returns the number of blocks, genesis included.
	Length() int

	// LastBlock returns a copy of the tail block. It is never nil.
	LastBlock() *core.Block

	// BlockByHash returns the block with the given hash or an error
	// wrapping core.ErrBlockNotFound.
	BlockByHash(hash string) (*core.Block, error)
}

var _ Reader = (*core.Chain)(nil)
