package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("core")

// Chain is a node's ledger: the hash-linked block sequence together with
// the transaction pool and proof-of-work engine that extend it. The block
// slice is never empty; index 0 is the genesis block.
type Chain struct {
	mu     sync.RWMutex
	blocks []*Block

	pool  *Mempool
	pow   *ProofOfWork
	store *BadgerStore // optional archive
	now   func() time.Time

	subMu       sync.RWMutex
	subscribers []chan struct{}
}

// NewChain starts a chain at genesis. store may be nil.
func NewChain(genesis *Block, pow *ProofOfWork, pool *Mempool, store *BadgerStore) *Chain {
	c := &Chain{
		blocks: []*Block{genesis.Clone()},
		pool:   pool,
		pow:    pow,
		store:  store,
		now:    time.Now,
	}
	if store != nil {
		if err := store.ReplaceChain(c.blocks); err != nil {
			log.Errorf("[ERROR] Failed to archive genesis block: %v", err)
		}
	}
	return c
}

// Pool returns the transaction pool.
func (c *Chain) Pool() *Mempool {
	return c.pool
}

// ProofOfWork returns the engine that mines and validates blocks.
func (c *Chain) ProofOfWork() *ProofOfWork {
	return c.pow
}

// Difficulty returns the number of trailing zero hex characters required.
func (c *Chain) Difficulty() int {
	return c.pow.Difficulty
}

// Length returns the number of blocks, genesis included.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// LastBlock returns a copy of the tail block.
func (c *Chain) LastBlock() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Clone()
}

// Blocks returns a deep copy of the whole chain.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CloneBlocks(c.blocks)
}

// BlockByHash finds a block by its hash, through the archive when there is one.
func (c *Chain) BlockByHash(hash string) (*Block, error) {
	if c.store != nil {
		return c.store.GetBlockByHash(hash)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.Hash() == hash {
			return b.Clone(), nil
		}
	}
	return nil, fmt.Errorf("hash %s: %w", hash, ErrBlockNotFound)
}

// CreateBlock mines a block holding txs on top of the current tail and
// appends it. previousHash overrides the link when non-empty.
//
// The proof search runs without the chain lock. If the tail changes while
// searching (another append or a resolve), the candidate is rebuilt on the
// new tail and mined again, so the appended block always extends the chain
// it was mined against.
func (c *Chain) CreateBlock(ctx context.Context, txs []Transaction, previousHash string) (*Block, error) {
	packed := make([]Transaction, len(txs))
	copy(packed, txs)

	for {
		c.mu.RLock()
		tail := c.blocks[len(c.blocks)-1]
		index := uint64(len(c.blocks))
		tailHash := tail.Hash()
		c.mu.RUnlock()

		link := previousHash
		if link == "" {
			link = tailHash
		}
		candidate := &Block{
			Index:        index,
			Timestamp:    c.now().UnixMilli(),
			Proof:        0,
			PreviousHash: link,
			Transactions: packed,
		}
		log.Debugf("⛏️  Mining block #%d on %.16s", index, link)
		proof, hash, err := c.pow.Mine(ctx, candidate)
		if err != nil {
			return nil, err
		}
		candidate.Proof = proof

		c.mu.Lock()
		if uint64(len(c.blocks)) == index && c.blocks[len(c.blocks)-1].Hash() == tailHash {
			c.blocks = append(c.blocks, candidate)
			c.archive(func(s *BadgerStore) error { return s.PutBlock(candidate) })
			c.mu.Unlock()
			log.Infof("📗 Accepted block #%d hash=%s txs=%d", index, hash, len(packed))
			c.notifyHeadChange()
			return candidate.Clone(), nil
		}
		c.mu.Unlock()
		log.Warnf("🔀 Chain moved while mining block #%d, rebuilding candidate", index)
	}
}

// SubmitTransaction queues tx and immediately runs one mining cycle.
func (c *Chain) SubmitTransaction(ctx context.Context, tx Transaction) (*Block, error) {
	c.pool.AddTransaction(tx)
	return c.MineNext(ctx)
}

// MineNext drains the pool per its pack policy and mines the result. It
// returns ErrPoolEmpty without mining when nothing is pending. On failure
// the drained transactions go back to the pool.
func (c *Chain) MineNext(ctx context.Context) (*Block, error) {
	batch := c.pool.DrainForBlock()
	if len(batch) == 0 {
		return nil, ErrPoolEmpty
	}
	return c.mineBatch(ctx, batch)
}

// MinePending mines whatever the pool yields, an empty block included.
func (c *Chain) MinePending(ctx context.Context) (*Block, error) {
	return c.mineBatch(ctx, c.pool.DrainForBlock())
}

func (c *Chain) mineBatch(ctx context.Context, batch []Transaction) (*Block, error) {
	block, err := c.CreateBlock(ctx, batch, "")
	if err != nil {
		c.pool.Return(batch)
		return nil, fmt.Errorf("mine block: %w", err)
	}
	return block, nil
}

// Validate reports whether blocks form a valid chain under this difficulty.
func (c *Chain) Validate(blocks []*Block) bool {
	return c.pow.Validate(blocks)
}

// Resolve adopts candidate when it is strictly longer than the local chain
// and fully valid. Ties and shorter chains keep the local chain without
// validating. Replacement is wholesale; orphaned local transactions are
// not re-queued.
func (c *Chain) Resolve(candidate []*Block) bool {
	if len(candidate) == 0 {
		return false
	}
	local := c.Length()
	if len(candidate) <= local {
		log.Debugf("[SYNC] Keeping local chain: candidate length %d <= local %d", len(candidate), local)
		return false
	}

	blocks := CloneBlocks(candidate)
	if err := c.pow.ValidateChain(blocks); err != nil {
		log.Warnf("[SYNC] Rejected candidate chain of length %d: %v", len(blocks), err)
		return false
	}

	if grown, ok := c.adopt(blocks); !ok {
		log.Debugf("[SYNC] Local chain grew to %d during validation, keeping it", grown)
		return false
	}

	log.Infof("🔀 Replaced local chain (%d blocks) with candidate of length %d", local, len(blocks))
	c.notifyHeadChange()
	return true
}

// adopt swaps in a validated chain if it is still longer than the local
// one and returns the local length afterwards.
func (c *Chain) adopt(blocks []*Block) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.blocks); len(blocks) <= n {
		return n, false
	}
	c.blocks = blocks
	c.archive(func(s *BadgerStore) error { return s.ReplaceChain(blocks) })
	return len(blocks), true
}

// archive must be called with c.mu held so archive writes keep chain order.
func (c *Chain) archive(fn func(*BadgerStore) error) {
	if c.store == nil {
		return
	}
	if err := fn(c.store); err != nil {
		log.Errorf("[ERROR] Failed to archive chain update: %v", err)
	}
}

// SubscribeToHeadChanges returns a channel that receives notifications when the chain head changes.
func (c *Chain) SubscribeToHeadChanges() <-chan struct{} {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan struct{}, 1)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

func (c *Chain) notifyHeadChange() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a notification is already pending
		}
	}
}
