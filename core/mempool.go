package core

import (
	"errors"
	"sync"

	"go.uber.org/zap/zapcore"

	"powledger/core/config"
)

// ErrPoolEmpty signals that there was nothing to pack.
var ErrPoolEmpty = errors.New("transaction pool is empty")

// Mempool holds pending transactions in arrival order.
type Mempool struct {
	mu     sync.Mutex
	txs    []Transaction
	policy config.PackPolicy
}

// NewMempool creates an empty pool using the given pack policy.
func NewMempool(policy config.PackPolicy) *Mempool {
	return &Mempool{policy: policy}
}

// Policy returns the pool's pack policy.
func (mp *Mempool) Policy() config.PackPolicy {
	return mp.policy
}

// AddTransaction appends tx to the pending queue.
func (mp *Mempool) AddTransaction(tx Transaction) {
	mp.mu.Lock()
	mp.txs = append(mp.txs, tx)
	n := len(mp.txs)
	mp.mu.Unlock()
	if log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		log.Debugf("[MEMPOOL] Added transaction %s: %s (pending %d)", tx.ID()[:8], tx, n)
	}
}

// DrainForBlock removes and returns the transactions for the next block.
// With PackLatest that is only the most recently added transaction; with
// PackAll it is the whole queue, oldest first. Returns nil when empty.
func (mp *Mempool) DrainForBlock() []Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if len(mp.txs) == 0 {
		return nil
	}
	if mp.policy == config.PackAll {
		batch := mp.txs
		mp.txs = nil
		return batch
	}
	last := mp.txs[len(mp.txs)-1]
	mp.txs = mp.txs[:len(mp.txs)-1]
	return []Transaction{last}
}

// Return puts a drained batch back where DrainForBlock took it from, so a
// failed mining attempt never drops transactions.
func (mp *Mempool) Return(batch []Transaction) {
	if len(batch) == 0 {
		return
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.policy == config.PackAll {
		mp.txs = append(append([]Transaction{}, batch...), mp.txs...)
		return
	}
	mp.txs = append(mp.txs, batch...)
}

// Size returns the number of pending transactions
func (mp *Mempool) Size() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.txs)
}

// GetAllTransactions returns a copy of the pending queue, oldest first.
func (mp *Mempool) GetAllTransactions() []Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]Transaction, len(mp.txs))
	copy(out, mp.txs)
	return out
}
