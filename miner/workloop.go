// Package miner owns the mining side of a node.
package miner

import (
	"context"
	"errors"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"

	"powledger/core"
)

var log = logging.Logger("miner")

// ErrStopped is returned for jobs submitted after the worker loop exited.
var ErrStopped = errors.New("miner stopped")

type jobKind int

const (
	jobSubmit jobKind = iota // enqueue a transaction, then mine it
	jobMine                  // mine whatever is pending
)

type result struct {
	block *core.Block
	err   error
}

type job struct {
	ctx  context.Context
	kind jobKind
	tx   core.Transaction
	done chan result
}

// Worker is the single goroutine allowed to mine on a chain. Submissions
// and mine requests are queued and run one at a time, so two proof
// searches never race for the same tail.
type Worker struct {
	chain *core.Chain
	jobs  chan job
	quit  chan struct{}

	mined atomic.Uint64
}

// NewWorker creates a worker for chain. Call Run to start it.
func NewWorker(chain *core.Chain) *Worker {
	return &Worker{
		chain: chain,
		jobs:  make(chan job),
		quit:  make(chan struct{}),
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.quit)
	log.Infof("⛏️  Miner started at difficulty %d", w.chain.Difficulty())
	for {
		select {
		case <-ctx.Done():
			log.Infof("[MINER] stopping: %v", ctx.Err())
			return
		case j := <-w.jobs:
			j.done <- w.handle(j)
		}
	}
}

func (w *Worker) handle(j job) result {
	if err := j.ctx.Err(); err != nil {
		return result{err: err}
	}

	var (
		block *core.Block
		err   error
	)
	switch j.kind {
	case jobSubmit:
		block, err = w.chain.SubmitTransaction(j.ctx, j.tx)
	case jobMine:
		block, err = w.chain.MinePending(j.ctx)
	}
	if err != nil {
		log.Warnf("[MINER] mining failed: %v (pending %d)", err, w.chain.Pool().Size())
		return result{err: err}
	}
	w.mined.Add(1)
	return result{block: block}
}

func (w *Worker) do(ctx context.Context, j job) (*core.Block, error) {
	j.ctx = ctx
	j.done = make(chan result, 1)
	select {
	case w.jobs <- j:
	case <-w.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-j.done
	return r.block, r.err
}

// SubmitTransaction adds tx to the pool and mines the next block. The
// transaction stays pending if mining fails.
func (w *Worker) SubmitTransaction(ctx context.Context, tx core.Transaction) (*core.Block, error) {
	return w.do(ctx, job{kind: jobSubmit, tx: tx})
}

// Mine mines one block from the pending pool, an empty one if nothing waits.
func (w *Worker) Mine(ctx context.Context) (*core.Block, error) {
	return w.do(ctx, job{kind: jobMine})
}

// Mined returns the number of blocks this worker appended.
func (w *Worker) Mined() uint64 {
	return w.mined.Load()
}
