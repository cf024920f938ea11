package miner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"powledger/core"
	"powledger/core/config"
)

func newTestWorker(t *testing.T) (*Worker, *core.Chain, context.CancelFunc) {
	t.Helper()
	pow := core.NewProofOfWork(2, 0)
	chain := core.NewChain(core.DefaultGenesis(), pow, core.NewMempool(config.PackLatest), nil)
	w := NewWorker(chain)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	return w, chain, cancel
}

func TestWorkerSubmitAndMine(t *testing.T) {
	w, chain, cancel := newTestWorker(t)
	defer cancel()

	block, err := w.SubmitTransaction(context.Background(), core.NewTx("A", "B", "10"))
	if err != nil {
		t.Fatalf("SubmitTransaction failed: %v", err)
	}
	if block.Index != 1 || len(block.Transactions) != 1 {
		t.Fatalf("unexpected block %+v", block)
	}

	block, err = w.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if block.Index != 2 || len(block.Transactions) != 0 {
		t.Fatalf("unexpected block %+v", block)
	}
	if chain.Length() != 3 || w.Mined() != 2 {
		t.Fatalf("length %d, mined %d", chain.Length(), w.Mined())
	}
}

func TestWorkerSerializesJobs(t *testing.T) {
	w, chain, cancel := newTestWorker(t)
	defer cancel()

	const jobs = 10
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.SubmitTransaction(context.Background(), core.NewTx("A", "B", "1")); err != nil {
				t.Errorf("SubmitTransaction failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if chain.Length() != jobs+1 {
		t.Fatalf("length %d, want %d", chain.Length(), jobs+1)
	}
	if !chain.Validate(chain.Blocks()) {
		t.Fatal("serialized mining produced an invalid chain")
	}
}

func TestWorkerStopped(t *testing.T) {
	w, _, cancel := newTestWorker(t)
	cancel()
	<-w.quit

	if _, err := w.Mine(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
