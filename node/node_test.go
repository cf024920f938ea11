package node

import (
	"context"
	gonet "net"
	"testing"
	"time"

	"powledger/core"
	"powledger/core/config"
	"powledger/net"
)

func startTestNode(t *testing.T, bootstrap core.Peer) *Node {
	t.Helper()
	ln, err := gonet.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	cfg := config.Default()
	cfg.Port = ln.Addr().(*gonet.TCPAddr).Port
	cfg.Difficulty = 2
	cfg.PeerTimeout = 2 * time.Second
	if bootstrap != (core.Peer{}) {
		cfg.Bootstrap = bootstrap.Addr()
	}

	n, err := New(cfg)
	if err != nil {
		ln.Close()
		t.Fatalf("Failed to create node: %v", err)
	}
	if err := n.Serve(context.Background(), ln); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func TestNodeCreation(t *testing.T) {
	cfg := config.Default()
	cfg.Difficulty = 2
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer n.Close()

	if n.Ledger().Length() != 1 || n.Ledger().LastBlock().Hash() != core.GenesisHash {
		t.Fatal("node does not start at genesis")
	}
	if n.Self() != (core.Peer{IP: "127.0.0.1", Port: 3002}) {
		t.Fatalf("self is %v", n.Self())
	}

	cfg.Difficulty = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestSelfBootstrapFindsNoPeers(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	if a.Directory().Len() != 0 {
		t.Fatalf("self bootstrap produced neighbors %v", a.Neighbors())
	}
	if r := a.LastDiscovery(); len(r.Added) != 0 || len(r.Failures) != 0 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestDiscoveryAcrossThreeNodes(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	b := startTestNode(t, a.Self())
	c := startTestNode(t, b.Self())

	if !b.Directory().Contains(a.Self()) || !a.Directory().Contains(b.Self()) {
		t.Fatalf("a and b did not link: a=%v b=%v", a.Neighbors(), b.Neighbors())
	}
	if !c.Directory().Contains(b.Self()) || !c.Directory().Contains(a.Self()) {
		t.Fatalf("c did not reach a through b: %v", c.Neighbors())
	}
	if !a.Directory().Contains(c.Self()) {
		t.Fatalf("c did not register with a: %v", a.Neighbors())
	}
	for _, n := range []*Node{a, b, c} {
		if n.Directory().Contains(n.Self()) {
			t.Fatalf("%s lists itself", n.Self())
		}
	}
}

func TestMiningPropagatesToNeighbors(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	b := startTestNode(t, a.Self())
	c := startTestNode(t, b.Self())

	client := net.NewHTTPClient(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Submit(ctx, c.Self(), core.NewTx("A", "B", "10")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := c.Ledger().LastBlock().Hash()
	for _, n := range []*Node{a, b, c} {
		if n.Ledger().Length() != 2 {
			t.Fatalf("%s has length %d", n.Self(), n.Ledger().Length())
		}
		if n.Ledger().LastBlock().Hash() != want {
			t.Fatalf("%s did not adopt the mined block", n.Self())
		}
	}
}

func TestMinerAdoptsLongerChainFromResponse(t *testing.T) {
	b := startTestNode(t, core.Peer{})
	a := startTestNode(t, b.Self())

	// b grows privately, without broadcasting
	for i := 0; i < 2; i++ {
		if _, err := b.Ledger().SubmitTransaction(context.Background(), core.NewTx("B", "C", "1")); err != nil {
			t.Fatalf("SubmitTransaction failed: %v", err)
		}
	}

	tail, err := a.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if a.Ledger().Length() != 3 {
		t.Fatalf("a has length %d, want b's 3", a.Ledger().Length())
	}
	if tail.Hash() != b.Ledger().LastBlock().Hash() {
		t.Fatal("Mine did not report the adopted tail")
	}
}

func TestUnreachableNeighborDoesNotFailMining(t *testing.T) {
	a := startTestNode(t, core.Peer{})

	ln, err := gonet.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := core.Peer{IP: "127.0.0.1", Port: ln.Addr().(*gonet.TCPAddr).Port}
	ln.Close()
	if err := a.RegisterPeer(dead); err != nil {
		t.Fatalf("RegisterPeer failed: %v", err)
	}

	block, err := a.SubmitTransaction(context.Background(), core.NewTx("A", "B", "10"))
	if err != nil {
		t.Fatalf("mining failed because of a dead neighbor: %v", err)
	}
	if block.Index != 1 || a.Ledger().Length() != 2 {
		t.Fatalf("unexpected chain state after mining")
	}
}

func TestRegisterRespectsCap(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	client := net.NewHTTPClient(2)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		p := core.Peer{IP: "127.0.0.1", Port: 5000 + i}
		if err := client.Register(ctx, a.Self(), p); err != nil {
			t.Fatalf("Register %d failed: %v", i, err)
		}
	}
	if err := client.Register(ctx, a.Self(), a.Self()); err != nil {
		t.Fatalf("self registration failed: %v", err)
	}

	peers, err := client.Neighbors(ctx, a.Self())
	if err != nil {
		t.Fatalf("Neighbors failed: %v", err)
	}
	if len(peers) != config.DefaultPeerCap {
		t.Fatalf("%d neighbors, cap is %d", len(peers), config.DefaultPeerCap)
	}
}

func TestBlockLookupThroughArchive(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	block, err := a.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	got, err := a.BlockByHash(block.Hash())
	if err != nil || got.Index != 1 {
		t.Fatalf("BlockByHash = %v, %v", got, err)
	}
}

func TestAnnouncedLongerHeadIsAdopted(t *testing.T) {
	b := startTestNode(t, core.Peer{})
	a := startTestNode(t, core.Peer{})

	for i := 0; i < 2; i++ {
		if _, err := b.Ledger().SubmitTransaction(context.Background(), core.NewTx("B", "C", "1")); err != nil {
			t.Fatalf("SubmitTransaction failed: %v", err)
		}
	}
	tail := b.Ledger().LastBlock()

	a.onHead(context.Background(), net.HeadAnnouncement{Length: 3, Hash: tail.Hash(), Origin: b.Self()})
	if a.Ledger().Length() != 3 || a.Ledger().LastBlock().Hash() != tail.Hash() {
		t.Fatalf("a did not adopt the announced chain: length %d", a.Ledger().Length())
	}
}

func TestAnnouncementFromUnreachableNodeIsSoftFailure(t *testing.T) {
	a := startTestNode(t, core.Peer{})
	if _, err := a.Mine(context.Background()); err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	before := a.Ledger().LastBlock().Hash()

	ln, err := gonet.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := core.Peer{IP: "127.0.0.1", Port: ln.Addr().(*gonet.TCPAddr).Port}
	ln.Close()

	a.onHead(context.Background(), net.HeadAnnouncement{Length: 5, Origin: dead})
	if a.Ledger().Length() != 2 || a.Ledger().LastBlock().Hash() != before {
		t.Fatal("failed fetch changed the local chain")
	}

	// the node keeps serving and mining afterwards
	if _, err := a.Mine(context.Background()); err != nil {
		t.Fatalf("Mine after failed fetch: %v", err)
	}
	if a.Ledger().Length() != 3 {
		t.Fatalf("length %d after mining, want 3", a.Ledger().Length())
	}
}
