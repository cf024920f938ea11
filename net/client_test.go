package net

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"powledger/api"
	"powledger/core"
)

// peerOf turns an httptest server into the peer that addresses it.
func peerOf(t *testing.T, srv *httptest.Server) core.Peer {
	t.Helper()
	p, err := ParsePeer(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("ParsePeer(%s): %v", srv.URL, err)
	}
	return p
}

func writeEnvelope(w http.ResponseWriter, status int, env api.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func TestParsePeer(t *testing.T) {
	cases := map[string]core.Peer{
		"127.0.0.1:3002":           {IP: "127.0.0.1", Port: 3002},
		"[::1]:3003":               {IP: "::1", Port: 3003},
		"/ip4/10.0.0.7/tcp/3002":   {IP: "10.0.0.7", Port: 3002},
		"/ip6/::1/tcp/4000":        {IP: "::1", Port: 4000},
		"/dns4/localhost/tcp/3002": {IP: "localhost", Port: 3002},
		"  127.0.0.1:3002 ":        {IP: "127.0.0.1", Port: 3002},
	}
	for in, want := range cases {
		got, err := ParsePeer(in)
		if err != nil {
			t.Errorf("ParsePeer(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePeer(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "127.0.0.1", "127.0.0.1:x", "127.0.0.1:0", "/ip4/127.0.0.1", "/tcp/3002", "/garbage"} {
		if _, err := ParsePeer(in); err == nil {
			t.Errorf("ParsePeer(%q) accepted a malformed peer", in)
		}
	}
}

func TestPeerMultiaddrRoundTrip(t *testing.T) {
	for _, p := range []core.Peer{{IP: "127.0.0.1", Port: 3002}, {IP: "::1", Port: 9}, {IP: "node.local", Port: 80}} {
		addr, err := p.Multiaddr()
		if err != nil {
			t.Fatalf("Multiaddr(%v): %v", p, err)
		}
		back, err := ParsePeer(addr.String())
		if err != nil {
			t.Fatalf("ParsePeer(%s): %v", addr, err)
		}
		if back != p {
			t.Fatalf("round trip of %v gave %v", p, back)
		}
	}
}

func TestRegisterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got core.Peer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/nodes/register" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if calls.Add(1) < 3 {
			writeEnvelope(w, http.StatusInternalServerError, api.Envelope{Message: "busy"})
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeEnvelope(w, http.StatusOK, api.Envelope{Message: "added"})
	}))
	defer srv.Close()

	self := core.Peer{IP: "127.0.0.1", Port: 3002}
	c := NewHTTPClient(2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Register(ctx, peerOf(t, srv), self); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("%d attempts, want 3", calls.Load())
	}
	if got != self {
		t.Fatalf("server received %v, want %v", got, self)
	}
}

func TestRegisterDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusBadRequest, api.Envelope{Message: "peer is missing ip"})
	}))
	defer srv.Close()

	err := NewHTTPClient(2).Register(context.Background(), peerOf(t, srv), core.Peer{IP: "127.0.0.1", Port: 3002})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Message != "peer is missing ip" {
		t.Fatalf("expected a 400 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("%d attempts for a client error", calls.Load())
	}
}

func TestRegisterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := peerOf(t, srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := NewHTTPClient(2).Register(ctx, target, core.Peer{IP: "127.0.0.1", Port: 3002}); err == nil {
		t.Fatal("Register to a closed server succeeded")
	}
}

func TestNeighborsAndPushChain(t *testing.T) {
	neighbors := []core.Peer{{IP: "127.0.0.1", Port: 3003}, {IP: "127.0.0.1", Port: 3004}}
	remote := []*core.Block{core.DefaultGenesis()}

	var pushed api.ResolveRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/nodes/neighbors", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.Envelope{Message: "This is my neighbors", Content: neighbors})
	})
	mux.HandleFunc("POST /api/nodes/resolve", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&pushed); err != nil {
			t.Errorf("bad resolve body: %v", err)
		}
		writeEnvelope(w, http.StatusOK, api.Envelope{Message: "Chain resolved, I'll keep my chain", Content: api.NewChainContent(remote, 2)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(2)
	target := peerOf(t, srv)

	got, err := c.Neighbors(context.Background(), target)
	if err != nil {
		t.Fatalf("Neighbors failed: %v", err)
	}
	if len(got) != 2 || got[1] != neighbors[1] {
		t.Fatalf("Neighbors = %v", got)
	}

	local := []*core.Block{core.DefaultGenesis(), {Index: 1, PreviousHash: core.GenesisHash}}
	chain, err := c.PushChain(context.Background(), target, local)
	if err != nil {
		t.Fatalf("PushChain failed: %v", err)
	}
	if len(chain) != 1 || chain[0].Hash() != core.GenesisHash {
		t.Fatalf("PushChain returned %v", chain)
	}
	if pushed.Chain.Length != 2 || pushed.Chain.Difficulty != 2 || pushed.Chain.Chain[1].Hash() != local[1].Hash() {
		t.Fatalf("server received %+v", pushed.Chain)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, api.Envelope{Message: "Mining failed: " + strconv.Itoa(42)})
	}))
	defer srv.Close()

	_, _, err := NewHTTPClient(2).Mine(context.Background(), peerOf(t, srv))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable || se.Message != "Mining failed: 42" {
		t.Fatalf("unexpected error %v", err)
	}
}
