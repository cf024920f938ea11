// Package api exposes a node over HTTP. Every response is an Envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"powledger/core"
)

var log = logging.Logger("api")

// maxBodyBytes bounds request bodies; a resolve request carries a whole chain.
const maxBodyBytes = 32 << 20

// Service is what the HTTP layer needs from a node.
type Service interface {
	// SubmitTransaction queues tx and mines the next block.
	SubmitTransaction(ctx context.Context, tx core.Transaction) (*core.Block, error)
	// Mine mines a block, broadcasts the chain and returns the resulting tail.
	Mine(ctx context.Context) (*core.Block, error)
	// Chain returns a copy of the local chain.
	Chain() ChainContent
	// Neighbors returns the peer directory.
	Neighbors() []core.Peer
	// RegisterPeer records an inbound registration.
	RegisterPeer(p core.Peer) error
	// Resolve runs the longest-valid-chain rule against candidate.
	Resolve(candidate []*core.Block) bool
	// Pending returns the transaction pool.
	Pending() []core.Transaction
	// BlockByHash looks a block up in the archive.
	BlockByHash(hash string) (*core.Block, error)
}

// Server routes the node's HTTP endpoints to a Service.
type Server struct {
	svc Service
	mux *http.ServeMux
}

// NewServer creates the HTTP handler for svc.
func NewServer(svc Service) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Transactions and mining
	s.mux.HandleFunc("POST /api/transactions/new", s.handleNewTransaction)
	s.mux.HandleFunc("GET /api/mine", s.handleMine)
	s.mux.HandleFunc("POST /api/mine", s.handleMine)
	s.mux.HandleFunc("GET /api/pool", s.handlePool)

	// Chain
	s.mux.HandleFunc("GET /api/chain", s.handleChain)
	s.mux.HandleFunc("GET /api/blocks/{hash}", s.handleBlock)

	// Peers
	s.mux.HandleFunc("GET /api/nodes/neighbors", s.handleNeighbors)
	s.mux.HandleFunc("POST /api/nodes/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/nodes/resolve", s.handleResolve)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if !decodeBody(w, r, &tx) {
		return
	}
	if err := tx.Check(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	block, err := s.svc.SubmitTransaction(r.Context(), tx)
	if err != nil {
		log.Warnf("[API] transaction %s accepted but mining failed: %v", tx, err)
		writeJSON(w, statusFor(err), Envelope{
			Message: fmt.Sprintf("Transaction is pending, mining failed: %v", err),
			Content: tx,
		})
		return
	}
	log.Infof("[API] transaction %s packed into block #%d", tx, block.Index)
	writeJSON(w, http.StatusOK, Envelope{
		Message: "A new transaction is appended to the blockchain",
		Content: tx,
	})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	last, err := s.svc.Mine(r.Context())
	if err != nil {
		writeError(w, statusFor(err), fmt.Sprintf("Mining failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Message: "A new block is mined, and conflict is resolved",
		Content: last,
	})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	txs := s.svc.Pending()
	out := make([]PendingTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, PendingTransaction{ID: tx.ID(), Transaction: tx})
	}
	writeJSON(w, http.StatusOK, Envelope{
		Message: fmt.Sprintf("%d pending transactions", len(out)),
		Content: out,
	})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{
		Message: "This is my chain",
		Content: s.svc.Chain(),
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	block, err := s.svc.BlockByHash(hash)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Message: fmt.Sprintf("Block #%d", block.Index),
		Content: block,
	})
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	peers := s.svc.Neighbors()
	if peers == nil {
		peers = []core.Peer{}
	}
	writeJSON(w, http.StatusOK, Envelope{
		Message: "This is my neighbors",
		Content: peers,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p core.Peer
	if !decodeBody(w, r, &p) {
		return
	}
	if err := p.Check(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var msg string
	switch err := s.svc.RegisterPeer(p); {
	case err == nil:
		msg = fmt.Sprintf("Node %s is added to my network", p)
	case errors.Is(err, core.ErrKnownPeer), errors.Is(err, core.ErrSelfPeer):
		msg = fmt.Sprintf("Node %s is already known", p)
	case errors.Is(err, core.ErrDirectoryFull):
		msg = fmt.Sprintf("Node %s is not added: neighbor list is full", p)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Message: msg})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg := "Chain resolved, I'll keep my chain"
	if s.svc.Resolve(req.Chain.Chain) {
		msg = "Chain resolved, your chain is longer"
	}
	writeJSON(w, http.StatusOK, Envelope{
		Message: msg,
		Content: s.svc.Chain(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Debugf("[API] %s %s: bad body: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON format: %v", err))
		return false
	}
	return true
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrProofNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("[API] failed to write response: %v", err)
	}
}
