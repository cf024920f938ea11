package api

import (
	"encoding/json"

	"powledger/core"
)

// Envelope is the body of every response: a human-readable message and an
// optional payload.
type Envelope struct {
	Message string `json:"message"`
	Content any    `json:"content,omitempty"`
}

// RawEnvelope is Envelope as read by a client, with the payload left
// undecoded.
type RawEnvelope struct {
	Message string          `json:"message"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ChainContent is how a chain travels over the wire.
type ChainContent struct {
	Chain      []*core.Block `json:"chain"`
	Length     int           `json:"length"`
	Difficulty int           `json:"difficulty"`
}

// NewChainContent wraps blocks for the wire.
func NewChainContent(blocks []*core.Block, difficulty int) ChainContent {
	if blocks == nil {
		blocks = []*core.Block{}
	}
	return ChainContent{Chain: blocks, Length: len(blocks), Difficulty: difficulty}
}

// ResolveRequest is the body a node posts to a neighbor's resolver.
type ResolveRequest struct {
	Chain ChainContent `json:"chain"`
}

// PendingTransaction is a pool entry together with its identifier.
type PendingTransaction struct {
	ID string `json:"id"`
	core.Transaction
}
