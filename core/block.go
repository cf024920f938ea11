// Package core implements the ledger, proof-of-work and peer logic of a node.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Block is one entry of the chain. Its hash covers every field, proof included.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"` // unix milliseconds
	Proof        uint64        `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
}

// canonicalBlock fixes the field order and turns a nil transaction list
// into an empty one so that both encode as [].
type canonicalBlock struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Proof        uint64        `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
}

// Canonical returns the byte encoding that Hash digests.
func (b *Block) Canonical() []byte {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	data, err := json.Marshal(canonicalBlock{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Proof:        b.Proof,
		PreviousHash: b.PreviousHash,
		Transactions: txs,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal block: %v", err))
	}
	return data
}

// Hash returns the hex SHA-256 of the block's canonical encoding.
func (b *Block) Hash() string {
	sum := sha256.Sum256(b.Canonical())
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy.
func (b *Block) Clone() *Block {
	c := *b
	if b.Transactions != nil {
		c.Transactions = make([]Transaction, len(b.Transactions))
		copy(c.Transactions, b.Transactions)
	}
	return &c
}

// CloneBlocks deep-copies a chain.
func CloneBlocks(blocks []*Block) []*Block {
	out := make([]*Block, len(blocks))
	for i, b := range blocks {
		if b != nil {
			out[i] = b.Clone()
		}
	}
	return out
}

// Encode serializes the block to JSON for storage/transmission.
func (b *Block) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBlock deserializes a block from JSON.
func DecodeBlock(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}
