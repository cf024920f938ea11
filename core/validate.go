package core

import (
	"errors"
	"fmt"
)

// ErrEmptyChain is returned when validating a chain with no blocks.
var ErrEmptyChain = errors.New("chain is empty")

// ValidationError pinpoints the first block that broke the chain.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid chain at position %d: %s", e.Index, e.Reason)
}

// ValidateChain walks blocks from position 1, checking for each pair that
// the index follows its predecessor's, that the block links to its
// predecessor's hash and that the predecessor's proof is valid, then checks
// the last block's own proof. The first block must have index 0. It stops
// at the first violation.
func (p *ProofOfWork) ValidateChain(blocks []*Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}
	for i, b := range blocks {
		if b == nil {
			return &ValidationError{Index: i, Reason: "missing block"}
		}
	}
	if blocks[0].Index != 0 {
		return &ValidationError{Index: 0, Reason: fmt.Sprintf("first block has index %d", blocks[0].Index)}
	}
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if cur.Index != prev.Index+1 {
			return &ValidationError{Index: i, Reason: fmt.Sprintf("index %d does not follow %d", cur.Index, prev.Index)}
		}
		if prevHash := prev.Hash(); cur.PreviousHash != prevHash {
			return &ValidationError{Index: i, Reason: fmt.Sprintf("previous_hash %.16s does not match %.16s", cur.PreviousHash, prevHash)}
		}
		if !p.IsProofValid(prev) {
			return &ValidationError{Index: i - 1, Reason: fmt.Sprintf("proof %d does not meet difficulty %d", prev.Proof, p.Difficulty)}
		}
	}
	last := blocks[len(blocks)-1]
	if !p.IsProofValid(last) {
		return &ValidationError{Index: len(blocks) - 1, Reason: fmt.Sprintf("proof %d does not meet difficulty %d", last.Proof, p.Difficulty)}
	}
	return nil
}

// Validate is ValidateChain as a predicate.
func (p *ProofOfWork) Validate(blocks []*Block) bool {
	return p.ValidateChain(blocks) == nil
}
