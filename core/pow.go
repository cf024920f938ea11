package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrProofNotFound is returned when a capped search runs out of attempts.
// The caller may retry; the candidate is left untouched.
var ErrProofNotFound = errors.New("proof of work not found within attempt limit")

const ctxCheckInterval = 4096

// ProofOfWork finds and checks nonces. A block's proof is valid when the
// last Difficulty hex characters of its hash are all '0'.
type ProofOfWork struct {
	Difficulty  int
	MaxAttempts uint64 // 0 = unbounded
}

// NewProofOfWork returns an engine for the given difficulty.
func NewProofOfWork(difficulty int, maxAttempts uint64) *ProofOfWork {
	return &ProofOfWork{Difficulty: difficulty, MaxAttempts: maxAttempts}
}

// Target is the suffix every valid hash ends with.
func (p *ProofOfWork) Target() string {
	return strings.Repeat("0", p.Difficulty)
}

// IsProofValid reports whether b's own proof satisfies the difficulty.
func (p *ProofOfWork) IsProofValid(b *Block) bool {
	if b == nil {
		return false
	}
	return hashMeetsDifficulty(b.Hash(), p.Difficulty)
}

func hashMeetsDifficulty(hash string, difficulty int) bool {
	if difficulty > len(hash) {
		return false
	}
	for i := len(hash) - difficulty; i < len(hash); i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// Mine searches proofs upward from candidate.Proof until the hash meets the
// difficulty and returns the proof with the resulting hash. The candidate
// itself is not modified. The search is deterministic for a given candidate.
func (p *ProofOfWork) Mine(ctx context.Context, candidate *Block) (uint64, string, error) {
	work := candidate.Clone()
	start := time.Now()
	lastLog := start
	var tries uint64
	for {
		hash := work.Hash()
		tries++
		if hashMeetsDifficulty(hash, p.Difficulty) {
			log.Debugf("⛏️  Block #%d solved: proof=%d tries=%d in %s", work.Index, work.Proof, tries, time.Since(start))
			return work.Proof, hash, nil
		}
		if p.MaxAttempts > 0 && tries >= p.MaxAttempts {
			return 0, "", fmt.Errorf("block #%d after %d attempts: %w", work.Index, tries, ErrProofNotFound)
		}
		if tries%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", fmt.Errorf("mining block #%d cancelled: %w", work.Index, err)
			}
			if time.Since(lastLog) > 5*time.Second {
				log.Infof("[MINER] block #%d: %d tries, %.1f kH/s", work.Index, tries, float64(tries)/time.Since(start).Seconds()/1e3)
				lastLog = time.Now()
			}
		}
		work.Proof++
	}
}
