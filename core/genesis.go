package core

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed genesis_block.json
var embeddedGenesis []byte

// GenesisHash is the digest of the embedded genesis block. It ends in six
// zeros, so the genesis satisfies every difficulty up to 6.
const GenesisHash = "1f32b60883d6a0639c4cc2b57edd97ea541304ab29373051a7b28f7135000000"

// DefaultGenesis returns a fresh copy of the embedded genesis block.
func DefaultGenesis() *Block {
	b, err := DecodeBlock(embeddedGenesis)
	if err != nil {
		panic(fmt.Sprintf("embedded genesis is corrupt: %v", err))
	}
	return b
}

// LoadGenesis reads a genesis definition from path, or returns the embedded
// one when path is empty, and checks it against the difficulty. The genesis
// is never mined, so its stored proof has to be valid already.
func LoadGenesis(path string, pow *ProofOfWork) (*Block, error) {
	var genesis *Block
	if path == "" {
		genesis = DefaultGenesis()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read genesis: %w", err)
		}
		genesis, err = DecodeBlock(data)
		if err != nil {
			return nil, fmt.Errorf("decode genesis %s: %w", path, err)
		}
	}
	if genesis.Index != 0 {
		return nil, fmt.Errorf("genesis block has index %d, want 0", genesis.Index)
	}
	if !pow.IsProofValid(genesis) {
		return nil, fmt.Errorf("genesis block %s does not satisfy difficulty %d", genesis.Hash(), pow.Difficulty)
	}
	log.Infof("📗 Loaded genesis block %s", genesis.Hash())
	return genesis, nil
}
