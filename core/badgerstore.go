package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// ErrBlockNotFound is returned for a lookup that matches no archived block.
var ErrBlockNotFound = errors.New("block not found")

var (
	blockPrefix = []byte("block:")
	hashPrefix  = []byte("hash:")
	tipKey      = []byte("chain:tip")
)

// BadgerStore archives the chain by index and by hash. It mirrors the
// in-memory chain and is never read back at startup.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens an archive under dataDir, or an in-memory one when
// dataDir is empty.
func OpenBadgerStore(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	if dataDir != "" {
		opts = badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func blockKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", blockPrefix, index))
}

func hashKey(hash string) []byte {
	return append(append([]byte{}, hashPrefix...), hash...)
}

func putBlock(txn *badger.Txn, block *Block) error {
	val, err := block.Encode()
	if err != nil {
		return err
	}
	if err := txn.Set(blockKey(block.Index), val); err != nil {
		return err
	}
	idx := []byte(strconv.FormatUint(block.Index, 10))
	if err := txn.Set(hashKey(block.Hash()), idx); err != nil {
		return err
	}
	return txn.Set(tipKey, idx)
}

// PutBlock archives one appended block and moves the tip to it.
func (s *BadgerStore) PutBlock(block *Block) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putBlock(txn, block)
	})
}

// ReplaceChain swaps the archived chain for blocks in one transaction.
func (s *BadgerStore) ReplaceChain(blocks []*Block) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for _, prefix := range [][]byte{blockPrefix, hashPrefix} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, b := range blocks {
			if err := putBlock(txn, b); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBlock returns the archived block at index.
func (s *BadgerStore) GetBlock(index uint64) (*Block, error) {
	var block *Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(index))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			b, err := DecodeBlock(val)
			if err != nil {
				return err
			}
			block = b
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("index %d: %w", index, ErrBlockNotFound)
	}
	if err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlockByHash resolves hash to an index and returns that block.
func (s *BadgerStore) GetBlockByHash(hash string) (*Block, error) {
	var index uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			index, err = strconv.ParseUint(string(val), 10, 64)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("hash %s: %w", hash, ErrBlockNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.GetBlock(index)
}

// GetTipHeight returns the index of the last archived block.
func (s *BadgerStore) GetTipHeight() (uint64, error) {
	var height uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tipKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			h, err := strconv.ParseUint(string(val), 10, 64)
			if err != nil {
				return err
			}
			height = h
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
