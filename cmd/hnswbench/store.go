package main

import (
	"fmt"
	"math"

	"github.com/hupe1980/hnswgraph/vectorstore"
)

// boltBatchSize is the number of vectors written per bbolt transaction.
const boltBatchSize = 4096

// openStore creates the configured vector store. close must be called when done.
func openStore(cfg StoreConfig, dim int) (store vectorstore.MutableStore, closeFn func() error, err error) {
	switch cfg.Kind {
	case "float16":
		return vectorstore.NewFloat16(dim), func() error { return nil }, nil
	case "bolt":
		b, err := vectorstore.OpenBolt(cfg.Path, dim)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return vectorstore.NewMemory(dim), func() error { return nil }, nil
	}
}

// fillStore writes vectors[i] under document id i.
func fillStore(store vectorstore.MutableStore, vectors [][]float32) error {
	if b, ok := store.(*vectorstore.Bolt); ok {
		return fillBolt(b, vectors)
	}
	for i, v := range vectors {
		id, err := docID(i)
		if err != nil {
			return err
		}
		if err := store.SetVector(id, v); err != nil {
			return fmt.Errorf("store vector %d: %w", id, err)
		}
	}
	return nil
}

func fillBolt(b *vectorstore.Bolt, vectors [][]float32) error {
	batch := make(map[uint32][]float32, boltBatchSize)
	for i, v := range vectors {
		id, err := docID(i)
		if err != nil {
			return err
		}
		batch[id] = v
		if len(batch) == boltBatchSize {
			if err := b.SetVectors(batch); err != nil {
				return err
			}
			clear(batch)
		}
	}
	if len(batch) > 0 {
		return b.SetVectors(batch)
	}
	return nil
}

// docID maps a dataset row to its document id.
func docID(row int) (uint32, error) {
	if row < 0 || uint64(row) > math.MaxUint32 {
		return 0, fmt.Errorf("row %d does not fit a document id", row)
	}
	return uint32(row), nil
}
