package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kshard/fvecs"

	"github.com/hupe1980/hnswgraph/testutil"
)

// Dataset holds the vectors of one benchmark run.
type Dataset struct {
	Base    [][]float32
	Queries [][]float32
	// GroundTruth holds the exact neighbor ids per query, closest first.
	// Empty when it has to be computed.
	GroundTruth [][]uint32
}

// Dimension returns the vector length of the base set.
func (d *Dataset) Dimension() int {
	if len(d.Base) == 0 {
		return 0
	}
	return len(d.Base[0])
}

// LoadDataset reads the configured files, or generates a synthetic dataset.
func LoadDataset(cfg DatasetConfig) (*Dataset, error) {
	if cfg.Base == "" {
		return syntheticDataset(cfg.Synthetic), nil
	}

	base, err := readFvecs(cfg.Base)
	if err != nil {
		return nil, err
	}
	queries, err := readFvecs(cfg.Query)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Base: base, Queries: queries}

	if cfg.GroundTruth != "" {
		ds.GroundTruth, err = readIvecs(cfg.GroundTruth)
		if err != nil {
			return nil, err
		}
		if len(ds.GroundTruth) < len(ds.Queries) {
			return nil, fmt.Errorf("ground truth has %d rows for %d queries", len(ds.GroundTruth), len(ds.Queries))
		}
	}

	if len(base) == 0 || len(queries) == 0 {
		return nil, errors.New("dataset has no base or query vectors")
	}
	if len(queries[0]) != len(base[0]) {
		return nil, fmt.Errorf("query dimension %d does not match base dimension %d", len(queries[0]), len(base[0]))
	}
	return ds, nil
}

// readFvecs decodes every vector of an fvecs file.
func readFvecs(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	var out [][]float32
	dec := fvecs.NewDecoder[float32](f)
	for {
		v, err := dec.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", path, err)
		}
		out = append(out, v)
	}
}

// readIvecs decodes every row of an ivecs file.
func readIvecs(path string) ([][]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	var out [][]uint32
	dec := fvecs.NewDecoder[uint32](f)
	for {
		v, err := dec.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", path, err)
		}
		out = append(out, v)
	}
}

func syntheticDataset(cfg SyntheticConfig) *Dataset {
	rng := testutil.NewRNG(cfg.Seed)
	gen := func(n int) [][]float32 {
		switch cfg.Distribution {
		case "gaussian":
			return rng.GaussianVectors(n, cfg.Dimension)
		case "clustered":
			return rng.ClusteredVectors(n, cfg.Dimension, max(cfg.Clusters, 1), 0.05)
		default:
			return rng.UniformVectors(n, cfg.Dimension)
		}
	}
	return &Dataset{
		Base:    gen(cfg.Count),
		Queries: gen(cfg.Queries),
	}
}
