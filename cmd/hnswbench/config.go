package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/hnswgraph"
	"github.com/hupe1980/hnswgraph/distance"
)

// Config is the benchmark configuration, read from YAML and overridden by flags.
type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	Index   IndexConfig   `yaml:"index"`
	Store   StoreConfig   `yaml:"store"`
	Search  SearchConfig  `yaml:"search"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":2112".
	MetricsAddr string `yaml:"metrics_addr"`
}

// DatasetConfig selects fvecs files or a synthetic dataset.
type DatasetConfig struct {
	Base        string `yaml:"base"`         // .fvecs base vectors
	Query       string `yaml:"query"`        // .fvecs query vectors
	GroundTruth string `yaml:"ground_truth"` // .ivecs neighbor ids, optional

	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig generates data when no base file is given.
type SyntheticConfig struct {
	Count        int    `yaml:"count"`
	Queries      int    `yaml:"queries"`
	Dimension    int    `yaml:"dimension"`
	Seed         int64  `yaml:"seed"`
	Distribution string `yaml:"distribution"` // uniform, gaussian, clustered
	Clusters     int    `yaml:"clusters"`
}

// IndexConfig holds the graph parameters.
type IndexConfig struct {
	MaxLinksAtLevel0                 int     `yaml:"max_links_at_level0"`
	MaxLinksAtHierarchicLevels       int     `yaml:"max_links_at_hierarchic_levels"`
	NeighborsToExploreAtConstruction int     `yaml:"neighbors_to_explore_at_construction"`
	Metric                           string  `yaml:"metric"`
	Heuristic                        bool    `yaml:"heuristic"`
	Removal                          string  `yaml:"removal"` // hard, soft
	Seed                             *int64  `yaml:"seed"`
	MemoryLimitMB                    int64   `yaml:"memory_limit_mb"`
	BatchSize                        int     `yaml:"batch_size"`
	InsertRate                       float64 `yaml:"insert_rate"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Kind string `yaml:"kind"` // memory, float16, bolt
	Path string `yaml:"path"` // bolt database file
}

// SearchConfig controls the query phase.
type SearchConfig struct {
	K            int     `yaml:"k"`
	ExploreWidth int     `yaml:"explore_width"`
	Concurrency  int     `yaml:"concurrency"`
	QPS          float64 `yaml:"qps"` // 0 = unthrottled
}

// DefaultConfig returns a configuration that runs a small synthetic benchmark.
func DefaultConfig() Config {
	def := hnswgraph.DefaultConfig()
	return Config{
		Dataset: DatasetConfig{
			Synthetic: SyntheticConfig{
				Count:        10000,
				Queries:      100,
				Dimension:    64,
				Seed:         42,
				Distribution: "uniform",
				Clusters:     16,
			},
		},
		Index: IndexConfig{
			MaxLinksAtLevel0:                 def.MaxLinksAtLevel0,
			MaxLinksAtHierarchicLevels:       def.MaxLinksAtHierarchicLevels,
			NeighborsToExploreAtConstruction: def.NeighborsToExploreAtConstruction,
			Metric:                           "l2",
			Heuristic:                        true,
			Removal:                          "hard",
			BatchSize:                        256,
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		Search: SearchConfig{
			K:            10,
			ExploreWidth: 100,
			Concurrency:  4,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("could not open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("could not decode config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings the benchmark cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Dataset.Base == "" {
		s := c.Dataset.Synthetic
		if s.Count <= 0 || s.Dimension <= 0 {
			errs = append(errs, errors.New("synthetic dataset needs a positive count and dimension"))
		}
		if s.Queries <= 0 {
			errs = append(errs, errors.New("synthetic dataset needs at least one query"))
		}
		switch s.Distribution {
		case "uniform", "gaussian", "clustered":
		default:
			errs = append(errs, fmt.Errorf("unknown distribution %q", s.Distribution))
		}
	} else if c.Dataset.Query == "" {
		errs = append(errs, errors.New("dataset.query is required with dataset.base"))
	}

	if _, err := distance.ParseMetric(c.Index.Metric); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseRemoval(c.Index.Removal); err != nil {
		errs = append(errs, err)
	}
	if err := c.graphConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Index.BatchSize <= 0 {
		errs = append(errs, errors.New("index.batch_size must be positive"))
	}

	switch c.Store.Kind {
	case "memory", "float16":
	case "bolt":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the bolt store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}

	if c.Search.K <= 0 {
		errs = append(errs, errors.New("search.k must be positive"))
	}
	if c.Search.Concurrency <= 0 {
		errs = append(errs, errors.New("search.concurrency must be positive"))
	}
	if c.Search.QPS < 0 {
		errs = append(errs, errors.New("search.qps must not be negative"))
	}

	return errors.Join(errs...)
}

func (c Config) graphConfig() hnswgraph.Config {
	return hnswgraph.Config{
		MaxLinksAtLevel0:                 c.Index.MaxLinksAtLevel0,
		MaxLinksAtHierarchicLevels:       c.Index.MaxLinksAtHierarchicLevels,
		NeighborsToExploreAtConstruction: c.Index.NeighborsToExploreAtConstruction,
	}
}

func parseRemoval(s string) (hnswgraph.RemovalStrategy, error) {
	switch strings.ToLower(s) {
	case "", "hard":
		return hnswgraph.HardDelete, nil
	case "soft":
		return hnswgraph.SoftDelete, nil
	default:
		return 0, fmt.Errorf("unknown removal strategy %q", s)
	}
}
