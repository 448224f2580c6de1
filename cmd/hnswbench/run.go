package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/hnswgraph"
	"github.com/hupe1980/hnswgraph/distance"
	"github.com/hupe1980/hnswgraph/metric/prom"
	"github.com/hupe1980/hnswgraph/testutil"
)

const runLongDesc string = `Build an index and measure recall, latency and throughput.

Without dataset files a synthetic dataset is generated. With --base and
--query the vectors are read from fvecs files; --ground-truth reads the exact
neighbors from an ivecs file, otherwise they are computed by brute force.

Example:
  hnswbench run --count 20000 --dim 96 --k 10 --explore-width 64
  hnswbench run --base sift_base.fvecs --query sift_query.fvecs --ground-truth sift_groundtruth.ivecs
  hnswbench run --config bench.yaml --metrics-addr :2112`

const runShortDesc string = "Run a benchmark"

type runCommander struct {
	configPath string
	debug      bool
	jsonLogs   bool

	cfg Config
	out io.Writer
	log *hnswgraph.Logger
}

// Report summarizes one benchmark run.
type Report struct {
	Documents    int
	Queries      int
	BuildTime    time.Duration
	InsertRate   float64 // documents per second
	SearchTime   time.Duration
	QPS          float64
	LatencyMean  time.Duration
	LatencyP50   time.Duration
	LatencyP99   time.Duration
	Recall       float64
	Stats        hnswgraph.Stats
	MemoryPerDoc float64
}

func newRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configPath, err = cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("could not get config flag: %w", err)
			}
			cmder.cfg, err = LoadConfig(cmder.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := applyFlags(cmd, &cmder.cfg); err != nil {
				return err
			}
			return cmder.cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.jsonLogs, err = cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("could not get json flag: %w", err)
			}
			cmder.out = cmd.OutOrStdout()
			cmder.log = newLogger(cmd.ErrOrStderr(), cmder.debug, cmder.jsonLogs)

			report, err := cmder.run(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmder.out, report)
			return nil
		},
	}

	defaults := DefaultConfig()
	f := cmd.Flags()
	f.String("base", "", "Base vectors (.fvecs)")
	f.String("query", "", "Query vectors (.fvecs)")
	f.String("ground-truth", "", "Exact neighbors (.ivecs)")
	f.Int("count", defaults.Dataset.Synthetic.Count, "Synthetic base vectors")
	f.Int("queries", defaults.Dataset.Synthetic.Queries, "Synthetic queries")
	f.Int("dim", defaults.Dataset.Synthetic.Dimension, "Synthetic dimension")
	f.String("distribution", defaults.Dataset.Synthetic.Distribution, "Synthetic distribution: uniform, gaussian, clustered")
	f.Int("m0", defaults.Index.MaxLinksAtLevel0, "Max links at level 0")
	f.Int("m", defaults.Index.MaxLinksAtHierarchicLevels, "Max links above level 0")
	f.Int("ef-construction", defaults.Index.NeighborsToExploreAtConstruction, "Neighbors to explore at construction")
	f.String("metric", defaults.Index.Metric, "Distance metric: l2, cosine, dot")
	f.Int64("seed", 0, "Layer assignment seed")
	f.String("store", defaults.Store.Kind, "Vector store: memory, float16, bolt")
	f.String("store-path", "", "Bolt database file")
	f.Int("k", defaults.Search.K, "Neighbors per query")
	f.Int("explore-width", defaults.Search.ExploreWidth, "Search explore width")
	f.Int("concurrency", defaults.Search.Concurrency, "Concurrent queries")
	f.Float64("qps", 0, "Query rate limit (0 = unthrottled)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	f := cmd.Flags()
	var errs []error
	str := func(name string, dst *string) {
		if f.Changed(name) {
			v, err := f.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			v, err := f.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("base", &cfg.Dataset.Base)
	str("query", &cfg.Dataset.Query)
	str("ground-truth", &cfg.Dataset.GroundTruth)
	num("count", &cfg.Dataset.Synthetic.Count)
	num("queries", &cfg.Dataset.Synthetic.Queries)
	num("dim", &cfg.Dataset.Synthetic.Dimension)
	str("distribution", &cfg.Dataset.Synthetic.Distribution)
	num("m0", &cfg.Index.MaxLinksAtLevel0)
	num("m", &cfg.Index.MaxLinksAtHierarchicLevels)
	num("ef-construction", &cfg.Index.NeighborsToExploreAtConstruction)
	str("metric", &cfg.Index.Metric)
	str("store", &cfg.Store.Kind)
	str("store-path", &cfg.Store.Path)
	num("k", &cfg.Search.K)
	num("explore-width", &cfg.Search.ExploreWidth)
	num("concurrency", &cfg.Search.Concurrency)
	str("metrics-addr", &cfg.MetricsAddr)

	if f.Changed("seed") {
		v, err := f.GetInt64("seed")
		errs = append(errs, err)
		cfg.Index.Seed = &v
	}
	if f.Changed("qps") {
		v, err := f.GetFloat64("qps")
		errs = append(errs, err)
		cfg.Search.QPS = v
	}
	return errors.Join(errs...)
}

func (c *runCommander) run(ctx context.Context) (*Report, error) {
	cfg := c.cfg

	ds, err := LoadDataset(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	c.log.Info("dataset loaded", "documents", len(ds.Base), "queries", len(ds.Queries), "dimension", ds.Dimension())

	store, closeStore, err := openStore(cfg.Store, ds.Dimension())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			c.log.Warn("closing store", "error", err)
		}
	}()
	if err := fillStore(store, ds.Base); err != nil {
		return nil, err
	}

	metric, _ := distance.ParseMetric(cfg.Index.Metric) // validated
	removal, _ := parseRemoval(cfg.Index.Removal)

	var idx *hnswgraph.Index
	collector := prom.NewCollector("hnswbench", prom.WithStats(func() hnswgraph.Stats { return idx.Stats() }))

	opts := []hnswgraph.Option{
		hnswgraph.WithConfig(cfg.graphConfig()),
		hnswgraph.WithMetric(metric),
		hnswgraph.WithRemovalStrategy(removal),
		hnswgraph.WithMemoryLimit(cfg.Index.MemoryLimitMB << 20),
		hnswgraph.WithSearchConcurrency(cfg.Search.Concurrency),
		hnswgraph.WithInsertRate(cfg.Index.InsertRate),
		hnswgraph.WithLogger(c.log),
		hnswgraph.WithMetricsCollector(collector),
	}
	if !cfg.Index.Heuristic {
		opts = append(opts, hnswgraph.WithSelector(hnswgraph.SimpleSelector{}))
	}
	if cfg.Index.Seed != nil {
		opts = append(opts, hnswgraph.WithSeed(*cfg.Index.Seed))
	}

	idx, err = hnswgraph.New(store, opts...)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
		stop := c.serveMetrics(cfg.MetricsAddr, reg)
		defer stop()
	}

	report := &Report{Documents: len(ds.Base), Queries: len(ds.Queries)}

	if err := c.build(ctx, idx, len(ds.Base), report); err != nil {
		return nil, err
	}

	results, latencies, err := c.search(ctx, idx, ds.Queries, report)
	if err != nil {
		return nil, err
	}

	report.Recall = recall(ds, results, cfg.Search.K, kernel(metric))
	summarizeLatencies(latencies, report)

	report.Stats = idx.Stats()
	if report.Documents > 0 {
		report.MemoryPerDoc = float64(report.Stats.MemoryUsage) / float64(report.Documents)
	}
	return report, nil
}

func (c *runCommander) build(ctx context.Context, idx *hnswgraph.Index, n int, report *Report) error {
	batchSize := c.cfg.Index.BatchSize
	start := time.Now()

	batch := make([]uint32, 0, batchSize)
	for i := range n {
		id, err := docID(i)
		if err != nil {
			return err
		}
		batch = append(batch, id)
		if len(batch) == batchSize || i == n-1 {
			if _, err := idx.InsertBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	report.BuildTime = time.Since(start)
	if secs := report.BuildTime.Seconds(); secs > 0 {
		report.InsertRate = float64(n) / secs
	}
	c.log.Info("index built", "documents", idx.Len(), "duration", report.BuildTime)
	return nil
}

func (c *runCommander) search(ctx context.Context, idx *hnswgraph.Index, queries [][]float32, report *Report) ([][]hnswgraph.SearchResult, []float64, error) {
	cfg := c.cfg.Search
	results := make([][]hnswgraph.SearchResult, len(queries))
	latencies := make([]float64, len(queries))

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}
			t0 := time.Now()
			res, err := idx.Search(gctx, q, cfg.K, cfg.ExploreWidth)
			latencies[i] = time.Since(t0).Seconds()
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report.SearchTime = time.Since(start)
	if secs := report.SearchTime.Seconds(); secs > 0 {
		report.QPS = float64(len(queries)) / secs
	}
	return results, latencies, nil
}

func (c *runCommander) serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		c.log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// kernel returns the raw distance used for brute-force ground truth.
func kernel(m distance.Metric) func(a, b []float32) float32 {
	switch m {
	case distance.MetricCosine:
		return distance.Cosine
	case distance.MetricDot:
		return distance.NegativeDot
	default:
		return distance.SquaredL2
	}
}

// recall averages recall@k over all queries.
func recall(ds *Dataset, results [][]hnswgraph.SearchResult, k int, fn func(a, b []float32) float32) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum float64
	for i, res := range results {
		var truth []testutil.SearchResult
		if len(ds.GroundTruth) > 0 {
			row := ds.GroundTruth[i]
			truth = make([]testutil.SearchResult, min(k, len(row)))
			for j := range truth {
				truth[j] = testutil.SearchResult{ID: row[j]}
			}
		} else {
			truth = testutil.ExactTopK(ds.Base, ds.Queries[i], k, fn)
		}

		approx := make([]testutil.SearchResult, len(res))
		for j, r := range res {
			approx[j] = testutil.SearchResult{ID: r.DocID, Distance: r.Distance}
		}
		sum += testutil.ComputeRecall(truth, approx)
	}
	return sum / float64(len(results))
}

func summarizeLatencies(latencies []float64, report *Report) {
	if len(latencies) == 0 {
		return
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	seconds := func(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
	report.LatencyMean = seconds(stat.Mean(sorted, nil))
	report.LatencyP50 = seconds(stat.Quantile(0.5, stat.Empirical, sorted, nil))
	report.LatencyP99 = seconds(stat.Quantile(0.99, stat.Empirical, sorted, nil))
}

func printReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "documents:      %d\n", r.Documents)
	fmt.Fprintf(w, "build time:     %v (%.0f docs/s)\n", r.BuildTime.Round(time.Millisecond), r.InsertRate)
	fmt.Fprintf(w, "queries:        %d in %v (%.0f QPS)\n", r.Queries, r.SearchTime.Round(time.Millisecond), r.QPS)
	fmt.Fprintf(w, "latency:        mean %v, p50 %v, p99 %v\n", r.LatencyMean, r.LatencyP50, r.LatencyP99)
	fmt.Fprintf(w, "recall:         %.4f\n", r.Recall)
	fmt.Fprintf(w, "max level:      %d\n", r.Stats.MaxLevel)
	for _, l := range r.Stats.Levels {
		fmt.Fprintf(w, "  level %-2d      %d nodes, %.1f avg links\n", l.Level, l.Nodes, l.AvgConnections)
	}
	fmt.Fprintf(w, "memory:         %d bytes (%.1f per document)\n", r.Stats.MemoryUsage, r.MemoryPerDoc)
}
