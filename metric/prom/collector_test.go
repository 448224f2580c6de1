package prom

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswgraph"
	"github.com/hupe1980/hnswgraph/testutil"
	"github.com/hupe1980/hnswgraph/vectorstore"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	c.RecordInsert(time.Millisecond, nil)
	c.RecordInsert(time.Millisecond, errors.New("boom"))
	c.RecordSearch(10, time.Microsecond, nil)
	c.RecordRemove(time.Microsecond, nil)
	c.RecordUpdate(time.Microsecond, nil)
	c.RecordBatchInsert(10, 3, time.Millisecond)
	c.RecordVacuum(4, time.Millisecond, nil)

	assert.InDelta(t, 1, promtestutil.ToFloat64(c.ops.WithLabelValues("insert", "success")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.ops.WithLabelValues("insert", "error")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.ops.WithLabelValues("batch_insert", "error")), 0)
	assert.InDelta(t, 7, promtestutil.ToFloat64(c.batchItems.WithLabelValues("success")), 0)
	assert.InDelta(t, 3, promtestutil.ToFloat64(c.batchItems.WithLabelValues("error")), 0)
	assert.InDelta(t, 4, promtestutil.ToFloat64(c.purged), 0)

	expected := `
# HELP test_vacuum_purged_documents_total Soft-removed documents purged by vacuum
# TYPE test_vacuum_purged_documents_total counter
test_vacuum_purged_documents_total 4
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "test_vacuum_purged_documents_total"))
}

func TestCollectorWithIndex(t *testing.T) {
	store := vectorstore.NewMemory(4)
	for i, v := range testutil.NewRNG(1).UniformVectors(50, 4) {
		require.NoError(t, store.SetVector(uint32(i), v))
	}

	var idx *hnswgraph.Index
	c := NewCollector("hnsw", WithStats(func() hnswgraph.Stats { return idx.Stats() }))

	idx, err := hnswgraph.New(store, hnswgraph.WithMetricsCollector(c), hnswgraph.WithSeed(1))
	require.NoError(t, err)
	defer idx.Close()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	ctx := context.Background()
	for i := range uint32(50) {
		require.NoError(t, idx.Insert(ctx, i))
	}
	_, err = idx.Search(ctx, []float32{0.5, 0.5, 0.5, 0.5}, 5, 20)
	require.NoError(t, err)

	assert.InDelta(t, 50, promtestutil.ToFloat64(c.ops.WithLabelValues("insert", "success")), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(c.ops.WithLabelValues("search", "success")), 0)

	expected := `
# HELP hnsw_index_documents Searchable documents
# TYPE hnsw_index_documents gauge
hnsw_index_documents 50
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "hnsw_index_documents"))

	count, err := promtestutil.GatherAndCount(reg, "hnsw_index_arena_arrays")
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}
