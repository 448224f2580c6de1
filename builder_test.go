package hnswgraph_test

import (
	"context"
	"testing"

	"github.com/hupe1980/hnswgraph"
	"github.com/hupe1980/hnswgraph/testutil"
	"github.com/hupe1980/hnswgraph/vectorstore"
)

func lineStore(t *testing.T, n int) *vectorstore.Memory {
	t.Helper()
	store := vectorstore.NewMemory(2)
	for i, v := range testutil.LineVectors(n, 0) {
		if err := store.SetVector(uint32(i), v); err != nil {
			t.Fatalf("SetVector failed: %v", err)
		}
	}
	return store
}

func TestBuilder_Basic(t *testing.T) {
	db, err := hnswgraph.NewBuilder(lineStore(t, 4)).
		SquaredL2().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer db.Close()

	if err := db.Insert(context.Background(), 1); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if got := db.Config(); got != hnswgraph.DefaultConfig() {
		t.Fatalf("expected default config, got %+v", got)
	}
}

func TestBuilder_FullOptions(t *testing.T) {
	db, err := hnswgraph.NewBuilder(lineStore(t, 20)).
		Cosine().
		MaxLinks(16, 8).
		EFConstruction(64).
		Heuristic(false).
		SoftDelete().
		RandomSeed(7).
		MemoryLimit(1 << 30).
		SearchConcurrency(2).
		Logger(hnswgraph.NoopLogger()).
		Metrics(&hnswgraph.BasicMetricsCollector{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer db.Close()

	want := hnswgraph.Config{
		MaxLinksAtLevel0:                 16,
		MaxLinksAtHierarchicLevels:       8,
		NeighborsToExploreAtConstruction: 64,
	}
	if got := db.Config(); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	ctx := context.Background()
	if _, err := db.InsertBatch(ctx, []uint32{1, 2, 3}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if err := db.Remove(ctx, 2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// Soft delete keeps the node until Vacuum.
	if links, ok := db.Links(2); !ok || !links.Removed {
		t.Fatalf("expected soft-removed node, got %+v %v", links, ok)
	}
}

func TestBuilder_InvalidConfig(t *testing.T) {
	_, err := hnswgraph.NewBuilder(lineStore(t, 1)).MaxLinks(0, 8).Build()
	if err == nil {
		t.Fatal("expected error for zero link capacity")
	}
}

func TestBuilder_Immutable(t *testing.T) {
	base := hnswgraph.NewBuilder(lineStore(t, 1))
	soft := base.SoftDelete()
	_ = base.MaxLinks(8, 4)

	db, err := soft.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer db.Close()

	if got := db.Config(); got != hnswgraph.DefaultConfig() {
		t.Fatalf("derived builder must not change the base, got %+v", got)
	}
}
