package graph

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const scope = "sandbox-1"

func setupTestStore(t *testing.T) *GraphStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	gs, err := NewGraphStore(db)
	if err != nil {
		t.Fatalf("new graph store: %v", err)
	}
	return gs
}

// #region test-add-edge
func TestAddEdge(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	if err := gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.1); err != nil {
		t.Fatalf("add edge: %v", err)
	}

	edges, err := gs.GetNeighbors(ctx, scope, "a", 0.0)
	if err != nil {
		t.Fatalf("get neighbors: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].TargetID != "b" || edges[0].EdgeType != EdgeReference {
		t.Errorf("unexpected edge: %+v", edges[0])
	}

	// Duplicate insert is ignored
	if err := gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	edges, _ = gs.GetNeighbors(ctx, scope, "a", 0.0)
	if len(edges) != 1 || math.Abs(edges[0].Weight-0.1) > 0.001 {
		t.Errorf("weight should not change on ignore, got %+v", edges)
	}

	// Other scopes do not see the edge
	edges, _ = gs.GetNeighbors(ctx, "sandbox-2", "a", 0.0)
	if len(edges) != 0 {
		t.Errorf("expected scope isolation, got %d edges", len(edges))
	}
}

// #endregion test-add-edge

// #region test-increment-edge
func TestIncrementEdge(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	if err := gs.IncrementEdge(ctx, scope, "a", "b", EdgeReference, 0.25); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := gs.IncrementEdge(ctx, scope, "a", "b", EdgeReference, 0.25); err != nil {
		t.Fatalf("increment 2: %v", err)
	}
	edges, _ := gs.GetNeighbors(ctx, scope, "a", 0.0)
	if len(edges) != 1 || math.Abs(edges[0].Weight-0.5) > 0.001 {
		t.Fatalf("expected weight 0.5, got %+v", edges)
	}

	// Cap at 1.0
	if err := gs.IncrementEdge(ctx, scope, "a", "b", EdgeReference, 5.0); err != nil {
		t.Fatalf("increment big: %v", err)
	}
	in, _ := gs.Incoming(ctx, scope, "b", 0.0)
	if len(in) != 1 || math.Abs(in[0].Weight-1.0) > 0.001 {
		t.Errorf("expected weight capped at 1.0, got %+v", in)
	}
}

// #endregion test-increment-edge

// #region test-walk
func TestWalk(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	// Chain a -> b -> c -> d plus branch a -> e
	gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "b", "c", EdgeReference, 0.8)
	gs.AddEdge(ctx, scope, "c", "d", EdgeReference, 0.3)
	gs.AddEdge(ctx, scope, "a", "e", EdgeColleague, 0.2)

	result, err := gs.Walk(ctx, scope, "a", 5, 0.1, 100)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(result.IDs) != 5 {
		t.Fatalf("expected 5 nodes, got %d: %v", len(result.IDs), result.IDs)
	}
	if result.IDs[0] != "a" {
		t.Errorf("first node should be 'a', got %s", result.IDs[0])
	}

	// minWeight filters the e branch
	result2, _ := gs.Walk(ctx, scope, "a", 5, 0.3, 100)
	for _, id := range result2.IDs {
		if id == "e" {
			t.Error("node 'e' should be filtered by minWeight 0.3")
		}
	}

	// Depth limit: a + direct neighbors
	result3, _ := gs.Walk(ctx, scope, "a", 1, 0.1, 100)
	if len(result3.IDs) != 3 {
		t.Errorf("depth=1 should yield 3 nodes, got %d: %v", len(result3.IDs), result3.IDs)
	}

	// maxNodes cap
	result4, _ := gs.Walk(ctx, scope, "a", 5, 0.1, 3)
	if len(result4.IDs) != 3 {
		t.Errorf("maxNodes=3 should yield 3 nodes, got %d: %v", len(result4.IDs), result4.IDs)
	}
}

// #endregion test-walk

// #region test-cycle
func TestInCycle(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "b", "c", EdgeReference, 0.5)

	open, err := gs.InCycle(ctx, scope, "a", "b", 10, 50)
	if err != nil {
		t.Fatalf("in cycle: %v", err)
	}
	if open {
		t.Error("a -> b should not be cyclic before c -> a exists")
	}

	gs.AddEdge(ctx, scope, "c", "a", EdgeReference, 0.5)
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}} {
		closed, err := gs.InCycle(ctx, scope, e[0], e[1], 10, 50)
		if err != nil {
			t.Fatalf("in cycle: %v", err)
		}
		if !closed {
			t.Errorf("%s -> %s should be part of the ring", e[0], e[1])
		}
	}
}

// #endregion test-cycle

// #region test-decay
func TestDecayAll(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "a", "c", EdgeReference, 0.015)
	gs.AddEdge(ctx, "other", "a", "b", EdgeReference, 0.5)

	deleted, err := gs.DecayAll(ctx, scope, 0.5)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned edge, got %d", deleted)
	}

	edges, _ := gs.GetNeighbors(ctx, scope, "a", 0.0)
	if len(edges) != 1 || math.Abs(edges[0].Weight-0.25) > 0.001 {
		t.Errorf("expected single edge at 0.25, got %+v", edges)
	}
	other, _ := gs.GetNeighbors(ctx, "other", "a", 0.0)
	if len(other) != 1 || math.Abs(other[0].Weight-0.5) > 0.001 {
		t.Errorf("other scope should not decay, got %+v", other)
	}

	if _, err := gs.DecayAll(ctx, scope, 1.5); err == nil {
		t.Error("expected error for factor > 1")
	}
}

// #endregion test-decay

// #region test-sever
func TestSeverNode(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "b", "c", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "c", "b", EdgeColleague, 0.3)

	if err := gs.SeverNode(ctx, scope, "b"); err != nil {
		t.Fatalf("sever: %v", err)
	}

	all, _ := gs.Edges(ctx, scope)
	if len(all) != 0 {
		t.Errorf("expected no edges after sever, got %+v", all)
	}
}

func TestRemoveEdge(t *testing.T) {
	ctx := context.Background()
	gs := setupTestStore(t)

	gs.AddEdge(ctx, scope, "a", "b", EdgeReference, 0.5)
	gs.AddEdge(ctx, scope, "a", "b", EdgeColleague, 0.5)
	if err := gs.RemoveEdge(ctx, scope, "a", "b", EdgeReference); err != nil {
		t.Fatalf("remove: %v", err)
	}
	edges, _ := gs.GetNeighbors(ctx, scope, "a", 0.0)
	if len(edges) != 1 || edges[0].EdgeType != EdgeColleague {
		t.Errorf("expected only the colleague edge, got %+v", edges)
	}
}

// #endregion test-sever
