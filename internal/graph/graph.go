package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS peer_edges (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    scope       TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    edge_type   TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 0.1,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    UNIQUE(scope, source_id, target_id, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_peer_edges_source ON peer_edges(scope, source_id);
CREATE INDEX IF NOT EXISTS idx_peer_edges_target ON peer_edges(scope, target_id);
`

// #endregion schema

// Edge types.
const (
	EdgeReference = "reference"
	EdgeColleague = "colleague"
)

// #region types
// Edge is a weighted link from one actor to another within a scope.
type Edge struct {
	ID        int64
	Scope     string
	SourceID  string
	TargetID  string
	EdgeType  string
	Weight    float64 // [0, 1]
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WalkResult holds an ordered path from a graph walk.
type WalkResult struct {
	IDs    []string  // node IDs in walk order
	Scores []float64 // cumulative scores at each node
}

// GraphStore manages the peer_edges table. Scope is the sandbox id.
type GraphStore struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion types

// #region constructor
// NewGraphStore creates tables and returns a GraphStore.
func NewGraphStore(db *sql.DB) (*GraphStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("graph schema: %w", err)
	}
	return &GraphStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// #endregion constructor

// #region add-edge
// AddEdge inserts a new edge. If the edge already exists it is left alone.
func (g *GraphStore) AddEdge(ctx context.Context, scope, sourceID, targetID, edgeType string, weight float64) error {
	now := g.now().Format(time.RFC3339Nano)
	_, err := g.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO peer_edges (scope, source_id, target_id, edge_type, weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scope, sourceID, targetID, edgeType, clampWeight(weight), now, now,
	)
	if err != nil {
		return fmt.Errorf("add edge: %w", err)
	}
	return nil
}

// #endregion add-edge

// #region increment-edge
// IncrementEdge increases the weight of an edge by delta, capped at 1.0.
// A missing edge is created with weight=delta.
func (g *GraphStore) IncrementEdge(ctx context.Context, scope, sourceID, targetID, edgeType string, delta float64) error {
	now := g.now().Format(time.RFC3339Nano)
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO peer_edges (scope, source_id, target_id, edge_type, weight, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope, source_id, target_id, edge_type) DO UPDATE SET
		   weight = MIN(1.0, peer_edges.weight + ?),
		   updated_at = ?`,
		scope, sourceID, targetID, edgeType, clampWeight(delta), now,
		now, delta, now,
	)
	if err != nil {
		return fmt.Errorf("increment edge: %w", err)
	}
	return nil
}

// #endregion increment-edge

// #region neighbors
// GetNeighbors returns outgoing edges with weight >= minWeight, heaviest first.
func (g *GraphStore) GetNeighbors(ctx context.Context, scope, nodeID string, minWeight float64) ([]Edge, error) {
	return g.query(ctx,
		`SELECT id, scope, source_id, target_id, edge_type, weight, created_at, updated_at
		 FROM peer_edges
		 WHERE scope = ? AND source_id = ? AND weight >= ?
		 ORDER BY weight DESC, target_id`,
		scope, nodeID, minWeight,
	)
}

// Incoming returns edges pointing at nodeID, heaviest first.
func (g *GraphStore) Incoming(ctx context.Context, scope, nodeID string, minWeight float64) ([]Edge, error) {
	return g.query(ctx,
		`SELECT id, scope, source_id, target_id, edge_type, weight, created_at, updated_at
		 FROM peer_edges
		 WHERE scope = ? AND target_id = ? AND weight >= ?
		 ORDER BY weight DESC, source_id`,
		scope, nodeID, minWeight,
	)
}

// Edges returns every edge in scope ordered by source then target.
func (g *GraphStore) Edges(ctx context.Context, scope string) ([]Edge, error) {
	return g.query(ctx,
		`SELECT id, scope, source_id, target_id, edge_type, weight, created_at, updated_at
		 FROM peer_edges WHERE scope = ? ORDER BY source_id, target_id, edge_type`,
		scope,
	)
}

func (g *GraphStore) query(ctx context.Context, q string, args ...any) ([]Edge, error) {
	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.Scope, &e.SourceID, &e.TargetID, &e.EdgeType, &e.Weight, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// #endregion neighbors

// #region walk
// Walk performs a BFS from entryID, following edges with weight >= minWeight,
// up to maxDepth hops and maxNodes total. Returns nodes in visit order with cumulative scores.
func (g *GraphStore) Walk(ctx context.Context, scope, entryID string, maxDepth int, minWeight float64, maxNodes int) (WalkResult, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if maxNodes <= 0 {
		maxNodes = 10
	}

	result := WalkResult{
		IDs:    []string{entryID},
		Scores: []float64{1.0},
	}
	visited := map[string]bool{entryID: true}

	type queueItem struct {
		id    string
		depth int
		score float64
	}
	queue := []queueItem{{entryID, 0, 1.0}}

	for len(queue) > 0 {
		if len(result.IDs) >= maxNodes {
			break
		}

		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}

		neighbors, err := g.GetNeighbors(ctx, scope, current.id, minWeight)
		if err != nil {
			return result, fmt.Errorf("walk neighbors: %w", err)
		}

		for _, edge := range neighbors {
			if len(result.IDs) >= maxNodes {
				break
			}
			if visited[edge.TargetID] {
				continue
			}
			visited[edge.TargetID] = true
			cumScore := current.score * edge.Weight
			result.IDs = append(result.IDs, edge.TargetID)
			result.Scores = append(result.Scores, cumScore)
			queue = append(queue, queueItem{edge.TargetID, current.depth + 1, cumScore})
		}
	}

	return result, nil
}

// Reaches reports whether toID is reachable from fromID within maxDepth hops.
func (g *GraphStore) Reaches(ctx context.Context, scope, fromID, toID string, maxDepth, maxNodes int) (bool, error) {
	res, err := g.Walk(ctx, scope, fromID, maxDepth, 0, maxNodes)
	if err != nil {
		return false, err
	}
	for _, id := range res.IDs[1:] {
		if id == toID {
			return true, nil
		}
	}
	return false, nil
}

// InCycle reports whether the edge source -> target closes a cycle, i.e.
// target already reaches source.
func (g *GraphStore) InCycle(ctx context.Context, scope, sourceID, targetID string, maxDepth, maxNodes int) (bool, error) {
	if sourceID == targetID {
		return true, nil
	}
	return g.Reaches(ctx, scope, targetID, sourceID, maxDepth, maxNodes)
}

// #endregion walk

// #region decay
// DecayAll multiplies every edge weight in scope by factor. Edges that fall
// below 0.01 are deleted; the number deleted is returned.
func (g *GraphStore) DecayAll(ctx context.Context, scope string, factor float64) (int64, error) {
	if factor < 0 || factor > 1 {
		return 0, fmt.Errorf("decay factor %.3f outside [0,1]", factor)
	}
	now := g.now().Format(time.RFC3339Nano)
	if _, err := g.db.ExecContext(ctx,
		`UPDATE peer_edges SET weight = weight * ?, updated_at = ? WHERE scope = ?`,
		factor, now, scope,
	); err != nil {
		return 0, fmt.Errorf("decay edges: %w", err)
	}
	res, err := g.db.ExecContext(ctx, `DELETE FROM peer_edges WHERE scope = ? AND weight < 0.01`, scope)
	if err != nil {
		return 0, fmt.Errorf("prune edges: %w", err)
	}
	return res.RowsAffected()
}

// #endregion decay

// #region sever
// RemoveEdge deletes one edge.
func (g *GraphStore) RemoveEdge(ctx context.Context, scope, sourceID, targetID, edgeType string) error {
	_, err := g.db.ExecContext(ctx,
		`DELETE FROM peer_edges WHERE scope = ? AND source_id = ? AND target_id = ? AND edge_type = ?`,
		scope, sourceID, targetID, edgeType,
	)
	if err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	return nil
}

// SeverNode deletes all edges where nodeID is either source or target.
func (g *GraphStore) SeverNode(ctx context.Context, scope, nodeID string) error {
	_, err := g.db.ExecContext(ctx,
		`DELETE FROM peer_edges WHERE scope = ? AND (source_id = ? OR target_id = ?)`,
		scope, nodeID, nodeID,
	)
	if err != nil {
		return fmt.Errorf("sever node: %w", err)
	}
	return nil
}

// #endregion sever

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
