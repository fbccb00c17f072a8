package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"github.com/desertthunder/vibes/internal/models"
	"github.com/desertthunder/vibes/internal/shared"
)

const nodeColumns = `id, sequence, type, name, external_id, attributes, play_count, last_played_at, pos_x, pos_y`

// SQLiteGraph is the durable graph backend.
type SQLiteGraph struct {
	db *sql.DB
}

// NewSQLiteGraph creates a new SQLiteGraph on a migrated database connection
func NewSQLiteGraph(db *sql.DB) *SQLiteGraph {
	return &SQLiteGraph{db: db}
}

// FindNodeByExternalID retrieves the node carrying externalID
func (g *SQLiteGraph) FindNodeByExternalID(ctx context.Context, externalID string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes WHERE external_id = ?`
	return g.scanOne(g.db.QueryRowContext(ctx, query, externalID))
}

// FindNodeByName retrieves the node identified by (type, name) among nodes without an external id
func (g *SQLiteGraph) FindNodeByName(ctx context.Context, t models.NodeType, name string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes WHERE type = ? AND name = ? AND external_id IS NULL`
	return g.scanOne(g.db.QueryRowContext(ctx, query, string(t), name))
}

// GetNode retrieves a node by ID
func (g *SQLiteGraph) GetNode(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes WHERE id = ?`
	return g.scanOne(g.db.QueryRowContext(ctx, query, id))
}

// InsertNode inserts n with a generated ID (unless one is set) and the next sequence number
func (g *SQLiteGraph) InsertNode(ctx context.Context, n *models.Node) error {
	sequence, err := NextSequence(ctx, g.db, "graph_nodes")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if n.ID == "" {
		n.ID = shared.GenerateID()
	}

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	x, y := position(n.Position)
	now := time.Now()
	query := `
		INSERT INTO graph_nodes (id, sequence, type, name, external_id, attributes, play_count, last_played_at, pos_x, pos_y, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = g.db.ExecContext(ctx, query,
		n.ID,
		sequence,
		string(n.Type),
		n.Name,
		nullString(n.ExternalID),
		string(attrs),
		n.PlayCount,
		nullTime(n.LastPlayedAt),
		x,
		y,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}

	return nil
}

// UpdateNode persists the mutable fields of n: name, attributes, play stats and position
func (g *SQLiteGraph) UpdateNode(ctx context.Context, n *models.Node) error {
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	x, y := position(n.Position)
	query := `
		UPDATE graph_nodes
		SET name = ?, attributes = ?, play_count = ?, last_played_at = ?, pos_x = ?, pos_y = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := g.db.ExecContext(ctx, query,
		n.Name,
		string(attrs),
		n.PlayCount,
		nullTime(n.LastPlayedAt),
		x,
		y,
		time.Now(),
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNodeNotFound, n.ID)
	}

	return nil
}

// UpsertEdge inserts e, or adds increment to the weight of the existing (source, target, type) edge.
// The stored edge is returned.
func (g *SQLiteGraph) UpsertEdge(ctx context.Context, e models.Edge, increment float64) (models.Edge, error) {
	now := time.Now()
	query := `
		INSERT INTO graph_edges (source_id, target_id, type, weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET weight = graph_edges.weight + ?, updated_at = excluded.updated_at
		RETURNING weight
	`

	var weight float64
	err := g.db.QueryRowContext(ctx, query, e.Source, e.Target, string(e.Type), e.Weight, now, now, increment).Scan(&weight)
	if isForeignKeyViolation(err) {
		return models.Edge{}, fmt.Errorf("%w: edge %s -> %s", shared.ErrNodeNotFound, e.Source, e.Target)
	}
	if err != nil {
		return models.Edge{}, fmt.Errorf("failed to upsert edge: %w", err)
	}

	e.Weight = weight
	return e, nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// OutgoingEdges lists edges leaving nodeID in insertion order
func (g *SQLiteGraph) OutgoingEdges(ctx context.Context, nodeID string) ([]models.Edge, error) {
	query := `SELECT source_id, target_id, type, weight FROM graph_edges WHERE source_id = ? ORDER BY rowid ASC`
	return g.queryEdges(ctx, query, nodeID)
}

// EdgesByType lists edges of type t in insertion order
func (g *SQLiteGraph) EdgesByType(ctx context.Context, t models.EdgeType) ([]models.Edge, error) {
	query := `SELECT source_id, target_id, type, weight FROM graph_edges WHERE type = ? ORDER BY rowid ASC`
	return g.queryEdges(ctx, query, string(t))
}

// NodesByType lists nodes of type t in insertion order
func (g *SQLiteGraph) NodesByType(ctx context.Context, t models.NodeType) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM graph_nodes WHERE type = ? ORDER BY sequence ASC`
	return g.queryNodes(ctx, query, string(t))
}

// Snapshot reads every node and edge
func (g *SQLiteGraph) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	nodes, err := g.queryNodes(ctx, `SELECT `+nodeColumns+` FROM graph_nodes ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}

	edges, err := g.queryEdges(ctx, `SELECT source_id, target_id, type, weight FROM graph_edges ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}

	return &models.Snapshot{Nodes: nodes, Edges: edges, TakenAt: time.Now()}, nil
}

// Restore replaces the graph with snap inside a single transaction
func (g *SQLiteGraph) Restore(ctx context.Context, snap *models.Snapshot) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return err
	}

	now := time.Now()
	for i, n := range snap.Nodes {
		attrs, err := json.Marshal(n.Attributes)
		if err != nil {
			return fmt.Errorf("failed to encode attributes: %w", err)
		}
		x, y := position(n.Position)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (id, sequence, type, name, external_id, attributes, play_count, last_played_at, pos_x, pos_y, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, i+1, string(n.Type), n.Name, nullString(n.ExternalID), string(attrs),
			n.PlayCount, nullTime(n.LastPlayedAt), x, y, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to restore node %s: %w", n.ID, err)
		}
	}

	for _, e := range snap.Edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO graph_edges (source_id, target_id, type, weight, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.Source, e.Target, string(e.Type), e.Weight, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to restore edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE graph_nodes_sequence SET value = ? WHERE id = 1", len(snap.Nodes)); err != nil {
		return fmt.Errorf("failed to reset sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// Clear deletes every node and edge and resets the sequence
func (g *SQLiteGraph) Clear(ctx context.Context) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE graph_nodes_sequence SET value = 0 WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to reset sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM graph_edges"); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM graph_nodes"); err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}
	return nil
}

// Sync is a no-op: writes are durable once each statement commits.
func (g *SQLiteGraph) Sync(ctx context.Context) error {
	return nil
}

// Close closes the underlying database connection
func (g *SQLiteGraph) Close() error {
	return g.db.Close()
}

func (g *SQLiteGraph) queryNodes(ctx context.Context, query string, args ...any) ([]*models.Node, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return nodes, nil
}

func (g *SQLiteGraph) queryEdges(ctx context.Context, query string, args ...any) ([]models.Edge, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		var (
			e        models.Edge
			edgeType string
		)
		if err := rows.Scan(&e.Source, &e.Target, &edgeType, &e.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = models.EdgeType(edgeType)
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return edges, nil
}

// scanOne scans a single [sql.Row] into a [models.Node]
func (g *SQLiteGraph) scanOne(row *sql.Row) (*models.Node, error) {
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNodeNotFound
	}
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*models.Node, error) {
	var (
		id         string
		sequence   int
		nodeType   string
		name       string
		externalID sql.NullString
		attrs      string
		playCount  int
		lastPlayed sql.NullTime
		posX       sql.NullFloat64
		posY       sql.NullFloat64
	)

	err := s.Scan(&id, &sequence, &nodeType, &name, &externalID, &attrs, &playCount, &lastPlayed, &posX, &posY)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	n := &models.Node{
		ID:         id,
		Type:       models.NodeType(nodeType),
		Name:       name,
		ExternalID: externalID.String,
		PlayCount:  playCount,
	}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes of %s: %w", id, err)
		}
	}
	if lastPlayed.Valid {
		n.LastPlayedAt = lastPlayed.Time
	}
	if posX.Valid && posY.Valid {
		n.Position = &models.Position{X: posX.Float64, Y: posY.Float64}
	}

	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func position(p *models.Position) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.X, Valid: true}, sql.NullFloat64{Float64: p.Y, Valid: true}
}
