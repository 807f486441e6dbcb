package graphclient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresClient stores the graph in nodes/edges adjacency tables, grounded
// on persistence/databases/postgres_graph.go.
type PostgresClient struct {
	pool *pgxpool.Pool
}

// NewPostgresClient creates the schema if needed and returns a Client.
func NewPostgresClient(ctx context.Context, pool *pgxpool.Pool) (*PostgresClient, error) {
	c := &PostgresClient{pool: pool}
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PostgresClient) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			rel TEXT NOT NULL,
			target TEXT NOT NULL,
			UNIQUE(source, rel, target)
		)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_source_idx ON graph_edges(source)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_target_idx ON graph_edges(target)`,
	}
	for _, s := range stmts {
		if _, err := c.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("graphclient: ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertNode records the natural-language text associated with an id.
func (c *PostgresClient) UpsertNode(ctx context.Context, id, text string) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO graph_nodes (id, text) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text`,
		id, text)
	return err
}

// UpsertEdge records a directed edge, ignoring duplicates.
func (c *PostgresClient) UpsertEdge(ctx context.Context, source, rel, target string) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO graph_edges (source, rel, target) VALUES ($1, $2, $3)
		 ON CONFLICT (source, rel, target) DO NOTHING`,
		source, rel, target)
	return err
}

func (c *PostgresClient) QueryRelated(ctx context.Context, query string, limit int) ([]Triple, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT e.source, e.rel, e.target
		 FROM graph_edges e
		 JOIN graph_nodes n ON n.id = e.source
		 WHERE n.text ILIKE '%' || $1 || '%'
		 LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("graphclient: query related: %w", err)
	}
	defer rows.Close()

	var out []Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.Subject, &t.Predicate, &t.Object); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *PostgresClient) CountConnections(ctx context.Context, engramID string) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx,
		`SELECT count(*) FROM graph_edges WHERE source = $1 OR target = $1`,
		engramID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("graphclient: count connections: %w", err)
	}
	return count, nil
}

func (c *PostgresClient) Neighbors(ctx context.Context, id, rel string) ([]string, error) {
	query := `SELECT target FROM graph_edges WHERE source = $1`
	args := []any{id}
	if rel != "" {
		query += ` AND rel = $2`
		args = append(args, rel)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graphclient: neighbors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, rows.Err()
}
