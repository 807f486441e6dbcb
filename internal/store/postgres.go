package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"memnexus/internal/engram"
	"memnexus/internal/graphclient"
)

// PostgresStore persists engrams in a single table with a pgvector column
// for nearest-neighbour search and a generated tsvector column for full-text
// search, grounded on persistence/databases/postgres_vector.go and
// postgres_search.go. Vector literal construction uses pgvector-go, the
// same library agentic_memory.go scans pgvector.Vector results with.
type PostgresStore struct {
	pool  *pgxpool.Pool
	graph graphclient.Client
	dim   int
}

// NewPostgresStore creates the schema (if absent) and returns a Store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, dim int, graph graphclient.Client) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, graph: graph, dim: dim}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS engrams (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			original_importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			access_count BIGINT NOT NULL DEFAULT 0,
			last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			decay_rate DOUBLE PRECISION NOT NULL DEFAULT 0.005,
			protected BOOLEAN NOT NULL DEFAULT false,
			thread_id TEXT,
			project_id TEXT NOT NULL DEFAULT 'global',
			tags TEXT[] NOT NULL DEFAULT '{}',
			superseded_at TIMESTAMPTZ,
			search_vector tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content, ''))) STORED
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS engrams_search_idx ON engrams USING GIN(search_vector)`,
		`CREATE INDEX IF NOT EXISTS engrams_embedding_idx ON engrams USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS engrams_project_idx ON engrams(project_id)`,
		`CREATE INDEX IF NOT EXISTS engrams_category_idx ON engrams(category)`,
		`CREATE INDEX IF NOT EXISTS engrams_inserted_at_idx ON engrams(inserted_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return engram.StoreErrorf("ensure schema", err)
		}
	}
	return nil
}

func toPgVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	pv := pgvector.NewVector(v)
	return &pv
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = make(map[string]any)
	}
	return json.Marshal(m)
}

func (s *PostgresStore) Insert(ctx context.Context, e *engram.Engram) error {
	if e.ProjectID == "" {
		e.ProjectID = engram.DefaultProjectID
	}
	if e.OriginalImportance == 0 {
		e.OriginalImportance = e.Importance
	}
	if e.DecayRate == 0 {
		e.DecayRate = engram.DecayRateForImportance(e.Importance)
	}
	now := time.Now()
	if e.InsertedAt.IsZero() {
		e.InsertedAt = now
	}
	if e.LastAccessedAt.IsZero() {
		e.LastAccessedAt = now
	}
	e.UpdatedAt = now

	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return engram.StoreErrorf("marshal metadata", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO engrams (id, content, category, importance, original_importance, embedding,
			metadata, access_count, last_accessed_at, inserted_at, updated_at, decay_rate,
			protected, thread_id, project_id, tags, superseded_at)
		 VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		e.ID, e.Content, string(e.Category), e.Importance, e.OriginalImportance, toPgVector(e.Embedding),
		metadata, e.AccessCount, e.LastAccessedAt, e.InsertedAt, e.UpdatedAt, e.DecayRate,
		e.Protected, nullableString(e.ThreadID), e.ProjectID, e.Tags, e.SupersededAt)

	if err := row.Scan(&e.ID); err != nil {
		return engram.StoreErrorf("insert engram", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) scanRow(row pgx.Row) (*engram.Engram, error) {
	var e engram.Engram
	var category string
	var metadata []byte
	var vec *pgvector.Vector
	var threadID *string

	err := row.Scan(&e.ID, &e.Content, &category, &e.Importance, &e.OriginalImportance, &vec,
		&metadata, &e.AccessCount, &e.LastAccessedAt, &e.InsertedAt, &e.UpdatedAt, &e.DecayRate,
		&e.Protected, &threadID, &e.ProjectID, &e.Tags, &e.SupersededAt)
	if err != nil {
		return nil, err
	}
	e.Category = engram.Category(category)
	if threadID != nil {
		e.ThreadID = *threadID
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	return &e, nil
}

const engramColumns = `id, content, category, importance, original_importance, embedding,
	metadata, access_count, last_accessed_at, inserted_at, updated_at, decay_rate,
	protected, thread_id, project_id, tags, superseded_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*engram.Engram, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+engramColumns+` FROM engrams WHERE id = $1`, id)
	e, err := s.scanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, engram.ErrNotFound
		}
		return nil, engram.StoreErrorf("get engram", err)
	}
	return e, nil
}

func (s *PostgresStore) Update(ctx context.Context, e *engram.Engram) error {
	e.UpdatedAt = time.Now()
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return engram.StoreErrorf("marshal metadata", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE engrams SET content=$2, category=$3, importance=$4, embedding=$5, metadata=$6,
			access_count=$7, last_accessed_at=$8, updated_at=$9, decay_rate=$10, protected=$11,
			thread_id=$12, project_id=$13, tags=$14, superseded_at=$15
		 WHERE id=$1`,
		e.ID, e.Content, string(e.Category), e.Importance, toPgVector(e.Embedding), metadata,
		e.AccessCount, e.LastAccessedAt, e.UpdatedAt, e.DecayRate, e.Protected,
		nullableString(e.ThreadID), e.ProjectID, e.Tags, e.SupersededAt)
	if err != nil {
		return engram.StoreErrorf("update engram", err)
	}
	if tag.RowsAffected() == 0 {
		return engram.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM engrams WHERE id = $1`, id)
	if err != nil {
		return engram.StoreErrorf("delete engram", err)
	}
	return nil
}

func (s *PostgresStore) ApplyAccessIncrements(ctx context.Context, batches []engram.AccessIncrement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return engram.StoreErrorf("begin access increment tx", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, b := range batches {
		if len(b.IDs) == 0 {
			continue
		}
		_, err := tx.Exec(ctx,
			`UPDATE engrams SET access_count = access_count + $1, last_accessed_at = $2 WHERE id = ANY($3)`,
			b.Inc, now, b.IDs)
		if err != nil {
			return engram.StoreErrorf("apply access increments", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return engram.StoreErrorf("commit access increment tx", err)
	}
	return nil
}

func buildFilterClause(f engram.Filters, start int) (string, []any) {
	var clauses []string
	var args []any
	i := start

	if f.Category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", i))
		args = append(args, string(f.Category))
		i++
	}
	if f.ProjectID != "" {
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", i))
		args = append(args, f.ProjectID)
		i++
	}
	if f.Superseded != nil {
		if *f.Superseded {
			clauses = append(clauses, "superseded_at IS NOT NULL")
		} else {
			clauses = append(clauses, "superseded_at IS NULL")
		}
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, fmt.Sprintf("tags @> $%d", i))
		args = append(args, f.Tags)
		i++
	}
	if !f.InsertedFrom.IsZero() {
		clauses = append(clauses, fmt.Sprintf("inserted_at >= $%d", i))
		args = append(args, f.InsertedFrom)
		i++
	}
	if !f.InsertedTo.IsZero() {
		clauses = append(clauses, fmt.Sprintf("inserted_at <= $%d", i))
		args = append(args, f.InsertedTo)
		i++
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f engram.Filters) ([]engram.VectorHit, error) {
	filterClause, filterArgs := buildFilterClause(f, 4)
	args := append([]any{toPgVector(vector), minSimilarity, topK}, filterArgs...)

	query := fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1) AS similarity FROM engrams
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2 %s
		ORDER BY embedding <=> $1 LIMIT $3`, engramColumns, filterClause)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, engram.StoreErrorf("nearest by vector", err)
	}
	defer rows.Close()

	var hits []engram.VectorHit
	for rows.Next() {
		e, err := s.scanWithTrailingFloat(rows)
		if err != nil {
			return nil, engram.StoreErrorf("scan vector hit", err)
		}
		hits = append(hits, e)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) scanWithTrailingFloat(rows pgx.Rows) (engram.VectorHit, error) {
	var e engram.Engram
	var category string
	var metadata []byte
	var vec *pgvector.Vector
	var threadID *string
	var similarity float64

	err := rows.Scan(&e.ID, &e.Content, &category, &e.Importance, &e.OriginalImportance, &vec,
		&metadata, &e.AccessCount, &e.LastAccessedAt, &e.InsertedAt, &e.UpdatedAt, &e.DecayRate,
		&e.Protected, &threadID, &e.ProjectID, &e.Tags, &e.SupersededAt, &similarity)
	if err != nil {
		return engram.VectorHit{}, err
	}
	e.Category = engram.Category(category)
	if threadID != nil {
		e.ThreadID = *threadID
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	return engram.VectorHit{Engram: e, Similarity: similarity}, nil
}

func (s *PostgresStore) Lexical(ctx context.Context, query string, limit int, f engram.Filters) ([]engram.LexicalHit, error) {
	filterClause, filterArgs := buildFilterClause(f, 3)
	args := append([]any{query, limit}, filterArgs...)

	sqlQuery := fmt.Sprintf(`SELECT %s, ts_rank(search_vector, plainto_tsquery('simple', $1)) AS rank
		FROM engrams WHERE search_vector @@ plainto_tsquery('simple', $1) %s
		ORDER BY rank DESC LIMIT $2`, engramColumns, filterClause)

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, engram.StoreErrorf("lexical search", err)
	}
	defer rows.Close()

	var hits []engram.LexicalHit
	for rows.Next() {
		vh, err := s.scanWithTrailingFloat(rows)
		if err != nil {
			return nil, engram.StoreErrorf("scan lexical hit", err)
		}
		hits = append(hits, engram.LexicalHit{Engram: vh.Engram, Score: vh.Similarity})
	}
	return hits, rows.Err()
}

func (s *PostgresStore) Recent(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error) {
	filterClause, filterArgs := buildFilterClause(f, 2)
	args := append([]any{limit}, filterArgs...)

	query := fmt.Sprintf(`SELECT %s FROM engrams WHERE true %s ORDER BY inserted_at DESC LIMIT $1`, engramColumns, filterClause)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, engram.StoreErrorf("recent", err)
	}
	defer rows.Close()

	var out []engram.Engram
	for rows.Next() {
		e, err := s.scanRow(rows)
		if err != nil {
			return nil, engram.StoreErrorf("scan recent", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, limit int, f engram.Filters) ([]engram.Engram, error) {
	filterClause, filterArgs := buildFilterClause(f, 2)
	args := append([]any{limit}, filterArgs...)

	query := fmt.Sprintf(`SELECT %s FROM engrams WHERE true %s LIMIT $1`, engramColumns, filterClause)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, engram.StoreErrorf("list", err)
	}
	defer rows.Close()

	var out []engram.Engram
	for rows.Next() {
		e, err := s.scanRow(rows)
		if err != nil {
			return nil, engram.StoreErrorf("scan list", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Connections(ctx context.Context, id string) (int, error) {
	if s.graph == nil {
		return 0, nil
	}
	return s.graph.CountConnections(ctx, id)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
