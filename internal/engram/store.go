package engram

import (
	"context"
	"fmt"
	"time"
)

// VectorHit is a nearest-neighbour result from the vector index.
type VectorHit struct {
	Engram     Engram
	Similarity float64
}

// LexicalHit is a ranked full-text result.
type LexicalHit struct {
	Engram Engram
	Score  float64
}

// Filters narrows store queries by category, project, tags and time window.
type Filters struct {
	Category     Category
	ProjectID    string
	Tags         []string
	Archived     *bool
	Superseded   *bool
	InsertedFrom time.Time
	InsertedTo   time.Time
}

// AccessIncrement groups ids that should receive the same access_count delta,
// matching the single atomic "where id in (...) set access_count += inc"
// primitive required by spec.md §6.
type AccessIncrement struct {
	IDs []string
	Inc int64
}

// Store is the Engram Store contract (C1): CRUD plus the three index
// surfaces (id, full-text, vector). Implementations must guarantee atomic
// single-engram writes; multi-engram operations go through the write
// serializer (C16), not directly through this interface.
type Store interface {
	Insert(ctx context.Context, e *Engram) error
	Get(ctx context.Context, id string) (*Engram, error)
	Update(ctx context.Context, e *Engram) error
	Delete(ctx context.Context, id string) error

	// ApplyAccessIncrements performs batched access_count/last_accessed_at
	// updates for C5's flush.
	ApplyAccessIncrements(ctx context.Context, batches []AccessIncrement) error

	// NearestByVector returns the topK nearest neighbours by cosine
	// similarity, subject to filters. minSimilarity <= 0 disables the floor.
	NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f Filters) ([]VectorHit, error)

	// Lexical returns a BM25-equivalent ranked full text match; implementations
	// without a real FTS index fall back to substring matching ranked by
	// importance descending, per spec.md §4.1.
	Lexical(ctx context.Context, query string, limit int, f Filters) ([]LexicalHit, error)

	// Recent returns the newest N engrams matching filters, for the recency leg.
	Recent(ctx context.Context, limit int, f Filters) ([]Engram, error)

	// List returns up to limit engrams matching filters (used by the
	// consolidator's similarity scan and the forgetting sweeper's batch read).
	List(ctx context.Context, limit int, f Filters) ([]Engram, error)

	// Connections reports the external graph connectivity count for an
	// engram id, used by C9. Implementations may proxy to a graphclient.Client.
	Connections(ctx context.Context, id string) (int, error)

	Close() error
}

// StoreErrorf wraps err with ErrStore context, satisfying errors.Is(err, ErrStore).
func StoreErrorf(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, err, ErrStore)
}
