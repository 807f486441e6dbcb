package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"memnexus/internal/config"
	"memnexus/internal/engram"
	"memnexus/internal/graphclient"
)

// NewStore selects and constructs the Engram Store backend named by
// cfg.Backend, following the teacher's persistence/databases/factory.go
// NewManager switch-on-backend-string pattern.
func NewStore(ctx context.Context, cfg config.StoreBackendConfig, dim int, graph graphclient.Client) (engram.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(graph), nil
	case "postgres":
		pool, err := openPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, pool, dim, graph)
	case "qdrant":
		pool, err := openPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		pg, err := NewPostgresStore(ctx, pool, dim, graph)
		if err != nil {
			return nil, err
		}
		return NewQdrantStore(ctx, pg, cfg.QdrantDSN, cfg.QdrantCollection, dim)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// NewGraphClient selects and constructs the external graph backend.
func NewGraphClient(ctx context.Context, cfg config.GraphBackendConfig) (graphclient.Client, error) {
	switch cfg.Backend {
	case "", "memory":
		return graphclient.NewMemoryClient(), nil
	case "none":
		return nil, nil
	case "postgres":
		pool, err := openPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return graphclient.NewPostgresClient(ctx, pool)
	default:
		return nil, fmt.Errorf("graphclient: unknown backend %q", cfg.Backend)
	}
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required for this backend")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = 8
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}
