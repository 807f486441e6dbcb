package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"memnexus/internal/engram"
)

// payloadIDField mirrors the teacher's qdrant_vector.go: Qdrant only accepts
// UUID or positive-integer point ids, so non-UUID engram ids are mapped
// through a deterministic uuid.NewSHA1 and the original id is kept in the
// point's payload under this key.
const payloadIDField = "_original_id"

// QdrantStore delegates content, CRUD-by-id, lexical search and recency to an
// embedded PostgresStore and mirrors embeddings into a Qdrant collection for
// nearest-neighbour search, grounded on
// internal/persistence/databases/qdrant_vector.go (teacher repo).
type QdrantStore struct {
	*PostgresStore
	client     *qdrant.Client
	collection string
}

// NewQdrantStore opens a gRPC connection to Qdrant (default port 6334) and
// ensures collection exists, reusing pg for everything Qdrant doesn't do:
// content, metadata, full-text search and CRUD-by-id.
func NewQdrantStore(ctx context.Context, pg *PostgresStore, dsn, collection string, dim int) (*QdrantStore, error) {
	if collection == "" {
		collection = "memnexus_engrams"
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("store: invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create qdrant client: %w", err)
	}

	qs := &QdrantStore{PostgresStore: pg, client: client, collection: collection}
	if err := qs.ensureCollection(ctx, dim); err != nil {
		client.Close()
		return nil, err
	}
	return qs, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("store: check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	if dim <= 0 {
		return fmt.Errorf("store: qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func qdrantPointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantStore) upsertVector(ctx context.Context, e *engram.Engram) error {
	if len(e.Embedding) == 0 {
		return nil
	}
	pointID := qdrantPointID(e.ID)
	payload := map[string]any{"category": string(e.Category), "project_id": e.ProjectID}
	if pointID != e.ID {
		payload[payloadIDField] = e.ID
	}
	vec := make([]float32, len(e.Embedding))
	copy(vec, e.Embedding)

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

// Insert writes through to Postgres first so the row (and its generated id)
// exists before the vector is mirrored into Qdrant under that id.
func (q *QdrantStore) Insert(ctx context.Context, e *engram.Engram) error {
	if err := q.PostgresStore.Insert(ctx, e); err != nil {
		return err
	}
	return q.upsertVector(ctx, e)
}

func (q *QdrantStore) Update(ctx context.Context, e *engram.Engram) error {
	if err := q.PostgresStore.Update(ctx, e); err != nil {
		return err
	}
	return q.upsertVector(ctx, e)
}

func (q *QdrantStore) Delete(ctx context.Context, id string) error {
	if err := q.PostgresStore.Delete(ctx, id); err != nil {
		return err
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(qdrantPointID(id))),
	})
	return err
}

// NearestByVector queries Qdrant for the topK nearest points, then hydrates
// each hit's full content and metadata from Postgres by the original id.
func (q *QdrantStore) NearestByVector(ctx context.Context, vector []float32, topK int, minSimilarity float64, f engram.Filters) ([]engram.VectorHit, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var must []*qdrant.Condition
	if f.Category != "" {
		must = append(must, qdrant.NewMatch("category", string(f.Category)))
	}
	if f.ProjectID != "" {
		must = append(must, qdrant.NewMatch("project_id", f.ProjectID))
	}
	var qf *qdrant.Filter
	if len(must) > 0 {
		qf = &qdrant.Filter{Must: must}
	}

	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, engram.StoreErrorf("qdrant nearest by vector", err)
	}

	out := make([]engram.VectorHit, 0, len(hits))
	for _, hit := range hits {
		similarity := float64(hit.Score)
		if similarity < minSimilarity {
			continue
		}
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		e, err := q.PostgresStore.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, engram.VectorHit{Engram: *e, Similarity: similarity})
	}
	return out, nil
}

func (q *QdrantStore) Close() error {
	q.client.Close()
	return q.PostgresStore.Close()
}
