// Package graphclient defines the external knowledge-graph contract (spec.md
// §6) and provides a Postgres adjacency-table implementation plus an
// in-memory reference implementation, grounded on the teacher's
// persistence/databases/postgres_graph.go and memory_graph.go.
package graphclient

import "context"

// Triple is a (subject, predicate, object) fact returned by QueryRelated.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Client is the external knowledge graph contract used by C8's graph leg
// and by C9's graph connectivity component.
type Client interface {
	// QueryRelated returns triples whose natural text includes the query terms.
	QueryRelated(ctx context.Context, text string, limit int) ([]Triple, error)

	// CountConnections returns the non-negative edge count touching engramID.
	CountConnections(ctx context.Context, engramID string) (int, error)

	// Neighbors returns the ids directly reachable from id via rel, used by
	// C8's spreading-activation leg. An empty rel matches any relation.
	Neighbors(ctx context.Context, id, rel string) ([]string, error)
}
