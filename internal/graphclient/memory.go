package graphclient

import (
	"context"
	"strings"
	"sync"
)

type edgeKey struct {
	source, rel string
}

// MemoryClient is an in-process adjacency-map implementation of Client, for
// tests and single-node deployments, grounded on
// persistence/databases/memory_graph.go.
type MemoryClient struct {
	mu    sync.RWMutex
	edges map[edgeKey]map[string]struct{}
	text  map[string]string // id -> natural-language text, for QueryRelated
}

// NewMemoryClient constructs an empty in-memory graph client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		edges: make(map[edgeKey]map[string]struct{}),
		text:  make(map[string]string),
	}
}

// UpsertEdge records a directed edge source --rel--> target.
func (c *MemoryClient) UpsertEdge(source, rel, target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := edgeKey{source, rel}
	if c.edges[k] == nil {
		c.edges[k] = make(map[string]struct{})
	}
	c.edges[k][target] = struct{}{}
}

// SetText associates searchable natural-language text with an id, used by
// QueryRelated's substring match.
func (c *MemoryClient) SetText(id, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text[id] = text
}

func (c *MemoryClient) QueryRelated(ctx context.Context, query string, limit int) ([]Triple, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Triple
	for k, targets := range c.edges {
		if !strings.Contains(strings.ToLower(c.text[k.source]), q) {
			continue
		}
		for target := range targets {
			out = append(out, Triple{Subject: k.source, Predicate: k.rel, Object: target})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (c *MemoryClient) CountConnections(ctx context.Context, engramID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for k, targets := range c.edges {
		if k.source == engramID {
			count += len(targets)
		}
		if _, ok := targets[engramID]; ok {
			count++
		}
	}
	return count, nil
}

func (c *MemoryClient) Neighbors(ctx context.Context, id, rel string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	if rel != "" {
		for target := range c.edges[edgeKey{id, rel}] {
			out = append(out, target)
		}
		return out, nil
	}
	for k, targets := range c.edges {
		if k.source != id {
			continue
		}
		for target := range targets {
			out = append(out, target)
		}
	}
	return out, nil
}
