package backend

import (
	"context"
	"sync"
)

// historyEntry records one write for rollback. kind is "entity" or "edge".
type historyEntry struct {
	kind string
	id   string
	edge EdgeData
	// prev holds the node properties that were overwritten, nil if the
	// node did not exist before the write.
	prev NodeData
}

// InMemoryBackend stores the graph in maps guarded by a mutex. It keeps a
// history stack so Rollback can undo writes in reverse order, which the
// manager relies on for partial-failure recovery.
//
// Intended for tests and local development; a single coordinator worker is
// the only writer in normal operation, but the mutex makes the backend
// safe for concurrent readers.
type InMemoryBackend struct {
	mu      sync.RWMutex
	nodes   map[string]NodeData
	edges   map[string]EdgeData
	history []historyEntry
}

// NewInMemoryBackend creates an empty in-memory graph backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		nodes: make(map[string]NodeData),
		edges: make(map[string]EdgeData),
	}
}

// AddEntity stores a node, recording the previous value for rollback.
func (b *InMemoryBackend) AddEntity(ctx context.Context, id string, properties map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := historyEntry{kind: "entity", id: id}
	if prev, ok := b.nodes[id]; ok {
		entry.prev = cloneProps(prev)
	}
	b.nodes[id] = cloneProps(properties)
	b.history = append(b.history, entry)
	return nil
}

// AddRelationship stores an edge keyed by its canonical identity.
func (b *InMemoryBackend) AddRelationship(ctx context.Context, sourceID, relType, targetID string, properties map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	edge := EdgeData{
		Source:     sourceID,
		Type:       relType,
		Target:     targetID,
		Properties: cloneProps(properties),
	}
	b.edges[edge.Key()] = edge
	b.history = append(b.history, historyEntry{kind: "edge", id: edge.Key(), edge: edge})
	return nil
}

// Query ignores the query string and returns a deep-copied snapshot of
// the whole graph.
func (b *InMemoryBackend) Query(ctx context.Context, query string) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := QueryResult{
		Nodes: make(map[string]NodeData, len(b.nodes)),
		Edges: make(map[string]EdgeData, len(b.edges)),
	}
	for id, props := range b.nodes {
		result.Nodes[id] = cloneProps(props)
	}
	for key, edge := range b.edges {
		edge.Properties = cloneProps(edge.Properties)
		result.Edges[key] = edge
	}
	return result, nil
}

// Rollback undoes the most recent write. Overwritten node properties are
// restored; fresh nodes and edges are removed. A rollback on an empty
// history is a no-op.
func (b *InMemoryBackend) Rollback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) == 0 {
		return nil
	}
	entry := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]

	switch entry.kind {
	case "entity":
		if entry.prev != nil {
			b.nodes[entry.id] = entry.prev
		} else {
			delete(b.nodes, entry.id)
		}
	case "edge":
		delete(b.edges, entry.id)
	}
	return nil
}

// NodeCount returns the number of stored nodes.
func (b *InMemoryBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes)
}

// EdgeCount returns the number of stored edges.
func (b *InMemoryBackend) EdgeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.edges)
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	clone := make(map[string]any, len(props))
	for k, v := range props {
		clone[k] = v
	}
	return clone
}
