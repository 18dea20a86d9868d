// Package backend defines the graph storage contract consumed by the
// coordination pipeline, plus two implementations: an in-memory store for
// tests and local development, and a Redis-backed store for deployments
// that want the graph to survive process restarts.
//
// The contract is deliberately small: add a node, add an edge, query
// state, and best-effort undo of the most recent write. Absence is modeled
// explicitly (empty QueryResult maps, ErrNotFound) rather than through
// error-as-control-flow lookups.
package backend

import (
	"context"
	"errors"
)

// Common errors returned by backend operations.
var (
	// ErrNotFound is returned when a requested node or edge does not exist.
	ErrNotFound = errors.New("backend: not found")

	// ErrRollbackUnsupported is returned by backends without undo history.
	ErrRollbackUnsupported = errors.New("backend: rollback not supported")
)

// NodeData holds the stored properties of a graph node.
type NodeData map[string]any

// EdgeData describes a stored relationship between two nodes.
type EdgeData struct {
	// Source is the source node ID.
	Source string `json:"source"`

	// Type is the relationship type.
	Type string `json:"type"`

	// Target is the target node ID.
	Target string `json:"target"`

	// Properties holds the relationship's properties.
	Properties map[string]any `json:"properties,omitempty"`
}

// Key returns the canonical edge identity "source|type|target". Two edges
// with the same key are duplicates.
func (e EdgeData) Key() string {
	return EdgeKey(e.Source, e.Type, e.Target)
}

// EdgeKey builds the canonical edge identity for a (source, type, target)
// triple.
func EdgeKey(source, relType, target string) string {
	return source + "|" + relType + "|" + target
}

// QueryResult is a snapshot of graph state matching a query. Nodes are
// keyed by node ID, edges by their canonical EdgeKey. Callers check
// membership in the maps; an empty map means nothing matched.
type QueryResult struct {
	Nodes map[string]NodeData `json:"nodes"`
	Edges map[string]EdgeData `json:"edges"`
}

// HasNode reports whether the result contains a node with the given ID.
func (r QueryResult) HasNode(id string) bool {
	_, ok := r.Nodes[id]
	return ok
}

// HasEdge reports whether the result contains an edge with the given
// (source, type, target) identity.
func (r QueryResult) HasEdge(source, relType, target string) bool {
	_, ok := r.Edges[EdgeKey(source, relType, target)]
	return ok
}

// Backend is the storage contract for the coordination pipeline. The
// concrete persistence technology (embedded store, Cypher database, remote
// service) lives behind this interface.
//
// All methods take a context so remote implementations can honor
// cancellation; writes must either complete or return an error, with no
// partial-write state exposed to callers.
type Backend interface {
	// AddEntity stores a node. An existing node with the same ID is
	// overwritten; duplicate detection happens before the write, in the
	// conflict resolver.
	AddEntity(ctx context.Context, id string, properties map[string]any) error

	// AddRelationship stores an edge between two nodes.
	AddRelationship(ctx context.Context, sourceID, relType, targetID string, properties map[string]any) error

	// Query returns the graph state matching the query string. The query
	// format depends on the implementation; the bundled backends ignore
	// it and return a full snapshot, which callers filter via HasNode and
	// HasEdge.
	Query(ctx context.Context, query string) (QueryResult, error)

	// Rollback undoes the most recent write, best effort. Backends
	// without history return ErrRollbackUnsupported.
	Rollback(ctx context.Context) error
}
