package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis-backed graph store.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// Namespace prefixes every key so multiple graphs can share one
	// Redis instance. Default: "kg".
	Namespace string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration
}

// RedisBackend persists the graph in Redis: one hash for nodes, one hash
// for edges, and a list recording write history for rollback. It
// implements the same contract as InMemoryBackend, so the coordinator
// does not care which one it is wired with.
type RedisBackend struct {
	client    *redis.Client
	nodesKey  string
	edgesKey  string
	histKey   string
	namespace string
}

// redisHistoryEntry mirrors historyEntry in a JSON-serializable form.
type redisHistoryEntry struct {
	Kind string   `json:"kind"`
	ID   string   `json:"id"`
	Prev NodeData `json:"prev,omitempty"`
	Had  bool     `json:"had"`
}

// NewRedisBackend connects to Redis and verifies connectivity with a ping.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Namespace == "" {
		opts.Namespace = "kg"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{
		client:    client,
		nodesKey:  opts.Namespace + ":nodes",
		edgesKey:  opts.Namespace + ":edges",
		histKey:   opts.Namespace + ":history",
		namespace: opts.Namespace,
	}, nil
}

// AddEntity stores the node's properties as JSON in the nodes hash and
// pushes a history record carrying the overwritten value, if any.
func (b *RedisBackend) AddEntity(ctx context.Context, id string, properties map[string]any) error {
	entry := redisHistoryEntry{Kind: "entity", ID: id}

	prev, err := b.client.HGet(ctx, b.nodesKey, id).Result()
	switch {
	case err == nil:
		entry.Had = true
		if uerr := json.Unmarshal([]byte(prev), &entry.Prev); uerr != nil {
			return fmt.Errorf("failed to decode existing node %s: %w", id, uerr)
		}
	case err != redis.Nil:
		return fmt.Errorf("failed to read node %s: %w", id, err)
	}

	data, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("failed to marshal node properties: %w", err)
	}
	if err := b.client.HSet(ctx, b.nodesKey, id, data).Err(); err != nil {
		return fmt.Errorf("failed to store node %s: %w", id, err)
	}
	return b.pushHistory(ctx, entry)
}

// AddRelationship stores the edge as JSON keyed by its canonical identity.
func (b *RedisBackend) AddRelationship(ctx context.Context, sourceID, relType, targetID string, properties map[string]any) error {
	edge := EdgeData{Source: sourceID, Type: relType, Target: targetID, Properties: properties}
	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("failed to marshal edge: %w", err)
	}
	if err := b.client.HSet(ctx, b.edgesKey, edge.Key(), data).Err(); err != nil {
		return fmt.Errorf("failed to store edge %s: %w", edge.Key(), err)
	}
	return b.pushHistory(ctx, redisHistoryEntry{Kind: "edge", ID: edge.Key()})
}

// Query ignores the query string and returns a full snapshot, matching
// the in-memory backend's behavior.
func (b *RedisBackend) Query(ctx context.Context, query string) (QueryResult, error) {
	result := QueryResult{
		Nodes: make(map[string]NodeData),
		Edges: make(map[string]EdgeData),
	}

	nodes, err := b.client.HGetAll(ctx, b.nodesKey).Result()
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to read nodes: %w", err)
	}
	for id, raw := range nodes {
		var props NodeData
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			return QueryResult{}, fmt.Errorf("failed to decode node %s: %w", id, err)
		}
		result.Nodes[id] = props
	}

	edges, err := b.client.HGetAll(ctx, b.edgesKey).Result()
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to read edges: %w", err)
	}
	for key, raw := range edges {
		var edge EdgeData
		if err := json.Unmarshal([]byte(raw), &edge); err != nil {
			return QueryResult{}, fmt.Errorf("failed to decode edge %s: %w", key, err)
		}
		result.Edges[key] = edge
	}
	return result, nil
}

// Rollback pops the most recent history record and undoes the write it
// describes. An empty history is a no-op.
func (b *RedisBackend) Rollback(ctx context.Context) error {
	raw, err := b.client.RPop(ctx, b.histKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pop history: %w", err)
	}

	var entry redisHistoryEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("failed to decode history entry: %w", err)
	}

	switch entry.Kind {
	case "entity":
		if entry.Had {
			data, err := json.Marshal(entry.Prev)
			if err != nil {
				return fmt.Errorf("failed to marshal previous node value: %w", err)
			}
			return b.client.HSet(ctx, b.nodesKey, entry.ID, data).Err()
		}
		return b.client.HDel(ctx, b.nodesKey, entry.ID).Err()
	case "edge":
		return b.client.HDel(ctx, b.edgesKey, entry.ID).Err()
	}
	return nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) pushHistory(ctx context.Context, entry redisHistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := b.client.RPush(ctx, b.histKey, data).Err(); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}
