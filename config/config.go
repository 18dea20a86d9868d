// Package config provides loading and parsing of coordinator.yaml files.
// The configuration covers the graph backend, event transport, agent
// registry, and the coordinator's queue sizing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a coordinator.yaml configuration file.
type Config struct {
	// AgentID is the coordinator's identity, used as its mailbox address
	// and registry entry. Default: "knowledge_manager".
	AgentID string `yaml:"agent_id,omitempty"`

	// Backend selects and configures the graph store.
	Backend *BackendConfig `yaml:"backend,omitempty"`

	// EventBus configures the event transport.
	EventBus *EventBusConfig `yaml:"event_bus,omitempty"`

	// Registry configures agent discovery.
	Registry *RegistryConfig `yaml:"registry,omitempty"`

	// Queue configures the escalation queue.
	Queue *QueueConfig `yaml:"queue,omitempty"`
}

// BackendConfig selects the graph backend.
type BackendConfig struct {
	// Type is "memory" or "redis". Default: "memory".
	Type string `yaml:"type,omitempty"`

	// URL is the Redis connection string for the redis backend.
	// Default: "redis://localhost:6379".
	URL string `yaml:"url,omitempty"`

	// Namespace prefixes every Redis key. Default: "kg".
	Namespace string `yaml:"namespace,omitempty"`
}

// EventBusConfig selects the event transport.
type EventBusConfig struct {
	// TransportURL is the Redis pub/sub transport. Empty means in-process
	// delivery.
	TransportURL string `yaml:"transport_url,omitempty"`

	// ChannelPrefix namespaces the pub/sub channels. Default: "kgevents".
	ChannelPrefix string `yaml:"channel_prefix,omitempty"`
}

// RegistryConfig configures agent discovery.
type RegistryConfig struct {
	// Type is "memory" or "etcd". Default: "memory".
	Type string `yaml:"type,omitempty"`

	// Endpoints is the etcd cluster for the etcd registry.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Namespace prefixes every registry key. Default: "kgcoord".
	Namespace string `yaml:"namespace,omitempty"`

	// TTL is the registration lease time-to-live in seconds. Default: 30.
	TTL int `yaml:"ttl,omitempty"`
}

// QueueConfig sizes the coordinator's escalation queue.
type QueueConfig struct {
	// Capacity is the buffered queue depth. Enqueueing blocks when the
	// queue is full. Default: 64.
	Capacity int `yaml:"capacity,omitempty"`

	// ShutdownTimeout bounds how long Close waits for the worker to drain
	// in-flight work. Format: Go duration string. Default: 30s.
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
}

// GetAgentID returns the configured agent ID or the default.
func (c *Config) GetAgentID() string {
	if c == nil || c.AgentID == "" {
		return "knowledge_manager"
	}
	return c.AgentID
}

// GetType returns the backend type or the default.
func (b *BackendConfig) GetType() string {
	if b == nil || b.Type == "" {
		return "memory"
	}
	return b.Type
}

// GetURL returns the Redis URL or the default.
func (b *BackendConfig) GetURL() string {
	if b == nil || b.URL == "" {
		return "redis://localhost:6379"
	}
	return b.URL
}

// GetNamespace returns the key namespace or the default.
func (b *BackendConfig) GetNamespace() string {
	if b == nil || b.Namespace == "" {
		return "kg"
	}
	return b.Namespace
}

// GetChannelPrefix returns the channel prefix or the default.
func (e *EventBusConfig) GetChannelPrefix() string {
	if e == nil || e.ChannelPrefix == "" {
		return "kgevents"
	}
	return e.ChannelPrefix
}

// GetTransportURL returns the transport URL, empty when unset.
func (e *EventBusConfig) GetTransportURL() string {
	if e == nil {
		return ""
	}
	return e.TransportURL
}

// GetType returns the registry type or the default.
func (r *RegistryConfig) GetType() string {
	if r == nil || r.Type == "" {
		return "memory"
	}
	return r.Type
}

// GetNamespace returns the registry namespace or the default.
func (r *RegistryConfig) GetNamespace() string {
	if r == nil || r.Namespace == "" {
		return "kgcoord"
	}
	return r.Namespace
}

// GetTTL returns the lease TTL or the default.
func (r *RegistryConfig) GetTTL() int {
	if r == nil || r.TTL <= 0 {
		return 30
	}
	return r.TTL
}

// GetCapacity returns the queue capacity or the default.
func (q *QueueConfig) GetCapacity() int {
	if q == nil || q.Capacity <= 0 {
		return 64
	}
	return q.Capacity
}

// GetShutdownTimeout parses the shutdown timeout string and returns a
// duration. Returns the default value if not set or invalid.
func (q *QueueConfig) GetShutdownTimeout() time.Duration {
	if q == nil || q.ShutdownTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(q.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Load reads and parses a coordinator.yaml file from the given path.
// If the path is a directory, it looks for coordinator.yaml or
// coordinator.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		yamlPath := filepath.Join(path, "coordinator.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "coordinator.yml")
			if _, err := os.Stat(ymlPath); err != nil {
				return nil, fmt.Errorf("no coordinator.yaml or coordinator.yml found in %s", path)
			}
			configPath = ymlPath
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}
