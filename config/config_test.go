package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, "coordinator.yaml", `
agent_id: km_primary
backend:
  type: redis
  url: redis://cache:6379/1
  namespace: prod
event_bus:
  transport_url: redis://cache:6379/2
  channel_prefix: prodevents
registry:
  type: etcd
  endpoints:
    - etcd-0:2379
    - etcd-1:2379
  namespace: prodcoord
  ttl: 15
queue:
  capacity: 128
  shutdown_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "km_primary", cfg.GetAgentID())
	assert.Equal(t, "redis", cfg.Backend.GetType())
	assert.Equal(t, "redis://cache:6379/1", cfg.Backend.GetURL())
	assert.Equal(t, "prod", cfg.Backend.GetNamespace())
	assert.Equal(t, "redis://cache:6379/2", cfg.EventBus.GetTransportURL())
	assert.Equal(t, "prodevents", cfg.EventBus.GetChannelPrefix())
	assert.Equal(t, "etcd", cfg.Registry.GetType())
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, 15, cfg.Registry.GetTTL())
	assert.Equal(t, 128, cfg.Queue.GetCapacity())
	assert.Equal(t, 5*time.Second, cfg.Queue.GetShutdownTimeout())
}

func TestLoadFromDirectory(t *testing.T) {
	path := writeConfig(t, "coordinator.yaml", "agent_id: from_dir\n")

	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "from_dir", cfg.GetAgentID())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestDefaultsOnEmptyConfig(t *testing.T) {
	var cfg Config

	assert.Equal(t, "knowledge_manager", cfg.GetAgentID())
	assert.Equal(t, "memory", cfg.Backend.GetType())
	assert.Equal(t, "redis://localhost:6379", cfg.Backend.GetURL())
	assert.Equal(t, "kg", cfg.Backend.GetNamespace())
	assert.Empty(t, cfg.EventBus.GetTransportURL())
	assert.Equal(t, "kgevents", cfg.EventBus.GetChannelPrefix())
	assert.Equal(t, "memory", cfg.Registry.GetType())
	assert.Equal(t, "kgcoord", cfg.Registry.GetNamespace())
	assert.Equal(t, 30, cfg.Registry.GetTTL())
	assert.Equal(t, 64, cfg.Queue.GetCapacity())
	assert.Equal(t, 30*time.Second, cfg.Queue.GetShutdownTimeout())
}

func TestShutdownTimeoutFallsBackOnInvalid(t *testing.T) {
	q := &QueueConfig{ShutdownTimeout: "not-a-duration"}
	assert.Equal(t, 30*time.Second, q.GetShutdownTimeout())
}
