package kgcoord

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/config"
	"github.com/knograph/kgcoord/eventbus"
	"github.com/knograph/kgcoord/manager"
	"github.com/knograph/kgcoord/peer"
	"github.com/knograph/kgcoord/registry"
)

// Coordinator bundles a Knowledge Manager with the shared infrastructure
// peers need: the graph backend, the event bus, the agent registry, and
// the mailbox channel. It is the assembly point for a single-process
// deployment; the individual packages can be wired by hand for anything
// more exotic.
type Coordinator struct {
	manager  *manager.Manager
	backend  backend.Backend
	bus      eventbus.Bus
	channel  comms.Channel
	registry registry.Registry
	logger   *slog.Logger
}

// New assembles a Coordinator. Without options it uses an in-memory
// backend, in-process bus, in-memory registry and mailbox channel — a
// fully working single-process deployment.
//
// Example:
//
//	coord, err := kgcoord.New(
//	    kgcoord.WithConfig("coordinator.yaml"),
//	    kgcoord.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer coord.Shutdown(context.Background())
func New(opts ...Option) (*Coordinator, error) {
	cfg := &coordinatorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var fileCfg *config.Config
	if cfg.configPath != "" {
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		fileCfg = loaded
	}

	if cfg.agentID == "" {
		cfg.agentID = fileCfg.GetAgentID()
	}

	if cfg.backend == nil {
		b, err := buildBackend(fileCfg)
		if err != nil {
			return nil, err
		}
		cfg.backend = b
	}

	if cfg.bus == nil {
		var busCfg *config.EventBusConfig
		if fileCfg != nil {
			busCfg = fileCfg.EventBus
		}
		bus, err := eventbus.New(eventbus.Options{
			TransportURL:  busCfg.GetTransportURL(),
			ChannelPrefix: busCfg.GetChannelPrefix(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		cfg.bus = bus
	}

	if cfg.registry == nil {
		reg, err := buildRegistry(fileCfg)
		if err != nil {
			return nil, err
		}
		cfg.registry = reg
	}

	if cfg.channel == nil {
		cfg.channel = comms.NewInMemoryChannel()
	}

	var queueCfg *config.QueueConfig
	if fileCfg != nil {
		queueCfg = fileCfg.Queue
	}

	mgr, err := manager.New(manager.Options{
		AgentID:         cfg.agentID,
		Backend:         cfg.backend,
		Bus:             cfg.bus,
		Channel:         cfg.channel,
		Registry:        cfg.registry,
		Logger:          cfg.logger,
		TracerProvider:  cfg.tracerProvider,
		MeterProvider:   cfg.meterProvider,
		QueueCapacity:   queueCfg.GetCapacity(),
		ShutdownTimeout: queueCfg.GetShutdownTimeout(),
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		manager:  mgr,
		backend:  cfg.backend,
		bus:      cfg.bus,
		channel:  cfg.channel,
		registry: cfg.registry,
		logger:   cfg.logger,
	}, nil
}

func buildBackend(fileCfg *config.Config) (backend.Backend, error) {
	var backendCfg *config.BackendConfig
	if fileCfg != nil {
		backendCfg = fileCfg.Backend
	}

	switch backendCfg.GetType() {
	case "memory":
		return backend.NewInMemoryBackend(), nil
	case "redis":
		b, err := backend.NewRedisBackend(backend.RedisOptions{
			URL:       backendCfg.GetURL(),
			Namespace: backendCfg.GetNamespace(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", backendCfg.GetType())
	}
}

func buildRegistry(fileCfg *config.Config) (registry.Registry, error) {
	var regCfg *config.RegistryConfig
	if fileCfg != nil {
		regCfg = fileCfg.Registry
	}

	switch regCfg.GetType() {
	case "memory":
		return registry.NewInMemoryRegistry(), nil
	case "etcd":
		reg, err := registry.NewEtcdRegistry(registry.EtcdConfig{
			Endpoints: regCfg.Endpoints,
			Namespace: regCfg.GetNamespace(),
			TTL:       regCfg.GetTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown registry type %q", regCfg.GetType())
	}
}

// Manager returns the Knowledge Manager.
func (c *Coordinator) Manager() *manager.Manager { return c.manager }

// Backend returns the graph backend shared by all agents.
func (c *Coordinator) Backend() backend.Backend { return c.backend }

// Bus returns the event bus.
func (c *Coordinator) Bus() eventbus.Bus { return c.bus }

// Channel returns the mailbox transport.
func (c *Coordinator) Channel() comms.Channel { return c.channel }

// Registry returns the agent registry.
func (c *Coordinator) Registry() registry.Registry { return c.registry }

// NewDataArchitect creates a data architect peer wired to this
// coordinator's infrastructure.
func (c *Coordinator) NewDataArchitect(id string) *peer.Agent {
	return peer.NewDataArchitect(id, c.peerOptions())
}

// NewDataEngineer creates a data engineer peer wired to this
// coordinator's infrastructure.
func (c *Coordinator) NewDataEngineer(id string) *peer.Agent {
	return peer.NewDataEngineer(id, c.peerOptions())
}

func (c *Coordinator) peerOptions() peer.Options {
	return peer.Options{
		Backend:  c.backend,
		Channel:  c.channel,
		Registry: c.registry,
		Logger:   c.logger,
	}
}

// Shutdown stops the manager worker and releases transport resources.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := c.manager.Close(); err != nil {
		firstErr = err
	}
	if err := c.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.registry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
