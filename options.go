package kgcoord

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/eventbus"
	"github.com/knograph/kgcoord/registry"
)

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// coordinatorConfig holds construction-time settings for the Coordinator.
type coordinatorConfig struct {
	configPath     string
	agentID        string
	logger         *slog.Logger
	backend        backend.Backend
	bus            eventbus.Bus
	channel        comms.Channel
	registry       registry.Registry
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithConfig loads coordinator settings from a coordinator.yaml file.
// Explicit options override values from the file.
func WithConfig(path string) Option {
	return func(c *coordinatorConfig) {
		c.configPath = path
	}
}

// WithAgentID sets the coordinator's identity.
func WithAgentID(id string) Option {
	return func(c *coordinatorConfig) {
		c.agentID = id
	}
}

// WithLogger sets a custom logger. If not provided, a JSON logger writing
// to stdout is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *coordinatorConfig) {
		c.logger = logger
	}
}

// WithBackend sets the graph backend, overriding the configured one.
func WithBackend(b backend.Backend) Option {
	return func(c *coordinatorConfig) {
		c.backend = b
	}
}

// WithBus sets the event bus, overriding the configured transport.
func WithBus(bus eventbus.Bus) Option {
	return func(c *coordinatorConfig) {
		c.bus = bus
	}
}

// WithChannel sets the agent mailbox transport.
func WithChannel(channel comms.Channel) Option {
	return func(c *coordinatorConfig) {
		c.channel = channel
	}
}

// WithRegistry sets the agent registry, overriding the configured one.
func WithRegistry(reg registry.Registry) Option {
	return func(c *coordinatorConfig) {
		c.registry = reg
	}
}

// WithTracerProvider enables distributed tracing of the escalation
// pipeline.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *coordinatorConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider enables metrics for the escalation pipeline.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *coordinatorConfig) {
		c.meterProvider = mp
	}
}
