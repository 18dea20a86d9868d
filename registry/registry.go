// Package registry provides agent registration and coordinator discovery.
//
// Agents register themselves under their role so subordinates can find the
// knowledge manager to escalate to. Two implementations are provided: an
// etcd-backed registry with lease keepalives for multi-process
// deployments, and an in-memory registry for single-process use and tests.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/knograph/kgcoord/kg"
)

// ErrNoCoordinator is returned by Coordinator when no knowledge manager
// is registered.
var ErrNoCoordinator = errors.New("registry: no coordinator registered")

// AgentInfo describes a registered agent instance.
type AgentInfo struct {
	// Role determines what the agent may do and where it is discoverable.
	Role kg.Role `json:"role"`

	// AgentID is the agent's stable identity, used as its mailbox address.
	AgentID string `json:"agent_id"`

	// InstanceID distinguishes concurrent instances of the same agent.
	InstanceID string `json:"instance_id"`

	// Endpoint is the network address where the agent can be reached,
	// empty for in-process agents.
	Endpoint string `json:"endpoint,omitempty"`

	// Metadata carries agent-specific attributes such as managed domains.
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is when this instance came up.
	StartedAt time.Time `json:"started_at"`
}

// Registry is the agent discovery contract.
type Registry interface {
	// Register adds the agent instance, keeping it discoverable until
	// Deregister is called or (for leased backends) its lease expires.
	Register(ctx context.Context, info AgentInfo) error

	// Deregister removes the agent instance. Removing an unregistered
	// instance is a no-op.
	Deregister(ctx context.Context, info AgentInfo) error

	// Discover returns all registered instances with the given role.
	Discover(ctx context.Context, role kg.Role) ([]AgentInfo, error)

	// Coordinator returns a registered knowledge manager, or
	// ErrNoCoordinator when none is available.
	Coordinator(ctx context.Context) (AgentInfo, error)

	// Close releases registry resources.
	Close() error
}

// InMemoryRegistry keeps registrations in a map. Suitable for
// single-process deployments where all agents share the registry value.
type InMemoryRegistry struct {
	mu     sync.RWMutex
	agents map[string]AgentInfo
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{agents: make(map[string]AgentInfo)}
}

// Register stores the instance, replacing any prior registration with the
// same instance ID.
func (r *InMemoryRegistry) Register(ctx context.Context, info AgentInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[info.InstanceID] = info
	return nil
}

// Deregister removes the instance.
func (r *InMemoryRegistry) Deregister(ctx context.Context, info AgentInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, info.InstanceID)
	return nil
}

// Discover returns all instances with the given role.
func (r *InMemoryRegistry) Discover(ctx context.Context, role kg.Role) ([]AgentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var instances []AgentInfo
	for _, info := range r.agents {
		if info.Role == role {
			instances = append(instances, info)
		}
	}
	return instances, nil
}

// Coordinator returns a registered knowledge manager.
func (r *InMemoryRegistry) Coordinator(ctx context.Context) (AgentInfo, error) {
	instances, err := r.Discover(ctx, kg.RoleKnowledgeManager)
	if err != nil {
		return AgentInfo{}, err
	}
	if len(instances) == 0 {
		return AgentInfo{}, ErrNoCoordinator
	}
	return instances[0], nil
}

// Close is a no-op for the in-memory registry.
func (r *InMemoryRegistry) Close() error {
	return nil
}
