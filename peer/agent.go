// Package peer implements subordinate agents that write simple operations
// directly and escalate everything else to the knowledge manager.
//
// Each agent carries a simple-operations table mapping actions to whether
// the agent may perform them without escalation. Entity creation is the
// only direct write for low-trust roles; relationship creation, deletes,
// and batch changes always go through the coordinator. This two-tier
// write policy is deliberate: the graph backend is the sole shared
// mutable resource, and the coordinator serializes the risky writes while
// simple entity inserts stay cheap.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/kg"
	"github.com/knograph/kgcoord/registry"
	"github.com/knograph/kgcoord/validation"
)

// ErrOperationDropped is returned when an escalation cannot be routed
// because no coordinator is discoverable. The operation is logged and
// abandoned, never queued indefinitely.
var ErrOperationDropped = errors.New("peer: operation dropped, no coordinator reachable")

// Agent is a subordinate agent with a fixed role and permission table.
type Agent struct {
	id        string
	role      kg.Role
	simpleOps map[string]bool

	backend  backend.Backend
	channel  comms.Channel
	registry registry.Registry
	logger   *slog.Logger
}

// Options wires an agent's collaborators.
type Options struct {
	Backend  backend.Backend
	Channel  comms.Channel
	Registry registry.Registry
	Logger   *slog.Logger
}

// NewAgent creates an agent with an explicit simple-operations table.
func NewAgent(id string, role kg.Role, simpleOps map[string]bool, opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if simpleOps == nil {
		simpleOps = map[string]bool{}
	}
	return &Agent{
		id:        id,
		role:      role,
		simpleOps: simpleOps,
		backend:   opts.Backend,
		channel:   opts.Channel,
		registry:  opts.Registry,
		logger:    opts.Logger.With("agent_id", id, "role", string(role)),
	}
}

// NewDataArchitect creates an agent that may create entities directly and
// escalates relationship work.
func NewDataArchitect(id string, opts Options) *Agent {
	return NewAgent(id, kg.RoleDataArchitect, map[string]bool{
		kg.ActionCreateEntity:       true,
		kg.ActionCreateRelationship: false,
	}, opts)
}

// NewDataEngineer creates an agent that may create entities directly and
// escalates relationship work.
func NewDataEngineer(id string, opts Options) *Agent {
	return NewAgent(id, kg.RoleDataEngineer, map[string]bool{
		kg.ActionCreateEntity:       true,
		kg.ActionCreateRelationship: false,
	}, opts)
}

// ID returns the agent's identity.
func (a *Agent) ID() string { return a.id }

// Role returns the agent's role.
func (a *Agent) Role() kg.Role { return a.role }

// Register adds the agent to the registry so the coordinator and other
// peers can discover it.
func (a *Agent) Register(ctx context.Context, info registry.AgentInfo) error {
	info.Role = a.role
	if info.AgentID == "" {
		info.AgentID = a.id
	}
	return a.registry.Register(ctx, info)
}

// Perform executes an operation. Operations the agent's table marks as
// simple, and that RBAC permits for its role, are written directly;
// everything else is escalated to the coordinator.
func (a *Agent) Perform(ctx context.Context, event kg.KnowledgeEvent) error {
	event.Role = a.role

	if a.simpleOps[event.Action] && validation.RoleAllowed(event.Action, a.role) {
		return a.applyDirect(ctx, event)
	}
	return a.Escalate(ctx, event, fmt.Sprintf("action %q exceeds permission table", event.Action))
}

// applyDirect writes a simple operation straight to the backend. Only
// entity creation qualifies for low-trust roles.
func (a *Agent) applyDirect(ctx context.Context, event kg.KnowledgeEvent) error {
	switch event.Action {
	case kg.ActionCreateEntity:
		id := event.EntityID()
		if id == "" {
			return errors.New("entity ID is required")
		}
		if err := a.backend.AddEntity(ctx, id, event.Properties()); err != nil {
			return fmt.Errorf("failed to create entity %s: %w", id, err)
		}
		a.logger.Debug("entity created directly", "entity_id", id)
		return nil
	default:
		return a.Escalate(ctx, event, fmt.Sprintf("action %q has no direct write path", event.Action))
	}
}

// Escalate wraps the operation in an escalate_operation message and sends
// it to the coordinator's mailbox. When no coordinator is discoverable
// the operation is logged and dropped.
func (a *Agent) Escalate(ctx context.Context, event kg.KnowledgeEvent, reason string) error {
	coordinator, err := a.registry.Coordinator(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrNoCoordinator) {
			a.logger.Error("dropping operation, no coordinator registered",
				"action", event.Action, "reason", reason)
			return fmt.Errorf("%w: action %q", ErrOperationDropped, event.Action)
		}
		return fmt.Errorf("coordinator discovery failed: %w", err)
	}

	message := comms.NewMessage(a.id, coordinator.AgentID, map[string]any{
		"type":     "escalate_operation",
		"agent_id": a.id,
		"reason":   reason,
		"operation": map[string]any{
			"action": event.Action,
			"data":   event.Data,
			"role":   string(event.Role),
		},
	}, map[string]any{"type": "escalate_operation"})

	if err := a.channel.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send escalation: %w", err)
	}
	a.logger.Info("operation escalated",
		"action", event.Action, "coordinator", coordinator.AgentID, "reason", reason)
	return nil
}

// RequestValidation asks the coordinator to validate an operation without
// applying it. The response arrives in this agent's mailbox as a
// validation_response message.
func (a *Agent) RequestValidation(ctx context.Context, operationID string, event kg.KnowledgeEvent) error {
	coordinator, err := a.registry.Coordinator(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrNoCoordinator) {
			a.logger.Error("dropping validation request, no coordinator registered", "action", event.Action)
			return fmt.Errorf("%w: action %q", ErrOperationDropped, event.Action)
		}
		return fmt.Errorf("coordinator discovery failed: %w", err)
	}

	message := comms.NewMessage(a.id, coordinator.AgentID, map[string]any{
		"type":         "request_validation",
		"agent_id":     a.id,
		"operation_id": operationID,
		"operation": map[string]any{
			"action": event.Action,
			"data":   event.Data,
			"role":   string(event.Role),
		},
	}, map[string]any{"type": "request_validation"})
	return a.channel.Send(ctx, message)
}

// Receive pops the oldest message from the agent's mailbox.
func (a *Agent) Receive(ctx context.Context) (comms.Message, error) {
	return a.channel.Receive(ctx, a.id)
}
