package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/kg"
)

// Bus actions the manager subscribes to. Events published under these
// actions carry the underlying operation in their data.
const (
	EventComplexEntity       = "complex_entity_operation"
	EventComplexRelationship = "complex_relationship_operation"
	EventBatchOperation      = "batch_operation"
	EventConflictResolution  = "conflict_resolution"
)

// Mailbox message types the manager understands.
const (
	MsgEscalateOperation = "escalate_operation"
	MsgRequestValidation = "request_validation"
	MsgResolveConflict   = "resolve_conflict"

	MsgValidationResponse     = "validation_response"
	MsgConflictResolutionPlan = "conflict_resolution_plan"
)

// EventOutcome reports what the event pipeline did with one event.
type EventOutcome struct {
	// Validation is the rule-engine verdict.
	Validation kg.ValidationResult `json:"validation"`

	// Conflicts detected against the current graph state.
	Conflicts []kg.Conflict `json:"conflicts,omitempty"`

	// ResolutionPlan covers the detected conflicts, if any.
	ResolutionPlan kg.ResolutionPlan `json:"resolution_plan,omitempty"`

	// AutoResolved lists the conflict types resolved automatically.
	AutoResolved []string `json:"auto_resolved,omitempty"`

	// Reasoning is the inference output.
	Reasoning kg.ReasoningOutcome `json:"reasoning"`

	// Applied reports whether the operation reached the backend.
	Applied bool `json:"applied"`
}

// ProcessEvent runs a single knowledge event through validation, conflict
// handling, reasoning, and apply. Validation failure stops the pipeline
// before any backend write; conflicts are resolved (or flagged) and the
// operation proceeds.
func (m *Manager) ProcessEvent(ctx context.Context, event kg.KnowledgeEvent) (EventOutcome, error) {
	outcome := EventOutcome{}

	outcome.Validation = m.validation.Validate(event)
	if !outcome.Validation.IsValid {
		m.logger.Info("event rejected by validation",
			"action", event.Action, "errors", outcome.Validation.Errors)
		return outcome, nil
	}

	conflicts, err := m.conflicts.DetectConflicts(ctx, event)
	if err != nil {
		return outcome, fmt.Errorf("conflict detection failed: %w", err)
	}
	if len(conflicts) > 0 {
		outcome.Conflicts = conflicts
		outcome.ResolutionPlan = m.conflicts.CreateResolutionPlan(conflicts)
		outcome.AutoResolved = m.conflicts.ApplyAutomaticResolutions(ctx, conflicts)
		m.logger.Info("conflicts handled",
			"action", event.Action,
			"detected", len(conflicts),
			"auto_resolved", len(outcome.AutoResolved))
	}

	outcome.Reasoning = m.reasoning.Apply(event)

	if err := m.applyEvent(ctx, event); err != nil {
		return outcome, fmt.Errorf("failed to apply event: %w", err)
	}
	outcome.Applied = true
	return outcome, nil
}

// applyEvent writes the event to the backend.
func (m *Manager) applyEvent(ctx context.Context, event kg.KnowledgeEvent) error {
	switch event.Action {
	case kg.ActionCreateEntity:
		id := event.EntityID()
		if id == "" {
			return errors.New("entity ID is required")
		}
		return m.backend.AddEntity(ctx, id, event.Properties())
	case kg.ActionCreateRelationship:
		source, target, relType := event.Source(), event.Target(), event.RelType()
		if relType == "" {
			relType = "relates_to"
		}
		return m.backend.AddRelationship(ctx, source, relType, target, event.Properties())
	default:
		return fmt.Errorf("unsupported action %q", event.Action)
	}
}

// subscribeComplexOperations wires the manager's bus handlers. Events on
// the complex-operation actions carry the underlying operation in
// data["action"] and data["data"].
func (m *Manager) subscribeComplexOperations() {
	unwrap := func(ctx context.Context, event kg.KnowledgeEvent) error {
		inner := innerEvent(event)
		_, err := m.ProcessEvent(ctx, inner)
		return err
	}
	m.bus.Subscribe(EventComplexEntity, unwrap)
	m.bus.Subscribe(EventComplexRelationship, unwrap)
	m.bus.Subscribe(EventConflictResolution, unwrap)
	m.bus.Subscribe(EventBatchOperation, m.handleBatchOperation)
}

// innerEvent extracts the wrapped operation from a complex-operation
// event. An event without a wrapped action falls back to interpreting its
// own data as the operation.
func innerEvent(event kg.KnowledgeEvent) kg.KnowledgeEvent {
	action, _ := event.Data["action"].(string)
	data, _ := event.Data["data"].(map[string]any)
	if action == "" {
		switch event.Action {
		case EventComplexRelationship:
			action = kg.ActionCreateRelationship
		default:
			action = kg.ActionCreateEntity
		}
	}
	if data == nil {
		data = event.Data
	}
	role := event.Role
	if !role.IsValid() {
		role = kg.RoleKnowledgeManager
	}
	return kg.KnowledgeEvent{Action: action, Data: data, Role: role}
}

// handleBatchOperation converts a batch event into an escalation request
// and runs it through the queue, so batches get the same serialization
// and audit treatment as direct escalations.
func (m *Manager) handleBatchOperation(ctx context.Context, event kg.KnowledgeEvent) error {
	domain, _ := event.Data["domain"].(string)
	if domain == "" {
		domain = "event_bus"
	}

	var entities []kg.EntityPayload
	if raw, ok := event.Data["entities"].([]any); ok {
		for _, item := range raw {
			if payload, ok := item.(map[string]any); ok {
				entities = append(entities, kg.EntityPayload(payload))
			}
		}
	}
	var relationships []kg.RelationshipPayload
	if raw, ok := event.Data["relationships"].([]any); ok {
		for _, item := range raw {
			if payload, ok := item.(map[string]any); ok {
				relationships = append(relationships, kg.RelationshipPayload(payload))
			}
		}
	}

	req := kg.NewUpdateRequest(kg.UpdateBatchUpdate, "event_bus", domain, entities, relationships)
	result, err := m.EscalateUpdate(ctx, req)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("batch operation failed: %s", result.ErrorMessage)
	}
	return nil
}

// HandleMessage processes one mailbox message. Unknown message types are
// logged and dropped.
func (m *Manager) HandleMessage(ctx context.Context, message comms.Message) error {
	content, ok := message.Content.(map[string]any)
	if !ok {
		m.logger.Warn("unhandled message content", "sender", message.SenderID)
		return nil
	}

	msgType, _ := content["type"].(string)
	switch msgType {
	case MsgEscalateOperation:
		return m.handleEscalationMessage(ctx, message.SenderID, content)
	case MsgRequestValidation:
		return m.handleValidationRequest(ctx, message.SenderID, content)
	case MsgResolveConflict:
		return m.handleConflictRequest(ctx, message.SenderID, content)
	default:
		m.logger.Warn("unknown message type", "type", msgType, "sender", message.SenderID)
		return nil
	}
}

// PollMessages drains the manager's mailbox once, handling each message.
func (m *Manager) PollMessages(ctx context.Context) error {
	messages, err := m.channel.Drain(ctx, m.agentID)
	if err != nil {
		return err
	}
	for _, message := range messages {
		if err := m.HandleMessage(ctx, message); err != nil {
			m.logger.Error("message handling failed",
				"message_id", message.ID, "sender", message.SenderID, "error", err)
		}
	}
	return nil
}

// Run polls the mailbox until ctx is canceled. Errors from individual
// messages are logged, not fatal.
func (m *Manager) Run(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	m.logger.Info("knowledge manager started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-ticker.C:
			if err := m.PollMessages(ctx); err != nil {
				m.logger.Error("mailbox poll failed", "error", err)
			}
		}
	}
}

func (m *Manager) handleEscalationMessage(ctx context.Context, senderID string, content map[string]any) error {
	reason, _ := content["reason"].(string)
	m.logger.Info("handling escalation", "sender", senderID, "reason", reason)

	event, err := operationEvent(content, kg.RoleKnowledgeManager)
	if err != nil {
		return err
	}
	// The escalation crossed the trust boundary at the peer; the manager
	// executes it under its own authority, not the sender's role.
	event.Role = kg.RoleKnowledgeManager
	_, err = m.ProcessEvent(ctx, event)
	return err
}

func (m *Manager) handleValidationRequest(ctx context.Context, senderID string, content map[string]any) error {
	event, err := operationEvent(content, kg.RoleDataArchitect)
	if err != nil {
		return err
	}

	result := m.validation.Validate(event)
	response := comms.NewMessage(m.agentID, senderID, map[string]any{
		"type":         MsgValidationResponse,
		"operation_id": content["operation_id"],
		"is_valid":     result.IsValid,
		"errors":       result.Errors,
		"warnings":     result.Warnings,
	}, map[string]any{"type": MsgValidationResponse})
	return m.channel.Send(ctx, response)
}

func (m *Manager) handleConflictRequest(ctx context.Context, senderID string, content map[string]any) error {
	var conflicts []kg.Conflict
	if raw, ok := content["conflicts"].([]kg.Conflict); ok {
		conflicts = raw
	}

	plan := m.conflicts.CreateResolutionPlan(conflicts)
	response := comms.NewMessage(m.agentID, senderID, map[string]any{
		"type":            MsgConflictResolutionPlan,
		"conflicts":       conflicts,
		"resolution_plan": plan,
	}, map[string]any{"type": MsgConflictResolutionPlan})
	return m.channel.Send(ctx, response)
}

// operationEvent builds a knowledge event from a message's "operation"
// field, falling back to the given role when the operation omits one.
func operationEvent(content map[string]any, fallback kg.Role) (kg.KnowledgeEvent, error) {
	operation, ok := content["operation"].(map[string]any)
	if !ok {
		return kg.KnowledgeEvent{}, errors.New("message has no operation")
	}

	action, _ := operation["action"].(string)
	data, _ := operation["data"].(map[string]any)

	role := fallback
	if raw, ok := operation["role"].(string); ok && raw != "" {
		parsed, err := kg.ParseRole(raw)
		if err != nil {
			return kg.KnowledgeEvent{}, err
		}
		role = parsed
	}
	return kg.NewEvent(action, data, role)
}
