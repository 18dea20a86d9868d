package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/eventbus"
	"github.com/knograph/kgcoord/kg"
)

func TestProcessEventRejectsUnauthorizedRole(t *testing.T) {
	store := backend.NewInMemoryBackend()
	m := newTestManager(t, Options{Backend: store})

	event, err := kg.NewEvent(kg.ActionCreateRelationship, map[string]any{
		"source": "a", "target": "b", "type": "owns",
	}, kg.RoleDataEngineer)
	require.NoError(t, err)

	outcome, perr := m.ProcessEvent(context.Background(), event)
	require.NoError(t, perr)

	assert.False(t, outcome.Validation.IsValid)
	assert.False(t, outcome.Applied)

	snapshot, err := store.Query(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, snapshot.HasEdge("a", "owns", "b"))
}

func TestProcessEventAppliesValidOperation(t *testing.T) {
	store := backend.NewInMemoryBackend()
	m := newTestManager(t, Options{Backend: store})

	event, err := kg.NewEvent(kg.ActionCreateEntity, map[string]any{
		"id":         "customer_1",
		"properties": map[string]any{"email": "one@example.com"},
	}, kg.RoleKnowledgeManager)
	require.NoError(t, err)

	outcome, perr := m.ProcessEvent(context.Background(), event)
	require.NoError(t, perr)

	assert.True(t, outcome.Applied)
	assert.NotEmpty(t, outcome.Reasoning.AppliedRules)

	snapshot, err := store.Query(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, snapshot.HasNode("customer_1"))
}

func TestProcessEventReportsConflicts(t *testing.T) {
	store := backend.NewInMemoryBackend()
	m := newTestManager(t, Options{Backend: store})
	ctx := context.Background()
	require.NoError(t, store.AddEntity(ctx, "customer_1", map[string]any{"name": "One"}))

	event, err := kg.NewEvent(kg.ActionCreateEntity, map[string]any{"id": "customer_1"}, kg.RoleKnowledgeManager)
	require.NoError(t, err)

	outcome, perr := m.ProcessEvent(ctx, event)
	require.NoError(t, perr)

	require.Len(t, outcome.Conflicts, 1)
	assert.Equal(t, kg.ConflictDuplicateEntityID, outcome.Conflicts[0].Type)
	assert.Equal(t, []string{"duplicate_entity_id"}, outcome.AutoResolved)
	assert.True(t, outcome.Applied)
}

func TestComplexEntityEventFromBus(t *testing.T) {
	store := backend.NewInMemoryBackend()
	bus := eventbus.NewLocalBus()
	newTestManager(t, Options{Backend: store, Bus: bus})

	event, err := kg.NewEvent(EventComplexEntity, map[string]any{
		"action": kg.ActionCreateEntity,
		"data":   map[string]any{"id": "customer_1"},
	}, kg.RoleKnowledgeManager)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	snapshot, err := store.Query(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, snapshot.HasNode("customer_1"))
}

func TestBatchOperationEventFromBus(t *testing.T) {
	store := backend.NewInMemoryBackend()
	bus := eventbus.NewLocalBus()
	m := newTestManager(t, Options{Backend: store, Bus: bus})

	event, err := kg.NewEvent(EventBatchOperation, map[string]any{
		"domain": "sales",
		"entities": []any{
			map[string]any{"name": "customer_1"},
			map[string]any{"name": "order_1"},
		},
		"relationships": []any{
			map[string]any{"source": "customer_1", "target": "order_1", "type": "placed"},
		},
	}, kg.RoleKnowledgeManager)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	snapshot, err := store.Query(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, snapshot.HasNode("customer_1"))
	assert.True(t, snapshot.HasEdge("customer_1", "placed", "order_1"))

	// Batches escalate through the queue, so they are audited.
	assert.Equal(t, 1, m.AuditLog().Len())
}

func TestHandleEscalationMessage(t *testing.T) {
	store := backend.NewInMemoryBackend()
	channel := comms.NewInMemoryChannel()
	m := newTestManager(t, Options{Backend: store, Channel: channel, AgentID: "km"})
	ctx := context.Background()

	msg := comms.NewMessage("engineer_1", "km", map[string]any{
		"type":     MsgEscalateOperation,
		"agent_id": "engineer_1",
		"reason":   "relationship requires coordination",
		"operation": map[string]any{
			"action": kg.ActionCreateEntity,
			"data":   map[string]any{"id": "customer_1"},
		},
	}, map[string]any{"type": MsgEscalateOperation})
	require.NoError(t, channel.Send(ctx, msg))
	require.NoError(t, m.PollMessages(ctx))

	snapshot, err := store.Query(ctx, "")
	require.NoError(t, err)
	assert.True(t, snapshot.HasNode("customer_1"))
}

func TestHandleValidationRequestResponds(t *testing.T) {
	channel := comms.NewInMemoryChannel()
	m := newTestManager(t, Options{Channel: channel, AgentID: "km"})
	ctx := context.Background()

	msg := comms.NewMessage("architect_1", "km", map[string]any{
		"type":         MsgRequestValidation,
		"agent_id":     "architect_1",
		"operation_id": "op_7",
		"operation": map[string]any{
			"action": kg.ActionCreateEntity,
			"data":   map[string]any{},
			"role":   string(kg.RoleDataArchitect),
		},
	}, map[string]any{"type": MsgRequestValidation})
	require.NoError(t, channel.Send(ctx, msg))
	require.NoError(t, m.PollMessages(ctx))

	response, err := channel.Receive(ctx, "architect_1")
	require.NoError(t, err)
	assert.Equal(t, MsgValidationResponse, response.Type())

	content, ok := response.Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "op_7", content["operation_id"])
	assert.Equal(t, false, content["is_valid"])
}

func TestUnknownMessageTypeIsDropped(t *testing.T) {
	channel := comms.NewInMemoryChannel()
	m := newTestManager(t, Options{Channel: channel, AgentID: "km"})
	ctx := context.Background()

	msg := comms.NewMessage("x", "km", map[string]any{"type": "mystery"}, nil)
	require.NoError(t, channel.Send(ctx, msg))
	assert.NoError(t, m.PollMessages(ctx))
}

func TestInnerEventFallbacks(t *testing.T) {
	event := kg.KnowledgeEvent{
		Action: EventComplexRelationship,
		Data:   map[string]any{"source": "a", "target": "b", "type": "owns"},
	}
	inner := innerEvent(event)
	assert.Equal(t, kg.ActionCreateRelationship, inner.Action)
	assert.Equal(t, kg.RoleKnowledgeManager, inner.Role)
	assert.Equal(t, "a", inner.Source())
}
