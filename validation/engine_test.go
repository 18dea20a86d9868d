package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/kg"
)

func entityEvent(t *testing.T, data map[string]any, role kg.Role) kg.KnowledgeEvent {
	t.Helper()
	event, err := kg.NewEvent(kg.ActionCreateEntity, data, role)
	require.NoError(t, err)
	return event
}

func relationshipEvent(t *testing.T, data map[string]any, role kg.Role) kg.KnowledgeEvent {
	t.Helper()
	event, err := kg.NewEvent(kg.ActionCreateRelationship, data, role)
	require.NoError(t, err)
	return event
}

func TestValidateEntityRequiresID(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(entityEvent(t, map[string]any{}, kg.RoleDataEngineer))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "entity ID is required for create_entity operation")
}

func TestValidateEntityWarningsDoNotFlipVerdict(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(entityEvent(t, map[string]any{
		"id": "customer record 1",
		"properties": map[string]any{
			"label": "x",
			"note":  nil,
		},
	}, kg.RoleDataEngineer))

	assert.True(t, result.IsValid)
	assert.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings, "entity ID contains spaces - consider underscores or hyphens")
	assert.Contains(t, result.Warnings, `property key "label" might conflict with system properties`)
	assert.Contains(t, result.Warnings, `property "note" has null value`)
}

func TestValidateRolePermissions(t *testing.T) {
	engine := NewEngine()
	relData := map[string]any{"source": "a", "target": "b", "type": "owns"}

	tests := []struct {
		name  string
		event kg.KnowledgeEvent
		valid bool
	}{
		{"engineer creates entity", entityEvent(t, map[string]any{"id": "e1"}, kg.RoleDataEngineer), true},
		{"architect creates entity", entityEvent(t, map[string]any{"id": "e2"}, kg.RoleDataArchitect), true},
		{"engineer creates relationship", relationshipEvent(t, relData, kg.RoleDataEngineer), false},
		{"architect creates relationship", relationshipEvent(t, relData, kg.RoleDataArchitect), false},
		{"manager creates relationship", relationshipEvent(t, relData, kg.RoleKnowledgeManager), true},
		{"admin creates relationship", relationshipEvent(t, relData, kg.RoleSystemAdmin), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Validate(tt.event)
			assert.Equal(t, tt.valid, result.IsValid, "errors: %v", result.Errors)
		})
	}
}

func TestValidateRelationshipRequiredFields(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(relationshipEvent(t, map[string]any{"source": "a"}, kg.RoleKnowledgeManager))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "missing required fields: target, type")
}

func TestValidateRelationshipTypeWarnings(t *testing.T) {
	engine := NewEngine()

	result := engine.Validate(relationshipEvent(t, map[string]any{
		"source": "a", "target": "b", "type": "related",
	}, kg.RoleKnowledgeManager))

	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "relationship type is very generic - consider a more specific type")
}

func TestValidateBatchDoesNotShortCircuit(t *testing.T) {
	engine := NewEngine()

	batch := engine.ValidateBatch([]kg.KnowledgeEvent{
		entityEvent(t, map[string]any{}, kg.RoleDataEngineer),
		entityEvent(t, map[string]any{"id": "ok_1"}, kg.RoleDataEngineer),
		entityEvent(t, map[string]any{}, kg.RoleDataEngineer),
	})

	assert.False(t, batch.IsValid)
	assert.Equal(t, 3, batch.TotalEvents)
	assert.Equal(t, 1, batch.ValidEvents)
	assert.Equal(t, 2, batch.InvalidEvents)
	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[1].IsValid)
}

func TestPanickingRuleBecomesError(t *testing.T) {
	engine := NewEngine()
	engine.AddCustomRule(kg.ActionCreateEntity, NamedRule{
		Name:     "explosive",
		Severity: SeverityError,
		Fn: func(event kg.KnowledgeEvent) RuleOutcome {
			panic("kaboom")
		},
	})

	result := engine.Validate(entityEvent(t, map[string]any{"id": "e1"}, kg.RoleDataEngineer))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, `validation rule "explosive" failed: kaboom`)
}

func TestAddAndRemoveCustomRule(t *testing.T) {
	engine := NewEngine()
	engine.AddCustomRule(kg.ActionCreateEntity, NamedRule{
		Name:     "forbid_tmp",
		Severity: SeverityError,
		Fn: func(event kg.KnowledgeEvent) RuleOutcome {
			if event.EntityID() == "tmp" {
				return RuleOutcome{Errors: []string{"tmp is reserved"}}
			}
			return RuleOutcome{}
		},
	})

	result := engine.Validate(entityEvent(t, map[string]any{"id": "tmp"}, kg.RoleDataEngineer))
	assert.False(t, result.IsValid)

	assert.True(t, engine.RemoveRule(kg.ActionCreateEntity, "forbid_tmp"))
	assert.False(t, engine.RemoveRule(kg.ActionCreateEntity, "forbid_tmp"))

	result = engine.Validate(entityEvent(t, map[string]any{"id": "tmp"}, kg.RoleDataEngineer))
	assert.True(t, result.IsValid)
}

func TestRoleAllowedUnknownActionDenied(t *testing.T) {
	assert.False(t, RoleAllowed("drop_graph", kg.RoleSystemAdmin))
}
