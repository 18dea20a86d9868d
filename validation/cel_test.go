package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/kg"
)

func TestCompileRuleEnforcesExpression(t *testing.T) {
	rule, err := CompileRule("no_temp_ids", SeverityError,
		`!(data.id.startsWith("tmp_"))`, "temporary IDs should not be persisted")
	require.NoError(t, err)

	engine := NewEngine()
	engine.AddCustomRule(kg.ActionCreateEntity, rule)

	result := engine.Validate(entityEvent(t, map[string]any{"id": "tmp_42"}, kg.RoleDataEngineer))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "temporary IDs should not be persisted")

	result = engine.Validate(entityEvent(t, map[string]any{"id": "customer_42"}, kg.RoleDataEngineer))
	assert.True(t, result.IsValid)
}

func TestCompileRuleWarningSeverity(t *testing.T) {
	rule, err := CompileRule("prefer_admin", SeverityWarning,
		`role == "system_admin"`, "prefer admin role for this operation")
	require.NoError(t, err)

	outcome := rule.Fn(entityEvent(t, map[string]any{"id": "e1"}, kg.RoleDataEngineer))
	assert.Empty(t, outcome.Errors)
	assert.Contains(t, outcome.Warnings, "prefer admin role for this operation")
}

func TestCompileRuleRejectsInvalidExpression(t *testing.T) {
	_, err := CompileRule("broken", SeverityError, `data.id ==`, "msg")
	assert.Error(t, err)
}

func TestCompileRuleRejectsNonBool(t *testing.T) {
	_, err := CompileRule("not_bool", SeverityError, `action`, "msg")
	assert.Error(t, err)
}
