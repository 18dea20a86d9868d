package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/kg"
)

func seedBackend(t *testing.T) *backend.InMemoryBackend {
	t.Helper()
	b := backend.NewInMemoryBackend()
	ctx := context.Background()
	require.NoError(t, b.AddEntity(ctx, "customer_1", map[string]any{"name": "One"}))
	require.NoError(t, b.AddEntity(ctx, "order_1", map[string]any{"amount": 10}))
	require.NoError(t, b.AddRelationship(ctx, "customer_1", "placed", "order_1", nil))
	return b
}

func TestDetectDuplicateEntityID(t *testing.T) {
	resolver := NewResolver(seedBackend(t), nil)
	event, err := kg.NewEvent(kg.ActionCreateEntity,
		map[string]any{"id": "customer_1"}, kg.RoleKnowledgeManager)
	require.NoError(t, err)

	conflicts, derr := resolver.DetectConflicts(context.Background(), event)
	require.NoError(t, derr)
	require.Len(t, conflicts, 1, "duplicate ID must yield exactly one conflict")
	assert.Equal(t, kg.ConflictDuplicateEntityID, conflicts[0].Type)
	assert.Equal(t, kg.SeverityHigh, conflicts[0].Severity)
	assert.Equal(t, "customer_1", conflicts[0].EntityID)
	assert.NotNil(t, conflicts[0].Payload["existing_properties"])
}

func TestDetectNoConflictForFreshEntity(t *testing.T) {
	resolver := NewResolver(seedBackend(t), nil)
	event, err := kg.NewEvent(kg.ActionCreateEntity,
		map[string]any{"id": "customer_2"}, kg.RoleKnowledgeManager)
	require.NoError(t, err)

	conflicts, derr := resolver.DetectConflicts(context.Background(), event)
	require.NoError(t, derr)
	assert.Empty(t, conflicts)
}

func TestDetectPropertyConflicts(t *testing.T) {
	resolver := NewResolver(seedBackend(t), nil)
	event, err := kg.NewEvent(kg.ActionCreateEntity, map[string]any{
		"id": "fresh",
		"properties": map[string]any{
			"  ":   "blank key",
			"note": nil,
		},
	}, kg.RoleKnowledgeManager)
	require.NoError(t, err)

	conflicts, derr := resolver.DetectConflicts(context.Background(), event)
	require.NoError(t, derr)
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		assert.Equal(t, kg.ConflictInvalidProperty, c.Type)
	}
}

func TestDetectRelationshipConflicts(t *testing.T) {
	resolver := NewResolver(seedBackend(t), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		data map[string]any
		want []kg.ConflictType
	}{
		{
			"missing endpoints",
			map[string]any{"source": "ghost_a", "target": "ghost_b", "type": "owns"},
			[]kg.ConflictType{kg.ConflictMissingSourceEntity, kg.ConflictMissingTargetEntity},
		},
		{
			"circular",
			map[string]any{"source": "customer_1", "target": "customer_1", "type": "knows"},
			[]kg.ConflictType{kg.ConflictCircularRelationship},
		},
		{
			"duplicate edge",
			map[string]any{"source": "customer_1", "target": "order_1", "type": "placed"},
			[]kg.ConflictType{kg.ConflictDuplicateRelationship},
		},
		{
			"clean edge",
			map[string]any{"source": "order_1", "target": "customer_1", "type": "placed_by"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := kg.NewEvent(kg.ActionCreateRelationship, tt.data, kg.RoleKnowledgeManager)
			require.NoError(t, err)

			conflicts, derr := resolver.DetectConflicts(ctx, event)
			require.NoError(t, derr)

			var got []kg.ConflictType
			for _, c := range conflicts {
				got = append(got, c.Type)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestCreateResolutionPlanActions(t *testing.T) {
	resolver := NewResolver(backend.NewInMemoryBackend(), nil)

	conflicts := []kg.Conflict{
		{Type: kg.ConflictDuplicateEntityID, EntityID: "dup"},
		{Type: kg.ConflictMissingSourceEntity, EntityID: "ghost"},
		{Type: kg.ConflictCircularRelationship, EntityID: "self"},
		{Type: kg.ConflictDuplicateRelationship, Source: "a", RelType: "owns", Target: "b"},
		{Type: kg.ConflictType("unheard_of")},
	}
	plan := resolver.CreateResolutionPlan(conflicts)

	assert.Equal(t, 5, plan.ConflictsCount)
	require.Len(t, plan.Resolutions, 5)
	assert.Equal(t, kg.ResolutionMergeEntities, plan.Resolutions[0].Action)
	assert.Equal(t, kg.ResolutionCreateMissingEntity, plan.Resolutions[1].Action)
	assert.Equal(t, kg.ResolutionRejectOperation, plan.Resolutions[2].Action)
	assert.Equal(t, "self_circular", plan.Resolutions[2].ConflictID)
	assert.Equal(t, kg.ResolutionSkipDuplicate, plan.Resolutions[3].Action)
	assert.Equal(t, "a_owns_b", plan.Resolutions[3].ConflictID)
	assert.Equal(t, kg.ResolutionManualReview, plan.Resolutions[4].Action)

	assert.True(t, plan.RequiresManualIntervention)
	// Four auto-resolvable conflicts at two seconds each.
	assert.Equal(t, "8s", plan.EstimatedResolutionTime)
}

func TestApplyAutomaticResolutionsSkipsManual(t *testing.T) {
	resolver := NewResolver(backend.NewInMemoryBackend(), nil)

	resolved := resolver.ApplyAutomaticResolutions(context.Background(), []kg.Conflict{
		{Type: kg.ConflictDuplicateEntityID, EntityID: "dup"},
		{Type: kg.ConflictType("unheard_of")},
	})
	assert.Equal(t, []string{"duplicate_entity_id"}, resolved)
}
