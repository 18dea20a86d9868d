package kg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"data_architect", RoleDataArchitect, false},
		{"data_engineer", RoleDataEngineer, false},
		{"knowledge_manager", RoleKnowledgeManager, false},
		{"system_admin", RoleSystemAdmin, false},
		{"super_admin", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleUnmarshalJSONRejectsUnknown(t *testing.T) {
	var role Role
	err := json.Unmarshal([]byte(`"intern"`), &role)
	assert.ErrorIs(t, err, ErrInvalidRole)

	require.NoError(t, json.Unmarshal([]byte(`"system_admin"`), &role))
	assert.Equal(t, RoleSystemAdmin, role)
}

func TestNewEventRejectsInvalidRole(t *testing.T) {
	_, err := NewEvent(ActionCreateEntity, map[string]any{"id": "x"}, Role("nobody"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestNewEventReplacesNilData(t *testing.T) {
	event, err := NewEvent(ActionCreateEntity, nil, RoleDataEngineer)
	require.NoError(t, err)
	assert.NotNil(t, event.Data)
	assert.Empty(t, event.EntityID())
	assert.NotNil(t, event.Properties())
}
