package kg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpdateRequestID(t *testing.T) {
	req := NewUpdateRequest(UpdateComplexMerge, "data_engineer_1", "sales", nil, nil)

	assert.True(t, strings.HasPrefix(req.RequestID, "sales_complex_merge_"),
		"request ID %q should embed domain and update type", req.RequestID)
	// Trailing component is the UTC timestamp at second resolution.
	suffix := strings.TrimPrefix(req.RequestID, "sales_complex_merge_")
	assert.Len(t, suffix, len("20060102_150405"))
	assert.Equal(t, 1, req.Priority)
	assert.NotNil(t, req.Metadata)
}

func TestParseUpdateType(t *testing.T) {
	got, err := ParseUpdateType("batch_update")
	require.NoError(t, err)
	assert.Equal(t, UpdateBatchUpdate, got)

	_, err = ParseUpdateType("cosmic_update")
	assert.ErrorIs(t, err, ErrInvalidUpdateType)
}

func TestRelationshipPayloadTypeDefault(t *testing.T) {
	rel := RelationshipPayload{"source": "a", "target": "b"}
	assert.Equal(t, "relates_to", rel.Type())

	rel["type"] = "owns"
	assert.Equal(t, "owns", rel.Type())
}

func TestEntityPayloadName(t *testing.T) {
	assert.Equal(t, "Customer1", EntityPayload{"name": "Customer1"}.Name())
	assert.Empty(t, EntityPayload{"name": 7}.Name())
}
