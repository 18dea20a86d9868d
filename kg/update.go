package kg

import (
	"fmt"
	"time"
)

// UpdateType classifies why an update was escalated to the coordinator.
type UpdateType string

const (
	UpdateComplexMerge       UpdateType = "complex_merge"
	UpdateConflictResolution UpdateType = "conflict_resolution"
	UpdateValidationFailure  UpdateType = "validation_failure"
	UpdateReasoningRequired  UpdateType = "reasoning_required"
	UpdateBatchUpdate        UpdateType = "batch_update"
	UpdateOntologyUpdate     UpdateType = "ontology_update"
)

// ErrInvalidUpdateType is returned when an update type string is not one
// of the supported escalation classes.
var ErrInvalidUpdateType = fmt.Errorf("kg: invalid update type")

// ParseUpdateType converts a string into an UpdateType.
func ParseUpdateType(s string) (UpdateType, error) {
	switch UpdateType(s) {
	case UpdateComplexMerge, UpdateConflictResolution, UpdateValidationFailure,
		UpdateReasoningRequired, UpdateBatchUpdate, UpdateOntologyUpdate:
		return UpdateType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUpdateType, s)
	}
}

// EntityPayload is the escalation-schema shape of an entity: a "name" key
// plus arbitrary additional properties. The map form is kept because peers
// and HTTP boundaries send free-form JSON objects.
type EntityPayload map[string]any

// Name returns the entity's name, the identity key for escalated writes.
func (p EntityPayload) Name() string {
	n, _ := p["name"].(string)
	return n
}

// RelationshipPayload is the escalation-schema shape of a relationship:
// "source", "target" and "type" keys plus arbitrary additional properties.
type RelationshipPayload map[string]any

// Source returns the relationship's source entity name.
func (p RelationshipPayload) Source() string {
	s, _ := p["source"].(string)
	return s
}

// Target returns the relationship's target entity name.
func (p RelationshipPayload) Target() string {
	t, _ := p["target"].(string)
	return t
}

// Type returns the relationship type, defaulting to "relates_to" when the
// payload omits it.
func (p RelationshipPayload) Type() string {
	if t, ok := p["type"].(string); ok && t != "" {
		return t
	}
	return "relates_to"
}

// UpdateRequest is the escalation envelope a peer sends to the Knowledge
// Manager. It is created once per escalation and immutable thereafter;
// the manager consumes it exactly once.
type UpdateRequest struct {
	// UpdateType classifies the escalation.
	UpdateType UpdateType `json:"update_type"`

	// SourceAgent identifies the escalating agent.
	SourceAgent string `json:"source_agent"`

	// Domain scopes the update; updates to the same domain are serialized
	// through the manager's worker.
	Domain string `json:"domain"`

	// Entities to create or merge.
	Entities []EntityPayload `json:"entities"`

	// Relationships to create.
	Relationships []RelationshipPayload `json:"relationships"`

	// Metadata carries free-form escalation context.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Priority is informational; the manager processes in arrival order.
	Priority int `json:"priority"`

	// RequestID is derived deterministically from update type, domain and
	// timestamp (second resolution).
	RequestID string `json:"request_id"`

	// Timestamp is the escalation creation time.
	Timestamp time.Time `json:"timestamp"`
}

// NewUpdateRequest constructs an escalation envelope with a deterministic
// request ID of the form {domain}_{update_type}_{YYYYMMDD_HHMMSS}.
func NewUpdateRequest(updateType UpdateType, sourceAgent, domain string, entities []EntityPayload, relationships []RelationshipPayload) UpdateRequest {
	now := time.Now().UTC()
	return UpdateRequest{
		UpdateType:    updateType,
		SourceAgent:   sourceAgent,
		Domain:        domain,
		Entities:      entities,
		Relationships: relationships,
		Metadata:      make(map[string]any),
		Priority:      1,
		RequestID:     fmt.Sprintf("%s_%s_%s", domain, updateType, now.Format("20060102_150405")),
		Timestamp:     now,
	}
}

// UpdateResult is the outcome record for a single escalation. It is
// produced exactly once per request and never mutated after return.
type UpdateResult struct {
	Success           bool      `json:"success"`
	RequestID         string    `json:"request_id"`
	NodesCreated      int       `json:"nodes_created"`
	EdgesCreated      int       `json:"edges_created"`
	ConflictsResolved int       `json:"conflicts_resolved"`
	ValidationErrors  []string  `json:"validation_errors"`
	ReasoningApplied  []string  `json:"reasoning_applied"`
	RollbackPerformed bool      `json:"rollback_performed"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
