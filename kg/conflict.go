package kg

// ConflictType classifies a structural conflict detected before a graph
// mutation is applied.
type ConflictType string

const (
	ConflictDuplicateEntityID     ConflictType = "duplicate_entity_id"
	ConflictMissingSourceEntity   ConflictType = "missing_source_entity"
	ConflictMissingTargetEntity   ConflictType = "missing_target_entity"
	ConflictCircularRelationship  ConflictType = "circular_relationship"
	ConflictDuplicateRelationship ConflictType = "duplicate_relationship"
	ConflictInvalidProperty       ConflictType = "invalid_property"
)

// Severity grades conflicts and reasoning warnings.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict describes a single detected conflict. Conflicts are data, not
// errors: they are either auto-resolved or surfaced for manual review,
// never silently dropped.
type Conflict struct {
	// Type classifies the conflict.
	Type ConflictType `json:"type"`

	// Severity grades how disruptive the conflict is.
	Severity Severity `json:"severity"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// EntityID names the entity involved, when applicable.
	EntityID string `json:"entity_id,omitempty"`

	// Source, RelType and Target identify the relationship involved,
	// when applicable.
	Source  string `json:"source,omitempty"`
	RelType string `json:"rel_type,omitempty"`
	Target  string `json:"target,omitempty"`

	// Payload carries conflict-specific context, such as the existing
	// properties of a duplicate entity for a later merge.
	Payload map[string]any `json:"payload,omitempty"`
}

// Resolution actions. Each conflict type maps to a fixed action; anything
// unrecognized falls through to manual review.
const (
	ResolutionMergeEntities       = "merge_entities"
	ResolutionCreateMissingEntity = "create_missing_entity"
	ResolutionRejectOperation     = "reject_operation"
	ResolutionSkipDuplicate       = "skip_duplicate"
	ResolutionManualReview        = "manual_review"
)

// Resolution is the planned handling for one conflict.
type Resolution struct {
	// ConflictID identifies the conflict this resolution addresses.
	ConflictID string `json:"conflict_id"`

	// Action is one of the Resolution* constants.
	Action string `json:"action"`

	// Description explains what the action does.
	Description string `json:"description"`

	// RequiresManualIntervention is true when the conflict cannot be
	// resolved automatically.
	RequiresManualIntervention bool `json:"requires_manual_intervention"`

	// Automatic is true when the resolution can be applied without a human.
	Automatic bool `json:"automatic_resolution"`
}

// ResolutionPlan aggregates the resolutions for a set of conflicts.
type ResolutionPlan struct {
	// ConflictsCount is the number of conflicts covered by the plan.
	ConflictsCount int `json:"conflicts_count"`

	// Resolutions holds one entry per conflict, in detection order.
	Resolutions []Resolution `json:"resolutions"`

	// RequiresManualIntervention is true when any resolution needs a human.
	RequiresManualIntervention bool `json:"requires_manual_intervention"`

	// EstimatedResolutionTime is informational only, linear in the number
	// of auto-resolvable conflicts. It is not used for scheduling.
	EstimatedResolutionTime string `json:"estimated_resolution_time"`
}
