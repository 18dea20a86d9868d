package kg

import "time"

// Inference is a derived fact produced by the reasoning engine, such as
// "this entity has contact info". Confidence is heuristic, in [0, 1].
type Inference struct {
	// Property is the inferred property name.
	Property string `json:"property"`

	// Value is the inferred value.
	Value any `json:"value"`

	// Confidence grades how strongly the pattern supports the inference.
	Confidence float64 `json:"confidence"`

	// Reason explains which pattern fired.
	Reason string `json:"reason"`
}

// ReasoningOutcome collects everything the reasoning engine produced for
// one event: which rules fired, the inferences they made, free-form
// suggestions, and warnings from rules that flagged inconsistencies or
// failed outright.
type ReasoningOutcome struct {
	AppliedRules []string      `json:"applied_rules"`
	Inferences   []Inference   `json:"inferences"`
	Suggestions  []string      `json:"suggestions"`
	Warnings     []string      `json:"warnings"`
	Elapsed      time.Duration `json:"elapsed"`
}

// AdvancedReasoningOutcome is the result of cross-event reasoning over a
// batch: consistency checks (orphaned relationships) and optimization
// suggestions (relationship-type consolidation).
type AdvancedReasoningOutcome struct {
	CrossEventInferences    []Inference `json:"cross_event_inferences"`
	ConsistencyChecks       []string    `json:"consistency_checks"`
	OptimizationSuggestions []string    `json:"optimization_suggestions"`
}
