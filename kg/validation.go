package kg

// RuleDetail records the outcome of a single validation rule.
type RuleDetail struct {
	// Rule is the rule name.
	Rule string `json:"rule"`

	// Severity is the rule's configured severity ("error" or "warning").
	Severity string `json:"severity"`

	// Passed is false when the rule produced errors.
	Passed bool `json:"passed"`

	// Warnings produced by this rule.
	Warnings []string `json:"warnings,omitempty"`

	// Errors produced by this rule.
	Errors []string `json:"errors,omitempty"`
}

// ValidationResult is the aggregate verdict for one event. IsValid is the
// AND over error-severity rule outcomes; warnings never flip the verdict.
type ValidationResult struct {
	IsValid  bool         `json:"is_valid"`
	Errors   []string     `json:"errors"`
	Warnings []string     `json:"warnings"`
	Details  []RuleDetail `json:"validation_details"`
}

// BatchValidationResult aggregates per-event validation outcomes for a
// batch without short-circuiting.
type BatchValidationResult struct {
	IsValid       bool `json:"is_valid"`
	TotalEvents   int  `json:"total_events"`
	ValidEvents   int  `json:"valid_events"`
	InvalidEvents int  `json:"invalid_events"`

	// Results holds the per-event verdicts, in input order.
	Results []ValidationResult `json:"event_results"`
}
