// Package reasoning applies symbolic inference rules to knowledge events.
//
// Rules are grouped by event action and run in priority order (high,
// medium, low). Each rule inspects the event and may contribute
// inferences, suggestions, or warnings; a rule that panics is downgraded
// to a warning so one bad rule never blocks the pipeline. Cross-event
// reasoning over batches detects orphaned relationships and suggests
// schema consolidation.
package reasoning

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/knograph/kgcoord/kg"
)

// Rule priorities, in execution order.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var priorityOrder = map[string]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// RuleResult carries what one rule produced. A rule that produced nothing
// returns the zero value and is not counted as applied.
type RuleResult struct {
	Inferences  []kg.Inference
	Suggestions []string
	Warnings    []string
}

func (r RuleResult) empty() bool {
	return len(r.Inferences) == 0 && len(r.Suggestions) == 0 && len(r.Warnings) == 0
}

// RuleFunc inspects an event and derives facts from it.
type RuleFunc func(event kg.KnowledgeEvent) RuleResult

// Rule is a named, prioritized reasoning rule.
type Rule struct {
	Name     string
	Priority string
	Fn       RuleFunc
}

// Engine runs reasoning rules against knowledge events.
type Engine struct {
	mu    sync.RWMutex
	rules map[string][]Rule
}

// NewEngine creates an engine loaded with the default rule set:
// property inference, entity classification, and relationship suggestion
// for entity creation; logical validation, inverse suggestion, and
// transitive closure for relationship creation.
func NewEngine() *Engine {
	e := &Engine{rules: make(map[string][]Rule)}

	e.AddRule(kg.ActionCreateEntity, Rule{Name: "property_inference", Priority: PriorityHigh, Fn: inferProperties})
	e.AddRule(kg.ActionCreateEntity, Rule{Name: "entity_classification", Priority: PriorityMedium, Fn: classifyEntity})
	e.AddRule(kg.ActionCreateEntity, Rule{Name: "relationship_suggestion", Priority: PriorityLow, Fn: suggestRelationships})

	e.AddRule(kg.ActionCreateRelationship, Rule{Name: "relationship_validation", Priority: PriorityHigh, Fn: validateRelationshipLogic})
	e.AddRule(kg.ActionCreateRelationship, Rule{Name: "inverse_relationship", Priority: PriorityMedium, Fn: suggestInverseRelationship})
	e.AddRule(kg.ActionCreateRelationship, Rule{Name: "transitive_closure", Priority: PriorityLow, Fn: applyTransitiveClosure})

	return e
}

// Apply runs the rules registered for the event's action in priority
// order and aggregates their output. A rule that panics contributes a
// warning of the form `<rule> failed: <reason>` instead of aborting.
func (e *Engine) Apply(event kg.KnowledgeEvent) kg.ReasoningOutcome {
	start := time.Now()

	e.mu.RLock()
	rules := make([]Rule, len(e.rules[event.Action]))
	copy(rules, e.rules[event.Action])
	e.mu.RUnlock()

	sort.SliceStable(rules, func(i, j int) bool {
		return priorityRank(rules[i].Priority) < priorityRank(rules[j].Priority)
	})

	outcome := kg.ReasoningOutcome{
		AppliedRules: []string{},
		Inferences:   []kg.Inference{},
		Suggestions:  []string{},
		Warnings:     []string{},
	}
	for _, rule := range rules {
		result, err := runRule(rule, event)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, err.Error())
			continue
		}
		if result.empty() {
			continue
		}
		outcome.AppliedRules = append(outcome.AppliedRules, rule.Name)
		outcome.Inferences = append(outcome.Inferences, result.Inferences...)
		outcome.Suggestions = append(outcome.Suggestions, result.Suggestions...)
		outcome.Warnings = append(outcome.Warnings, result.Warnings...)
	}

	outcome.Elapsed = time.Since(start)
	return outcome
}

// ApplyAdvanced reasons across a batch of events: relationships whose
// endpoints are neither in the batch nor guaranteed elsewhere are flagged
// as orphaned, and a batch introducing more than ten distinct relationship
// types earns a consolidation suggestion.
func (e *Engine) ApplyAdvanced(events []kg.KnowledgeEvent) kg.AdvancedReasoningOutcome {
	outcome := kg.AdvancedReasoningOutcome{
		CrossEventInferences:    []kg.Inference{},
		ConsistencyChecks:       []string{},
		OptimizationSuggestions: []string{},
	}

	entityIDs := make(map[string]bool)
	relTypes := make(map[string]bool)
	for _, event := range events {
		switch event.Action {
		case kg.ActionCreateEntity:
			if id := event.EntityID(); id != "" {
				entityIDs[id] = true
			}
		case kg.ActionCreateRelationship:
			if relType := event.RelType(); relType != "" {
				relTypes[relType] = true
			}
		}
	}

	for _, event := range events {
		if event.Action != kg.ActionCreateRelationship {
			continue
		}
		if source := event.Source(); source != "" && !entityIDs[source] {
			outcome.ConsistencyChecks = append(outcome.ConsistencyChecks,
				fmt.Sprintf("relationship source %q has no corresponding entity", source))
		}
		if target := event.Target(); target != "" && !entityIDs[target] {
			outcome.ConsistencyChecks = append(outcome.ConsistencyChecks,
				fmt.Sprintf("relationship target %q has no corresponding entity", target))
		}
	}

	if len(relTypes) > 10 {
		outcome.OptimizationSuggestions = append(outcome.OptimizationSuggestions,
			"consider consolidating similar relationship types")
	}
	return outcome
}

// AddRule registers a rule for an action. Rules with equal priority run
// in registration order.
func (e *Engine) AddRule(action string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[action] = append(e.rules[action], rule)
}

// RemoveRule removes the first rule with the given name from the action's
// table, returning false if no such rule exists.
func (e *Engine) RemoveRule(action, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rules := e.rules[action]
	for i, rule := range rules {
		if rule.Name == name {
			e.rules[action] = append(rules[:i], rules[i+1:]...)
			return true
		}
	}
	return false
}

func priorityRank(priority string) int {
	if rank, ok := priorityOrder[priority]; ok {
		return rank
	}
	return len(priorityOrder)
}

func runRule(rule Rule, event kg.KnowledgeEvent) (result RuleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = RuleResult{}
			err = fmt.Errorf("reasoning rule %q failed: %v", rule.Name, r)
		}
	}()
	return rule.Fn(event), nil
}

// inferProperties derives entity properties from ID patterns and from
// other properties already present.
func inferProperties(event kg.KnowledgeEvent) RuleResult {
	entityID := strings.ToLower(event.EntityID())
	properties := event.Properties()
	var inferences []kg.Inference

	if entityID != "" {
		if strings.HasSuffix(entityID, "_id") || strings.HasSuffix(entityID, "id") {
			inferences = append(inferences, kg.Inference{
				Property:   "entity_type",
				Value:      "identifier",
				Confidence: 0.8,
				Reason:     "ID pattern suggests identifier entity",
			})
		}
		if containsAny(entityID, "user", "customer", "person") {
			inferences = append(inferences, kg.Inference{
				Property:   "entity_type",
				Value:      "person",
				Confidence: 0.7,
				Reason:     "ID contains person-related keywords",
			})
		}
		if containsAny(entityID, "order", "transaction", "purchase") {
			inferences = append(inferences, kg.Inference{
				Property:   "entity_type",
				Value:      "transaction",
				Confidence: 0.7,
				Reason:     "ID contains transaction-related keywords",
			})
		}
	}

	if _, ok := properties["email"]; ok {
		inferences = append(inferences, kg.Inference{
			Property:   "has_contact_info",
			Value:      true,
			Confidence: 0.9,
			Reason:     "entity has email property",
		})
	}
	if _, ok := properties["created_date"]; ok {
		inferences = append(inferences, kg.Inference{
			Property:   "is_temporal",
			Value:      true,
			Confidence: 0.8,
			Reason:     "entity has temporal properties",
		})
	}
	return RuleResult{Inferences: inferences}
}

// classifyEntity suggests a classification based on property patterns.
func classifyEntity(event kg.KnowledgeEvent) RuleResult {
	properties := event.Properties()
	var suggestions []string

	_, hasName := properties["name"]
	_, hasEmail := properties["email"]
	if hasName && hasEmail {
		suggestions = append(suggestions, "classify as person (confidence 0.8): has name and email properties")
	}
	_, hasAmount := properties["amount"]
	_, hasPrice := properties["price"]
	if hasAmount || hasPrice {
		suggestions = append(suggestions, "classify as financial (confidence 0.7): has financial properties")
	}
	_, hasStatus := properties["status"]
	_, hasCreated := properties["created_date"]
	if hasStatus && hasCreated {
		suggestions = append(suggestions, "classify as process (confidence 0.6): has status and temporal properties")
	}
	return RuleResult{Suggestions: suggestions}
}

// suggestRelationships proposes edges the entity will likely need.
func suggestRelationships(event kg.KnowledgeEvent) RuleResult {
	properties := event.Properties()
	var suggestions []string

	if _, ok := properties["email"]; ok {
		suggestions = append(suggestions, "suggest HAS_EMAIL relationship to email_* (confidence 0.7): entity has email property")
	}
	if _, ok := properties["created_date"]; ok {
		suggestions = append(suggestions, "suggest CREATED_ON relationship to date_* (confidence 0.6): entity has creation date")
	}
	return RuleResult{Suggestions: suggestions}
}

// taxonomicTypes are relationship types where self-reference is a logical
// contradiction.
var taxonomicTypes = map[string]bool{
	"is_a": true, "instance_of": true, "subclass_of": true,
}

// pascalCaseTypes are the types held to the PascalCase naming convention.
var pascalCaseTypes = map[string]bool{
	"is_a": true, "instance_of": true,
}

// validateRelationshipLogic flags logical inconsistencies in a proposed
// relationship.
func validateRelationshipLogic(event kg.KnowledgeEvent) RuleResult {
	source, target, relType := event.Source(), event.Target(), event.RelType()
	var warnings []string

	if source == target && taxonomicTypes[strings.ToLower(relType)] {
		warnings = append(warnings, "entity cannot be a subclass or instance of itself")
	}
	if pascalCaseTypes[strings.ToLower(relType)] && !unicode.IsUpper(rune(relType[0])) {
		warnings = append(warnings, "taxonomic relationships should use PascalCase")
	}
	return RuleResult{Warnings: warnings}
}

// inversePatterns maps relationship types to their standard inverses.
var inversePatterns = map[string]string{
	"is_a":       "has_instance",
	"has_part":   "part_of",
	"owns":       "owned_by",
	"manages":    "managed_by",
	"reports_to": "has_subordinate",
}

func suggestInverseRelationship(event kg.KnowledgeEvent) RuleResult {
	relType := event.RelType()
	inverse, ok := inversePatterns[relType]
	if !ok {
		return RuleResult{}
	}
	return RuleResult{Suggestions: []string{
		fmt.Sprintf("suggest inverse relationship %q (confidence 0.8): standard inverse of %q", inverse, relType),
	}}
}

// transitiveTypes are relationship types that compose transitively.
var transitiveTypes = map[string]bool{
	"is_a": true, "subclass_of": true, "part_of": true, "contains": true,
}

func applyTransitiveClosure(event kg.KnowledgeEvent) RuleResult {
	relType := event.RelType()
	if !transitiveTypes[relType] {
		return RuleResult{}
	}
	return RuleResult{Suggestions: []string{
		fmt.Sprintf("transitive closure applies (confidence 0.9): %q is a transitive relationship", relType),
	}}
}

func containsAny(s string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
