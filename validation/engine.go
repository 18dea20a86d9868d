// Package validation evaluates knowledge events against a typed rule
// table before they reach the graph.
//
// Rules are grouped by event action and tagged with a severity: a rule
// that reports errors blocks the event, a rule that only reports warnings
// annotates it. The engine is stateless apart from its rule table and is
// safe to share across goroutines; custom rules can be registered at
// runtime, including rules compiled from CEL expressions.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knograph/kgcoord/kg"
)

// Severity tags for rules.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// RuleOutcome is the result of evaluating one rule against one event.
// A rule with a non-empty Errors slice fails the event.
type RuleOutcome struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the rule passed (no errors; warnings are fine).
func (o RuleOutcome) Valid() bool {
	return len(o.Errors) == 0
}

// RuleFunc evaluates an event. A panic inside a rule is recovered by the
// engine and converted into an error outcome for that rule.
type RuleFunc func(event kg.KnowledgeEvent) RuleOutcome

// NamedRule couples a rule function with its name and severity tag.
type NamedRule struct {
	Name     string
	Severity string
	Fn       RuleFunc
}

// Engine validates knowledge events using per-action rule tables.
type Engine struct {
	mu    sync.RWMutex
	rules map[string][]NamedRule
}

// NewEngine creates an engine loaded with the default rules for
// create_entity, create_relationship, and delete_entity.
func NewEngine() *Engine {
	e := &Engine{rules: make(map[string][]NamedRule)}

	e.AddCustomRule(kg.ActionCreateEntity, NamedRule{Name: "required_id", Severity: SeverityError, Fn: validateRequiredID})
	e.AddCustomRule(kg.ActionCreateEntity, NamedRule{Name: "id_format", Severity: SeverityWarning, Fn: validateIDFormat})
	e.AddCustomRule(kg.ActionCreateEntity, NamedRule{Name: "properties_structure", Severity: SeverityWarning, Fn: validatePropertiesStructure})
	e.AddCustomRule(kg.ActionCreateEntity, NamedRule{Name: "role_permission", Severity: SeverityError, Fn: validateRolePermission})

	e.AddCustomRule(kg.ActionCreateRelationship, NamedRule{Name: "required_fields", Severity: SeverityError, Fn: validateRequiredRelationshipFields})
	e.AddCustomRule(kg.ActionCreateRelationship, NamedRule{Name: "relationship_type", Severity: SeverityWarning, Fn: validateRelationshipType})
	e.AddCustomRule(kg.ActionCreateRelationship, NamedRule{Name: "role_permission", Severity: SeverityError, Fn: validateRolePermission})

	e.AddCustomRule(kg.ActionDeleteEntity, NamedRule{Name: "role_permission", Severity: SeverityError, Fn: validateRolePermission})

	return e
}

// Validate runs every rule registered for the event's action and
// aggregates the outcomes. Actions without rules validate trivially.
func (e *Engine) Validate(event kg.KnowledgeEvent) kg.ValidationResult {
	e.mu.RLock()
	rules := make([]NamedRule, len(e.rules[event.Action]))
	copy(rules, e.rules[event.Action])
	e.mu.RUnlock()

	result := kg.ValidationResult{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}

	for _, rule := range rules {
		outcome := runRule(rule, event)
		if !outcome.Valid() {
			result.IsValid = false
			result.Errors = append(result.Errors, outcome.Errors...)
		}
		result.Warnings = append(result.Warnings, outcome.Warnings...)
		result.Details = append(result.Details, kg.RuleDetail{
			Rule:     rule.Name,
			Severity: rule.Severity,
			Passed:   outcome.Valid(),
			Warnings: outcome.Warnings,
			Errors:   outcome.Errors,
		})
	}
	return result
}

// ValidateBatch validates each event independently and aggregates
// valid/invalid counts. It never short-circuits: every event is checked
// even after the first failure.
func (e *Engine) ValidateBatch(events []kg.KnowledgeEvent) kg.BatchValidationResult {
	batch := kg.BatchValidationResult{
		IsValid:     true,
		TotalEvents: len(events),
	}
	for _, event := range events {
		result := e.Validate(event)
		batch.Results = append(batch.Results, result)
		if result.IsValid {
			batch.ValidEvents++
		} else {
			batch.InvalidEvents++
			batch.IsValid = false
		}
	}
	return batch
}

// AddCustomRule appends a rule to the action's table. Rules run in
// registration order.
func (e *Engine) AddCustomRule(action string, rule NamedRule) {
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

// runRule executes a rule, converting a panic into an error outcome so a
// misbehaving rule cannot abort validation of the event.
func runRule(rule NamedRule, event kg.KnowledgeEvent) (outcome RuleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = RuleOutcome{
				Errors: []string{fmt.Sprintf("validation rule %q failed: %v", rule.Name, r)},
			}
		}
	}()
	return rule.Fn(event)
}

// rolePermissions is the authoritative RBAC table. Entity creation is
// permitted to every role; relationship creation and entity deletion are
// restricted to the knowledge manager and system admin. This is the
// coordinator-side half of the two-tier write policy: peers write entities
// directly and escalate everything else.
var rolePermissions = map[string]map[kg.Role]bool{
	kg.ActionCreateEntity: {
		kg.RoleDataArchitect:    true,
		kg.RoleDataEngineer:     true,
		kg.RoleKnowledgeManager: true,
		kg.RoleSystemAdmin:      true,
	},
	kg.ActionCreateRelationship: {
		kg.RoleKnowledgeManager: true,
		kg.RoleSystemAdmin:      true,
	},
	kg.ActionDeleteEntity: {
		kg.RoleKnowledgeManager: true,
		kg.RoleSystemAdmin:      true,
	},
}

// RoleAllowed reports whether the role may perform the action according
// to the RBAC table. Unknown actions are denied.
func RoleAllowed(action string, role kg.Role) bool {
	return rolePermissions[action][role]
}

func validateRolePermission(event kg.KnowledgeEvent) RuleOutcome {
	if !RoleAllowed(event.Action, event.Role) {
		return RuleOutcome{
			Errors: []string{fmt.Sprintf("role %q is not allowed to perform action %q", event.Role, event.Action)},
		}
	}
	return RuleOutcome{}
}

func validateRequiredID(event kg.KnowledgeEvent) RuleOutcome {
	raw, ok := event.Data["id"]
	if !ok || raw == nil {
		return RuleOutcome{Errors: []string{"entity ID is required for create_entity operation"}}
	}
	id, ok := raw.(string)
	if !ok {
		return RuleOutcome{Errors: []string{"entity ID must be a string"}}
	}
	if id == "" {
		return RuleOutcome{Errors: []string{"entity ID is required for create_entity operation"}}
	}
	return RuleOutcome{}
}

// idSpecialChars are characters that commonly break downstream query
// languages or markup contexts.
const idSpecialChars = `<>"'&|;()[]{}`

func validateIDFormat(event kg.KnowledgeEvent) RuleOutcome {
	id := event.EntityID()
	var warnings []string

	if len(id) > 100 {
		warnings = append(warnings, "entity ID is very long (>100 characters)")
	}
	if strings.Contains(id, " ") {
		warnings = append(warnings, "entity ID contains spaces - consider underscores or hyphens")
	}
	switch strings.ToLower(id) {
	case "null", "none", "undefined", "":
		warnings = append(warnings, "entity ID appears to be empty or invalid")
	}
	if strings.ContainsAny(id, idSpecialChars) {
		warnings = append(warnings, "entity ID contains special characters that might cause issues")
	}
	return RuleOutcome{Warnings: warnings}
}

// reservedPropertyNames conflict with system properties in common graph
// stores.
var reservedPropertyNames = map[string]bool{
	"id": true, "_id": true, "type": true, "_type": true, "label": true, "_label": true,
}

func validatePropertiesStructure(event kg.KnowledgeEvent) RuleOutcome {
	raw, ok := event.Data["properties"]
	if !ok || raw == nil {
		return RuleOutcome{}
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return RuleOutcome{Errors: []string{"properties must be a map"}}
	}

	var warnings []string
	for key, value := range props {
		if strings.TrimSpace(key) == "" {
			warnings = append(warnings, "empty property key found")
			continue
		}
		if reservedPropertyNames[strings.ToLower(key)] {
			warnings = append(warnings, fmt.Sprintf("property key %q might conflict with system properties", key))
		}
		if value == nil {
			warnings = append(warnings, fmt.Sprintf("property %q has null value", key))
		} else if oversized(value) {
			warnings = append(warnings, fmt.Sprintf("property %q has very large value (>1000 characters)", key))
		}
	}
	return RuleOutcome{Warnings: warnings}
}

// oversized reports whether a composite value serializes to more than
// 1000 characters.
func oversized(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return len(fmt.Sprint(value)) > 1000
	}
	return false
}

func validateRequiredRelationshipFields(event kg.KnowledgeEvent) RuleOutcome {
	var missing []string
	for _, field := range []string{"source", "target", "type"} {
		if s, _ := event.Data[field].(string); s == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return RuleOutcome{Errors: []string{fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))}}
	}
	return RuleOutcome{}
}

// genericRelationshipTypes carry so little meaning that they are worth
// flagging.
var genericRelationshipTypes = map[string]bool{
	"relates": true, "related": true, "connection": true, "link": true,
}

func validateRelationshipType(event kg.KnowledgeEvent) RuleOutcome {
	raw, ok := event.Data["type"]
	if !ok {
		return RuleOutcome{}
	}
	relType, ok := raw.(string)
	if !ok {
		return RuleOutcome{Errors: []string{"relationship type must be a string"}}
	}

	var warnings []string
	if len(relType) > 50 {
		warnings = append(warnings, "relationship type is very long (>50 characters)")
	}
	if strings.Contains(relType, " ") {
		warnings = append(warnings, "relationship type contains spaces - consider underscores or hyphens")
	}
	if genericRelationshipTypes[strings.ToLower(relType)] {
		warnings = append(warnings, "relationship type is very generic - consider a more specific type")
	}
	return RuleOutcome{Warnings: warnings}
}
