package kg

import "fmt"

// Well-known event actions. The validation and reasoning engines keep
// their rule tables keyed on these strings; unknown actions simply match
// no rules.
const (
	ActionCreateEntity       = "create_entity"
	ActionCreateRelationship = "create_relationship"
	ActionUpdateEntity       = "update_entity"
	ActionDeleteEntity       = "delete_entity"
)

// KnowledgeEvent describes a single operation to apply to the knowledge
// graph. The Data map carries the arguments for the action: for
// create_entity an "id" key and optional "properties" map, for
// create_relationship the "source", "target" and "type" keys plus optional
// "properties".
//
// Events are constructed by any agent; the role is used by the validation
// engine and the manager to enforce RBAC.
type KnowledgeEvent struct {
	// Action identifies the operation, e.g. "create_entity".
	Action string `json:"action"`

	// Data holds the operation arguments.
	Data map[string]any `json:"data"`

	// Role is the trust level of the issuing agent.
	Role Role `json:"role"`
}

// NewEvent constructs a KnowledgeEvent, rejecting invalid roles at
// construction time. A nil data map is replaced with an empty one so
// rule functions never see nil.
func NewEvent(action string, data map[string]any, role Role) (KnowledgeEvent, error) {
	if !role.IsValid() {
		return KnowledgeEvent{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if data == nil {
		data = make(map[string]any)
	}
	return KnowledgeEvent{Action: action, Data: data, Role: role}, nil
}

// EntityID returns the "id" field of an entity event, or "" if absent.
func (e KnowledgeEvent) EntityID() string {
	id, _ := e.Data["id"].(string)
	return id
}

// Properties returns the "properties" map of the event, or an empty map.
func (e KnowledgeEvent) Properties() map[string]any {
	if props, ok := e.Data["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

// Source returns the "source" field of a relationship event.
func (e KnowledgeEvent) Source() string {
	s, _ := e.Data["source"].(string)
	return s
}

// Target returns the "target" field of a relationship event.
func (e KnowledgeEvent) Target() string {
	t, _ := e.Data["target"].(string)
	return t
}

// RelType returns the "type" field of a relationship event.
func (e KnowledgeEvent) RelType() string {
	t, _ := e.Data["type"].(string)
	return t
}
