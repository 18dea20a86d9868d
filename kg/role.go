package kg

import (
	"encoding/json"
	"fmt"
)

// Role identifies the trust level of the agent issuing a knowledge event.
// Every authorization decision in the coordination pipeline is keyed on it.
//
// The set of roles is closed: ParseRole rejects anything outside the four
// constants below, and JSON unmarshaling goes through the same check so a
// payload with an unknown role fails at construction time rather than
// being silently coerced.
type Role string

const (
	// RoleDataArchitect models domains and creates entities directly.
	RoleDataArchitect Role = "data_architect"

	// RoleDataEngineer performs simple entity-level writes.
	RoleDataEngineer Role = "data_engineer"

	// RoleKnowledgeManager is the trusted coordinator. It is the only
	// writer for relationship creation and for batch/ontology changes.
	RoleKnowledgeManager Role = "knowledge_manager"

	// RoleSystemAdmin has the same write permissions as the knowledge
	// manager and exists for operational intervention.
	RoleSystemAdmin Role = "system_admin"
)

// ErrInvalidRole is returned when a role string is not one of the four
// supported roles.
var ErrInvalidRole = fmt.Errorf("kg: invalid role")

// ParseRole converts a string into a Role, returning ErrInvalidRole for
// anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDataArchitect, RoleDataEngineer, RoleKnowledgeManager, RoleSystemAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// IsValid reports whether the role is one of the supported roles.
func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// String returns the wire representation of the role.
func (r Role) String() string {
	return string(r)
}

// UnmarshalJSON validates the role during decoding so that malformed
// payloads fail at the boundary.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
