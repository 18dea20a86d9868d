// Package conflict detects structural conflicts in knowledge events and
// plans their resolution.
//
// Conflicts are data, not errors. Detection inspects a graph snapshot for
// duplicate IDs, dangling relationship endpoints, self-referencing edges,
// and malformed properties; the resolver then maps each conflict type to a
// fixed resolution action. Everything auto-resolvable is handled inline,
// the rest is flagged for manual review and the operation proceeds.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/kg"
)

// Resolver detects conflicts against a graph backend and produces
// resolution plans. It is stateless apart from its backend reference and
// safe for concurrent use.
type Resolver struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewResolver creates a resolver bound to the given backend. A nil logger
// defaults to slog.Default.
func NewResolver(b backend.Backend, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{backend: b, logger: logger}
}

// DetectConflicts inspects the event against the current graph state.
// Entity events are checked for duplicate IDs and malformed properties,
// relationship events for missing endpoints, self-references, and
// duplicate edges. Other actions produce no conflicts.
func (r *Resolver) DetectConflicts(ctx context.Context, event kg.KnowledgeEvent) ([]kg.Conflict, error) {
	switch event.Action {
	case kg.ActionCreateEntity:
		return r.detectEntityConflicts(ctx, event)
	case kg.ActionCreateRelationship:
		return r.detectRelationshipConflicts(ctx, event)
	}
	return nil, nil
}

func (r *Resolver) detectEntityConflicts(ctx context.Context, event kg.KnowledgeEvent) ([]kg.Conflict, error) {
	entityID := event.EntityID()
	if entityID == "" {
		return nil, nil
	}

	snapshot, err := r.backend.Query(ctx, fmt.Sprintf("MATCH (n {id: %q}) RETURN n", entityID))
	if err != nil {
		return nil, fmt.Errorf("failed to query backend for entity %s: %w", entityID, err)
	}

	var conflicts []kg.Conflict
	if snapshot.HasNode(entityID) {
		conflicts = append(conflicts, kg.Conflict{
			Type:        kg.ConflictDuplicateEntityID,
			Severity:    kg.SeverityHigh,
			Description: fmt.Sprintf("entity with ID %q already exists", entityID),
			EntityID:    entityID,
			Payload:     map[string]any{"existing_properties": map[string]any(snapshot.Nodes[entityID])},
		})
	}
	conflicts = append(conflicts, detectPropertyConflicts(event.Properties())...)
	return conflicts, nil
}

// detectPropertyConflicts flags malformed keys and null values. Invalid
// keys are medium severity, null values low.
func detectPropertyConflicts(properties map[string]any) []kg.Conflict {
	var conflicts []kg.Conflict
	for key, value := range properties {
		if strings.TrimSpace(key) == "" {
			conflicts = append(conflicts, kg.Conflict{
				Type:        kg.ConflictInvalidProperty,
				Severity:    kg.SeverityMedium,
				Description: fmt.Sprintf("invalid property name: %q", key),
			})
		}
		if value == nil {
			conflicts = append(conflicts, kg.Conflict{
				Type:        kg.ConflictInvalidProperty,
				Severity:    kg.SeverityLow,
				Description: fmt.Sprintf("property %q has null value", key),
			})
		}
	}
	return conflicts
}

func (r *Resolver) detectRelationshipConflicts(ctx context.Context, event kg.KnowledgeEvent) ([]kg.Conflict, error) {
	source, target, relType := event.Source(), event.Target(), event.RelType()
	if source == "" || target == "" || relType == "" {
		return nil, nil
	}

	snapshot, err := r.backend.Query(ctx, fmt.Sprintf("MATCH (a {id: %q})-[r:%s]->(b {id: %q}) RETURN r", source, relType, target))
	if err != nil {
		return nil, fmt.Errorf("failed to query backend for relationship: %w", err)
	}

	var conflicts []kg.Conflict
	if !snapshot.HasNode(source) {
		conflicts = append(conflicts, kg.Conflict{
			Type:        kg.ConflictMissingSourceEntity,
			Severity:    kg.SeverityHigh,
			Description: fmt.Sprintf("source entity %q does not exist", source),
			EntityID:    source,
		})
	}
	if !snapshot.HasNode(target) {
		conflicts = append(conflicts, kg.Conflict{
			Type:        kg.ConflictMissingTargetEntity,
			Severity:    kg.SeverityHigh,
			Description: fmt.Sprintf("target entity %q does not exist", target),
			EntityID:    target,
		})
	}
	if source == target {
		conflicts = append(conflicts, kg.Conflict{
			Type:        kg.ConflictCircularRelationship,
			Severity:    kg.SeverityMedium,
			Description: fmt.Sprintf("circular relationship from %q to itself", source),
			EntityID:    source,
		})
	}
	if snapshot.HasEdge(source, relType, target) {
		conflicts = append(conflicts, kg.Conflict{
			Type:        kg.ConflictDuplicateRelationship,
			Severity:    kg.SeverityLow,
			Description: fmt.Sprintf("relationship %s-[%s]->%s already exists", source, relType, target),
			Source:      source,
			RelType:     relType,
			Target:      target,
		})
	}
	return conflicts, nil
}

// CreateResolutionPlan maps each conflict to its fixed resolution action
// and aggregates whether any of them needs a human. The estimated time is
// informational, two seconds per auto-resolvable conflict.
func (r *Resolver) CreateResolutionPlan(conflicts []kg.Conflict) kg.ResolutionPlan {
	plan := kg.ResolutionPlan{
		ConflictsCount: len(conflicts),
		Resolutions:    make([]kg.Resolution, 0, len(conflicts)),
	}

	autoResolvable := 0
	for _, conflict := range conflicts {
		resolution := resolutionFor(conflict)
		plan.Resolutions = append(plan.Resolutions, resolution)
		if resolution.RequiresManualIntervention {
			plan.RequiresManualIntervention = true
		} else {
			autoResolvable++
		}
	}
	plan.EstimatedResolutionTime = fmt.Sprintf("%ds", autoResolvable*2)
	return plan
}

// resolutionFor maps a conflict type to its fixed action. Unrecognized
// types fall through to manual review.
func resolutionFor(conflict kg.Conflict) kg.Resolution {
	switch conflict.Type {
	case kg.ConflictDuplicateEntityID:
		return kg.Resolution{
			ConflictID:  conflict.EntityID,
			Action:      kg.ResolutionMergeEntities,
			Description: "merge properties from new entity with existing entity",
			Automatic:   true,
		}
	case kg.ConflictMissingSourceEntity, kg.ConflictMissingTargetEntity:
		return kg.Resolution{
			ConflictID:  conflict.EntityID,
			Action:      kg.ResolutionCreateMissingEntity,
			Description: "create missing entity with default properties",
			Automatic:   true,
		}
	case kg.ConflictCircularRelationship:
		return kg.Resolution{
			ConflictID:  conflict.EntityID + "_circular",
			Action:      kg.ResolutionRejectOperation,
			Description: "reject circular relationship creation",
			Automatic:   true,
		}
	case kg.ConflictDuplicateRelationship:
		return kg.Resolution{
			ConflictID:  fmt.Sprintf("%s_%s_%s", conflict.Source, conflict.RelType, conflict.Target),
			Action:      kg.ResolutionSkipDuplicate,
			Description: "skip duplicate relationship creation",
			Automatic:   true,
		}
	case kg.ConflictInvalidProperty:
		return kg.Resolution{
			ConflictID:  "invalid_property",
			Action:      kg.ResolutionSkipDuplicate,
			Description: "drop malformed property before apply",
			Automatic:   true,
		}
	default:
		return kg.Resolution{
			ConflictID:                 "unknown_" + string(conflict.Type),
			Action:                     kg.ResolutionManualReview,
			Description:                fmt.Sprintf("unknown conflict type: %s", conflict.Type),
			RequiresManualIntervention: true,
		}
	}
}

// ApplyAutomaticResolutions walks the conflicts and applies every
// resolution marked automatic, returning the conflict types resolved.
// Resolution here is advisory: it records the decision for the audit
// trail rather than mutating graph data behind the caller's back.
func (r *Resolver) ApplyAutomaticResolutions(ctx context.Context, conflicts []kg.Conflict) []string {
	var resolved []string
	for _, conflict := range conflicts {
		resolution := resolutionFor(conflict)
		if !resolution.Automatic {
			continue
		}
		r.logger.Debug("auto-resolving conflict",
			"type", string(conflict.Type),
			"action", resolution.Action,
			"conflict_id", resolution.ConflictID)
		resolved = append(resolved, string(conflict.Type))
	}
	return resolved
}
