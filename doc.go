// Package kgcoord coordinates multi-agent mutations to a shared knowledge
// graph.
//
// Low-trust agents write simple operations (entity creation) directly to
// the graph backend; anything complex — relationship creation, batch
// changes, conflicting IDs, dangling references — is escalated to a
// single trusted coordinator, the Knowledge Manager. The manager runs
// every escalation through a fixed pipeline: validate, detect conflicts,
// resolve, reason, apply, audit, with backend rollback when apply fails
// partway.
//
// # Core Concepts
//
//   - kg: the shared data model — roles, knowledge events, escalation
//     requests and results, conflicts, validation and reasoning outcomes.
//   - backend: the minimal graph store contract plus in-memory and Redis
//     implementations with write-history rollback.
//   - validation: per-action rule tables with RBAC enforcement; custom
//     rules can be compiled from CEL expressions.
//   - conflict: structural conflict detection and fixed resolution plans.
//   - reasoning: priority-ordered symbolic inference over events.
//   - manager: the Knowledge Manager coordinator with its FIFO worker
//     queue, audit log, event-bus subscriptions, and mailbox protocol.
//   - peer: subordinate agents with simple-operations tables that
//     escalate what they may not write themselves.
//   - registry: coordinator discovery, in-memory or etcd-backed.
//
// # Quick Start
//
//	coord, err := kgcoord.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer coord.Shutdown(context.Background())
//
//	req := kg.NewUpdateRequest(kg.UpdateComplexMerge, "data_engineer_1", "sales",
//	    []kg.EntityPayload{{"name": "Customer1", "email": "c1@example.com"}},
//	    []kg.RelationshipPayload{{"source": "Customer1", "target": "Order1", "type": "placed"}},
//	)
//	result, err := coord.Manager().EscalateUpdate(ctx, req)
package kgcoord
