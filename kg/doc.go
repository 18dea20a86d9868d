// Package kg defines the core data model for knowledge graph coordination.
//
// It contains the types exchanged between agents and the Knowledge Manager:
// roles, knowledge events, escalation requests and results, conflicts,
// validation results, and reasoning outcomes. The package has no behavior
// beyond construction and validation; the engines that operate on these
// types live in the validation, conflict, reasoning, and manager packages.
//
// All types are JSON-serializable so they can cross process boundaries
// (peer mailboxes, an HTTP surface, or a message broker) unchanged.
package kg
