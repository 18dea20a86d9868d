// Package audit records the outcome of every coordinated graph update.
//
// The log is append-only and ordered by processing time at the
// coordinator: exactly one entry per request that entered the queue,
// whether it committed, rolled back, or was rejected.
package audit

import (
	"sync"
	"time"

	"github.com/knograph/kgcoord/kg"
)

// Entry is one audit record.
type Entry struct {
	// Timestamp is the audit time, not the request time.
	Timestamp time.Time `json:"timestamp"`

	// RequestID identifies the escalation request.
	RequestID string `json:"request_id"`

	// SourceAgent is the agent that issued the request.
	SourceAgent string `json:"source_agent"`

	// UpdateType classifies the escalation.
	UpdateType kg.UpdateType `json:"update_type"`

	// Success reports whether the request committed.
	Success bool `json:"success"`

	// NodesCreated and EdgesCreated count applied writes.
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
}

// Report summarizes the log for operational reporting.
type Report struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	FailedRequests     int     `json:"failed_requests"`
	TotalNodesCreated  int     `json:"total_nodes_created"`
	TotalEdgesCreated  int     `json:"total_edges_created"`
	SuccessRate        float64 `json:"success_rate"`
}

// Log is a thread-safe append-only audit log.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{}
}

// Append records one entry. Entries are never modified or removed.
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Record builds an entry from an update result and appends it, stamping
// the current time.
func (l *Log) Record(sourceAgent string, updateType kg.UpdateType, result kg.UpdateResult) {
	l.Append(Entry{
		Timestamp:    time.Now().UTC(),
		RequestID:    result.RequestID,
		SourceAgent:  sourceAgent,
		UpdateType:   updateType,
		Success:      result.Success,
		NodesCreated: result.NodesCreated,
		EdgesCreated: result.EdgesCreated,
	})
}

// Entries returns a copy of the log in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Summarize aggregates the log. SuccessRate is a percentage and is 0 for
// an empty log.
func (l *Log) Summarize() Report {
	l.mu.RLock()
	defer l.mu.RUnlock()

	report := Report{TotalRequests: len(l.entries)}
	for _, entry := range l.entries {
		if entry.Success {
			report.SuccessfulRequests++
		} else {
			report.FailedRequests++
		}
		report.TotalNodesCreated += entry.NodesCreated
		report.TotalEdgesCreated += entry.EdgesCreated
	}
	if report.TotalRequests > 0 {
		report.SuccessRate = float64(report.SuccessfulRequests) / float64(report.TotalRequests) * 100
	}
	return report
}
