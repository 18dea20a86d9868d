package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knograph/kgcoord/kg"
)

func TestRecordStampsTimeAndCopiesResult(t *testing.T) {
	log := NewLog()
	before := time.Now().UTC()

	log.Record("agent_1", kg.UpdateComplexMerge, kg.UpdateResult{
		RequestID:    "sales_complex_merge_20260831_120000",
		Success:      true,
		NodesCreated: 2,
		EdgesCreated: 1,
	})

	entries := log.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "agent_1", entry.SourceAgent)
	assert.Equal(t, kg.UpdateComplexMerge, entry.UpdateType)
	assert.True(t, entry.Success)
	assert.Equal(t, 2, entry.NodesCreated)
	assert.Equal(t, 1, entry.EdgesCreated)
	assert.False(t, entry.Timestamp.Before(before))
}

func TestEntriesReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Append(Entry{RequestID: "r1"})

	entries := log.Entries()
	entries[0].RequestID = "mutated"
	assert.Equal(t, "r1", log.Entries()[0].RequestID)
}

func TestSummarize(t *testing.T) {
	log := NewLog()
	log.Append(Entry{Success: true, NodesCreated: 3, EdgesCreated: 2})
	log.Append(Entry{Success: true, NodesCreated: 1})
	log.Append(Entry{Success: false})
	log.Append(Entry{Success: false})

	report := log.Summarize()
	assert.Equal(t, 4, report.TotalRequests)
	assert.Equal(t, 2, report.SuccessfulRequests)
	assert.Equal(t, 2, report.FailedRequests)
	assert.Equal(t, 4, report.TotalNodesCreated)
	assert.Equal(t, 2, report.TotalEdgesCreated)
	assert.InDelta(t, 50.0, report.SuccessRate, 0.001)
}

func TestSummarizeEmptyLog(t *testing.T) {
	report := NewLog().Summarize()
	assert.Equal(t, 0, report.TotalRequests)
	assert.Zero(t, report.SuccessRate)
}
