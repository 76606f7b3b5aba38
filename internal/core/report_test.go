package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReport(t *testing.T) {
	rec := &Reconciliation{
		AcademicYear: 2024,
		RowsSeen:     3,
		Modules:      make([]ModuleRecord, 2),
		Users:        make([]UserRecord, 1),
		Warnings:     []string{"w"},
	}

	t.Run("committed", func(t *testing.T) {
		rep := BuildReport(rec, &CommitResult{ModulesInserted: 1, UsersInserted: 1, Errors: []string{"Some records failed to insert: x"}})
		assert.Equal(t, ImportStats{TotalProcessed: 3, ModulesAdded: 1, UsersAdded: 1, AcademicYear: 2024}, rep.Stats)
		assert.Equal(t, OutcomePartial, rep.Outcome())
		assert.False(t, rep.DryRun)
	})

	t.Run("dry run reports queued counts", func(t *testing.T) {
		rep := BuildReport(rec, nil)
		assert.Equal(t, 2, rep.Stats.ModulesAdded)
		assert.Equal(t, 1, rep.Stats.UsersAdded)
		assert.True(t, rep.DryRun)
		assert.Equal(t, OutcomeSuccess, rep.Outcome(), "warnings never downgrade")
	})
}

func TestBuildReport_CommitRowOutcomes(t *testing.T) {
	rec := &Reconciliation{
		AcademicYear: 2024,
		RowsSeen:     3,
		Results: []RowResult{
			{Line: 2, Outcome: OutcomeAccepted},
			{Line: 3, Outcome: OutcomeAccepted},
			{Line: 4, Outcome: OutcomeAccepted},
		},
	}
	commit := &CommitResult{
		ModulesInserted: 2,
		Warnings:        []string{"Row 4: lead dropped"},
		Errors:          []string{"Some records failed to insert: modules: 1 of 3 documents failed"},
		Rows: []RowResult{
			{Line: 3, Outcome: OutcomeErrored, Message: "Row 3: not stored"},
			{Line: 4, Outcome: OutcomeWarned, Message: "Row 4: lead dropped"},
		},
	}

	rep := BuildReport(rec, commit)

	assert.Equal(t, []RowResult{
		{Line: 2, Outcome: OutcomeAccepted},
		{Line: 3, Outcome: OutcomeErrored, Message: "Row 3: not stored"},
		{Line: 4, Outcome: OutcomeWarned, Message: "Row 4: lead dropped"},
	}, rep.Rows)
	assert.Equal(t, []string{"Row 4: lead dropped"}, rep.Warnings)
	assert.Equal(t, OutcomeAccepted, rec.Results[1].Outcome, "reconciliation results are not modified")
}

func TestImportReport_JSON(t *testing.T) {
	rep := BuildReport(&Reconciliation{AcademicYear: 2024, RowsSeen: 1, Results: []RowResult{{Line: 2, Outcome: OutcomeAccepted}}}, &CommitResult{ModulesInserted: 1})

	b, err := json.Marshal(rep)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	stats := got["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["total_processed"])
	assert.EqualValues(t, 1, stats["modules_added"])
	assert.EqualValues(t, 0, stats["users_added"])
	assert.EqualValues(t, 2024, stats["academic_year"])
	assert.Equal(t, []any{}, got["warnings"])
	assert.Equal(t, "accepted", got["rows"].([]any)[0].(map[string]any)["outcome"])
}
