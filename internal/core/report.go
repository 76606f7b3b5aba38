package core

// ReportOutcome is the overall result of an import.
type ReportOutcome string

const (
	// OutcomeSuccess means no row or commit errors occurred. Warnings allowed.
	OutcomeSuccess ReportOutcome = "success"
	// OutcomePartial means at least one error was recorded.
	OutcomePartial ReportOutcome = "partial"
)

// ImportStats are the counters returned to the caller.
type ImportStats struct {
	TotalProcessed int `json:"total_processed"`
	ModulesAdded   int `json:"modules_added"`
	UsersAdded     int `json:"users_added"`
	AcademicYear   int `json:"academic_year"`
}

// ImportReport is the user-visible summary of one import.
type ImportReport struct {
	Stats    ImportStats `json:"stats"`
	Warnings []string    `json:"warnings"`
	Errors   []string    `json:"errors"`
	DryRun   bool        `json:"dry_run,omitempty"`
	Rows     []RowResult `json:"rows,omitempty"`
}

// Outcome reports success only when no errors were recorded.
func (r *ImportReport) Outcome() ReportOutcome {
	if len(r.Errors) == 0 {
		return OutcomeSuccess
	}
	return OutcomePartial
}

// Summary is a one-line human description of the report.
func (r *ImportReport) Summary() string {
	if r.Outcome() == OutcomeSuccess {
		return "Upload completed successfully"
	}
	return "Upload completed with errors"
}

// BuildReport assembles the report from a reconciliation and, unless the run
// was a dry run, the commit that followed it. Row errors come first, then
// commit errors. Rows the commit could not store, or stored without their
// lead, carry the commit's outcome instead of the reconciliation's.
func BuildReport(rec *Reconciliation, commit *CommitResult) *ImportReport {
	rep := &ImportReport{
		Stats: ImportStats{
			TotalProcessed: rec.RowsSeen,
			AcademicYear:   rec.AcademicYear,
		},
		Warnings: append([]string{}, rec.Warnings...),
		Errors:   append([]string{}, rec.Errors...),
		Rows:     append([]RowResult(nil), rec.Results...),
	}

	if commit == nil {
		rep.DryRun = true
		rep.Stats.ModulesAdded = len(rec.Modules)
		rep.Stats.UsersAdded = len(rec.Users)
		return rep
	}

	rep.Stats.ModulesAdded = commit.ModulesInserted
	rep.Stats.UsersAdded = commit.UsersInserted
	rep.Warnings = append(rep.Warnings, commit.Warnings...)
	rep.Errors = append(rep.Errors, commit.Errors...)

	pos := make(map[int]int, len(rep.Rows))
	for i, r := range rep.Rows {
		pos[r.Line] = i
	}
	for _, r := range commit.Rows {
		if i, ok := pos[r.Line]; ok {
			rep.Rows[i] = r
		}
	}
	return rep
}
