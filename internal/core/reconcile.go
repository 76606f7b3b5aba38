package core

// reconcile.go turns decoded roster rows into new module and user records.
//
// Reconciliation is a single ordered fold over the rows. Every row ends in
// exactly one outcome:
//
//   - Accepted: a module record was queued (and possibly a new lead user)
//   - Warned: the module already exists for the academic year, row skipped
//   - Errored: the row was invalid or processing failed, row skipped
//
// A rejected row never stops the fold. Rows are evaluated without touching
// shared state; the dedup index and output lists are only updated once a row
// has been accepted, so a failure part way through a row leaves no trace.

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAffirmative is the vocabulary that marks a module as in use.
var DefaultAffirmative = []string{"y", "yes", "1", "true", "active"}

// Outcome classifies what happened to a single row.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeWarned
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeWarned:
		return "warned"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name written by MarshalText.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "accepted":
		*o = OutcomeAccepted
	case "warned":
		*o = OutcomeWarned
	case "errored":
		*o = OutcomeErrored
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// RowResult is the tagged outcome of one row.
type RowResult struct {
	Line    int     `json:"line"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

// DedupIndex tracks module keys and lead identities already claimed, either
// by persisted state or by earlier rows of the same batch.
type DedupIndex struct {
	modules map[ModuleKey]struct{}
	users   map[string]uuid.UUID
}

// NewDedupIndex seeds an index from a persisted snapshot.
func NewDedupIndex(snap Snapshot) *DedupIndex {
	ix := &DedupIndex{
		modules: make(map[ModuleKey]struct{}, len(snap.ModuleKeys)),
		users:   make(map[string]uuid.UUID, len(snap.Users)),
	}
	for _, k := range snap.ModuleKeys {
		ix.modules[k] = struct{}{}
	}
	for name, id := range snap.Users {
		ix.users[name] = id
	}
	return ix
}

// HasModule reports whether k is already claimed.
func (ix *DedupIndex) HasModule(k ModuleKey) bool {
	_, ok := ix.modules[k]
	return ok
}

// ClaimModule marks k as taken for the rest of the batch.
func (ix *DedupIndex) ClaimModule(k ModuleKey) {
	ix.modules[k] = struct{}{}
}

// Lead returns the identity registered for username.
func (ix *DedupIndex) Lead(username string) (uuid.UUID, bool) {
	id, ok := ix.users[username]
	return id, ok
}

// AddLead registers username. The first registration wins.
func (ix *DedupIndex) AddLead(username string, id uuid.UUID) {
	if _, exists := ix.users[username]; !exists {
		ix.users[username] = id
	}
}

// ReconcileOptions configures a reconciliation pass.
type ReconcileOptions struct {
	AcademicYear int              // Bucket to stamp and dedup against (default: current)
	Affirmative  []string         // in_use vocabulary (default: DefaultAffirmative)
	Users        *UserFactory     // Lead synthesis (default: zero UserFactory)
	NewID        func() uuid.UUID // Module identity generator (default: uuid.New)
}

// Reconciliation is the result of a reconciliation pass.
type Reconciliation struct {
	AcademicYear int
	RowsSeen     int
	Modules      []ModuleRecord
	Users        []UserRecord
	Warnings     []string
	Errors       []string
	Results      []RowResult
}

// Count returns the number of rows that ended with outcome o.
func (r *Reconciliation) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Reconcile validates rows, deduplicates them against snap and against each
// other, and queues the module and lead records to create.
func Reconcile(rows []ImportRow, cols ColumnMap, snap Snapshot, opts ReconcileOptions) *Reconciliation {
	rc := newReconciler(cols, snap, opts)
	for _, row := range rows {
		rc.apply(rc.evaluate(row))
	}
	return rc.out
}

type reconciler struct {
	cols        ColumnMap
	year        int
	affirmative map[string]bool
	users       *UserFactory
	newID       func() uuid.UUID
	index       *DedupIndex
	out         *Reconciliation
}

func newReconciler(cols ColumnMap, snap Snapshot, opts ReconcileOptions) *reconciler {
	year := opts.AcademicYear
	if year == 0 {
		year = AcademicYear(time.Now())
	}

	vocab := opts.Affirmative
	if len(vocab) == 0 {
		vocab = DefaultAffirmative
	}
	affirmative := make(map[string]bool, len(vocab))
	for _, v := range vocab {
		affirmative[strings.ToLower(strings.TrimSpace(v))] = true
	}

	users := opts.Users
	if users == nil {
		users = &UserFactory{}
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.New
	}

	return &reconciler{
		cols:        cols,
		year:        year,
		affirmative: affirmative,
		users:       users,
		newID:       newID,
		index:       NewDedupIndex(snap),
		out:         &Reconciliation{AcademicYear: year},
	}
}

// evaluation is what a row would contribute if accepted.
type evaluation struct {
	result  RowResult
	module  ModuleRecord
	newLead *UserRecord
}

// evaluate decides a row's outcome without mutating the reconciler.
// Panics are converted into an errored outcome.
func (rc *reconciler) evaluate(row ImportRow) (ev evaluation) {
	defer func() {
		if r := recover(); r != nil {
			ev = evaluation{result: rowError(row.Line, fmt.Sprintf("unexpected error: %v", r))}
		}
	}()

	code := strings.TrimSpace(row.Cell(rc.cols.Header(FieldModuleCode)))
	name := strings.TrimSpace(row.Cell(rc.cols.Header(FieldModuleName)))
	level := strings.TrimSpace(row.Cell(rc.cols.Header(FieldLevel)))
	lead := strings.TrimSpace(row.Cell(rc.cols.Header(FieldLeadName)))
	inUseRaw := strings.TrimSpace(row.Cell(rc.cols.Header(FieldInUse)))

	if missing := missingFields(code, name, level); len(missing) > 0 {
		return evaluation{result: rowError(row.Line, "Missing required fields: "+strings.Join(missing, ", "))}
	}

	mc, err := ValidateModuleCode(code)
	if err != nil {
		return evaluation{result: rowError(row.Line, fmt.Sprintf("Invalid module code '%s'", code))}
	}

	key := ModuleKey{Code: mc.Code, Year: rc.year}
	if rc.index.HasModule(key) {
		return evaluation{result: RowResult{
			Line:    row.Line,
			Outcome: OutcomeWarned,
			Message: fmt.Sprintf("Row %d: Module code '%s' already exists for academic year %d - skipped", row.Line, mc.Code, rc.year),
		}}
	}

	var leadID uuid.NullUUID
	var newLead *UserRecord
	if lead != "" {
		if id, ok := rc.index.Lead(lead); ok {
			leadID = uuid.NullUUID{UUID: id, Valid: true}
		} else {
			u, err := rc.users.NewLead(lead)
			if err != nil {
				return evaluation{result: rowError(row.Line, err.Error())}
			}
			newLead = &u
			leadID = uuid.NullUUID{UUID: u.ID, Valid: true}
		}
	}

	return evaluation{
		result: RowResult{Line: row.Line, Outcome: OutcomeAccepted},
		module: ModuleRecord{
			ID:              rc.newID(),
			ModuleCode:      mc.Code,
			CodePrefix:      mc.Prefix,
			ModuleName:      name,
			Level:           level,
			ModuleLeadID:    leadID,
			AcademicYear:    rc.year,
			InUse:           rc.affirmative[strings.ToLower(inUseRaw)],
			ReviewSubmitted: false,
			Line:            row.Line,
		},
		newLead: newLead,
	}
}

// apply folds an evaluation into the running result.
func (rc *reconciler) apply(ev evaluation) {
	rc.out.RowsSeen++
	rc.out.Results = append(rc.out.Results, ev.result)

	switch ev.result.Outcome {
	case OutcomeWarned:
		rc.out.Warnings = append(rc.out.Warnings, ev.result.Message)
	case OutcomeErrored:
		rc.out.Errors = append(rc.out.Errors, ev.result.Message)
	case OutcomeAccepted:
		if ev.newLead != nil {
			rc.index.AddLead(ev.newLead.Username, ev.newLead.ID)
			rc.out.Users = append(rc.out.Users, *ev.newLead)
		}
		rc.index.ClaimModule(ev.module.Key())
		rc.out.Modules = append(rc.out.Modules, ev.module)
	}
}

func rowError(line int, msg string) RowResult {
	return RowResult{
		Line:    line,
		Outcome: OutcomeErrored,
		Message: fmt.Sprintf("Row %d: %s", line, msg),
	}
}

func missingFields(code, name, level string) []string {
	var missing []string
	if code == "" {
		missing = append(missing, string(FieldModuleCode))
	}
	if name == "" {
		missing = append(missing, string(FieldModuleName))
	}
	if level == "" {
		missing = append(missing, string(FieldLevel))
	}
	return missing
}
