package core

// commit.go persists the records queued by reconciliation.
//
// Users and modules are written as two independent bulk operations. Each is
// tolerant of individual document failures, and any failure is folded into
// the import's error list as a single message per collection. A lead that a
// concurrent import already created resolves to that user. Nothing that was
// stored is rolled back.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// maxListedFailures caps how many document failures an error message names.
const maxListedFailures = 5

// DocumentFailure describes one document a bulk write could not store.
type DocumentFailure struct {
	Index  int    // Position in the submitted slice
	Key    string // Human-readable identity (module code, username)
	Reason string
}

// BulkWriteError reports the documents a bulk write could not store. The
// remaining documents were stored.
type BulkWriteError struct {
	Collection string
	Attempted  int
	Inserted   int
	Failures   []DocumentFailure
}

func (e *BulkWriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d documents failed", e.Collection, len(e.Failures), e.Attempted)
	for i, f := range e.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "; %s: %s", f.Key, f.Reason)
	}
	return b.String()
}

// CommitResult summarises a commit.
type CommitResult struct {
	UsersInserted   int
	ModulesInserted int
	Users           []UserRecord // Users created by this commit
	Warnings        []string
	Errors          []string

	// Rows holds the roster rows whose outcome changed during the commit.
	Rows []RowResult
}

// leadRef is where a queued lead identity ended up after the user write.
type leadRef struct {
	name string
	id   uuid.NullUUID // Invalid when the lead could not be stored
}

// Commit writes users then modules through w. A failure in one collection
// never prevents the attempt on the other. Modules referencing a queued lead
// are pointed at the identity the store reports for it; a module whose lead
// could not be stored is written without one.
func Commit(ctx context.Context, w BulkWriter, modules []ModuleRecord, users []UserRecord) CommitResult {
	var res CommitResult
	leads := res.writeUsers(ctx, w, users)
	res.writeModules(ctx, w, modules, leads)
	return res
}

func (res *CommitResult) writeUsers(ctx context.Context, w BulkWriter, users []UserRecord) map[uuid.UUID]leadRef {
	leads := make(map[uuid.UUID]leadRef, len(users))

	valid, rejected := partition(users)
	for _, r := range rejected {
		leads[users[r.index].ID] = leadRef{name: users[r.index].Username}
	}
	if msg := rejectedMessage("user", rejected); msg != "" {
		res.Errors = append(res.Errors, msg)
	}
	if len(valid) == 0 {
		return leads
	}

	batch := make([]UserRecord, len(valid))
	for j, i := range valid {
		batch[j] = users[i]
	}
	stored, err := w.InsertUsers(ctx, batch)
	if err != nil {
		res.Errors = append(res.Errors, "Some records failed to insert: "+err.Error())
	}

	for j, u := range batch {
		ref := leadRef{name: u.Username}
		if j < len(stored) && stored[j].ID != uuid.Nil {
			ref.id = uuid.NullUUID{UUID: stored[j].ID, Valid: true}
			if stored[j].Created {
				res.UsersInserted++
				res.Users = append(res.Users, u)
			}
		}
		leads[u.ID] = ref
	}
	return leads
}

func (res *CommitResult) writeModules(ctx context.Context, w BulkWriter, modules []ModuleRecord, leads map[uuid.UUID]leadRef) {
	modules = append([]ModuleRecord(nil), modules...)
	dropped := make(map[int]string)
	for i, m := range modules {
		if !m.ModuleLeadID.Valid {
			continue
		}
		ref, queued := leads[m.ModuleLeadID.UUID]
		if !queued {
			continue
		}
		if !ref.id.Valid {
			dropped[i] = ref.name
		}
		modules[i].ModuleLeadID = ref.id
	}

	valid, rejected := partition(modules)
	for _, r := range rejected {
		res.failModule(modules[r.index], r.reason)
	}
	if msg := rejectedMessage("module", rejected); msg != "" {
		res.Errors = append(res.Errors, msg)
	}
	if len(valid) == 0 {
		return
	}

	batch := make([]ModuleRecord, len(valid))
	for j, i := range valid {
		batch[j] = modules[i]
	}
	n, err := w.InsertModules(ctx, batch)
	res.ModulesInserted = n
	if err != nil {
		res.Errors = append(res.Errors, "Some records failed to insert: "+err.Error())
	}

	failed := failedDocuments(len(batch), n, err)
	for j, m := range batch {
		if reason, ok := failed[j]; ok {
			res.failModule(m, reason)
			continue
		}
		if name, ok := dropped[valid[j]]; ok {
			msg := fmt.Sprintf("Row %d: Module lead '%s' could not be created; module '%s' stored without a lead", m.Line, name, m.ModuleCode)
			res.Warnings = append(res.Warnings, msg)
			res.Rows = append(res.Rows, RowResult{Line: m.Line, Outcome: OutcomeWarned, Message: msg})
		}
	}
}

func (res *CommitResult) failModule(m ModuleRecord, reason string) {
	res.Rows = append(res.Rows, RowResult{
		Line:    m.Line,
		Outcome: OutcomeErrored,
		Message: fmt.Sprintf("Row %d: Module code '%s' could not be stored: %s", m.Line, m.ModuleCode, reason),
	})
}

type rejection struct {
	index  int
	reason string
}

// partition splits records into the indexes passing their struct
// constraints and the rejected ones.
func partition[T any](records []T) ([]int, []rejection) {
	var valid []int
	var rejected []rejection
	for i, r := range records {
		if err := recordValidator.Struct(r); err != nil {
			rejected = append(rejected, rejection{index: i, reason: err.Error()})
			continue
		}
		valid = append(valid, i)
	}
	return valid, rejected
}

// rejectedMessage aggregates validation rejections into one report error.
func rejectedMessage(kind string, rejected []rejection) string {
	if len(rejected) == 0 {
		return ""
	}
	var reasons []string
	for i, r := range rejected {
		if i == maxListedFailures {
			reasons = append(reasons, fmt.Sprintf("and %d more", len(rejected)-maxListedFailures))
			break
		}
		reasons = append(reasons, r.reason)
	}
	return fmt.Sprintf("Some %s records were rejected before insert: %s", kind, strings.Join(reasons, "; "))
}

// failedDocuments maps the batch positions a writer did not store to the
// reason. Without a *BulkWriteError the batch either fully succeeded or
// nothing was stored.
func failedDocuments(attempted, inserted int, err error) map[int]string {
	if err == nil {
		return nil
	}
	out := make(map[int]string)
	var bwe *BulkWriteError
	if errors.As(err, &bwe) {
		for _, f := range bwe.Failures {
			out[f.Index] = f.Reason
		}
		return out
	}
	if inserted == attempted {
		return nil
	}
	for i := 0; i < attempted; i++ {
		out[i] = err.Error()
	}
	return out
}
