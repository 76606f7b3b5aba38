package core

import (
	"context"

	"github.com/google/uuid"
)

// Role values stored on user documents.
const (
	RoleAdmin      = "admin"
	RoleModuleLead = "module_lead"
)

// ImportRow is one decoded spreadsheet row keyed by the header text it was
// found under. Line is the 1-indexed spreadsheet line (header is line 1).
type ImportRow struct {
	Line  int
	Cells map[string]string
}

// Cell returns the raw value under header, or "" when the header is empty
// or the row has no such cell.
func (r ImportRow) Cell(header string) string {
	if header == "" || r.Cells == nil {
		return ""
	}
	return r.Cells[header]
}

// Table is a decoded roster: the header row plus its data rows in file order.
type Table struct {
	FileName string
	Headers  []string
	Rows     []ImportRow
}

// ModuleKey identifies a module within an academic year. The pair is unique
// across persisted state and the current batch.
type ModuleKey struct {
	Code string
	Year int
}

// ModuleRecord is a module document created by an import.
type ModuleRecord struct {
	ID              uuid.UUID     `json:"id" validate:"required"`
	ModuleCode      string        `json:"module_code" validate:"required"`
	CodePrefix      string        `json:"code_prefix" validate:"required,len=2"`
	ModuleName      string        `json:"module_name" validate:"required"`
	Level           string        `json:"level" validate:"required"`
	ModuleLeadID    uuid.NullUUID `json:"module_lead_id"`
	AcademicYear    int           `json:"academic_year" validate:"gt=0"`
	InUse           bool          `json:"in_use"`
	ReviewSubmitted bool          `json:"review_submitted"`

	// Line is the roster line the record came from; 0 when not imported.
	Line int `json:"-"`
}

// Key returns the dedup key for the record.
func (m ModuleRecord) Key() ModuleKey {
	return ModuleKey{Code: m.ModuleCode, Year: m.AcademicYear}
}

// UserRecord is a module lead account synthesised during an import.
// PasswordHash is a placeholder; NeedsCredential marks the account for
// credential provisioning before anyone can sign in with it.
type UserRecord struct {
	ID              uuid.UUID `json:"id" validate:"required"`
	Username        string    `json:"username" validate:"required"`
	Email           string    `json:"email" validate:"required"`
	PasswordHash    string    `json:"-" validate:"required"`
	Role            string    `json:"role" validate:"required,oneof=admin module_lead"`
	IsActive        bool      `json:"is_active"`
	NeedsCredential bool      `json:"needs_credential"`
}

// Snapshot is the persisted state an import deduplicates against. It is read
// once before reconciliation starts.
type Snapshot struct {
	ModuleKeys []ModuleKey
	Users      map[string]uuid.UUID // username -> identity
}

// SnapshotReader loads the dedup snapshot from the persistence collaborator.
type SnapshotReader interface {
	ModuleKeys(ctx context.Context, academicYear int) ([]ModuleKey, error)
	Usernames(ctx context.Context) (map[string]uuid.UUID, error)
}

// StoredUser is the outcome of writing one user. ID is the identity that
// holds the username after the write, uuid.Nil when nothing could be stored.
// Created is false when the username already belonged to an existing user.
type StoredUser struct {
	ID      uuid.UUID
	Created bool
}

// BulkWriter persists new documents. Each call must tolerate individual
// document failures: it writes everything it can and reports the rest as a
// *BulkWriteError.
//
// InsertUsers resolves a username that is already stored to the existing
// identity instead of failing. Its result is parallel to users and may be
// nil when the error means nothing was stored. InsertModules returns the
// number of modules stored.
type BulkWriter interface {
	InsertUsers(ctx context.Context, users []UserRecord) ([]StoredUser, error)
	InsertModules(ctx context.Context, modules []ModuleRecord) (int, error)
}

// ModuleSummary is a module joined with its lead, as used by reminders.
type ModuleSummary struct {
	ID              uuid.UUID `json:"id"`
	ModuleCode      string    `json:"module_code"`
	ModuleName      string    `json:"module_name"`
	AcademicYear    int       `json:"academic_year"`
	ReviewSubmitted bool      `json:"review_submitted"`
	LeadName        string    `json:"module_lead"`
	LeadEmail       string    `json:"module_lead_email"`
}

// ModuleCounts holds dashboard counters for an academic year.
type ModuleCounts struct {
	AcademicYear int   `json:"academic_year"`
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Completed    int64 `json:"completed"`
}

// ModuleQuerier answers the read-side questions the module dashboard asks.
type ModuleQuerier interface {
	CodePrefixes(ctx context.Context) ([]string, error)
	CountModules(ctx context.Context, academicYear int) (ModuleCounts, error)
	ModulesByID(ctx context.Context, ids []uuid.UUID) ([]ModuleSummary, error)
}

// Store is the full persistence collaborator used by the Service.
type Store interface {
	SnapshotReader
	BulkWriter
	ModuleQuerier
	Ping(ctx context.Context) error
}

// Notifier delivers out-of-band messages. It is invoked after reconciliation
// and commit have finished and never influences an import's outcome.
type Notifier interface {
	NotifyProvisioned(ctx context.Context, users []UserRecord) error
	SendReminder(ctx context.Context, email string, modules []ModuleSummary) error
}
