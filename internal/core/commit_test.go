package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModule(code string, lead uuid.NullUUID) ModuleRecord {
	return ModuleRecord{
		ID:           uuid.New(),
		ModuleCode:   code,
		CodePrefix:   CodePrefix(code),
		ModuleName:   "Module " + code,
		Level:        "4",
		ModuleLeadID: lead,
		AcademicYear: 2024,
	}
}

func testLead(t *testing.T, name string) UserRecord {
	t.Helper()
	u, err := fastUsers().NewLead(name)
	require.NoError(t, err)
	return u
}

func TestCommit_AllStored(t *testing.T) {
	store := newMemStore()
	jane := testLead(t, "Jane Doe")
	lead := uuid.NullUUID{UUID: jane.ID, Valid: true}

	res := Commit(context.Background(), store,
		[]ModuleRecord{testModule("AC11001", lead), testModule("AC11002", lead)},
		[]UserRecord{jane})

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.UsersInserted)
	assert.Equal(t, 2, res.ModulesInserted)
	assert.Equal(t, []UserRecord{jane}, res.Users)
}

func TestCommit_PartialModuleFailure(t *testing.T) {
	store := newMemStore()
	store.modules = []ModuleRecord{testModule("AC11001", uuid.NullUUID{})}
	dup := testModule("AC11001", uuid.NullUUID{})
	dup.Line = 2

	res := Commit(context.Background(), store,
		[]ModuleRecord{dup, testModule("AC11002", uuid.NullUUID{})},
		nil)

	assert.Equal(t, 1, res.ModulesInserted)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Some records failed to insert: "))
	assert.Contains(t, res.Errors[0], "AC11001")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 2, res.Rows[0].Line)
	assert.Equal(t, OutcomeErrored, res.Rows[0].Outcome)
	assert.Contains(t, res.Rows[0].Message, "Row 2: Module code 'AC11001' could not be stored")
}

func TestCommit_UnstoredLeadStoresModuleWithoutLead(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(store *memStore, lead *UserRecord)
		wantErr string
	}{
		{
			name:    "store unavailable",
			setup:   func(store *memStore, _ *UserRecord) { store.usersErr = errors.New("connection reset by peer") },
			wantErr: "Some records failed to insert: connection reset by peer",
		},
		{
			name: "store rejects user",
			setup: func(store *memStore, _ *UserRecord) {
				store.rejectUsers = map[string]string{"Jane Doe": "value too long for type character varying(255)"}
			},
			wantErr: "Some records failed to insert: users: 1 of 1 documents failed",
		},
		{
			name:    "record fails validation",
			setup:   func(_ *memStore, lead *UserRecord) { lead.Role = "guest" },
			wantErr: "Some user records were rejected before insert",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			jane := testLead(t, "Jane Doe")
			tt.setup(store, &jane)
			mod := testModule("AC11001", uuid.NullUUID{UUID: jane.ID, Valid: true})
			mod.Line = 2

			res := Commit(context.Background(), store, []ModuleRecord{mod}, []UserRecord{jane})

			assert.Equal(t, 0, res.UsersInserted)
			assert.Empty(t, res.Users)
			assert.Equal(t, 1, res.ModulesInserted)
			require.Len(t, store.modules, 1)
			assert.False(t, store.modules[0].ModuleLeadID.Valid)

			require.Len(t, res.Errors, 1)
			assert.True(t, strings.HasPrefix(res.Errors[0], tt.wantErr), res.Errors[0])
			want := "Row 2: Module lead 'Jane Doe' could not be created; module 'AC11001' stored without a lead"
			assert.Equal(t, []string{want}, res.Warnings)
			assert.Equal(t, []RowResult{{Line: 2, Outcome: OutcomeWarned, Message: want}}, res.Rows)
		})
	}
}

func TestCommit_ExistingUsernameResolvesToStoredLead(t *testing.T) {
	store := newMemStore()
	existing := testLead(t, "Jane Doe")
	store.users = []UserRecord{existing}
	jane, john := testLead(t, "Jane Doe"), testLead(t, "John Roe")

	res := Commit(context.Background(), store,
		[]ModuleRecord{
			testModule("AC11001", uuid.NullUUID{UUID: jane.ID, Valid: true}),
			testModule("AC11002", uuid.NullUUID{UUID: john.ID, Valid: true}),
		},
		[]UserRecord{jane, john})

	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.UsersInserted)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "John Roe", res.Users[0].Username)

	assert.Equal(t, 2, res.ModulesInserted)
	require.Len(t, store.modules, 2)
	assert.Equal(t, uuid.NullUUID{UUID: existing.ID, Valid: true}, store.modules[0].ModuleLeadID)
	assert.Equal(t, uuid.NullUUID{UUID: john.ID, Valid: true}, store.modules[1].ModuleLeadID)
	assert.Len(t, store.users, 2)
}

func TestCommit_LeadNamesWithPunctuation(t *testing.T) {
	tests := []struct {
		name      string
		wantEmail string
	}{
		{"Smith, J.", "smith,j.@ames.edu.eu"},
		{"Jane Doe (cover)", "janedoe(cover)@ames.edu.eu"},
		{"O'Neil", "o'neil@ames.edu.eu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			lead := testLead(t, tt.name)
			require.Equal(t, tt.wantEmail, lead.Email)
			ref := uuid.NullUUID{UUID: lead.ID, Valid: true}

			res := Commit(context.Background(), store, []ModuleRecord{testModule("AC11001", ref)}, []UserRecord{lead})

			assert.Empty(t, res.Errors)
			assert.Equal(t, 1, res.UsersInserted)
			assert.Equal(t, 1, res.ModulesInserted)
			require.Len(t, store.modules, 1)
			assert.Equal(t, ref, store.modules[0].ModuleLeadID)
		})
	}
}

func TestCommit_InvalidRecordsRejected(t *testing.T) {
	store := newMemStore()
	bad := testModule("AC11001", uuid.NullUUID{})
	bad.ModuleName = ""
	bad.Line = 3

	res := Commit(context.Background(), store, []ModuleRecord{bad, testModule("AC11002", uuid.NullUUID{})}, nil)

	assert.Equal(t, 1, res.ModulesInserted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Some module records were rejected before insert")
	assert.Contains(t, res.Errors[0], "ModuleName")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 3, res.Rows[0].Line)
	assert.Equal(t, OutcomeErrored, res.Rows[0].Outcome)
}

func TestCommit_NothingToWrite(t *testing.T) {
	res := Commit(context.Background(), newMemStore(), nil, nil)
	assert.Equal(t, CommitResult{}, res)
}

func TestBulkWriteError_Message(t *testing.T) {
	err := &BulkWriteError{Collection: "modules", Attempted: 8, Inserted: 1}
	for i := 0; i < 7; i++ {
		err.Failures = append(err.Failures, DocumentFailure{Index: i, Key: "K", Reason: "dup"})
	}
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "modules: 7 of 8 documents failed"))
	assert.Contains(t, msg, "; and 2 more")
}
