package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// newTable builds a roster table; data rows start at line 2.
func newTable(headers []string, records ...[]string) *Table {
	t := &Table{FileName: "roster.csv", Headers: headers}
	for i, rec := range records {
		cells := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				cells[h] = rec[j]
			}
		}
		t.Rows = append(t.Rows, ImportRow{Line: i + 2, Cells: cells})
	}
	return t
}

var standardHeaders = []string{"Module Code", "Name", "Level", "Tutor", "In Use"}

func fastUsers() *UserFactory {
	return &UserFactory{HashCost: bcrypt.MinCost}
}

// fixedClock returns a clock inside academic year 2024.
func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, time.October, 1, 12, 0, 0, 0, time.UTC) }
}

// memStore is an in-memory Store enforcing the same uniqueness and foreign
// key rules as the database schema. Users are upserted by username.
type memStore struct {
	mu      sync.Mutex
	modules []ModuleRecord
	users   []UserRecord

	snapshotErr error
	usersErr    error             // returned from InsertUsers without storing anything
	rejectUsers map[string]string // username -> failure reason
	modulesErr  error
	pingErr     error

	// beforeInsert runs before each module insert with the lock released;
	// tests use it to simulate a concurrent writer.
	beforeInsert func()
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) ModuleKeys(_ context.Context, year int) ([]ModuleKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	var keys []ModuleKey
	for _, mod := range m.modules {
		if mod.AcademicYear == year {
			keys = append(keys, mod.Key())
		}
	}
	return keys, nil
}

func (m *memStore) Usernames(_ context.Context) (map[string]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uuid.UUID, len(m.users))
	for _, u := range m.users {
		out[u.Username] = u.ID
	}
	return out, nil
}

func (m *memStore) InsertUsers(_ context.Context, users []UserRecord) ([]StoredUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usersErr != nil {
		return nil, m.usersErr
	}

	out := make([]StoredUser, len(users))
	bwe := &BulkWriteError{Collection: "users", Attempted: len(users)}
	for i, u := range users {
		if reason, ok := m.rejectUsers[u.Username]; ok {
			bwe.Failures = append(bwe.Failures, DocumentFailure{Index: i, Key: u.Username, Reason: reason})
			continue
		}
		if id, ok := m.userID(u.Username); ok {
			out[i] = StoredUser{ID: id}
		} else {
			m.users = append(m.users, u)
			out[i] = StoredUser{ID: u.ID, Created: true}
		}
		bwe.Inserted++
	}
	if len(bwe.Failures) > 0 {
		return out, bwe
	}
	return out, nil
}

func (m *memStore) InsertModules(_ context.Context, modules []ModuleRecord) (int, error) {
	if m.beforeInsert != nil {
		m.beforeInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modulesErr != nil {
		return 0, m.modulesErr
	}

	bwe := &BulkWriteError{Collection: "modules", Attempted: len(modules)}
	for i, mod := range modules {
		switch {
		case m.hasModule(mod.Key()):
			bwe.Failures = append(bwe.Failures, DocumentFailure{Index: i, Key: mod.ModuleCode, Reason: "duplicate key value violates unique constraint"})
			continue
		case mod.ModuleLeadID.Valid && !m.hasUserID(mod.ModuleLeadID.UUID):
			bwe.Failures = append(bwe.Failures, DocumentFailure{Index: i, Key: mod.ModuleCode, Reason: "insert violates foreign key constraint modules_module_lead_id_fkey"})
			continue
		}
		m.modules = append(m.modules, mod)
		bwe.Inserted++
	}
	if len(bwe.Failures) > 0 {
		return bwe.Inserted, bwe
	}
	return bwe.Inserted, nil
}

func (m *memStore) CodePrefixes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, mod := range m.modules {
		if !seen[mod.CodePrefix] {
			seen[mod.CodePrefix] = true
			out = append(out, mod.CodePrefix)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) CountModules(_ context.Context, year int) (ModuleCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := ModuleCounts{AcademicYear: year}
	for _, mod := range m.modules {
		if mod.AcademicYear != year {
			continue
		}
		c.Total++
		if mod.ReviewSubmitted {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c, nil
}

func (m *memStore) ModulesByID(_ context.Context, ids []uuid.UUID) ([]ModuleSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []ModuleSummary
	for _, mod := range m.modules {
		if !want[mod.ID] {
			continue
		}
		s := ModuleSummary{
			ID:              mod.ID,
			ModuleCode:      mod.ModuleCode,
			ModuleName:      mod.ModuleName,
			AcademicYear:    mod.AcademicYear,
			ReviewSubmitted: mod.ReviewSubmitted,
		}
		for _, u := range m.users {
			if mod.ModuleLeadID.Valid && u.ID == mod.ModuleLeadID.UUID {
				s.LeadName, s.LeadEmail = u.Username, u.Email
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) userID(name string) (uuid.UUID, bool) {
	for _, u := range m.users {
		if u.Username == name {
			return u.ID, true
		}
	}
	return uuid.Nil, false
}

func (m *memStore) hasUserID(id uuid.UUID) bool {
	for _, u := range m.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (m *memStore) hasModule(k ModuleKey) bool {
	for _, mod := range m.modules {
		if mod.Key() == k {
			return true
		}
	}
	return false
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu          sync.Mutex
	provisioned []UserRecord
	reminders   map[string][]ModuleSummary
	failFor     map[string]bool
	provErr     error
}

func (n *recordingNotifier) NotifyProvisioned(_ context.Context, users []UserRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.provisioned = append(n.provisioned, users...)
	return n.provErr
}

func (n *recordingNotifier) SendReminder(_ context.Context, email string, modules []ModuleSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[email] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	if n.reminders == nil {
		n.reminders = map[string][]ModuleSummary{}
	}
	n.reminders[email] = append(n.reminders[email], modules...)
	return nil
}
