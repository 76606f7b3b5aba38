package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/modreview/internal/config"
	"github.com/JonMunkholm/modreview/internal/core"
)

// fakeStore keeps documents in memory with the same uniqueness rules as
// the Postgres schema.
type fakeStore struct {
	mu        sync.Mutex
	modules   []core.ModuleRecord
	users     []core.UserRecord
	summaries []core.ModuleSummary
	pingErr   error
}

func (f *fakeStore) ModuleKeys(_ context.Context, year int) ([]core.ModuleKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []core.ModuleKey
	for _, m := range f.modules {
		if m.AcademicYear == year {
			keys = append(keys, m.Key())
		}
	}
	return keys, nil
}

func (f *fakeStore) Usernames(context.Context) (map[string]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]uuid.UUID, len(f.users))
	for _, u := range f.users {
		out[u.Username] = u.ID
	}
	return out, nil
}

func (f *fakeStore) InsertUsers(_ context.Context, users []core.UserRecord) ([]core.StoredUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.StoredUser, len(users))
	for i, u := range users {
		f.users = append(f.users, u)
		out[i] = core.StoredUser{ID: u.ID, Created: true}
	}
	return out, nil
}

func (f *fakeStore) InsertModules(_ context.Context, modules []core.ModuleRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules = append(f.modules, modules...)
	return len(modules), nil
}

func (f *fakeStore) CodePrefixes(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, m := range f.modules {
		if !seen[m.CodePrefix] {
			seen[m.CodePrefix] = true
			out = append(out, m.CodePrefix)
		}
	}
	return out, nil
}

func (f *fakeStore) CountModules(_ context.Context, year int) (core.ModuleCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c core.ModuleCounts
	for _, m := range f.modules {
		if m.AcademicYear != year {
			continue
		}
		c.Total++
		if m.ReviewSubmitted {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c, nil
}

func (f *fakeStore) ModulesByID(_ context.Context, ids []uuid.UUID) ([]core.ModuleSummary, error) {
	var out []core.ModuleSummary
	for _, s := range f.summaries {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type fakeNotifier struct {
	mu        sync.Mutex
	reminders map[string]int
}

func (n *fakeNotifier) NotifyProvisioned(context.Context, []core.UserRecord) error { return nil }

func (n *fakeNotifier) SendReminder(_ context.Context, email string, modules []core.ModuleSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reminders == nil {
		n.reminders = map[string]int{}
	}
	n.reminders[email] += len(modules)
	return nil
}

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"DATABASE_URL":       "postgres://localhost/modreview_test",
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) (string, bool) {
		v, ok := base[k]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

type harness struct {
	store    *fakeStore
	notifier *fakeNotifier
	service  *core.Service
	server   *Server
}

func newHarness(t *testing.T, env map[string]string, opts ...core.ServiceOption) *harness {
	t.Helper()
	h := &harness{store: &fakeStore{}, notifier: &fakeNotifier{}}
	base := []core.ServiceOption{
		core.WithNotifier(h.notifier),
		core.WithUserFactory(&core.UserFactory{HashCost: bcrypt.MinCost}),
		core.WithClock(func() time.Time { return time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC) }),
	}
	h.service = core.NewService(h.store, append(base, opts...)...)
	h.server = NewServer(h.service, testConfig(t, env))
	t.Cleanup(func() { _ = h.server.Shutdown(context.Background()) })
	return h
}

func (h *harness) do(req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	var body apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func uploadRequest(t *testing.T, fileName, content, query string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/modules/upload"+query, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const roster = "Module Code,Name,Level,Tutor,In Use\n" +
	"AC11001,Financial Accounting,4,Jane Doe,yes\n" +
	"AC11002,Management Accounting,4,Jane Doe,no\n"

type importBody struct {
	Data core.ImportReport `json:"data"`
}

func TestImport_FullSuccess(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(uploadRequest(t, "roster.csv", roster, ""))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, body.Success)
	assert.Equal(t, "Upload completed successfully", body.Message)

	var rep importBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 2, rep.Data.Stats.TotalProcessed)
	assert.Equal(t, 2, rep.Data.Stats.ModulesAdded)
	assert.Equal(t, 1, rep.Data.Stats.UsersAdded)
	assert.Equal(t, 2024, rep.Data.Stats.AcademicYear)
	assert.Len(t, h.store.modules, 2)
}

func TestImport_PartialIs206(t *testing.T) {
	h := newHarness(t, nil)
	content := roster + "bad,Broken,4,,\n"

	rec, body := h.do(uploadRequest(t, "roster.csv", content, ""))

	require.Equal(t, http.StatusPartialContent, rec.Code, rec.Body.String())
	assert.False(t, body.Success)
	assert.Equal(t, "Upload completed with errors", body.Message)

	var rep importBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Data.Errors, 1)
	assert.Equal(t, "Row 4: Invalid module code 'bad'", rep.Data.Errors[0])
	assert.Equal(t, 2, rep.Data.Stats.ModulesAdded)
}

func TestImport_WarningsStayFullSuccess(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.do(uploadRequest(t, "roster.csv", roster, ""))

	rec, body := h.do(uploadRequest(t, "roster.csv", roster, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	var rep importBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Len(t, rep.Data.Warnings, 2)
	assert.Zero(t, rep.Data.Stats.ModulesAdded)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(uploadRequest(t, "roster.csv", roster, "?dry_run=true&academic_year=2025"))

	require.Equal(t, http.StatusOK, rec.Code)
	var rep importBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.True(t, rep.Data.DryRun)
	assert.Equal(t, 2, rep.Data.Stats.ModulesAdded)
	assert.Equal(t, 2025, rep.Data.Stats.AcademicYear)
	assert.Empty(t, h.store.modules)
	assert.Empty(t, h.store.users)
}

func TestImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		fileName string
		content  string
		query    string
		wantCode string
	}{
		{"missing columns", nil, "roster.csv", "Module Code,Tutor\nAC11001,Jane\n", "", "IMP001"},
		{"empty file", nil, "roster.csv", "", "", "IMP003"},
		{"unsupported extension", nil, "roster.txt", roster, "", "FILE002"},
		{"signature mismatch", nil, "roster.xlsx", roster, "", "FILE003"},
		{"corrupt workbook", nil, "roster.xlsx", "PK\x03\x04 junk", "", "FILE004"},
		{"no file", nil, "", "", "", "FILE005"},
		{"too large", map[string]string{"IMPORT_MAX_FILE_SIZE": "64"}, "roster.csv", roster + strings.Repeat("x", 512), "", "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.env)

			rec, body := h.do(uploadRequest(t, tt.fileName, tt.content, tt.query))

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestImport_MissingColumnsListed(t *testing.T) {
	h := newHarness(t, nil)

	_, body := h.do(uploadRequest(t, "roster.csv", "Tutor\nJane\n", ""))

	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0], "module_code")
	assert.Contains(t, body.Errors[0], "level")
}

func TestImport_BadQuery(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(uploadRequest(t, "roster.csv", roster, "?dry_run=perhaps"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(uploadRequest(t, "roster.csv", roster, "?academic_year=-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport_TooManyImports(t *testing.T) {
	limiter := core.NewImportLimiter(1, 10*time.Millisecond)
	h := newHarness(t, nil, core.WithLimiter(limiter))
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	rec, body := h.do(uploadRequest(t, "roster.csv", roster, ""))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "IMP002", body.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Empty(t, h.store.modules)
}

func TestCodePrefixesAndCounts(t *testing.T) {
	h := newHarness(t, nil)
	content := roster + "BM22001,Marketing,5,Ann Lee,yes\n"
	_, _ = h.do(uploadRequest(t, "roster.csv", content, ""))

	rec, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/modules/code-prefixes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var prefixes struct {
		Data struct {
			Prefixes []string `json:"prefixes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefixes))
	assert.ElementsMatch(t, []string{"AC", "BM"}, prefixes.Data.Prefixes)

	rec, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/modules/counts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var counts struct {
		Data struct {
			Counts core.ModuleCounts `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, core.ModuleCounts{AcademicYear: 2024, Total: 3, Pending: 3}, counts.Data.Counts)

	rec, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/modules/counts?academic_year=2023", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Zero(t, counts.Data.Counts.Total)

	rec, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/modules/counts?academic_year=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func reminderRequestBody(ids ...string) *http.Request {
	b, _ := json.Marshal(map[string]any{"modules": ids})
	req := httptest.NewRequest(http.MethodPost, "/api/modules/reminders", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSendReminders(t *testing.T) {
	h := newHarness(t, nil)
	a, b, noLead := uuid.New(), uuid.New(), uuid.New()
	h.store.summaries = []core.ModuleSummary{
		{ID: a, ModuleCode: "AC11001", LeadEmail: "janedoe@ames.edu.eu"},
		{ID: b, ModuleCode: "AC11002", LeadEmail: "janedoe@ames.edu.eu"},
		{ID: noLead, ModuleCode: "AC11003"},
	}

	rec, body := h.do(reminderRequestBody(a.String(), b.String(), noLead.String(), "not-a-uuid"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, body.Success)
	assert.Equal(t, "Successfully sent 2 reminder(s) with 1 error(s)", body.Message)
	assert.Equal(t, map[string]int{"janedoe@ames.edu.eu": 2}, h.notifier.reminders)
}

func TestSendReminders_Failures(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(httptest.NewRequest(http.MethodPost, "/api/modules/reminders", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := h.do(reminderRequestBody("nope"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No valid module IDs provided", body.Message)

	missing := uuid.New()
	rec, body = h.do(reminderRequestBody(missing.String()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send reminders: Module "+missing.String()+" not found", body.Message)
}

func TestSendReminders_NoNotifier(t *testing.T) {
	h := newHarness(t, nil, core.WithNotifier(nil))

	rec, _ := h.do(reminderRequestBody(uuid.NewString()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	rec, body := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	h.store.pingErr = errors.New("dial tcp: connection refused")
	rec, body = h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DB003", body.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	h := newHarness(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "secret"})

	rec, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/modules/code-prefixes", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/modules/code-prefixes", nil)
	req.Header.Set("X-API-Key", "secret")
	rec, _ = h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, map[string]string{
		"RATE_LIMIT_ENABLED":             "true",
		"RATE_LIMIT_REQUESTS_PER_MINUTE": "2",
	})

	for i := 0; i < 2; i++ {
		rec, _ := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", body.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("1.1.1.1"))
}
