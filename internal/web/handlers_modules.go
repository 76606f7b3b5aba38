package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/modreview/internal/core"
)

// maxReminderBody bounds the JSON body of a reminder request.
const maxReminderBody = 1 << 20

func (s *Server) handleCodePrefixes(w http.ResponseWriter, r *http.Request) {
	prefixes, err := s.service.CodePrefixes(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if prefixes == nil {
		prefixes = []string{}
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: fmt.Sprintf("%d prefix(es)", len(prefixes)),
		Data:    map[string]any{"prefixes": prefixes},
	})
}

func (s *Server) handleModuleCounts(w http.ResponseWriter, r *http.Request) {
	year := 0
	if v := r.URL.Query().Get("academic_year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y <= 0 {
			badRequest(w, fmt.Sprintf("invalid academic_year %q", v))
			return
		}
		year = y
	}

	counts, err := s.service.ModuleCounts(r.Context(), year)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: fmt.Sprintf("Module counts for %d", counts.AcademicYear),
		Data:    map[string]any{"counts": counts},
	})
}

type reminderRequest struct {
	Modules []string `json:"modules"`
}

// handleSendReminders emails the leads of the selected modules. Malformed
// ids are skipped; the request fails only when nothing valid remains or
// every send failed.
func (s *Server) handleSendReminders(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReminderBody)).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ids := parseModuleIDs(req.Modules)
	if len(ids) == 0 {
		badRequest(w, "No valid module IDs provided")
		return
	}

	res, err := s.service.SendReminders(r.Context(), ids)
	switch {
	case errors.Is(err, core.ErrNoNotifier):
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	case err != nil:
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if res.SuccessCount == 0 {
		writeJSON(w, http.StatusInternalServerError, apiResponse{
			Message: res.Message(),
			Errors:  res.Errors,
		})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: res.Message(),
		Data:    res,
	})
}

func parseModuleIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// handleHealth reports store reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	imports := s.service.Limiter().Status()
	if err := s.service.Ping(r.Context()); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "ok",
		Data:    map[string]any{"imports": imports},
	})
}
