package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/modreview/internal/logging"
)

var (
	// ErrNoModulesSelected is returned when a reminder request names no modules.
	ErrNoModulesSelected = errors.New("no modules selected")
	// ErrNoNotifier is returned when reminders are requested without a notifier.
	ErrNoNotifier = errors.New("no notifier configured")
)

// CodePrefixes returns the distinct module code prefixes, sorted.
func (s *Service) CodePrefixes(ctx context.Context) ([]string, error) {
	prefixes, err := s.store.CodePrefixes(ctx)
	if err != nil {
		return nil, fmt.Errorf("code prefixes: %w", err)
	}
	return prefixes, nil
}

// ModuleCounts returns review progress for an academic year. Year 0 selects
// the current academic year.
func (s *Service) ModuleCounts(ctx context.Context, year int) (ModuleCounts, error) {
	if year == 0 {
		year = s.CurrentAcademicYear()
	}
	counts, err := s.store.CountModules(ctx, year)
	if err != nil {
		return ModuleCounts{}, fmt.Errorf("count modules for %d: %w", year, err)
	}
	counts.AcademicYear = year
	return counts, nil
}

// ReminderResult summarises a reminder run.
type ReminderResult struct {
	SuccessCount int      `json:"success_count"` // Modules covered by a sent reminder
	Errors       []string `json:"errors"`
}

// Message is the human summary of the run.
func (r *ReminderResult) Message() string {
	if r.SuccessCount == 0 {
		return "Failed to send reminders: " + strings.Join(r.Errors, "; ")
	}
	msg := fmt.Sprintf("Successfully sent %d reminder(s)", r.SuccessCount)
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf(" with %d error(s)", len(r.Errors))
	}
	return msg
}

// SendReminders emails each module lead once about all of their selected
// modules. Missing modules, leads without an address and failed sends are
// reported per item and do not stop the run.
func (s *Service) SendReminders(ctx context.Context, ids []uuid.UUID) (*ReminderResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoModulesSelected
	}
	if s.notifier == nil {
		return nil, ErrNoNotifier
	}

	modules, err := s.store.ModulesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	byID := make(map[uuid.UUID]ModuleSummary, len(modules))
	for _, m := range modules {
		byID[m.ID] = m
	}

	res := &ReminderResult{Errors: []string{}}
	var order []string
	groups := make(map[string][]ModuleSummary)
	seen := make(map[uuid.UUID]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		m, ok := byID[id]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("Module %s not found", id))
			continue
		}
		if m.LeadEmail == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("No email found for module %s", m.ModuleCode))
			continue
		}
		if _, exists := groups[m.LeadEmail]; !exists {
			order = append(order, m.LeadEmail)
		}
		groups[m.LeadEmail] = append(groups[m.LeadEmail], m)
	}

	log := logging.FromContext(ctx)
	for _, email := range order {
		mods := groups[email]
		if err := s.notifier.SendReminder(ctx, email, mods); err != nil {
			log.Warn("reminder failed", "email", email, "modules", len(mods), "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to send email to %s: %v", email, err))
			continue
		}
		res.SuccessCount += len(mods)
	}

	log.Info("reminders sent", "success_count", res.SuccessCount, "errors", len(res.Errors))
	return res, nil
}
