package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/modreview/internal/core"
)

// CodePrefixes returns distinct module code prefixes in ascending order.
func (s *Store) CodePrefixes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT code_prefix FROM modules ORDER BY code_prefix`)
	if err != nil {
		return nil, fmt.Errorf("query code prefixes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CountModules returns review progress for academicYear.
func (s *Store) CountModules(ctx context.Context, academicYear int) (core.ModuleCounts, error) {
	c := core.ModuleCounts{AcademicYear: academicYear}
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE NOT review_submitted),
       COUNT(*) FILTER (WHERE review_submitted)
FROM modules
WHERE academic_year = $1`, academicYear).Scan(&c.Total, &c.Pending, &c.Completed)
	if err != nil {
		return core.ModuleCounts{}, fmt.Errorf("count modules: %w", err)
	}
	return c, nil
}

// ModulesByID loads modules with their lead's name and email. Unknown IDs
// are silently absent from the result.
func (s *Store) ModulesByID(ctx context.Context, ids []uuid.UUID) ([]core.ModuleSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT m.id, m.module_code, m.module_name, m.academic_year, m.review_submitted,
       COALESCE(u.username, ''), COALESCE(u.email, '')
FROM modules m
LEFT JOIN users u ON u.id = m.module_lead_id
WHERE m.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ModuleSummary, error) {
		var m core.ModuleSummary
		err := row.Scan(&m.ID, &m.ModuleCode, &m.ModuleName, &m.AcademicYear,
			&m.ReviewSubmitted, &m.LeadName, &m.LeadEmail)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan modules: %w", err)
	}
	return out, nil
}
