package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/modreview/internal/core"
)

// ModuleKeys returns the codes already stored for academicYear.
func (s *Store) ModuleKeys(ctx context.Context, academicYear int) ([]core.ModuleKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT module_code FROM modules WHERE academic_year = $1`, academicYear)
	if err != nil {
		return nil, fmt.Errorf("query module keys: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan module keys: %w", err)
	}

	keys := make([]core.ModuleKey, len(codes))
	for i, c := range codes {
		keys[i] = core.ModuleKey{Code: c, Year: academicYear}
	}
	return keys, nil
}

// Usernames maps every stored username to its identity.
func (s *Store) Usernames(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var name string
		var id uuid.UUID
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return out, nil
}
