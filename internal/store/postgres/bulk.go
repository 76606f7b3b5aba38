package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/modreview/internal/core"
)

const (
	// upsertUserSQL resolves an existing username to its identity. The no-op
	// update makes RETURNING yield the conflicting row; xmax is 0 only for a
	// freshly inserted tuple.
	upsertUserSQL = `
INSERT INTO users (id, username, email, password_hash, role, is_active, needs_credential)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
RETURNING id, (xmax = 0) AS created`

	insertModuleSQL = `
INSERT INTO modules (id, module_code, code_prefix, module_name, level, module_lead_id,
                     academic_year, in_use, review_submitted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// document is one row of a bulk write.
type document struct {
	key   string
	write func(ctx context.Context, tx pgx.Tx) error
}

// InsertUsers stores users. A username that already exists resolves to the
// stored identity; other constraint violations skip the user.
func (s *Store) InsertUsers(ctx context.Context, users []core.UserRecord) ([]core.StoredUser, error) {
	out := make([]core.StoredUser, len(users))
	docs := make([]document, len(users))
	for i, u := range users {
		docs[i] = document{
			key: u.Username,
			write: func(ctx context.Context, tx pgx.Tx) error {
				var got core.StoredUser
				err := tx.QueryRow(ctx, upsertUserSQL,
					u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.IsActive, u.NeedsCredential,
				).Scan(&got.ID, &got.Created)
				if err != nil {
					return err
				}
				out[i] = got
				return nil
			},
		}
	}

	_, err := s.insertEach(ctx, "users", docs)
	var bwe *core.BulkWriteError
	if err != nil && !errors.As(err, &bwe) {
		return nil, err
	}
	return out, err
}

// InsertModules stores modules, skipping any that violate a constraint.
func (s *Store) InsertModules(ctx context.Context, modules []core.ModuleRecord) (int, error) {
	docs := make([]document, len(modules))
	for i, m := range modules {
		args := []any{m.ID, m.ModuleCode, m.CodePrefix, m.ModuleName, m.Level, m.ModuleLeadID,
			m.AcademicYear, m.InUse, m.ReviewSubmitted}
		docs[i] = document{
			key: fmt.Sprintf("%s/%d", m.ModuleCode, m.AcademicYear),
			write: func(ctx context.Context, tx pgx.Tx) error {
				_, err := tx.Exec(ctx, insertModuleSQL, args...)
				return err
			},
		}
	}
	return s.insertEach(ctx, "modules", docs)
}

// insertEach writes docs in one transaction, isolating each insert behind a
// savepoint so a failing document does not abort the others. Per-document
// failures come back as *core.BulkWriteError; any other error means nothing
// was stored.
func (s *Store) insertEach(ctx context.Context, collection string, docs []document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", collection, err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	bwe := &core.BulkWriteError{Collection: collection, Attempted: len(docs)}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%s: cancelled at document %d: %w", collection, i, err)
		}

		sp := fmt.Sprintf("doc_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return 0, fmt.Errorf("%s: savepoint: %w", collection, err)
		}

		if err := doc.write(ctx, tx); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return 0, fmt.Errorf("%s: rollback savepoint: %w", collection, rbErr)
			}
			bwe.Failures = append(bwe.Failures, core.DocumentFailure{
				Index:  i,
				Key:    doc.key,
				Reason: describe(err),
			})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return 0, fmt.Errorf("%s: release savepoint: %w", collection, err)
		}
		bwe.Inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", collection, err)
	}

	if len(bwe.Failures) > 0 {
		return bwe.Inserted, bwe
	}
	return bwe.Inserted, nil
}

// SQLSTATE codes surfaced as document failures.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// describe renders a per-document database error for the import report.
func describe(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return "duplicate key value violates unique constraint " + pgErr.ConstraintName
	case codeForeignKeyViolation:
		return "insert violates foreign key constraint " + pgErr.ConstraintName
	default:
		return pgErr.Message
	}
}
