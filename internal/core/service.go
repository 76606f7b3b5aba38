package core

// service.go wires reconciliation to the store and the notifier.
//
// An import is one synchronous pass:
//
//	resolve columns -> acquire slot -> snapshot -> reconcile -> commit -> notify
//
// The store is read twice (concurrently) before the fold and written twice
// after it. Structural problems, snapshot failures and limiter rejection are
// returned as errors; everything else ends up in the report.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/modreview/internal/logging"
)

// Service is the entry point for roster imports and module queries.
type Service struct {
	store       Store
	notifier    Notifier
	limiter     *ImportLimiter
	aliases     AliasTable
	affirmative []string
	users       *UserFactory
	timeout     time.Duration
	now         func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithNotifier sets the collaborator told about new accounts and reminders.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithLimiter sets the import concurrency limiter.
func WithLimiter(l *ImportLimiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithAliases replaces the column alias table.
func WithAliases(t AliasTable) ServiceOption {
	return func(s *Service) { s.aliases = t }
}

// WithAffirmative replaces the in_use vocabulary.
func WithAffirmative(words []string) ServiceOption {
	return func(s *Service) { s.affirmative = words }
}

// WithUserFactory sets how missing module leads are synthesised.
func WithUserFactory(f *UserFactory) ServiceOption {
	return func(s *Service) { s.users = f }
}

// WithImportTimeout bounds a single import, snapshot to commit.
func WithImportTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithClock overrides the time source used to pick the academic year.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		aliases:     DefaultAliases(),
		affirmative: DefaultAffirmative,
		users:       &UserFactory{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(0, 0)
	}
	return s
}

// Limiter exposes the import limiter for status reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CurrentAcademicYear returns the bucket for the service clock.
func (s *Service) CurrentAcademicYear() int {
	return AcademicYear(s.now())
}

// ImportOptions control a single import.
type ImportOptions struct {
	DryRun       bool // Reconcile and report without writing
	AcademicYear int  // Override the bucket (0 = current)
}

// ImportRoster reconciles table against stored state and persists new
// modules and module leads.
func (s *Service) ImportRoster(ctx context.Context, table *Table, opts ImportOptions) (*ImportReport, error) {
	if table == nil || len(table.Headers) == 0 {
		return nil, ErrEmptyRoster
	}

	cols, err := ResolveColumns(table.Headers, s.aliases)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx = logging.WithImportID(ctx, uuid.NewString())
	year := opts.AcademicYear
	if year == 0 {
		year = s.CurrentAcademicYear()
	}
	log := logging.WithFields(ctx,
		"file", table.FileName,
		"rows", len(table.Rows),
		"academic_year", year,
		"dry_run", opts.DryRun,
	)
	log.Info("import started")
	start := time.Now()

	snap, err := s.snapshot(ctx, year)
	if err != nil {
		log.Error("snapshot failed", "error", err)
		return nil, fmt.Errorf("load existing records: %w", err)
	}

	rec := Reconcile(table.Rows, cols, snap, ReconcileOptions{
		AcademicYear: year,
		Affirmative:  s.affirmative,
		Users:        s.users,
	})

	if opts.DryRun {
		rep := BuildReport(rec, nil)
		log.Info("dry run finished",
			"modules_queued", rep.Stats.ModulesAdded,
			"users_queued", rep.Stats.UsersAdded,
			"warnings", len(rep.Warnings),
			"errors", len(rep.Errors),
			"duration", time.Since(start),
		)
		return rep, nil
	}

	commit := Commit(ctx, s.store, rec.Modules, rec.Users)
	rep := BuildReport(rec, &commit)

	s.notifyProvisioned(ctx, commit.Users)

	log.Info("import finished",
		"outcome", rep.Outcome(),
		"modules_added", rep.Stats.ModulesAdded,
		"users_added", rep.Stats.UsersAdded,
		"warnings", len(rep.Warnings),
		"errors", len(rep.Errors),
		"duration", time.Since(start),
	)
	return rep, nil
}

// snapshot reads the persisted module keys for year and the username map.
func (s *Service) snapshot(ctx context.Context, year int) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		keys, err := s.store.ModuleKeys(gctx, year)
		if err != nil {
			return fmt.Errorf("module keys: %w", err)
		}
		snap.ModuleKeys = keys
		return nil
	})
	g.Go(func() error {
		users, err := s.store.Usernames(gctx)
		if err != nil {
			return fmt.Errorf("usernames: %w", err)
		}
		snap.Users = users
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// notifyProvisioned tells the notifier about stored leads. Failures are
// logged and never affect the import.
func (s *Service) notifyProvisioned(ctx context.Context, users []UserRecord) {
	if s.notifier == nil || len(users) == 0 {
		return
	}
	if err := s.notifier.NotifyProvisioned(ctx, users); err != nil {
		logging.FromContext(ctx).Warn("provisioning notice failed", "users", len(users), "error", err)
	}
}
