// Package application assembles the service from configuration. Both the
// HTTP server and rosterctl start here.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/modreview/internal/config"
	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/notify"
	"github.com/JonMunkholm/modreview/internal/store/postgres"
)

// App owns the long-lived resources of a running process.
type App struct {
	Config  *config.Config
	Pool    *pgxpool.Pool
	Store   *postgres.Store
	Service *core.Service
}

// New connects to the database, applies migrations when configured and
// builds the service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := postgres.Connect(ctx, postgres.PoolOptions{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	slog.Info("connected to database", "name", databaseName(cfg.Database.URL))

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	profile, err := config.LoadProfile(cfg.Import.ProfilePath)
	if err != nil {
		pool.Close()
		return nil, err
	}

	notifier, err := NewNotifier(cfg.Mail)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store := postgres.New(pool)
	svc, err := NewService(store, cfg, profile, notifier)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{Config: cfg, Pool: pool, Store: store, Service: svc}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// NewService builds a core.Service over store using the import settings and
// the optional profile.
func NewService(store core.Store, cfg *config.Config, profile *config.Profile, notifier core.Notifier) (*core.Service, error) {
	opts, err := ServiceOptions(cfg, profile)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		opts = append(opts, core.WithNotifier(notifier))
	}
	return core.NewService(store, opts...), nil
}

// ServiceOptions translates configuration into core options. Profile values
// take precedence over the environment for the email domain.
func ServiceOptions(cfg *config.Config, profile *config.Profile) ([]core.ServiceOption, error) {
	domain := cfg.Import.EmailDomain
	aliases := core.DefaultAliases()
	var affirmative []string

	if profile != nil {
		if profile.EmailDomain != "" {
			domain = profile.EmailDomain
		}
		extra, err := aliasExtras(profile.Aliases)
		if err != nil {
			return nil, err
		}
		aliases = aliases.WithExtra(extra)
		affirmative = profile.Affirmative
	}

	opts := []core.ServiceOption{
		core.WithLimiter(core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)),
		core.WithImportTimeout(cfg.Import.Timeout),
		core.WithAliases(aliases),
		core.WithUserFactory(&core.UserFactory{Domain: domain}),
	}
	if len(affirmative) > 0 {
		opts = append(opts, core.WithAffirmative(affirmative))
	}
	return opts, nil
}

// aliasExtras converts profile aliases, rejecting unknown field names.
func aliasExtras(raw map[string][]string) (map[core.Field][]string, error) {
	known := make(map[core.Field]bool)
	for _, fa := range core.DefaultAliases() {
		known[fa.Field] = true
	}

	out := make(map[core.Field][]string, len(raw))
	var unknown []string
	for name, list := range raw {
		f := core.Field(name)
		if !known[f] {
			unknown = append(unknown, name)
			continue
		}
		out[f] = list
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("import profile: unknown alias fields: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// NewNotifier returns an SMTP mailer when mail is enabled, otherwise a
// logging notifier.
func NewNotifier(cfg config.MailConfig) (core.Notifier, error) {
	if !cfg.Enabled {
		return notify.LogNotifier{}, nil
	}
	m, err := notify.NewMailer(notify.MailConfig{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		From:      cfg.From,
		SystemURL: cfg.SystemURL,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("mail: %w", err)
	}
	return m, nil
}

func databaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Migrate applies pending schema migrations and returns the resulting
// version. It does not build a service.
func Migrate(ctx context.Context, cfg *config.Config) (int64, error) {
	pool, err := postgres.Connect(ctx, postgres.PoolOptions{
		URL:      cfg.Database.URL,
		MaxConns: 2,
	})
	if err != nil {
		return 0, fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return 0, err
	}
	return postgres.MigrationVersion(ctx, pool)
}
