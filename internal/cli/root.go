// Package cli implements rosterctl, the operator command line for roster
// imports and schema migrations.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreview/internal/application"
	"github.com/JonMunkholm/modreview/internal/config"
	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// Env supplies the collaborators commands reach outside the process for.
type Env struct {
	// OpenService returns a ready service and a func releasing it.
	OpenService func(ctx context.Context) (*core.Service, func(), error)
	// Migrate applies pending migrations and returns the schema version.
	Migrate func(ctx context.Context) (int64, error)
	// Now is the clock used when no date is given.
	Now func() time.Time
}

// DefaultEnv wires commands to the configured database.
func DefaultEnv() Env {
	return Env{
		OpenService: func(ctx context.Context) (*core.Service, func(), error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, nil, err
			}
			app, err := application.New(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return app.Service, app.Close, nil
		},
		Migrate: func(ctx context.Context) (int64, error) {
			cfg, err := loadConfig()
			if err != nil {
				return 0, err
			}
			return application.Migrate(ctx, cfg)
		},
		Now: time.Now,
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// NewRootCmd builds the rosterctl command tree over env.
func NewRootCmd(env Env) *cobra.Command {
	if env.Now == nil {
		env.Now = time.Now
	}

	root := &cobra.Command{
		Use:   "rosterctl",
		Short: "Import module rosters and manage the module review database",
		Long: `rosterctl reconciles CSV or Excel module rosters against the module review
database, creating new modules and module lead accounts for an academic year.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newImportCommand(env))
	root.AddCommand(newMigrateCommand(env))
	root.AddCommand(newYearCommand(env))
	return root
}
