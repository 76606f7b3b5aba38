package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/sheet"
)

// ErrImportHadErrors is returned after a report with errors was printed, so
// scripts see a non-zero exit status.
var ErrImportHadErrors = errors.New("import finished with errors")

type importFlags struct {
	dryRun bool
	output string
	year   int
}

func newImportCommand(env Env) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a module roster (.csv or .xlsx)",
		Long: `Import reads a roster, skips modules that already exist for the academic
year, creates module lead accounts for unknown leads and prints a report.

Rows with problems are reported and skipped; they never stop the import.`,
		Example: `  rosterctl import roster.xlsx
  rosterctl import roster.csv --dry-run --output json
  rosterctl import roster.csv --year 2025`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(flags.output)
			if err != nil {
				return err
			}
			if flags.year < 0 {
				return fmt.Errorf("invalid --year %d", flags.year)
			}

			table, err := readRosterFile(args[0])
			if err != nil {
				return err
			}

			svc, release, err := env.OpenService(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			rep, err := svc.ImportRoster(cmd.Context(), table, core.ImportOptions{
				DryRun:       flags.dryRun,
				AcademicYear: flags.year,
			})
			if err != nil {
				return userError(err)
			}

			if err := renderReport(cmd.OutOrStdout(), rep, format); err != nil {
				return err
			}
			if rep.Outcome() != core.OutcomeSuccess {
				return ErrImportHadErrors
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Reconcile and report without writing")
	cmd.Flags().StringVarP(&flags.output, "output", "o", string(formatTable), "Output format (table|json)")
	cmd.Flags().IntVar(&flags.year, "year", 0, "Academic year to import into (default: current)")

	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(formatTable), string(formatJSON)}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// readRosterFile checks the file signature against its extension and
// decodes it.
func readRosterFile(path string) (*core.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := sheet.Sniff(head, path); err != nil {
		return nil, userError(err)
	}

	table, err := sheet.Decode(path, br)
	if err != nil {
		return nil, userError(err)
	}
	return table, nil
}

// userError prefixes err with its coded user message and keeps it unwrappable.
func userError(err error) error {
	m := core.MapError(err)
	return fmt.Errorf("%s (%s): %w", m.Message, m.Code, err)
}
