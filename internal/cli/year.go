package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreview/internal/core"
)

const dateLayout = "2006-01-02"

func newYearCommand(env Env) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "year",
		Short: "Print the academic year for today or a given date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := env.Now()
			if at != "" {
				parsed, err := time.Parse(dateLayout, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q (want YYYY-MM-DD)", at)
				}
				t = parsed
			}

			year := core.AcademicYear(t)
			start := time.Date(year, core.AcademicYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(1, 0, -1)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d (%s to %s)\n", year, start.Format(dateLayout), end.Format(dateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Date to resolve (YYYY-MM-DD)")
	return cmd
}
