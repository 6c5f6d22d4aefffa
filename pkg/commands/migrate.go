package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-ledger/pkg/application"
)

type migrateFunc func(application.MigrationManager, context.Context, *pgxpool.Pool) ([]application.MigrationStatus, error)

// NewMigrateCommand creates the migrate command with up, down and status.
func NewMigrateCommand(load AppLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}
	cmd.AddCommand(
		migrateSubcommand(load, "up", "Apply all pending migrations", application.MigrationManager.Up),
		migrateSubcommand(load, "down", "Roll back the latest migration of every schema", application.MigrationManager.Down),
		migrateSubcommand(load, "status", "List migrations and whether they are applied", application.MigrationManager.Status),
	)
	return cmd
}

func migrateSubcommand(load AppLoader, use, short string, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := run(app.Migrations(), cmd.Context(), app.DB())
			if printErr := PrintMigrations(cmd.OutOrStdout(), statuses); printErr != nil && err == nil {
				err = printErr
			}
			return err
		},
	}
}

func PrintMigrations(w io.Writer, statuses []application.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "SCHEMA\tVERSION\tAPPLIED\tPATH"); err != nil {
		return err
	}
	for _, s := range statuses {
		if _, err := fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", s.Schema, s.Version, s.Applied, s.Path); err != nil {
			return err
		}
	}
	return tw.Flush()
}
