package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/loxhome-core/internal/dashboard"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/database"
	"github.com/nerrad567/loxhome-core/internal/localstore"
	"github.com/nerrad567/loxhome-core/migrations"
)

const defaultDatabasePath = "./data/loxhome.db"

func (a *app) newDBCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the local loxhome database",
		Long: `Work on the SQLite database loxhome keeps next to the service: schema
migrations and the cached dashboard config. Stop loxhome first.`,
	}
	cmd.PersistentFlags().StringVar(&path, "database", "", "Database file (env LOXHOME_DATABASE_PATH, default "+defaultDatabasePath+")")

	open := func(cmd *cobra.Command) (context.Context, *database.DB, func(), error) {
		p := path
		if p == "" {
			p = a.opts.Getenv("LOXHOME_DATABASE_PATH")
		}
		if p == "" {
			p = defaultDatabasePath
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
		db, err := database.Open(ctx, config.DatabaseConfig{Path: p, WALMode: true, BusyTimeout: 5})
		if err != nil {
			cancel()
			return nil, nil, nil, err
		}
		return ctx, db, func() {
			db.Close() //nolint:errcheck // read-mostly
			cancel()
		}, nil
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, db, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			names := migrationNames()
			for _, r := range applied {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Version, names[r.Version], r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, m := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Version, m.Name, "pending")
			}
			return w.Flush()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, db, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			n, err := db.Migrate(ctx, migrations.FS)
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n) //nolint:errcheck // terminal output
			return nil
		},
	}

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, db, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := db.MigrateDown(ctx, migrations.FS); err != nil {
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "rolled back latest migration") //nolint:errcheck // terminal output
			return nil
		},
	}

	clearCache := &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop the locally cached dashboard config",
		Long: `Remove the dashboard config cached in the local database. loxhome then
loads the config from the backend, or the default when the backend has none.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, db, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			if _, err := db.Migrate(ctx, migrations.FS); err != nil {
				return err
			}
			if err := localstore.NewSQLiteStorage(db.DB).RemoveItem(ctx, dashboard.LocalKey); err != nil {
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "cleared cached dashboard config") //nolint:errcheck // terminal output
			return nil
		},
	}

	cmd.AddCommand(status, migrate, rollback, clearCache)
	return cmd
}

// migrationNames maps embedded migration versions to their names.
func migrationNames() map[string]string {
	all, err := database.LoadMigrations(migrations.FS)
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(all))
	for _, m := range all {
		names[m.Version] = m.Name
	}
	return names
}
