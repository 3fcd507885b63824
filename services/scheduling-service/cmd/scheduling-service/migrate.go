package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/services/scheduling-service/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, a *app) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("migrations applied", "versions", applied)
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, _ *app) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, st := range statuses {
					applied := "pending"
					if st.AppliedAt != nil {
						applied = st.AppliedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%03d\t%s\t%s\n", st.Version, st.Name, applied)
				}
				return tw.Flush()
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()
	return fn(ctx, db.NewMigrator(a.pool, storage.Migrations, storage.MigrationsDir), a)
}
