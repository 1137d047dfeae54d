package main

import (
	"SparkLedger/internal/config"
	"SparkLedger/internal/observability"
	"SparkLedger/internal/persistence"
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	dsnFlag           string
	migrationsDirFlag string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Postgres connection string (default $SPARK_POSTGRES_DSN)")
	rootCmd.PersistentFlags().StringVar(&migrationsDirFlag, "dir", "", "Migrations directory (default $SPARK_MIGRATIONS_DIR)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(statusCmd)
}

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply or roll back SparkLedger schema migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			n, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			if err := m.Down(ctx); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back last migration")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *persistence.Migrator) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tFILE\tAPPLIED")
			for _, s := range statuses {
				applied := "no"
				if s.Applied {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Version, s.Filename, applied)
			}
			return w.Flush()
		})
	},
}

// withMigrator opens the database from flags or the SPARK_* environment.
func withMigrator(ctx context.Context, fn func(context.Context, *persistence.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dsnFlag != "" {
		cfg.PostgresDSN = dsnFlag
	}
	if migrationsDirFlag != "" {
		cfg.MigrationsDir = migrationsDirFlag
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	logger := observability.NewLoggerTo(os.Stderr, "migrate", observability.ParseLogLevel(cfg.LogLevel))
	return fn(ctx, persistence.NewMigrator(db, cfg.MigrationsDir, logger))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}
