package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miuvuu/miuvuu-backend/pkg/db"
	"github.com/miuvuu/miuvuu-backend/pkg/migrate"
)

func newDBCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the products and media_orphans schema",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory for the configured dialect (empty uses the embedded set)")

	for _, command := range []struct{ name, short string }{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the latest migration"},
		{"status", "Print applied and pending migrations"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   command.name,
			Short: command.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sqlDB, err := a.sqlDB(cmd)
				if err != nil {
					return err
				}
				return migrate.Run(cmd.Context(), sqlDB, migrate.Dialect(a.cfg.DB), dir, command.name)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version VERSION",
		Short: "Migrate up or down to VERSION (YYYYMMDDHHMMSS, 0 drops everything)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlDB, err := a.sqlDB(cmd)
			if err != nil {
				return err
			}
			return migrate.MigrateToVersion(cmd.Context(), sqlDB, migrate.Dialect(a.cfg.DB), dir, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Write a new goose SQL migration (one file per dialect unless --dir is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if dir == "" {
				created, err := migrate.CreateDialectMigrations(migrate.DefaultDir, args[0])
				if err != nil {
					return err
				}
				paths = created
			} else {
				path, err := migrate.CreateSQLMigration(dir, args[0])
				if err != nil {
					return err
				}
				paths = []string{path}
			}
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check migration filenames and goose headers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.ValidateDir(dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return nil
		},
	})
	return cmd
}

// sqlDB opens the database without the media stack or dev auto-migrate, so
// schema commands act on the database exactly as it is.
func (a *app) sqlDB(cmd *cobra.Command) (*sql.DB, error) {
	if a.dbClient == nil {
		client, err := db.New(cmd.Context(), a.cfg.DB, a.logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap database: %w", err)
		}
		a.dbClient = client
	}
	return a.dbClient.DB().DB()
}
