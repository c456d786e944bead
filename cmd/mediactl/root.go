package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/miuvuu/miuvuu-backend/internal/media"
	products "github.com/miuvuu/miuvuu-backend/internal/products"
	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/miuvuu/miuvuu-backend/pkg/db"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/migrate"
)

// app holds what every subcommand shares. The database and media stack are
// opened on first use so commands that only need config stay offline.
type app struct {
	cfg      *config.Config
	logg     *logger.Logger
	dbClient *db.Client
	stack    *media.Stack
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mediactl",
		Short:         "Operate on product media storage",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	root.AddCommand(newMigrateCommand(a))
	root.AddCommand(newAuditCommand(a))
	root.AddCommand(newSweepCommand(a))
	root.AddCommand(newDescribeCommand(a))
	root.AddCommand(newDBCommand(a))
	return root
}

func (a *app) load() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logg = logger.New(logger.Options{
		ServiceName: "mediactl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	return nil
}

// open connects to the database and builds the media stack.
func (a *app) open(ctx context.Context) error {
	if a.stack != nil {
		return nil
	}
	dbClient, err := db.New(ctx, a.cfg.DB, a.logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	a.dbClient = dbClient
	if err := migrate.MaybeRunDev(ctx, a.cfg, a.logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}
	stack, err := media.NewStack(media.StackParams{
		Config: a.cfg,
		DB:     dbClient.DB(),
		Logger: a.logg,
	})
	if err != nil {
		return fmt.Errorf("build media stack: %w", err)
	}
	a.stack = stack
	return nil
}

func (a *app) products() *products.Repository {
	return products.NewRepository(a.dbClient.DB())
}

func (a *app) close() error {
	if a.dbClient == nil {
		return nil
	}
	err := a.dbClient.Close()
	a.dbClient = nil
	a.stack = nil
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
