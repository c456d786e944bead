package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/miuvuu/miuvuu-backend/internal/cron"
	"github.com/miuvuu/miuvuu-backend/internal/media"
)

func newMigrateCommand(a *app) *cobra.Command {
	var (
		dryRun    bool
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy single-path products into namespaced media lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			migrator, err := media.NewMigrator(media.MigratorParams{
				Mapper:    a.stack.Mapper,
				Cleanup:   a.stack.Cleanup,
				Store:     a.products(),
				Logger:    a.logg,
				BatchSize: batchSize,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}
			report, err := migrator.MigrateAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned moves without touching files or rows")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "products read per batch (0 uses the default)")
	return cmd
}

func newAuditCommand(a *app) *cobra.Command {
	var (
		remove bool
		grace  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List stored files that no product references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if grace <= 0 {
				grace = a.cfg.Cron.AuditGrace
			}
			auditor, err := media.NewAuditor(media.AuditorParams{
				Mapper:  a.stack.Mapper,
				Cleanup: a.stack.Cleanup,
				Store:   a.products(),
				Logger:  a.logg,
				Grace:   grace,
				Delete:  remove,
			})
			if err != nil {
				return err
			}
			report, err := auditor.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "delete unreferenced files")
	cmd.Flags().DurationVar(&grace, "grace", 0, "skip files modified within this window (0 uses config)")
	return cmd
}

func newSweepCommand(a *app) *cobra.Command {
	var (
		grace     time.Duration
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry deletions recorded in the orphan ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if grace <= 0 {
				grace = a.cfg.Cron.OrphanGrace
			}
			job, err := cron.NewOrphanSweepJob(cron.OrphanSweepJobParams{
				Logger:      a.logg,
				Ledger:      a.stack.Orphans,
				References:  a.products(),
				Cleanup:     a.stack.Cleanup,
				Grace:       grace,
				MaxAttempts: a.cfg.Cron.OrphanMaxAttempt,
				BatchSize:   batchSize,
			})
			if err != nil {
				return err
			}
			result, err := job.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "only sweep entries older than this (0 uses config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "ledger rows per run (0 uses the default)")
	return cmd
}

type describedURL struct {
	media.Descriptor
	Path   string `json:"path,omitempty"`
	Legacy bool   `json:"legacy"`
	Error  string `json:"error,omitempty"`
}

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe URL...",
		Short: "Show how media URLs map onto the storage root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper := media.NewMapper(a.cfg.Storage)
			cleanup, err := media.NewCleanup(media.CleanupParams{Mapper: mapper, Logger: a.logg})
			if err != nil {
				return err
			}
			out := make([]describedURL, 0, len(args))
			for _, raw := range args {
				desc := mapper.Describe(raw)
				item := describedURL{Descriptor: desc, Legacy: desc.IsLegacy()}
				if abs, err := cleanup.Resolve(raw); err != nil {
					item.Error = err.Error()
				} else {
					item.Path = abs
				}
				out = append(out, item)
			}
			return printJSON(cmd, out)
		},
	}
}
