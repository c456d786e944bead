package cron

import (
	"context"
	"fmt"

	"github.com/miuvuu/miuvuu-backend/internal/media"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

type auditRunner interface {
	Run(ctx context.Context) (media.AuditReport, error)
}

// OrphanAuditJob reports, and optionally deletes, stored files that no
// product references.
type OrphanAuditJob struct {
	logg    *logger.Logger
	auditor auditRunner
}

// NewOrphanAuditJob wraps an auditor as a cron job.
func NewOrphanAuditJob(logg *logger.Logger, auditor auditRunner) (*OrphanAuditJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("auditor required")
	}
	return &OrphanAuditJob{logg: logg, auditor: auditor}, nil
}

func (j *OrphanAuditJob) Name() string { return "media-orphan-audit" }

func (j *OrphanAuditJob) Run(ctx context.Context) error {
	report, err := j.auditor.Run(ctx)
	if err != nil {
		return fmt.Errorf("media audit: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":      report.Scanned,
		"unreferenced": len(report.Unreferenced),
		"deleted":      report.Deleted,
	})
	if len(report.Unreferenced) > report.Deleted {
		j.logg.Warn(logCtx, "media.audit.unreferenced_files")
		return nil
	}
	j.logg.Info(logCtx, "media.audit.complete")
	return nil
}
