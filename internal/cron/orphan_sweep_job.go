package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

const (
	defaultOrphanGrace       = time.Hour
	defaultOrphanMaxAttempts = 5
	defaultOrphanBatch       = 500
)

type orphanLedger interface {
	ListPending(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.MediaOrphan, error)
	MarkSwept(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

type urlReferences interface {
	ReferencesURL(ctx context.Context, url string) (bool, error)
}

type mediaDeleter interface {
	DeleteFile(ctx context.Context, url string) error
}

// OrphanSweepJobParams wires the orphan ledger sweep.
type OrphanSweepJobParams struct {
	Logger      *logger.Logger
	Ledger      orphanLedger
	References  urlReferences
	Cleanup     mediaDeleter
	Grace       time.Duration
	MaxAttempts int
	BatchSize   int
}

// OrphanSweepResult counts what one sweep did.
type OrphanSweepResult struct {
	Candidates int `json:"candidates"`
	Deleted    int `json:"deleted"`
	Reused     int `json:"reused"`
	Failed     int `json:"failed"`
}

// OrphanSweepJob retries deletions recorded in the orphan ledger.
type OrphanSweepJob struct {
	logg        *logger.Logger
	ledger      orphanLedger
	refs        urlReferences
	cleanup     mediaDeleter
	grace       time.Duration
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

// NewOrphanSweepJob validates params and returns the sweep job.
func NewOrphanSweepJob(params OrphanSweepJobParams) (*OrphanSweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("orphan ledger required")
	}
	if params.References == nil {
		return nil, fmt.Errorf("reference checker required")
	}
	if params.Cleanup == nil {
		return nil, fmt.Errorf("media cleanup required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultOrphanMaxAttempts
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOrphanBatch
	}
	return &OrphanSweepJob{
		logg:        params.Logger,
		ledger:      params.Ledger,
		refs:        params.References,
		cleanup:     params.Cleanup,
		grace:       grace,
		maxAttempts: maxAttempts,
		batchSize:   batch,
		now:         time.Now,
	}, nil
}

func (j *OrphanSweepJob) Name() string { return "media-orphan-sweep" }

func (j *OrphanSweepJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep handles one batch of ledger rows older than the grace window. A URL
// that a product lists again is closed without touching the file.
func (j *OrphanSweepJob) Sweep(ctx context.Context) (OrphanSweepResult, error) {
	var result OrphanSweepResult
	cutoff := j.now().UTC().Add(-j.grace)
	rows, err := j.ledger.ListPending(ctx, cutoff, j.maxAttempts, j.batchSize)
	if err != nil {
		return result, fmt.Errorf("list orphans: %w", err)
	}
	result.Candidates = len(rows)

	for _, row := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		rowCtx := j.logg.WithFields(ctx, map[string]any{
			"orphan_id": row.ID.String(),
			"url":       row.URL,
		})

		referenced, err := j.refs.ReferencesURL(rowCtx, row.URL)
		if err != nil {
			return result, fmt.Errorf("check orphan reference: %w", err)
		}
		if referenced {
			if err := j.ledger.MarkSwept(rowCtx, row.ID, j.now().UTC()); err != nil {
				return result, fmt.Errorf("mark orphan swept: %w", err)
			}
			result.Reused++
			continue
		}

		if err := j.cleanup.DeleteFile(rowCtx, row.URL); err != nil {
			result.Failed++
			if pkgerrors.IsCode(err, pkgerrors.CodePathTraversal) {
				j.logg.Error(rowCtx, "media.orphan_sweep.traversal", err)
			} else {
				j.logg.Warn(rowCtx, "media.orphan_sweep.delete_failed: "+err.Error())
			}
			if markErr := j.ledger.MarkFailed(rowCtx, row.ID, err); markErr != nil {
				return result, fmt.Errorf("mark orphan failed: %w", markErr)
			}
			continue
		}
		if err := j.ledger.MarkSwept(rowCtx, row.ID, j.now().UTC()); err != nil {
			return result, fmt.Errorf("mark orphan swept: %w", err)
		}
		result.Deleted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": result.Candidates,
		"deleted":    result.Deleted,
		"reused":     result.Reused,
		"failed":     result.Failed,
	})
	j.logg.Info(logCtx, "media.orphan_sweep.complete")
	return result, nil
}
