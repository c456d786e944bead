package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	dbtypes "github.com/miuvuu/miuvuu-backend/pkg/db/types"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/metrics"
)

// Migration outcomes per product.
const (
	OutcomeAlreadyList = "already_list"
	OutcomeWrapped     = "wrapped"
	OutcomeMoved       = "moved"
	OutcomeResumed     = "resumed"
	OutcomeMissing     = "missing"
	OutcomeConflict    = "conflict"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
)

const defaultMigrationBatch = 200

type migrationStore interface {
	ListBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Product, error)
	UpdateMedia(ctx context.Context, id uuid.UUID, media dbtypes.MediaField) error
}

// MigratorParams wires a Migrator.
type MigratorParams struct {
	Mapper    *Mapper
	Cleanup   *Cleanup
	Store     migrationStore
	Logger    *logger.Logger
	Metrics   *metrics.MediaMetrics
	BatchSize int
	DryRun    bool
}

// Migrator moves legacy single-path products into namespaced list records.
// It is safe to rerun: finished products are skipped and a product whose
// file already sits at its destination is only rewritten.
type Migrator struct {
	mapper    *Mapper
	cleanup   *Cleanup
	store     migrationStore
	logg      *logger.Logger
	metrics   *metrics.MediaMetrics
	batchSize int
	dryRun    bool
}

// MigrationResult reports what happened, or would happen, to one product.
type MigrationResult struct {
	ProductID uuid.UUID `json:"product_id"`
	Outcome   string    `json:"outcome"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
}

// MigrationReport sums outcomes over a full run.
type MigrationReport struct {
	DryRun   bool              `json:"dry_run"`
	Scanned  int               `json:"scanned"`
	Outcomes map[string]int    `json:"outcomes"`
	Results  []MigrationResult `json:"results,omitempty"`
}

// NewMigrator validates params and returns a Migrator.
func NewMigrator(params MigratorParams) (*Migrator, error) {
	switch {
	case params.Mapper == nil:
		return nil, fmt.Errorf("mapper required")
	case params.Cleanup == nil:
		return nil, fmt.Errorf("cleanup required")
	case params.Store == nil:
		return nil, fmt.Errorf("product store required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultMigrationBatch
	}
	return &Migrator{
		mapper:    params.Mapper,
		cleanup:   params.Cleanup,
		store:     params.Store,
		logg:      params.Logger,
		metrics:   params.Metrics,
		batchSize: batch,
		dryRun:    params.DryRun,
	}, nil
}

// MigrateAll walks every product in ID order. Per-product failures are
// logged and counted; only listing failures abort the run.
func (m *Migrator) MigrateAll(ctx context.Context) (MigrationReport, error) {
	report := MigrationReport{DryRun: m.dryRun, Outcomes: map[string]int{}}
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := m.store.ListBatch(ctx, after, m.batchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			return report, nil
		}
		for idx := range batch {
			product := &batch[idx]
			report.Scanned++
			result, err := m.MigrateOne(ctx, product)
			if err != nil {
				m.logg.Error(m.logg.WithProductID(ctx, product.ID.String()), "media.migrate.product_failed", err)
				result.Outcome = OutcomeFailed
				m.record(result)
			}
			report.Outcomes[result.Outcome]++
			if result.Outcome != OutcomeAlreadyList {
				report.Results = append(report.Results, result)
			}
		}
		after = batch[len(batch)-1].ID
	}
}

// MigrateOne converts a single product.
func (m *Migrator) MigrateOne(ctx context.Context, product *models.Product) (MigrationResult, error) {
	result := MigrationResult{ProductID: product.ID}
	legacy, ok := product.Media.LegacyPath()
	if !ok {
		result.Outcome = OutcomeAlreadyList
		return result, nil
	}
	ctx = m.logg.WithProductID(ctx, product.ID.String())
	source := m.mapper.Normalize(legacy)
	result.From = source

	if m.mapper.FolderOf(source) != "" {
		result.To = source
		result.Outcome = OutcomeWrapped
		return m.finish(ctx, product, result)
	}

	rel, ok := m.mapper.ToPath(source)
	if !ok || strings.ContainsAny(rel, `/\`) {
		result.Outcome = OutcomeInvalid
		m.logg.Warn(ctx, "media.migrate.unrecognized_path "+legacy)
		return m.record(result), nil
	}
	src, err := m.cleanup.Resolve(source)
	if err != nil {
		result.Outcome = OutcomeInvalid
		m.logg.Warn(ctx, "media.migrate.rejected_path "+legacy)
		return m.record(result), nil
	}

	filename := filepath.Base(rel)
	namespace := legacyNamespaceFor(filename)
	dstDir := filepath.Join(m.mapper.ProductsDir(), namespace)
	dst := filepath.Join(dstDir, filename)
	result.To = m.mapper.NamespaceURL(namespace, filename)
	if ok, err := Confined(m.mapper.Root(), dst); err != nil || !ok {
		result.Outcome = OutcomeInvalid
		m.logg.Warn(ctx, "media.migrate.rejected_destination "+result.To)
		return m.record(result), nil
	}

	srcExists := fileExists(src)
	dstExists := fileExists(dst)
	switch {
	case srcExists && dstExists:
		result.Outcome = OutcomeConflict
		m.logg.Warn(ctx, "media.migrate.destination_exists "+result.To)
		return m.record(result), nil
	case !srcExists && dstExists:
		result.Outcome = OutcomeResumed
	case !srcExists:
		result.Outcome = OutcomeMissing
		m.logg.Warn(ctx, "media.migrate.source_missing "+source)
		return m.record(result), nil
	default:
		result.Outcome = OutcomeMoved
		if !m.dryRun {
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return result, ioError(err, "create namespace directory")
			}
			if err := os.Rename(src, dst); err != nil {
				return result, ioError(err, "move legacy file")
			}
		}
	}
	return m.finish(ctx, product, result)
}

func (m *Migrator) finish(ctx context.Context, product *models.Product, result MigrationResult) (MigrationResult, error) {
	if m.dryRun {
		return result, nil
	}
	media := dbtypes.MediaList(result.To)
	if err := m.store.UpdateMedia(ctx, product.ID, media); err != nil {
		return result, err
	}
	product.Media = media
	m.logg.Info(ctx, "media.migrate."+result.Outcome+" "+result.To)
	return m.record(result), nil
}

func (m *Migrator) record(result MigrationResult) MigrationResult {
	if !m.dryRun {
		m.metrics.IncMigrated(result.Outcome)
	}
	return result
}

// legacyNamespaceFor derives the namespace of a flat legacy file from the
// part of its name before the first underscore.
func legacyNamespaceFor(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if idx := strings.Index(stem, "_"); idx >= 0 {
		stem = stem[:idx]
	}
	return Sanitize(stem)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
