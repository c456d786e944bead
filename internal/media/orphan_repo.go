package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/internal/repo"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Orphan reasons recorded in the ledger.
const (
	OrphanReasonReplaced = "replaced"
	OrphanReasonDeleted  = "product_deleted"
	OrphanReasonRollback = "rollback"
	OrphanReasonAudit    = "audit"
)

// OrphanEntry describes a file left behind by a failed deletion.
type OrphanEntry struct {
	ProductID uuid.UUID
	Namespace string
	URL       string
	Reason    string
	Err       error
}

// OrphanRecorder persists orphan entries so a later sweep can retry them.
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, entry OrphanEntry) error
}

// OrphanRepository stores the orphan ledger in the media_orphans table.
type OrphanRepository struct {
	repo.Base
}

// NewOrphanRepository constructs an orphan repository bound to the provided GORM DB.
func NewOrphanRepository(db *gorm.DB) *OrphanRepository {
	return &OrphanRepository{Base: repo.NewBase(db)}
}

// RecordOrphan inserts a ledger row for entry.
func (r *OrphanRepository) RecordOrphan(ctx context.Context, entry OrphanEntry) error {
	row := &models.MediaOrphan{
		Namespace: entry.Namespace,
		URL:       entry.URL,
		Reason:    entry.Reason,
	}
	if entry.ProductID != uuid.Nil {
		id := entry.ProductID
		row.ProductID = &id
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		row.LastError = &msg
	}
	return r.DB(ctx).Create(row).Error
}

// ListPending returns unswept orphans recorded before cutoff with fewer than
// maxAttempts attempts, oldest first.
func (r *OrphanRepository) ListPending(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.MediaOrphan, error) {
	var rows []models.MediaOrphan
	query := r.DB(ctx).
		Where("swept_at IS NULL AND created_at <= ?", cutoff)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSwept closes a ledger row.
func (r *OrphanRepository) MarkSwept(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.MediaOrphan{}).
		Where("id = ?", id).
		Update("swept_at", at).Error
}

// MarkFailed bumps the attempt counter and stores the last error.
func (r *OrphanRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.DB(ctx).
		Model(&models.MediaOrphan{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
}
