package product

import (
	"context"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/internal/repo"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	dbtypes "github.com/miuvuu/miuvuu-backend/pkg/db/types"
	"gorm.io/gorm"
)

// ProductRepository defines CRUD operations for product listings.
type ProductRepository interface {
	FindByID(context.Context, uuid.UUID) (*models.Product, error)
	List(context.Context, ListFilter) ([]models.Product, error)
	CreateProduct(context.Context, *models.Product) (*models.Product, error)
	UpdateProduct(context.Context, *models.Product) (*models.Product, error)
	UpdateMedia(context.Context, uuid.UUID, dbtypes.MediaField) error
	DeleteProduct(context.Context, uuid.UUID) error
	ListBatch(context.Context, uuid.UUID, int) ([]models.Product, error)
	ListMediaURLs(context.Context) ([]string, error)
}

const mediaURLBatch = 500

// ListFilter narrows product listings.
type ListFilter struct {
	CategoryID *int64
}

// Repository persists products and their media records.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(tx)}
}

// FindByID loads a product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	var rows []models.Product
	query := r.DB(ctx)
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	err := query.Order("created_at DESC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.DB(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct writes every column of an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.DB(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateMedia replaces only the media record of a product.
func (r *Repository) UpdateMedia(ctx context.Context, id uuid.UUID, media dbtypes.MediaField) error {
	result := r.DB(ctx).Model(&models.Product{}).Where("id = ?", id).Update("media", media)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProduct removes a product by ID.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	result := r.DB(ctx).Where("id = ?", id).Delete(&models.Product{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListBatch pages through every product in id order, for maintenance scans.
func (r *Repository) ListBatch(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := r.DB(ctx).Scopes(repo.Keyset(afterID, limit)).Find(&rows).Error
	return rows, err
}

// ListMediaURLs returns every media reference held by any product, legacy
// single paths included. Only the id and media columns are read.
func (r *Repository) ListMediaURLs(ctx context.Context) ([]string, error) {
	var (
		urls  []string
		after uuid.UUID
	)
	for {
		var rows []models.Product
		err := r.DB(ctx).Select("id", "media").Scopes(repo.Keyset(after, mediaURLBatch)).Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			urls = append(urls, row.Media.URLs()...)
		}
		if len(rows) < mediaURLBatch {
			return urls, nil
		}
		after = rows[len(rows)-1].ID
	}
}

// ReferencesURL reports whether any product still lists url. The match runs on
// the stored text so legacy single-path rows are covered too.
func (r *Repository) ReferencesURL(ctx context.Context, url string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Product{}).
		Where("CAST(media AS TEXT) LIKE ? ESCAPE '\\'", "%"+escapeLike(url)+"%").
		Count(&count).Error
	return count > 0, err
}

func escapeLike(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
