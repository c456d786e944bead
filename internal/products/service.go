package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/internal/locks"
	"github.com/miuvuu/miuvuu-backend/internal/media"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	dbtypes "github.com/miuvuu/miuvuu-backend/pkg/db/types"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes product management operations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	CategoryID  int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	Files       []media.Upload
}

// UpdateProductInput holds optional mutation values for a product. A nil
// KeptImages leaves the current images in place and appends Files; a non-nil
// value is the full list of current images to keep.
type UpdateProductInput struct {
	CategoryID  *int64
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	KeptImages  *[]string
	Files       []media.Upload
}

// ListProductsInput filters product listings.
type ListProductsInput struct {
	CategoryID *int64
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type mediaPreparer interface {
	Prepare(ctx context.Context, in media.Input) (*media.Changeset, error)
}

type mediaRemover interface {
	Resolve(url string) (string, error)
	DeleteAllForProduct(ctx context.Context, productID uuid.UUID, urls []string) error
}

// ServiceParams wires the product service.
type ServiceParams struct {
	Repo       *Repository
	DB         txRunner
	Reconciler mediaPreparer
	Cleanup    mediaRemover
	Locks      locks.Keyed
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	db         txRunner
	reconciler mediaPreparer
	cleanup    mediaRemover
	locks      locks.Keyed
	logg       *logger.Logger
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("media reconciler required")
	}
	if params.Cleanup == nil {
		return nil, fmt.Errorf("media cleanup required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("product locks required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       params.Repo,
		db:         params.DB,
		reconciler: params.Reconciler,
		cleanup:    params.Cleanup,
		locks:      params.Locks,
		logg:       params.Logger,
	}, nil
}

// CreateProduct stores the uploads in a fresh namespace, then inserts the row.
// A failed insert removes the stored files again.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if err := validateAttributes(name, input.Price, input.Quantity, input.CategoryID); err != nil {
		return nil, err
	}

	productID := uuid.New()
	ctx = s.logg.WithProductID(ctx, productID.String())

	changes, err := s.reconciler.Prepare(ctx, media.Input{
		ProductID:   productID,
		ProductName: name,
		Files:       input.Files,
	})
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          productID,
		CategoryID:  input.CategoryID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price.Round(2),
		Quantity:    input.Quantity,
		Media:       dbtypes.MediaList(changes.Record...),
	}
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).CreateProduct(ctx, product)
		return err
	}); err != nil {
		changes.Rollback(ctx)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
	}
	changes.Commit(ctx)

	s.logg.Info(ctx, "product.created")
	return NewProductDTO(product), nil
}

// UpdateProduct applies attribute changes and reconciles images under the
// product lock. Replaced files are deleted only after the row commits.
func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	ctx = s.logg.WithProductID(ctx, productID.String())

	handle, err := s.locks.Acquire(ctx, productID.String())
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, handle)

	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}

	applyUpdateToProduct(product, input)
	if err := validateAttributes(product.Name, product.Price, product.Quantity, product.CategoryID); err != nil {
		return nil, err
	}

	previous := product.Media.URLs()
	var changes *media.Changeset
	if input.KeptImages != nil || len(input.Files) > 0 {
		kept := previous
		if input.KeptImages != nil {
			kept = *input.KeptImages
		}
		changes, err = s.reconciler.Prepare(ctx, media.Input{
			ProductID:   productID,
			ProductName: product.Name,
			Previous:    previous,
			Kept:        kept,
			Files:       input.Files,
		})
		if err != nil {
			return nil, err
		}
		product.Media = dbtypes.MediaList(changes.Record...)
	}

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).UpdateProduct(ctx, product)
		return err
	}); err != nil {
		if changes != nil {
			changes.Rollback(ctx)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
	}
	if changes != nil {
		changes.Commit(ctx)
	}

	s.logg.Info(ctx, "product.updated")
	return NewProductDTO(product), nil
}

// DeleteProduct checks every media reference, removes the row, then its
// files. A reference outside the storage root aborts before anything changes;
// file cleanup failures after the row is gone are logged and recorded but do
// not fail the request.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	ctx = s.logg.WithProductID(ctx, productID.String())

	handle, err := s.locks.Acquire(ctx, productID.String())
	if err != nil {
		return err
	}
	defer s.release(ctx, handle)

	product, err := s.load(ctx, productID)
	if err != nil {
		return err
	}
	urls := product.Media.URLs()
	for _, u := range urls {
		if _, err := s.cleanup.Resolve(u); err != nil {
			s.logg.Error(ctx, "product.delete.media_rejected", err)
			return err
		}
	}

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteProduct(ctx, productID)
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product")
	}

	if err := s.cleanup.DeleteAllForProduct(ctx, productID, urls); err != nil {
		s.logg.Warn(ctx, "product.delete.media_cleanup_incomplete: "+err.Error())
	}
	s.logg.Info(ctx, "product.deleted")
	return nil
}

// GetProduct returns a single product.
func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

// ListProducts returns every product, newest first.
func (s *service) ListProducts(ctx context.Context, input ListProductsInput) ([]ProductDTO, error) {
	rows, err := s.repo.List(ctx, ListFilter{CategoryID: input.CategoryID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return NewProductDTOs(rows), nil
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) release(ctx context.Context, handle locks.Releaser) {
	if err := handle.Release(ctx); err != nil {
		s.logg.Error(ctx, "product.lock.release_failed", err)
	}
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.CategoryID != nil {
		product.CategoryID = *input.CategoryID
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		product.Price = input.Price.Round(2)
	}
	if input.Quantity != nil {
		product.Quantity = *input.Quantity
	}
}

func validateAttributes(name string, price decimal.Decimal, quantity int, categoryID int64) error {
	details := map[string]string{}
	if len([]rune(name)) < 3 {
		details["name"] = "must be at least 3 characters"
	}
	if !price.IsPositive() {
		details["price"] = "must be greater than zero"
	}
	if quantity < 0 {
		details["quantity"] = "cannot be negative"
	}
	if categoryID <= 0 {
		details["category_id"] = "is required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}
