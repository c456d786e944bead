package media

import (
	"fmt"
	"os"

	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/metrics"
	"gorm.io/gorm"
)

// StackParams wires every media component from one configuration.
type StackParams struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *logger.Logger
	Metrics *metrics.MediaMetrics
}

// Stack holds the media components shared by the api, the cron worker and
// the operator CLI.
type Stack struct {
	Mapper     *Mapper
	Allocator  *Allocator
	Normalizer *Normalizer
	Ingestor   *Ingestor
	Cleanup    *Cleanup
	Reconciler *Reconciler
	Orphans    *OrphanRepository
}

// NewStack creates the storage root when missing and builds the components.
func NewStack(params StackParams) (*Stack, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config

	mapper := NewMapper(cfg.Storage)
	if err := os.MkdirAll(mapper.ProductsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create products dir: %w", err)
	}

	orphans := NewOrphanRepository(params.DB)
	cleanup, err := NewCleanup(CleanupParams{
		Mapper:  mapper,
		Logger:  params.Logger,
		Metrics: params.Metrics,
		Orphans: orphans,
	})
	if err != nil {
		return nil, err
	}

	normalizer := NewNormalizer()
	ingestor, err := NewIngestor(IngestorParams{
		Mapper:     mapper,
		Normalizer: normalizer,
		Logger:     params.Logger,
		Metrics:    params.Metrics,
		MaxBytes:   cfg.Media.MaxUploadBytes(),
	})
	if err != nil {
		return nil, err
	}

	allocator := NewAllocator(mapper)
	reconciler, err := NewReconciler(ReconcilerParams{
		Mapper:     mapper,
		Allocator:  allocator,
		Ingestor:   ingestor,
		Cleanup:    cleanup,
		Logger:     params.Logger,
		StrictKept: cfg.Media.StrictKept,
	})
	if err != nil {
		return nil, err
	}

	return &Stack{
		Mapper:     mapper,
		Allocator:  allocator,
		Normalizer: normalizer,
		Ingestor:   ingestor,
		Cleanup:    cleanup,
		Reconciler: reconciler,
		Orphans:    orphans,
	}, nil
}
