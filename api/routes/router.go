package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miuvuu/miuvuu-backend/api/controllers"
	"github.com/miuvuu/miuvuu-backend/api/middleware"
	products "github.com/miuvuu/miuvuu-backend/internal/products"
	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

// NewRouter wires the HTTP surface. redisP may be nil when Redis is not
// configured; gatherer may be nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	gatherer prometheus.Gatherer,
	productService products.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadyDeps{
			DB:          dbP,
			Redis:       redisP,
			StorageRoot: cfg.Storage.Root,
		}))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	uploads := "/" + cfg.Storage.UploadsSegment + "/"
	static := controllers.MediaFiles(cfg.Storage.Root, uploads)
	r.Method(http.MethodGet, uploads+"*", static)
	r.Method(http.MethodHead, uploads+"*", static)

	limits := controllers.UploadLimits{
		MaxBytes: cfg.Media.MaxUploadBytes(),
		MaxFiles: cfg.Media.MaxFilesPerForm,
	}
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(productService, logg))
		r.Post("/", controllers.CreateProduct(productService, limits, logg))
		r.Get("/{productId}", controllers.GetProduct(productService, logg))
		r.Put("/{productId}", controllers.UpdateProduct(productService, limits, logg))
		r.Delete("/{productId}", controllers.DeleteProduct(productService, logg))
	})

	return r
}
