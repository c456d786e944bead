package controllers

import (
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/miuvuu/miuvuu-backend/api/responses"
	"github.com/miuvuu/miuvuu-backend/api/validators"
	"github.com/miuvuu/miuvuu-backend/internal/media"
	productsvc "github.com/miuvuu/miuvuu-backend/internal/products"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

// Form field names shared with the storefront admin.
const (
	fieldName           = "nombre"
	fieldDescription    = "descripcion"
	fieldPrice          = "precio"
	fieldQuantity       = "cantidad"
	fieldCategory       = "categoria_id"
	fieldImage          = "image"
	fieldAdditional     = "additional_images"
	fieldExistingImages = "existing_images"
)

// UploadLimits bounds one product form.
type UploadLimits struct {
	MaxBytes int64
	MaxFiles int
}

type productForm struct {
	Name        string `form:"nombre" validate:"required,min=3,max=100,product_name"`
	Description string `form:"descripcion" validate:"max=500"`
	Quantity    int64  `form:"cantidad" validate:"min=0"`
	CategoryID  int64  `form:"categoria_id" validate:"required,gt=0"`
}

// ListProducts returns every product, optionally filtered by category.
func ListProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		category, err := validators.QueryInt64(r, fieldCategory, 1, math.MaxInt64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListProducts(r.Context(), productsvc.ListProductsInput{CategoryID: category})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetProduct returns one product.
func GetProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// CreateProduct handles the multipart product form, storing any images sent
// under image and additional_images.
func CreateProduct(svc productsvc.Service, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		if err := validators.ParseMultipart(w, r, limits.MaxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		form, price, err := readCreateForm(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		files, err := formUploads(r, limits)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.CreateProduct(r.Context(), productsvc.CreateProductInput{
			CategoryID:  form.CategoryID,
			Name:        form.Name,
			Description: form.Description,
			Price:       price,
			Quantity:    int(form.Quantity),
			Files:       files,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// UpdateProduct applies a partial multipart form. existing_images, when sent,
// is the full list of current images to keep; new files are appended.
func UpdateProduct(svc productsvc.Service, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := validators.ParseMultipart(w, r, limits.MaxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		input, err := readUpdateForm(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.Files, err = formUploads(r, limits); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.UpdateProduct(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// DeleteProduct removes a product and its images.
func DeleteProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func productIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return id, nil
}

func readCreateForm(r *http.Request) (productForm, decimal.Decimal, error) {
	name, _ := validators.FormValue(r, fieldName)
	description, _ := validators.FormValue(r, fieldDescription)
	form := productForm{
		Name:        strings.TrimSpace(name),
		Description: validators.SanitizeString(description, 0),
	}

	quantity, err := validators.FormInt(r, fieldQuantity)
	if err != nil {
		return form, decimal.Zero, err
	}
	if quantity == nil {
		return form, decimal.Zero, missingField(fieldQuantity)
	}
	form.Quantity = *quantity
	category, err := validators.FormInt(r, fieldCategory)
	if err != nil {
		return form, decimal.Zero, err
	}
	if category != nil {
		form.CategoryID = *category
	}
	price, err := validators.FormDecimal(r, fieldPrice)
	if err != nil {
		return form, decimal.Zero, err
	}
	if price == nil {
		return form, decimal.Zero, missingField(fieldPrice)
	}
	if err := checkPrice(*price); err != nil {
		return form, decimal.Zero, err
	}
	if err := validators.Struct(&form); err != nil {
		return form, decimal.Zero, err
	}
	return form, price.Round(2), nil
}

func readUpdateForm(r *http.Request) (productsvc.UpdateProductInput, error) {
	var input productsvc.UpdateProductInput
	// Absent fields keep their stored values, so the struct rules run against
	// a form that only carries what was sent.
	form := productForm{Name: "keep", CategoryID: 1}

	if name, ok := validators.FormValue(r, fieldName); ok {
		form.Name = strings.TrimSpace(name)
		input.Name = &form.Name
	}
	if description, ok := validators.FormValue(r, fieldDescription); ok {
		form.Description = validators.SanitizeString(description, 0)
		input.Description = &form.Description
	}
	quantity, err := validators.FormInt(r, fieldQuantity)
	if err != nil {
		return input, err
	}
	if quantity != nil {
		form.Quantity = *quantity
		qty := int(*quantity)
		input.Quantity = &qty
	}
	category, err := validators.FormInt(r, fieldCategory)
	if err != nil {
		return input, err
	}
	if category != nil {
		form.CategoryID = *category
		input.CategoryID = category
	}
	price, err := validators.FormDecimal(r, fieldPrice)
	if err != nil {
		return input, err
	}
	if price != nil {
		if err := checkPrice(*price); err != nil {
			return input, err
		}
		rounded := price.Round(2)
		input.Price = &rounded
	}
	if err := validators.Struct(&form); err != nil {
		return input, err
	}

	if input.KeptImages, err = validators.FormStringList(r, fieldExistingImages); err != nil {
		return input, err
	}
	return input, nil
}

func formUploads(r *http.Request, limits UploadLimits) ([]media.Upload, error) {
	headers := validators.FormFiles(r, fieldImage, fieldAdditional)
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many images").
			WithDetails(map[string]any{"max_files": limits.MaxFiles, "received": len(headers)})
	}
	uploads := make([]media.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, media.UploadFromHeader(fh))
	}
	return uploads, nil
}

func checkPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{fieldPrice: "must be greater than zero"})
	}
	return nil
}

func missingField(field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{field: "is required"})
}
