package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/metrics"
)

// Upload is one incoming file from a product form.
type Upload struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadFromHeader adapts a parsed multipart file part.
func UploadFromHeader(h *multipart.FileHeader) Upload {
	return Upload{
		Filename:    h.Filename,
		ContentType: h.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return h.Open()
		},
	}
}

// BytesUpload wraps in-memory content as an Upload.
func BytesUpload(filename, contentType string, data []byte) Upload {
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// IngestorParams wires an Ingestor.
type IngestorParams struct {
	Mapper     *Mapper
	Normalizer *Normalizer
	Logger     *logger.Logger
	Metrics    *metrics.MediaMetrics
	MaxBytes   int64
}

// Ingestor stores uploads inside a product namespace.
type Ingestor struct {
	mapper     *Mapper
	normalizer *Normalizer
	logg       *logger.Logger
	metrics    *metrics.MediaMetrics
	maxBytes   int64
	now        func() time.Time
	randN      func(int) int
}

// NewIngestor validates params and returns an Ingestor.
func NewIngestor(params IngestorParams) (*Ingestor, error) {
	if params.Mapper == nil {
		return nil, fmt.Errorf("mapper required")
	}
	if params.Normalizer == nil {
		return nil, fmt.Errorf("normalizer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ingestor{
		mapper:     params.Mapper,
		normalizer: params.Normalizer,
		logg:       params.Logger,
		metrics:    params.Metrics,
		maxBytes:   params.MaxBytes,
		now:        time.Now,
		randN:      rand.IntN,
	}, nil
}

// Ingest writes up into namespace, normalizes it to WebP and returns the
// public URL of the stored file.
func (i *Ingestor) Ingest(ctx context.Context, namespace string, up Upload) (string, error) {
	if !validSegment(namespace) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid media namespace")
	}
	if up.Open == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "upload has no content")
	}

	declared := up.ContentType
	ext := ""
	if !needsSniff(declared) {
		format, err := CanonicalFormat(declared)
		if err != nil {
			return "", err
		}
		ext = extensionFor(format)
	} else {
		ext = strings.ToLower(filepath.Ext(up.Filename))
		if ext == "" || strings.ContainsAny(ext, `/\`) {
			ext = ".bin"
		}
	}

	dir := filepath.Join(i.mapper.ProductsDir(), namespace)
	ok, err := Confined(i.mapper.Root(), dir)
	if err != nil {
		return "", ioError(err, "resolve namespace directory")
	}
	if !ok {
		i.metrics.IncTraversal()
		return "", traversal(namespace)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ioError(err, "create namespace directory")
	}

	stored, err := i.write(ctx, dir, up, ext)
	if err != nil {
		return "", err
	}

	final, err := i.normalizer.Normalize(stored, declared)
	if err != nil {
		if rmErr := os.Remove(stored); rmErr != nil && !os.IsNotExist(rmErr) {
			i.logg.Error(ctx, "media.ingest.remove_rejected_failed", rmErr)
		}
		return "", err
	}
	if final != stored {
		i.metrics.IncConverted()
		if rmErr := os.Remove(stored); rmErr != nil && !os.IsNotExist(rmErr) {
			i.logg.Error(ctx, "media.ingest.remove_original_failed", rmErr)
		}
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(stored)), ".")
	i.metrics.IncIngested(format)

	url := i.mapper.NamespaceURL(namespace, filepath.Base(final))
	i.logg.Debug(i.logg.WithNamespace(ctx, namespace), "media.ingest.stored "+url)
	return url, nil
}

func (i *Ingestor) write(ctx context.Context, dir string, up Upload, ext string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(up.Filename), filepath.Ext(up.Filename))
	slug := Sanitize(stem)

	var (
		f    *os.File
		path string
	)
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s_%s_%d%s", slug, i.now().UTC().Format(namespaceTimestamp), i.randN(1_000_000), ext)
		path = filepath.Join(dir, name)
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", ioError(err, "create upload file")
		}
		f = nil
	}
	if f == nil {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique file name")
	}

	src, err := up.Open()
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", ioError(err, "open upload")
	}
	defer src.Close()

	var reader io.Reader = src
	if i.maxBytes > 0 {
		reader = io.LimitReader(src, i.maxBytes+1)
	}
	written, err := io.Copy(f, reader)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", ioError(err, "write upload")
	}
	if i.maxBytes > 0 && written > i.maxBytes {
		os.Remove(path)
		return "", pkgerrors.New(pkgerrors.CodePayloadTooLarge, "upload exceeds size limit").
			WithDetails(map[string]any{"filename": up.Filename, "max_bytes": i.maxBytes})
	}
	if written == 0 {
		os.Remove(path)
		return "", pkgerrors.New(pkgerrors.CodeValidation, "upload is empty").
			WithDetails(map[string]any{"filename": up.Filename})
	}
	return path, nil
}
