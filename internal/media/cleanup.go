package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/metrics"
)

// CleanupParams wires a Cleanup.
type CleanupParams struct {
	Mapper  *Mapper
	Logger  *logger.Logger
	Metrics *metrics.MediaMetrics
	Orphans OrphanRecorder
}

// Cleanup removes media files and empty namespaces. Every path it touches is
// checked to stay under the storage root first.
type Cleanup struct {
	mapper  *Mapper
	logg    *logger.Logger
	metrics *metrics.MediaMetrics
	orphans OrphanRecorder
}

// NewCleanup validates params and returns a Cleanup. Orphans may be nil, in
// which case failures are only logged.
func NewCleanup(params CleanupParams) (*Cleanup, error) {
	if params.Mapper == nil {
		return nil, fmt.Errorf("mapper required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Cleanup{
		mapper:  params.Mapper,
		logg:    params.Logger,
		metrics: params.Metrics,
		orphans: params.Orphans,
	}, nil
}

// Resolve maps a media URL to an absolute path under the storage root.
func (c *Cleanup) Resolve(url string) (string, error) {
	rel, ok := c.mapper.ToPath(url)
	if !ok {
		c.metrics.IncTraversal()
		return "", traversal(url)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			c.metrics.IncTraversal()
			return "", traversal(url)
		}
	}
	abs := filepath.Join(c.mapper.Root(), rel)
	if !within(c.mapper.Root(), abs) || abs == c.mapper.Root() {
		c.metrics.IncTraversal()
		return "", traversal(url)
	}
	ok, err := Confined(c.mapper.Root(), abs)
	if err != nil {
		return "", ioError(err, "resolve media path")
	}
	if !ok {
		c.metrics.IncTraversal()
		return "", traversal(url)
	}
	return abs, nil
}

// DeleteFile removes the file behind url. A missing file is success. When the
// file lived in a namespace, the namespace directory is removed once empty.
func (c *Cleanup) DeleteFile(ctx context.Context, url string) error {
	abs, err := c.Resolve(url)
	if err != nil {
		return err
	}
	info, err := os.Lstat(abs)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		c.metrics.IncCleanupFailure("delete_file")
		return ioError(err, "stat media file")
	case info.IsDir():
		c.metrics.IncCleanupFailure("delete_file")
		return ioError(fmt.Errorf("%s is a directory", url), "delete media file")
	default:
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			c.metrics.IncCleanupFailure("delete_file")
			return ioError(err, "delete media file")
		}
		c.metrics.IncDeleted()
	}

	if ns := c.mapper.FolderOf(url); ns != "" {
		return c.DeleteNamespaceIfEmpty(ctx, ns)
	}
	return nil
}

// DeleteNamespaceIfEmpty removes the namespace directory when it holds no
// entries. A missing directory is success.
func (c *Cleanup) DeleteNamespaceIfEmpty(ctx context.Context, namespace string) error {
	if !validSegment(namespace) {
		return traversal(namespace)
	}
	dir := filepath.Join(c.mapper.ProductsDir(), namespace)
	if !within(c.mapper.ProductsDir(), dir) || dir == c.mapper.ProductsDir() {
		return traversal(namespace)
	}
	ok, err := Confined(c.mapper.Root(), dir)
	if err != nil {
		return ioError(err, "resolve namespace directory")
	}
	if !ok {
		c.metrics.IncTraversal()
		return traversal(namespace)
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		c.metrics.IncCleanupFailure("delete_namespace")
		return ioError(err, "read namespace directory")
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		c.metrics.IncCleanupFailure("delete_namespace")
		return ioError(err, "delete namespace directory")
	}
	c.logg.Debug(c.logg.WithNamespace(ctx, namespace), "media.cleanup.namespace_removed")
	return nil
}

// DeleteAllForProduct removes every file of a product record. Each file is
// deleted best effort: a failure, including a reference that escapes the
// root, is logged and recorded as an orphan and does not stop the rest. The
// returned error is the first traversal rejection if there was one.
func (c *Cleanup) DeleteAllForProduct(ctx context.Context, productID uuid.UUID, urls []string) error {
	var (
		failed   int
		rejected error
	)
	for _, url := range urls {
		err := c.DeleteFile(ctx, url)
		if err == nil {
			continue
		}
		failed++
		if IsTraversal(err) && rejected == nil {
			rejected = err
		}
		c.RecordFailure(ctx, OrphanEntry{
			ProductID: productID,
			Namespace: c.mapper.FolderOf(url),
			URL:       url,
			Reason:    OrphanReasonDeleted,
			Err:       err,
		})
	}
	if rejected != nil {
		return rejected
	}
	if failed > 0 {
		return ioError(fmt.Errorf("%d of %d files left behind", failed, len(urls)), "delete product media")
	}
	return nil
}

// RecordFailure logs a failed deletion and writes it to the orphan ledger.
func (c *Cleanup) RecordFailure(ctx context.Context, entry OrphanEntry) {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"url":    entry.URL,
		"reason": entry.Reason,
	})
	if entry.ProductID != uuid.Nil {
		ctx = c.logg.WithProductID(ctx, entry.ProductID.String())
	}
	c.logg.Error(ctx, "media.cleanup.delete_failed", entry.Err)
	c.metrics.IncOrphan(entry.Reason)
	if c.orphans == nil {
		return
	}
	if err := c.orphans.RecordOrphan(ctx, entry); err != nil {
		c.logg.Error(ctx, "media.cleanup.record_orphan_failed", err)
	}
}

// Confined reports whether target stays under root once the symlinks along
// its existing part are resolved. Components that do not exist yet are taken
// as written.
func Confined(root, target string) (bool, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	existing, rest := filepath.Clean(target), ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return within(realRoot, filepath.Join(resolved, rest)), nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return false, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
