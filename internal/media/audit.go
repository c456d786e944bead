package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

const defaultAuditGrace = 24 * time.Hour

type referenceStore interface {
	ListMediaURLs(ctx context.Context) ([]string, error)
}

// AuditorParams wires an Auditor.
type AuditorParams struct {
	Mapper  *Mapper
	Cleanup *Cleanup
	Store   referenceStore
	Logger  *logger.Logger
	Grace   time.Duration
	Delete  bool
}

// Auditor finds files under the products directory that no product
// references. Anything else under the storage root is left alone.
type Auditor struct {
	mapper  *Mapper
	cleanup *Cleanup
	store   referenceStore
	logg    *logger.Logger
	grace   time.Duration
	delete  bool
	now     func() time.Time
}

// AuditReport lists unreferenced files found by one scan.
type AuditReport struct {
	Scanned      int      `json:"scanned"`
	Unreferenced []string `json:"unreferenced"`
	Deleted      int      `json:"deleted"`
}

// NewAuditor validates params and returns an Auditor.
func NewAuditor(params AuditorParams) (*Auditor, error) {
	switch {
	case params.Mapper == nil:
		return nil, fmt.Errorf("mapper required")
	case params.Cleanup == nil:
		return nil, fmt.Errorf("cleanup required")
	case params.Store == nil:
		return nil, fmt.Errorf("reference store required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultAuditGrace
	}
	return &Auditor{
		mapper:  params.Mapper,
		cleanup: params.Cleanup,
		store:   params.Store,
		logg:    params.Logger,
		grace:   grace,
		delete:  params.Delete,
		now:     time.Now,
	}, nil
}

// Run scans the products directory. Files modified within the grace window
// are ignored so uploads still in flight are never reported.
func (a *Auditor) Run(ctx context.Context) (AuditReport, error) {
	referenced, err := a.referenced(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	report := AuditReport{Unreferenced: []string{}}
	cutoff := a.now().Add(-a.grace)
	root := a.mapper.Root()
	dir := a.mapper.ProductsDir()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		report.Scanned++
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		url := a.mapper.ToURL(rel)
		if _, ok := referenced[url]; ok {
			return nil
		}
		report.Unreferenced = append(report.Unreferenced, url)
		if !a.delete {
			return nil
		}
		if err := a.cleanup.DeleteFile(ctx, url); err != nil {
			a.cleanup.RecordFailure(ctx, OrphanEntry{
				Namespace: a.mapper.FolderOf(url),
				URL:       url,
				Reason:    OrphanReasonAudit,
				Err:       err,
			})
			return nil
		}
		report.Deleted++
		return nil
	})
	if walkErr != nil {
		return report, ioError(walkErr, "walk products directory")
	}
	a.logg.Info(a.logg.WithFields(ctx, map[string]any{
		"scanned":      report.Scanned,
		"unreferenced": len(report.Unreferenced),
		"deleted":      report.Deleted,
	}), "media.audit.completed")
	return report, nil
}

func (a *Auditor) referenced(ctx context.Context) (map[string]struct{}, error) {
	urls, err := a.store.ListMediaURLs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		rel, ok := a.mapper.ToPath(u)
		if !ok {
			continue
		}
		set[a.mapper.ToURL(rel)] = struct{}{}
	}
	return set, nil
}
