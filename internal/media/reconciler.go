package media

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

// Input is one media edit for a product.
type Input struct {
	ProductID   uuid.UUID
	ProductName string
	Previous    []string
	Kept        []string
	Files       []Upload
}

// Changeset is a prepared media edit. New files are already on disk; removals
// have not happened yet. Exactly one of Commit or Rollback should follow.
type Changeset struct {
	Record    []string
	Namespace string
	Added     []string
	Removed   []string

	productID uuid.UUID
	allocated bool
	r         *Reconciler
}

// ReconcilerParams wires a Reconciler.
type ReconcilerParams struct {
	Mapper     *Mapper
	Allocator  *Allocator
	Ingestor   *Ingestor
	Cleanup    *Cleanup
	Logger     *logger.Logger
	StrictKept bool
}

// Reconciler computes the next media record for a product and applies the
// filesystem side of the change.
type Reconciler struct {
	mapper     *Mapper
	allocator  *Allocator
	ingestor   *Ingestor
	cleanup    *Cleanup
	logg       *logger.Logger
	strictKept bool
}

// NewReconciler validates params and returns a Reconciler.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.Mapper == nil:
		return nil, fmt.Errorf("mapper required")
	case params.Allocator == nil:
		return nil, fmt.Errorf("allocator required")
	case params.Ingestor == nil:
		return nil, fmt.Errorf("ingestor required")
	case params.Cleanup == nil:
		return nil, fmt.Errorf("cleanup required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		mapper:     params.Mapper,
		allocator:  params.Allocator,
		ingestor:   params.Ingestor,
		cleanup:    params.Cleanup,
		logg:       params.Logger,
		strictKept: params.StrictKept,
	}, nil
}

// Reconcile prepares and commits in one step and returns the new record.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) ([]string, error) {
	cs, err := r.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	cs.Commit(ctx)
	return cs.Record, nil
}

// Prepare validates the kept list, ingests every new file and computes the
// resulting record. Nothing is deleted. On error every file written by this
// call has already been removed again.
func (r *Reconciler) Prepare(ctx context.Context, in Input) (*Changeset, error) {
	previous := r.normalizeAll(in.Previous)
	kept := r.normalizeAll(in.Kept)

	prevSet := make(map[string]struct{}, len(previous))
	for _, u := range previous {
		prevSet[u] = struct{}{}
	}
	if err := r.validateKept(kept, prevSet); err != nil {
		return nil, err
	}

	keptSet := make(map[string]struct{}, len(kept))
	for _, u := range kept {
		keptSet[u] = struct{}{}
	}
	removed := make([]string, 0)
	for _, u := range previous {
		if _, ok := keptSet[u]; ok {
			continue
		}
		if _, err := r.cleanup.Resolve(u); err != nil {
			return nil, err
		}
		removed = append(removed, u)
	}

	cs := &Changeset{
		Removed:   removed,
		productID: in.ProductID,
		r:         r,
	}

	if len(in.Files) > 0 {
		ns := r.allocator.Recover(kept)
		if ns == "" {
			ns = r.allocator.Recover(previous)
		}
		if ns == "" {
			allocated, err := r.allocator.Allocate(ctx, in.ProductName)
			if err != nil {
				return nil, err
			}
			ns = allocated
			cs.allocated = true
		}
		cs.Namespace = ns

		for _, up := range in.Files {
			url, err := r.ingestor.Ingest(ctx, ns, up)
			if err != nil {
				cs.Rollback(ctx)
				return nil, err
			}
			cs.Added = append(cs.Added, url)
		}
	} else {
		cs.Namespace = r.allocator.Recover(kept)
	}

	cs.Record = make([]string, 0, len(kept)+len(cs.Added))
	cs.Record = append(cs.Record, kept...)
	cs.Record = append(cs.Record, cs.Added...)
	return cs, nil
}

func (r *Reconciler) validateKept(kept []string, prevSet map[string]struct{}) error {
	for _, u := range kept {
		abs, err := r.cleanup.Resolve(u)
		if err != nil {
			return err
		}
		if _, ok := prevSet[u]; ok {
			continue
		}
		if r.strictKept {
			return pkgerrors.New(pkgerrors.CodeValidation, "kept image is not part of this product").
				WithDetails(map[string]any{"url": u})
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			return pkgerrors.New(pkgerrors.CodeValidation, "kept image does not exist").
				WithDetails(map[string]any{"url": u})
		}
	}
	return nil
}

// normalizeAll normalizes, drops blanks and removes duplicates keeping the
// first occurrence.
func (r *Reconciler) normalizeAll(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		u := r.mapper.Normalize(raw)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Commit deletes the replaced files. Failures are recorded in the orphan
// ledger and returned as the list of URLs left on disk.
func (c *Changeset) Commit(ctx context.Context) []string {
	var leftover []string
	for _, u := range c.Removed {
		if err := c.r.cleanup.DeleteFile(ctx, u); err != nil {
			leftover = append(leftover, u)
			c.r.cleanup.RecordFailure(ctx, OrphanEntry{
				ProductID: c.productID,
				Namespace: c.r.mapper.FolderOf(u),
				URL:       u,
				Reason:    OrphanReasonReplaced,
				Err:       err,
			})
		}
	}
	return leftover
}

// Rollback deletes the files this changeset added and a namespace it
// allocated, leaving the previous record's files untouched.
func (c *Changeset) Rollback(ctx context.Context) {
	for _, u := range c.Added {
		if err := c.r.cleanup.DeleteFile(ctx, u); err != nil {
			c.r.cleanup.RecordFailure(ctx, OrphanEntry{
				ProductID: c.productID,
				Namespace: c.Namespace,
				URL:       u,
				Reason:    OrphanReasonRollback,
				Err:       err,
			})
		}
	}
	c.Added = nil
	if c.allocated && c.Namespace != "" {
		if err := c.r.cleanup.DeleteNamespaceIfEmpty(ctx, c.Namespace); err != nil {
			c.r.logg.Error(c.r.logg.WithNamespace(ctx, c.Namespace), "media.reconcile.rollback_namespace_failed", err)
		}
	}
}
