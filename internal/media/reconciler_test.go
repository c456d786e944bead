package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

func TestReconcileProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	r := env.reconciler(t, true)
	ctx := context.Background()
	productID := uuid.New()

	created, err := r.Reconcile(ctx, Input{
		ProductID:   productID,
		ProductName: "Red Shoe",
		Files: []Upload{
			BytesUpload("front.png", "image/png", pngBytes(t)),
			BytesUpload("side.jpg", "image/jpeg", jpegBytes(t)),
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected two urls, got %v", created)
	}
	ns := env.mapper.FolderOf(created[0])
	if !strings.HasPrefix(ns, "Red_Shoe_") || env.mapper.FolderOf(created[1]) != ns {
		t.Fatalf("expected both files in one Red_Shoe namespace, got %v", created)
	}
	for _, u := range created {
		if filepath.Ext(u) != CanonicalExt {
			t.Fatalf("expected canonical extension, got %s", u)
		}
		if !exists(env.abs(t, u)) {
			t.Fatalf("missing file for %s", u)
		}
	}

	updated, err := r.Reconcile(ctx, Input{
		ProductID:   productID,
		ProductName: "Red Shoe renamed",
		Previous:    created,
		Kept:        []string{"http://localhost:5000" + created[0]},
		Files:       []Upload{BytesUpload("back.webp", "image/webp", webpBytes(t))},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated) != 2 || updated[0] != created[0] {
		t.Fatalf("expected kept url first then the new upload, got %v", updated)
	}
	if env.mapper.FolderOf(updated[1]) != ns {
		t.Fatalf("new upload must reuse namespace %s, got %s", ns, updated[1])
	}
	if exists(env.abs(t, created[1])) {
		t.Fatal("dropped image must be deleted")
	}

	cleared, err := r.Reconcile(ctx, Input{ProductID: productID, Previous: updated})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cleared) != 0 {
		t.Fatalf("expected empty record, got %v", cleared)
	}
	if exists(filepath.Join(env.root, productsSeg, ns)) {
		t.Fatal("empty namespace must be removed")
	}
}

func TestReconcileNoFilesAllocatesNothing(t *testing.T) {
	env := newTestEnv(t)
	record, err := env.reconciler(t, true).Reconcile(context.Background(), Input{ProductName: "Bare"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(record) != 0 {
		t.Fatalf("expected empty record, got %v", record)
	}
	entries, _ := os.ReadDir(filepath.Join(env.root, productsSeg))
	if len(entries) != 0 {
		t.Fatalf("no namespace may be created without files, found %d", len(entries))
	}
}

func TestReconcileStrictRejectsForeignKeptURL(t *testing.T) {
	env := newTestEnv(t)
	foreign := env.writeFile(t, productsSeg+"/Other_1/x.webp", []byte("x"))
	own := env.writeFile(t, productsSeg+"/Mine_1/a.webp", []byte("a"))

	_, err := env.reconciler(t, true).Reconcile(context.Background(), Input{
		Previous: []string{"/uploads/CarpetasDeProductos/Mine_1/a.webp"},
		Kept:     []string{"/uploads/CarpetasDeProductos/Other_1/x.webp"},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !exists(foreign) || !exists(own) {
		t.Fatal("rejected edit must not delete anything")
	}
}

func TestReconcileLenientAcceptsExistingKeptURL(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, "legacy.png", []byte("x"))
	r := env.reconciler(t, false)

	record, err := r.Reconcile(context.Background(), Input{Kept: []string{"uploads/legacy.png"}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(record) != 1 || record[0] != "/uploads/legacy.png" {
		t.Fatalf("unexpected record %v", record)
	}

	_, err = r.Reconcile(context.Background(), Input{Kept: []string{"/uploads/missing.png"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected missing kept file to be rejected, got %v", err)
	}
}

func TestReconcileRejectsTraversalInKept(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.reconciler(t, false).Reconcile(context.Background(), Input{
		Kept: []string{"/uploads/%2e%2e/%2e%2e/etc/passwd"},
	})
	if !IsTraversal(err) {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestPrepareRollsBackOnIngestFailure(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.reconciler(t, true).Prepare(context.Background(), Input{
		ProductName: "Broken",
		Files: []Upload{
			BytesUpload("ok.png", "image/png", pngBytes(t)),
			BytesUpload("bad.gif", "image/gif", []byte("GIF89a")),
		},
	})
	if !IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(env.root, productsSeg))
	if len(entries) != 0 {
		t.Fatalf("failed create must leave no namespace behind, found %d", len(entries))
	}
}

func TestChangesetRollbackKeepsPreviousFiles(t *testing.T) {
	env := newTestEnv(t)
	prev := env.writeFile(t, productsSeg+"/Shoe_1/a.webp", []byte("a"))
	r := env.reconciler(t, true)

	cs, err := r.Prepare(context.Background(), Input{
		Previous: []string{"/uploads/CarpetasDeProductos/Shoe_1/a.webp"},
		Files:    []Upload{BytesUpload("b.png", "image/png", pngBytes(t))},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(cs.Removed) != 1 || len(cs.Added) != 1 || cs.Namespace != "Shoe_1" {
		t.Fatalf("unexpected changeset %+v", cs)
	}
	added := env.abs(t, cs.Added[0])
	if !exists(added) {
		t.Fatal("prepared upload must be on disk")
	}

	cs.Rollback(context.Background())
	if exists(added) {
		t.Fatal("rollback must delete the new upload")
	}
	if !exists(prev) {
		t.Fatal("rollback must keep the previous files")
	}
}

func TestChangesetCommitRecordsUndeletableFiles(t *testing.T) {
	env := newTestEnv(t)
	productID := uuid.New()
	env.writeFile(t, productsSeg+"/Shoe_1/stuck.webp/inner", []byte("x"))

	cs, err := env.reconciler(t, true).Prepare(context.Background(), Input{
		ProductID: productID,
		Previous:  []string{"/uploads/CarpetasDeProductos/Shoe_1/stuck.webp"},
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	leftover := cs.Commit(context.Background())
	if len(leftover) != 1 {
		t.Fatalf("expected one leftover, got %v", leftover)
	}
	entries := env.orphans.all()
	if len(entries) != 1 || entries[0].Reason != OrphanReasonReplaced || entries[0].ProductID != productID {
		t.Fatalf("unexpected orphan entries %+v", entries)
	}
}
