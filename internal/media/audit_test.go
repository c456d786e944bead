package media

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/miuvuu/miuvuu-backend/pkg/db/models"
	dbtypes "github.com/miuvuu/miuvuu-backend/pkg/db/types"
)

func TestAuditFindsUnreferencedFiles(t *testing.T) {
	env := newTestEnv(t)
	old := time.Now().Add(-48 * time.Hour)

	referenced := env.writeFile(t, productsSeg+"/Shoe_1/a.webp", []byte("a"))
	stray := env.writeFile(t, productsSeg+"/Shoe_1/stray.webp", []byte("s"))
	legacy := env.writeFile(t, "hat_1.png", []byte("h"))
	fresh := env.writeFile(t, productsSeg+"/New_1/upload.webp", []byte("n"))
	for _, p := range []string{referenced, stray, legacy} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	store := newMemoryProducts(
		models.Product{ID: uuid.New(), Media: dbtypes.MediaList("http://localhost/uploads/CarpetasDeProductos/Shoe_1/a.webp")},
		models.Product{ID: uuid.New(), Media: dbtypes.LegacyMedia("uploads/hat_1.png")},
	)

	auditor, err := NewAuditor(AuditorParams{Mapper: env.mapper, Cleanup: env.cleanup, Store: store, Logger: env.logg})
	if err != nil {
		t.Fatalf("auditor: %v", err)
	}
	report, err := auditor.Run(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.Scanned != 3 {
		t.Fatalf("expected 3 files scanned under the products directory, got %d", report.Scanned)
	}
	if len(report.Unreferenced) != 1 || report.Unreferenced[0] != "/uploads/CarpetasDeProductos/Shoe_1/stray.webp" {
		t.Fatalf("unexpected unreferenced list %v", report.Unreferenced)
	}
	if report.Deleted != 0 || !exists(stray) {
		t.Fatal("report-only audit must not delete")
	}

	auditor.delete = true
	report, err = auditor.Run(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.Deleted != 1 || exists(stray) {
		t.Fatalf("expected stray file deleted, report %+v", report)
	}
	if !exists(referenced) || !exists(legacy) || !exists(fresh) {
		t.Fatal("referenced or recent files must survive")
	}
}

func TestAuditLeavesFilesOutsideProductsDir(t *testing.T) {
	env := newTestEnv(t)
	old := time.Now().Add(-48 * time.Hour)

	avatar := env.writeFile(t, "avatars/user1.png", []byte("u"))
	legacy := env.writeFile(t, "banner.png", []byte("b"))
	stray := env.writeFile(t, productsSeg+"/Shoe_1/stray.webp", []byte("s"))
	for _, p := range []string{avatar, legacy, stray} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	auditor, err := NewAuditor(AuditorParams{
		Mapper:  env.mapper,
		Cleanup: env.cleanup,
		Store:   newMemoryProducts(),
		Logger:  env.logg,
		Delete:  true,
	})
	if err != nil {
		t.Fatalf("auditor: %v", err)
	}
	report, err := auditor.Run(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.Scanned != 1 || report.Deleted != 1 {
		t.Fatalf("expected only the products directory scanned, report %+v", report)
	}
	for _, url := range report.Unreferenced {
		if url == "/uploads/avatars/user1.png" || url == "/uploads/banner.png" {
			t.Fatalf("file outside the products directory reported: %s", url)
		}
	}
	if exists(stray) {
		t.Fatal("expected unreferenced product file deleted")
	}
	if !exists(avatar) || !exists(legacy) {
		t.Fatal("files outside the products directory must survive")
	}
}

func TestAuditMissingRootIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	if err := os.RemoveAll(env.root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	auditor, err := NewAuditor(AuditorParams{Mapper: env.mapper, Cleanup: env.cleanup, Store: newMemoryProducts(), Logger: env.logg})
	if err != nil {
		t.Fatalf("auditor: %v", err)
	}
	report, err := auditor.Run(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("expected nothing scanned, got %d", report.Scanned)
	}
}
