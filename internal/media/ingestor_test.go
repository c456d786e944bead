package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

func TestIngestStoresCanonicalWebP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	url, err := env.ingestor.Ingest(ctx, "Red_Shoe_1", BytesUpload("Front View.png", "image/png", pngBytes(t)))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/CarpetasDeProductos/Red_Shoe_1/Front_View_") || !strings.HasSuffix(url, ".webp") {
		t.Fatalf("unexpected url %q", url)
	}
	decodeWebPConfig(t, env.abs(t, url))

	entries, err := os.ReadDir(filepath.Join(env.root, productsSeg, "Red_Shoe_1"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the converted file, found %d entries", len(entries))
	}
}

func TestIngestKeepsWebPUpload(t *testing.T) {
	env := newTestEnv(t)
	data := webpBytes(t)
	url, err := env.ingestor.Ingest(context.Background(), "ns", BytesUpload("a.webp", "image/webp", data))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	stored, err := os.ReadFile(env.abs(t, url))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Fatal("webp upload must be stored byte for byte")
	}
}

func TestIngestRejectsUnsupportedBeforeWriting(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingestor.Ingest(context.Background(), "ns", BytesUpload("doc.pdf", "application/pdf", []byte("%PDF-1.4")))
	if !IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if exists(filepath.Join(env.root, productsSeg, "ns")) {
		t.Fatal("rejected upload must not create the namespace")
	}
}

func TestIngestRemovesCorruptUpload(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingestor.Ingest(context.Background(), "ns", BytesUpload("x.png", "image/png", []byte("garbage")))
	if !IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(env.root, productsSeg, "ns"))
	if len(entries) != 0 {
		t.Fatalf("expected rejected bytes to be removed, found %d entries", len(entries))
	}
}

func TestIngestEnforcesSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.ingestor.maxBytes = 16
	_, err := env.ingestor.Ingest(context.Background(), "ns", BytesUpload("big.png", "image/png", pngBytes(t)))
	if !pkgerrors.IsCode(err, pkgerrors.CodePayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
}

func TestIngestRejectsInvalidNamespace(t *testing.T) {
	env := newTestEnv(t)
	for _, ns := range []string{"", "..", "a/b"} {
		if _, err := env.ingestor.Ingest(context.Background(), ns, BytesUpload("a.png", "image/png", pngBytes(t))); err == nil {
			t.Fatalf("expected namespace %q to be rejected", ns)
		}
	}
}

func TestIngestRefusesSymlinkedNamespace(t *testing.T) {
	env := newTestEnv(t)
	outside := t.TempDir()
	symlinkOrSkip(t, outside, filepath.Join(env.root, productsSeg, "evil"))

	_, err := env.ingestor.Ingest(context.Background(), "evil", BytesUpload("a.png", "image/png", pngBytes(t)))
	if !IsTraversal(err) {
		t.Fatalf("expected traversal, got %v", err)
	}
	entries, err := os.ReadDir(outside)
	if err != nil {
		t.Fatalf("read outside: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("nothing may be written behind the symlink, found %d entries", len(entries))
	}
}
