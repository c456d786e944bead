package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chai2010/webp"
	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
)

const productsSeg = "CarpetasDeProductos"

type testEnv struct {
	root       string
	mapper     *Mapper
	allocator  *Allocator
	normalizer *Normalizer
	ingestor   *Ingestor
	cleanup    *Cleanup
	orphans    *memoryOrphans
	logg       *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	mapper := NewMapper(config.StorageConfig{
		Root:            root,
		UploadsSegment:  "uploads",
		ProductsSegment: productsSeg,
	})
	logg := logger.New(logger.Options{ServiceName: "media-test", Output: io.Discard})
	orphans := &memoryOrphans{}
	cleanup, err := NewCleanup(CleanupParams{Mapper: mapper, Logger: logg, Orphans: orphans})
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	normalizer := NewNormalizer()
	ingestor, err := NewIngestor(IngestorParams{Mapper: mapper, Normalizer: normalizer, Logger: logg, MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("ingestor: %v", err)
	}
	return &testEnv{
		root:       root,
		mapper:     mapper,
		allocator:  NewAllocator(mapper),
		normalizer: normalizer,
		ingestor:   ingestor,
		cleanup:    cleanup,
		orphans:    orphans,
		logg:       logg,
	}
}

func (e *testEnv) reconciler(t *testing.T, strict bool) *Reconciler {
	t.Helper()
	r, err := NewReconciler(ReconcilerParams{
		Mapper:     e.mapper,
		Allocator:  e.allocator,
		Ingestor:   e.ingestor,
		Cleanup:    e.cleanup,
		Logger:     e.logg,
		StrictKept: strict,
	})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	return r
}

// abs returns the on-disk path of a stored URL.
func (e *testEnv) abs(t *testing.T, url string) string {
	t.Helper()
	rel, ok := e.mapper.ToPath(url)
	if !ok {
		t.Fatalf("url %q does not map to storage", url)
	}
	return filepath.Join(e.root, rel)
}

func (e *testEnv) writeFile(t *testing.T, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func webpBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, testImage(), &webp.Options{Quality: 80}); err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	return buf.Bytes()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type memoryOrphans struct {
	mu      sync.Mutex
	entries []OrphanEntry
}

func (m *memoryOrphans) RecordOrphan(_ context.Context, entry OrphanEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryOrphans) all() []OrphanEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrphanEntry(nil), m.entries...)
}
