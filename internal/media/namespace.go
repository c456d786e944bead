package media

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

const (
	defaultSlug        = "product"
	maxSlugLength      = 64
	namespaceTimestamp = "20060102150405"
	allocateAttempts   = 8
)

// Sanitize turns a display name into a filesystem-safe slug. Every character
// outside [A-Za-z0-9_-] becomes an underscore.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if b.Len() >= maxSlugLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if strings.Trim(b.String(), "_") == "" {
		return defaultSlug
	}
	return b.String()
}

// Allocator creates per-product namespace directories.
type Allocator struct {
	mapper *Mapper
	now    func() time.Time
	randN  func(int) int
}

// NewAllocator builds an allocator rooted at the mapper's products directory.
func NewAllocator(mapper *Mapper) *Allocator {
	return &Allocator{
		mapper: mapper,
		now:    time.Now,
		randN:  rand.IntN,
	}
}

// Allocate creates a fresh namespace directory for productName and returns
// its name. Creation is exclusive so two products never share a directory.
func (a *Allocator) Allocate(ctx context.Context, productName string) (string, error) {
	if err := os.MkdirAll(a.mapper.ProductsDir(), 0o755); err != nil {
		return "", ioError(err, "create products directory")
	}
	slug := Sanitize(productName)
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s_%s_%d", slug, a.now().UTC().Format(namespaceTimestamp), a.randN(1_000_000))
		err := os.Mkdir(filepath.Join(a.mapper.ProductsDir(), name), 0o755)
		if err == nil {
			return name, nil
		}
		if !os.IsExist(err) {
			return "", ioError(err, "create namespace directory")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique media namespace")
}

// Recover returns the namespace of the first namespaced URL in urls, or ""
// when every URL is legacy.
func (a *Allocator) Recover(urls []string) string {
	for _, u := range urls {
		if ns := a.mapper.FolderOf(u); ns != "" {
			return ns
		}
	}
	return ""
}
