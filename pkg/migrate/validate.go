package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

// ValidateDir validates migration filenames and goose headers on disk. An
// empty dir validates the embedded set of every dialect.
func ValidateDir(dir string) error {
	if dir == "" {
		return validateDialects(embedded, embeddedDir)
	}
	_, err := validateFS(os.DirFS(dir), ".")
	return err
}

// validateDialects checks each dialect directory under root and requires all
// of them to carry the same migrations.
func validateDialects(fsys fs.FS, root string) error {
	var (
		reference []string
		first     string
	)
	for _, dialect := range Dialects {
		dir := path.Join(root, dialect)
		names, err := validateFS(fsys, dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dialect, err)
		}
		if first == "" {
			reference, first = names, dialect
			continue
		}
		if !slices.Equal(reference, names) {
			return fmt.Errorf("migrations differ between %s %v and %s %v", first, reference, dialect, names)
		}
	}
	return nil
}

// validateFS returns the sorted migration filenames found in dir.
func validateFS(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	names := []string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := path.Join(dir, name)
		b, err := fs.ReadFile(fsys, full)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", full, err)
		}

		txt := string(b)
		if !strings.Contains(txt, "-- +goose Up") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return nil, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		names = append(names, name)
	}

	// An empty directory is valid.
	slices.Sort(names)
	return names, nil
}
