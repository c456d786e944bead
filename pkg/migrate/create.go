package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes <dir>/<version>_<name>.sql from the goose
// template. The version always sorts after every file already in dir, and a
// name that is already taken is rejected.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	paths, err := createIn([]string{dir}, name)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// CreateDialectMigrations writes the same migration into every dialect
// directory under root, sharing one version.
func CreateDialectMigrations(root, name string) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	dirs := make([]string, 0, len(Dialects))
	for _, dialect := range Dialects {
		dirs = append(dirs, filepath.Join(root, dialect))
	}
	return createIn(dirs, name)
}

func createIn(dirs []string, name string) ([]string, error) {
	safe := sanitizeName(name)
	if safe == "" {
		return nil, fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	var latest int64
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", dir, err)
		}
		v, err := scanExisting(dir, safe)
		if err != nil {
			return nil, err
		}
		latest = max(latest, v)
	}
	version := time.Now().UTC()
	if last, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10)); err == nil && !version.After(last) {
		version = last.Add(time.Second)
	}

	filename := fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), safe)
	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		fullpath := filepath.Join(dir, filename)
		if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(sqlTemplate, safe)), 0o644); err != nil {
			return paths, fmt.Errorf("write migration %q: %w", fullpath, err)
		}
		paths = append(paths, fullpath)
	}
	return paths, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// scanExisting returns the highest version in dir and fails when name is
// already used by one of its migrations.
func scanExisting(dir, name string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var latest int64
	for _, e := range entries {
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if strings.TrimSuffix(e.Name()[len(m[1])+1:], ".sql") == name {
			return 0, fmt.Errorf("migration %q already exists as %s", name, e.Name())
		}
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil && v > latest {
			latest = v
		}
	}
	return latest, nil
}
