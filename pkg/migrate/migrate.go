package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"

	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/pressly/goose/v3"
)

// DefaultDir is where `create` writes new files on disk, one subdirectory per
// dialect. The same files are embedded in the binaries, so an empty dir means
// "use the embedded set for the dialect".
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

// Dialects lists the goose dialects that carry their own DDL. Postgres gets
// uuid/jsonb/timestamptz columns; sqlite gets text and datetime, the declared
// types go-sqlite3 knows how to scan.
var Dialects = []string{"postgres", "sqlite3"}

//go:embed migrations/*/*.sql
var embedded embed.FS

// Dialect maps the configured database driver onto a goose dialect.
func Dialect(cfg config.DBConfig) string {
	if cfg.IsSQLite() {
		return "sqlite3"
	}
	return "postgres"
}

// Run executes a standard goose command that requires a DB connection.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	source, err := prepare(dialect, dir)
	if err != nil {
		return err
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, source, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	source, err := prepare(dialect, dir)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, source, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, source, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}

// prepare points goose at either the embedded migrations of dialect or a
// directory on disk and returns the directory goose should read.
func prepare(dialect, dir string) (string, error) {
	if dialect == "" {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == "" {
		if !slices.Contains(Dialects, dialect) {
			return "", fmt.Errorf("no embedded migrations for dialect %q", dialect)
		}
		goose.SetBaseFS(embedded)
		return path.Join(embeddedDir, dialect), nil
	}
	goose.SetBaseFS(nil)
	return dir, nil
}
