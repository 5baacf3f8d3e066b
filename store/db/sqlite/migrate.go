package sqlite

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/geominder/internal/version"
)

//go:embed migration/*.sql
var migrationFS embed.FS

const historyTable = `
CREATE TABLE IF NOT EXISTS migration_history (
	version TEXT NOT NULL PRIMARY KEY,
	created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
)`

// Migrate applies every embedded migration newer than the latest recorded one.
// Each migration runs in its own transaction together with its history row.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, historyTable); err != nil {
		return errors.Wrap(err, "failed to create migration history")
	}

	current, err := d.latestMigration(ctx)
	if err != nil {
		return err
	}

	files, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to list migrations")
	}
	versions := make([]string, 0, len(files))
	byVersion := make(map[string]string, len(files))
	for _, file := range files {
		v := strings.TrimSuffix(path.Base(file), ".sql")
		if !version.IsValid(v) {
			return errors.Errorf("invalid migration version %q", v)
		}
		versions = append(versions, v)
		byVersion[v] = file
	}
	sort.Sort(version.SortVersion(versions))

	for _, v := range versions {
		if current != "" && !version.IsVersionGreaterThan(v, current) {
			continue
		}
		if err := d.applyMigration(ctx, v, byVersion[v]); err != nil {
			return err
		}
		slog.Info("applied migration", "driver", "sqlite", "version", v)
	}
	return nil
}

func (d *DB) latestMigration(ctx context.Context) (string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM migration_history")
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration history")
	}
	defer rows.Close()

	var applied []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", errors.Wrap(err, "failed to scan migration version")
		}
		applied = append(applied, v)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}
	sort.Sort(version.SortVersion(applied))
	return applied[len(applied)-1], nil
}

func (d *DB) applyMigration(ctx context.Context, v, file string) error {
	stmt, err := migrationFS.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "failed to read migration %s", v)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(stmt)); err != nil {
		return errors.Wrapf(err, "failed to apply migration %s", v)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO migration_history (version) VALUES (?)", v); err != nil {
		return errors.Wrapf(err, "failed to record migration %s", v)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
