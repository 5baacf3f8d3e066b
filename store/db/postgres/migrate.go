package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/hrygo/geominder/internal/version"
)

//go:embed migration/*.sql
var migrationFS embed.FS

const historyTable = `
CREATE TABLE IF NOT EXISTS migration_history (
	version TEXT NOT NULL PRIMARY KEY,
	created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
)`

// Migrate applies every embedded migration newer than the latest recorded one.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, historyTable); err != nil {
		return fmt.Errorf("failed to create migration history: %w", err)
	}

	var applied []string
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM migration_history")
	if err != nil {
		return fmt.Errorf("failed to read migration history: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied = append(applied, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	current := ""
	if len(applied) > 0 {
		sort.Sort(version.SortVersion(applied))
		current = applied[len(applied)-1]
	}

	files, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	versions := make([]string, 0, len(files))
	for _, file := range files {
		versions = append(versions, strings.TrimSuffix(path.Base(file), ".sql"))
	}
	sort.Sort(version.SortVersion(versions))

	for _, v := range versions {
		if current != "" && !version.IsVersionGreaterThan(v, current) {
			continue
		}
		if err := d.applyMigration(ctx, v); err != nil {
			return err
		}
		slog.Info("applied migration", "driver", "postgres", "version", v)
	}
	return nil
}

func (d *DB) applyMigration(ctx context.Context, v string) error {
	stmt, err := migrationFS.ReadFile("migration/" + v + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", v, err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(stmt)); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", v, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO migration_history (version) VALUES ($1)", v); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", v, err)
	}
	return tx.Commit()
}
