package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one schema file. Files are idempotent (IF NOT EXISTS) and are
// applied in Name order on every run.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations reads the .sql files in dir. An empty dir loads the
// migrations built into the binary.
func LoadMigrations(dir string) ([]Migration, error) {
	if dir == "" {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return nil, fmt.Errorf("%s - embedded migrations: %w", migrationsLogPrefix, err)
		}
		return readMigrations(sub, "embedded migrations")
	}
	return readMigrations(os.DirFS(dir), dir)
}

func readMigrations(fsys fs.FS, source string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, source, err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s from %s: %w", migrationsLogPrefix, e.Name(), source, err)
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	slog.Debug(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), source))
	return out, nil
}

// RunMigrations applies migrations in order and stops at the first failure.
func RunMigrations(ctx context.Context, conn execer, migrations []Migration) error {
	for _, m := range migrations {
		if _, err := conn.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Name))
	}
	slog.Info(fmt.Sprintf("%s - %d migrations applied", migrationsLogPrefix, len(migrations)))
	return nil
}

// SchemaStatus is what "migrate status" reports.
type SchemaStatus struct {
	Applied    bool
	Migrations []string
}

// MigrationStatus checks for the dispatch_log table and lists the migrations found in dir.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, dir string) (SchemaStatus, error) {
	var status SchemaStatus
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'dispatch_log')`).Scan(&status.Applied)
	if err != nil {
		return status, fmt.Errorf("%s - failed to check schema: %w", migrationsLogPrefix, err)
	}

	migrations, err := LoadMigrations(dir)
	if err != nil {
		return status, err
	}
	for _, m := range migrations {
		status.Migrations = append(status.Migrations, m.Name)
	}
	return status, nil
}
