package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

const ensureLogPrefix = "db:ensure"

// maintenanceDB is the database EnsureDatabase connects to while the target may not exist yet.
const maintenanceDB = "postgres"

var safeDBName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Target is a Postgres URL split into the database it names and the
// maintenance URL used to create that database.
type Target struct {
	Name     string
	URL      string
	AdminURL string
}

// ParseTarget splits databaseURL into a Target. The database name must be a
// plain identifier so it can be created without quoting surprises.
func ParseTarget(databaseURL string) (Target, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return Target{}, fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	return targetFromURL(u)
}

// Rename returns the same server and credentials pointed at database name.
// Query parameters such as sslmode are kept.
func (t Target) Rename(name string) (Target, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return Target{}, fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	u.Path = "/" + name
	return targetFromURL(u)
}

func targetFromURL(u *url.URL) (Target, error) {
	name := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if name == "" {
		return Target{}, fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(name) {
		return Target{}, fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, name)
	}
	admin := *u
	admin.Path = "/" + maintenanceDB
	return Target{Name: name, URL: u.String(), AdminURL: admin.String()}, nil
}

// EnsureDatabase creates the database named by databaseURL when it is missing.
// It reports whether the database was created by this call.
func EnsureDatabase(ctx context.Context, databaseURL string) (bool, error) {
	target, err := ParseTarget(databaseURL)
	if err != nil {
		return false, err
	}

	cfg, err := pgx.ParseConfig(target.AdminURL)
	if err != nil {
		return false, fmt.Errorf("%s - failed to parse maintenance URL: %w", ensureLogPrefix, err)
	}
	// CREATE DATABASE cannot run inside the implicit transaction of the extended protocol.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("%s - failed to connect to %s: %w", ensureLogPrefix, maintenanceDB, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, target.Name).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s - failed to check database %q: %w", ensureLogPrefix, target.Name, err)
	}
	if exists {
		slog.Debug(fmt.Sprintf("%s - Database %q already exists", ensureLogPrefix, target.Name))
		return false, nil
	}

	slog.Info(fmt.Sprintf("%s - Creating database %q", ensureLogPrefix, target.Name))
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{target.Name}.Sanitize()); err != nil {
		return false, fmt.Errorf("%s - CREATE DATABASE %q failed: %w", ensureLogPrefix, target.Name, err)
	}
	return true, nil
}
