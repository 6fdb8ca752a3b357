package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const clearLogPrefix = "db:clear"

// execer is the slice of pgxpool.Pool used by the maintenance commands.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ClearDispatchLog removes every audit record. The table and its indexes stay.
func ClearDispatchLog(ctx context.Context, conn execer) error {
	if _, err := conn.Exec(ctx, `TRUNCATE TABLE dispatch_log`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Dispatch log cleared", clearLogPrefix))
	return nil
}

// PruneDispatchLog deletes audit records created before cutoff and returns how many went.
func PruneDispatchLog(ctx context.Context, conn execer, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New(clearLogPrefix + " - prune cutoff must be set")
	}
	tag, err := conn.Exec(ctx, `DELETE FROM dispatch_log WHERE created < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s - prune failed: %w", clearLogPrefix, err)
	}
	n := tag.RowsAffected()
	slog.Info(fmt.Sprintf("%s - Pruned %d dispatch records older than %s", clearLogPrefix, n, cutoff.UTC().Format(time.RFC3339)))
	return n, nil
}
