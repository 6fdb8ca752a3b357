package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/morezero/directive-dispatch/pkg/events"
)

// RecordFromEvent converts a dispatch event into an audit row.
func RecordFromEvent(e *events.DispatchEvent) (DispatchRecord, error) {
	rec := DispatchRecord{
		ID:        e.ID,
		Operation: e.Operation,
		Ok:        e.Ok,
		Code:      e.Code,
		Message:   e.Message,
		Raw:       e.Raw,
	}
	if len(e.Arguments) > 0 {
		args, err := json.Marshal(e.Arguments)
		if err != nil {
			return DispatchRecord{}, fmt.Errorf("%s - encode arguments of %s: %w", repoLogPrefix, e.ID, err)
		}
		rec.Arguments = args
	}
	if e.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return DispatchRecord{}, fmt.Errorf("%s - parse timestamp of %s: %w", repoLogPrefix, e.ID, err)
		}
		rec.Created = ts.UTC()
	}
	return rec, nil
}

// NewAuditPublisher returns a publisher that records every dispatch event in repo.
func NewAuditPublisher(repo *Repository) *events.CallbackPublisher {
	return events.NewCallbackPublisher(func(ctx context.Context, e *events.DispatchEvent) error {
		rec, err := RecordFromEvent(e)
		if err != nil {
			return err
		}
		return repo.RecordDispatch(ctx, rec)
	})
}
