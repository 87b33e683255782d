package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/donchian-labs/turtle-engine/internal/events"
)

// Append persists one audit event. Store satisfies events.Sink.
func (s *Store) Append(ctx context.Context, e events.Event) error {
	var raw []byte
	if e.Context != nil {
		var err error
		if raw, err = json.Marshal(e.Context); err != nil {
			return fmt.Errorf("encoding event context: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events
			(id, timestamp, event_type, outcome, run_id, sequence, symbol, context, source, dry_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Timestamp, string(e.Type), string(e.Outcome), e.RunID, e.Sequence,
		nullIfEmpty(e.Symbol), raw, string(e.Source), e.DryRun,
	)
	if err != nil {
		return fmt.Errorf("appending event %d of run %s: %w", e.Sequence, e.RunID, err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
