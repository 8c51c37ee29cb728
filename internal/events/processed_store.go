package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records gateway webhook event ids that were already
// handled, so re-delivered events become no-ops.
type ProcessedStore struct {
	db DB
}

func NewProcessedStore(db DB) *ProcessedStore {
	if db == nil {
		panic("events: db required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks whether this gateway event id was seen before.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, gateway, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE gateway = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, gateway, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the gateway, returning false when it
// already exists. The unique index makes this safe under concurrent
// deliveries of the same event.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, gateway, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (gateway, event_id, received_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, gateway, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
