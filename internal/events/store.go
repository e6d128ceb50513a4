package events

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists domain events to postgres.
type PgStore struct {
	Pool *pgxpool.Pool
}

func (s PgStore) InsertEvent(ctx context.Context, event Event) (Event, error) {
	const q = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING occurred_at`
	err := s.Pool.QueryRow(ctx, q,
		event.ID, event.Topic, event.AggregateID, event.Payload, event.OccurredAt,
	).Scan(&event.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return event, nil
}
