package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
)

type pgOutboxRepository struct {
	q querier
}

func (r *pgOutboxRepository) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          RETURNING created_at`

	err := r.q.QueryRowContext(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListUnpublished locks the returned rows and skips rows locked by another
// poller, so several instances can drain the outbox without double sends.
func (r *pgOutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE published_at IS NULL
	          ORDER BY created_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.OutboxEvent, 0)
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *pgOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return expectOneRow(res, "outbox event")
}
