package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, user_id, event_type, actor_type, actor_id, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.UserID,
		history.EventType,
		history.ActorType,
		history.ActorID,
		history.Payload,
		history.CreatedAt,
	).Scan(&history.ID)
	if err != nil {
		return apperrors.NewStorageError("history.create", err)
	}
	return nil
}

// ListByUser returns the newest entries first.
func (r *ticketHistoryRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, user_id, event_type, actor_type, actor_id, payload, created_at
        FROM ticket_history WHERE user_id=$1 ORDER BY id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("history.list", err)
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.UserID,
			&history.EventType,
			&history.ActorType,
			&history.ActorID,
			&history.Payload,
			&history.CreatedAt,
		); err != nil {
			return nil, apperrors.NewStorageError("history.list", err)
		}
		result = append(result, history)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("history.list", err)
	}
	return result, nil
}
