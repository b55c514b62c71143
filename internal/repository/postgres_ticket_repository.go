package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const ticketColumns = `user_id, id, user_name, issue_type, status, media_type, channel_id,
        channel_message_id, channel_message_url, discussion_group_id, discussion_message_id,
        created_at, forwarded_at, last_activity_at, channel_post_text, channel_post_has_media`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres ticket store.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Get(ctx context.Context, userID int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id=$1`
	return r.getOne(ctx, "ticket.get", query, userID)
}

func (r *ticketRepository) Put(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, id, user_name, issue_type, status, media_type, channel_id,
            channel_message_id, channel_message_url, discussion_group_id, discussion_message_id,
            created_at, forwarded_at, last_activity_at, channel_post_text, channel_post_has_media)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (user_id) DO UPDATE SET
            id=EXCLUDED.id, user_name=EXCLUDED.user_name, issue_type=EXCLUDED.issue_type,
            status=EXCLUDED.status, media_type=EXCLUDED.media_type, channel_id=EXCLUDED.channel_id,
            channel_message_id=EXCLUDED.channel_message_id, channel_message_url=EXCLUDED.channel_message_url,
            discussion_group_id=EXCLUDED.discussion_group_id, discussion_message_id=EXCLUDED.discussion_message_id,
            created_at=EXCLUDED.created_at, forwarded_at=EXCLUDED.forwarded_at,
            last_activity_at=EXCLUDED.last_activity_at, channel_post_text=EXCLUDED.channel_post_text,
            channel_post_has_media=EXCLUDED.channel_post_has_media`
	mediaKind := ticket.MediaKind
	if mediaKind == "" {
		mediaKind = domain.MediaNone
	}
	_, err := r.pool.Exec(ctx, query,
		ticket.UserID,
		ticket.ID,
		ticket.UserName,
		ticket.IssueType,
		ticket.Status,
		mediaKind,
		ticket.ChannelID,
		ticket.OriginChannelMessageID,
		ticket.OriginChannelMessageURL,
		nullInt64(ticket.DiscussionGroupID),
		nullInt(ticket.DiscussionMessageID),
		ticket.CreatedAt,
		ticket.ForwardedAt,
		ticket.LastActivityAt,
		ticket.ChannelPostText,
		ticket.ChannelPostHasMedia,
	)
	if err != nil {
		return apperrors.NewStorageError("ticket.put", err)
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE user_id=$1`, userID); err != nil {
		return apperrors.NewStorageError("ticket.delete", err)
	}
	return nil
}

// DeleteWithConversation removes the ticket and its conversation log in one
// transaction.
func (r *ticketRepository) DeleteWithConversation(ctx context.Context, userID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewStorageError("ticket.close", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM conversation_entries WHERE user_id=$1`, userID); err != nil {
		return apperrors.NewStorageError("ticket.close", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE user_id=$1`, userID); err != nil {
		return apperrors.NewStorageError("ticket.close", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewStorageError("ticket.close", err)
	}
	return nil
}

func (r *ticketRepository) FindByDiscussionMessageID(ctx context.Context, messageID int) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE discussion_message_id=$1 ORDER BY created_at ASC LIMIT 1`
	return r.getOne(ctx, "ticket.find_by_discussion", query, messageID)
}

func (r *ticketRepository) FindByChannelMessageID(ctx context.Context, messageID int) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE channel_message_id=$1`
	return r.getOne(ctx, "ticket.find_by_channel", query, messageID)
}

func (r *ticketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperrors.NewStorageError("ticket.list", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("ticket.list", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("ticket.list", err)
	}
	return result, nil
}

func (r *ticketRepository) getOne(ctx context.Context, op, query string, arg any) (*domain.Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewStorageError(op, err)
	}
	return t, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t                   domain.Ticket
		discussionGroupID   *int64
		discussionMessageID *int32
		forwardedAt         *time.Time
	)
	if err := row.Scan(
		&t.UserID,
		&t.ID,
		&t.UserName,
		&t.IssueType,
		&t.Status,
		&t.MediaKind,
		&t.ChannelID,
		&t.OriginChannelMessageID,
		&t.OriginChannelMessageURL,
		&discussionGroupID,
		&discussionMessageID,
		&t.CreatedAt,
		&forwardedAt,
		&t.LastActivityAt,
		&t.ChannelPostText,
		&t.ChannelPostHasMedia,
	); err != nil {
		return nil, err
	}
	if discussionGroupID != nil {
		t.DiscussionGroupID = *discussionGroupID
	}
	if discussionMessageID != nil {
		t.DiscussionMessageID = int(*discussionMessageID)
	}
	t.ForwardedAt = forwardedAt
	return &t, nil
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return int32(v)
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
