package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const entryColumns = `seq, user_id, sender, source_message_id, text, media_type, media_ref, sent_at,
        discussion_message_id, reply_to_source_message_id, replied_discussion_message_id, is_reply_to_staff`

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates the postgres conversation store.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

func (r *conversationRepository) Append(ctx context.Context, userID int64, entry *domain.ConversationEntry) error {
	const query = `
        INSERT INTO conversation_entries (user_id, sender, source_message_id, text, media_type, media_ref, sent_at,
            discussion_message_id, reply_to_source_message_id, replied_discussion_message_id, is_reply_to_staff)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING seq`
	err := r.pool.QueryRow(ctx, query,
		userID,
		entry.Sender,
		entry.SourceMessageID,
		entry.Text,
		entry.Media.KindOrNone(),
		entry.Media.Ref,
		entry.SentAt,
		nullInt(entry.DiscussionMessageID),
		nullInt(entry.ReplyToSourceMessageID),
		nullInt(entry.RepliedDiscussionMessageID),
		entry.IsReplyToStaff,
	).Scan(&entry.Seq)
	if err != nil {
		return apperrors.NewStorageError("conversation.append", err)
	}
	return nil
}

func (r *conversationRepository) ListFor(ctx context.Context, userID int64) ([]domain.ConversationEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM conversation_entries WHERE user_id=$1 ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, apperrors.NewStorageError("conversation.list", err)
	}
	defer rows.Close()

	var result []domain.ConversationEntry
	for rows.Next() {
		_, e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("conversation.list", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("conversation.list", err)
	}
	return result, nil
}

func (r *conversationRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversation_entries WHERE user_id=$1`, userID); err != nil {
		return apperrors.NewStorageError("conversation.delete", err)
	}
	return nil
}

func (r *conversationRepository) FindByDiscussionMessageID(ctx context.Context, messageID int) (*ConversationMatch, error) {
	if messageID == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM conversation_entries WHERE discussion_message_id=$1 ORDER BY seq ASC`, messageID)
	if err != nil {
		return nil, apperrors.NewStorageError("conversation.find_by_discussion", err)
	}
	defer rows.Close()

	var match *ConversationMatch
	for rows.Next() {
		userID, e, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("conversation.find_by_discussion", err)
		}
		if match == nil {
			match = &ConversationMatch{UserID: userID, Entry: e}
		}
		match.Candidates++
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("conversation.find_by_discussion", err)
	}
	return match, nil
}

func (r *conversationRepository) UpdateLastEntryDiscussionID(ctx context.Context, userID int64, messageID int) error {
	const query = `
        UPDATE conversation_entries SET discussion_message_id=$2
        WHERE seq = (SELECT MAX(seq) FROM conversation_entries WHERE user_id=$1)`
	cmd, err := r.pool.Exec(ctx, query, userID, nullInt(messageID))
	if err != nil {
		return apperrors.NewStorageError("conversation.update_discussion_id", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("conversation log is empty", map[string]any{"user_id": userID})
	}
	return nil
}

func scanEntry(row pgx.Row) (int64, domain.ConversationEntry, error) {
	var (
		userID        int64
		e             domain.ConversationEntry
		discussionID  *int32
		replyToID     *int32
		repliedMirror *int32
	)
	if err := row.Scan(
		&e.Seq,
		&userID,
		&e.Sender,
		&e.SourceMessageID,
		&e.Text,
		&e.Media.Kind,
		&e.Media.Ref,
		&e.SentAt,
		&discussionID,
		&replyToID,
		&repliedMirror,
		&e.IsReplyToStaff,
	); err != nil {
		return 0, e, err
	}
	e.DiscussionMessageID = derefInt(discussionID)
	e.ReplyToSourceMessageID = derefInt(replyToID)
	e.RepliedDiscussionMessageID = derefInt(repliedMirror)
	if e.Media.Kind == domain.MediaNone {
		e.Media = domain.Media{}
	}
	return userID, e, nil
}

func derefInt(v *int32) int {
	if v == nil {
		return 0
	}
	return int(*v)
}
