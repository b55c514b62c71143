package service

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// discussionTarget is the user a discussion-thread message belongs to.
// ReplyTo is the user-side message a staff reply should thread under; it is
// zero when staff answered the ticket's anchor message.
type discussionTarget struct {
	UserID  int64
	ReplyTo int
}

// resolveDiscussionTarget maps a discussion message id to its user. The
// ticket anchor is consulted before the conversation logs.
func (e *engine) resolveDiscussionTarget(ctx context.Context, discussionMessageID int, notFound string) (*discussionTarget, error) {
	if discussionMessageID == 0 {
		return nil, apperrors.NewNotFound(notFound, nil)
	}

	ticket, err := e.tickets.FindByDiscussionMessageID(ctx, discussionMessageID)
	if err != nil {
		return nil, err
	}
	match, err := e.conversations.FindByDiscussionMessageID(ctx, discussionMessageID)
	if err != nil {
		return nil, err
	}

	switch {
	case ticket != nil:
		if match != nil && match.UserID != ticket.UserID {
			e.logger.Warn("correlation ambiguity: anchor and conversation match different users",
				zap.Int("message_id", discussionMessageID),
				zap.Int64("user_id", ticket.UserID),
				zap.Int64("conversation_user_id", match.UserID))
			e.metrics.RecordAmbiguity()
		}
		return &discussionTarget{UserID: ticket.UserID}, nil
	case match != nil:
		if match.Candidates > 1 {
			e.logger.Warn("correlation ambiguity: several conversation entries share a mirror id",
				zap.Int("message_id", discussionMessageID),
				zap.Int64("user_id", match.UserID),
				zap.Int("candidates", match.Candidates))
			e.metrics.RecordAmbiguity()
		}
		return &discussionTarget{UserID: match.UserID, ReplyTo: match.Entry.SourceMessageID}, nil
	default:
		return nil, apperrors.NewNotFound(notFound, map[string]any{"message_id": discussionMessageID})
	}
}
