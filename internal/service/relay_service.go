package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// RelayService moves messages between a user's private chat and the
// ticket's discussion thread.
type RelayService struct {
	*engine
}

// NewRelayService constructs the service.
func NewRelayService(deps Dependencies) *RelayService {
	return &RelayService{engine: newEngine(deps)}
}

// UserMessageInput is a private message from a user with a ticket.
type UserMessageInput struct {
	User      domain.Person
	MessageID int
	ReplyTo   int
	Text      string
	Media     domain.Media
}

// UserRelayResult describes a relayed user message. DiscussionMessageID is
// zero when the mirror was not sent.
type UserRelayResult struct {
	Entry               domain.ConversationEntry
	DiscussionMessageID int
}

// StaffReplyInput is a staff reply in the discussion thread.
type StaffReplyInput struct {
	Staff     domain.Person
	MessageID int
	ReplyTo   int
	Text      string
	Media     domain.Media
}

// StaffRelayResult describes a staff reply delivered to a user.
type StaffRelayResult struct {
	UserID        int64
	UserMessageID int
}

// RelayUserMessage mirrors a user message into the discussion thread. A reply
// to a relayed staff message threads under that staff message; anything else
// threads under the ticket's anchor. The conversation entry is appended
// before the send and stays unconfirmed if the send fails.
func (s *RelayService) RelayUserMessage(ctx context.Context, input UserMessageInput) (*UserRelayResult, error) {
	var result *UserRelayResult
	err := s.withUser(ctx, input.User.ID, func() ([]events.Event, error) {
		ticket, err := s.tickets.Get(ctx, input.User.ID)
		if err != nil {
			return nil, err
		}
		if ticket == nil {
			return nil, apperrors.NewNotFound(format.NoActiveTicket, map[string]any{"user_id": input.User.ID})
		}
		if !ticket.IsActive() {
			return nil, apperrors.NewTicketPending(format.TicketPending)
		}

		entry := &domain.ConversationEntry{
			Sender:                 domain.SenderUser,
			SourceMessageID:        input.MessageID,
			Text:                   input.Text,
			Media:                  input.Media,
			ReplyToSourceMessageID: input.ReplyTo,
		}
		target := ticket.DiscussionMessageID
		if input.ReplyTo != 0 {
			staffEntry, err := s.findStaffEntry(ctx, input.User.ID, input.ReplyTo)
			if err != nil {
				return nil, err
			}
			if staffEntry != nil {
				target = staffEntry.DiscussionMessageID
				entry.IsReplyToStaff = true
				entry.RepliedDiscussionMessageID = staffEntry.DiscussionMessageID
			}
		}

		now := s.now()
		entry.SentAt = now
		ticket.LastActivityAt = now
		if err := s.tickets.Put(ctx, ticket); err != nil {
			return nil, err
		}
		if err := s.conversations.Append(ctx, ticket.UserID, entry); err != nil {
			return nil, err
		}
		result = &UserRelayResult{Entry: *entry}

		caption := format.UserRelayCaption(input.User, s.clock.Timestamp(now), input.Text, entry.IsReplyToStaff)
		groupID := s.discussionChat(ticket)
		mirrorID, err := s.gateway.Send(ctx, groupID, gateway.Outgoing{
			Text:    caption,
			Media:   input.Media,
			ReplyTo: target,
		})
		if err != nil {
			s.logger.Warn("user message not relayed, entry left unconfirmed",
				zap.Int64("user_id", ticket.UserID),
				zap.Int("message_id", input.MessageID),
				zap.Error(err))
			return nil, err
		}

		if err := s.conversations.UpdateLastEntryDiscussionID(ctx, ticket.UserID, mirrorID); err != nil {
			// The mirror is already visible to staff; only its correlation is lost.
			s.logger.Error("failed to record mirror id",
				zap.Int64("user_id", ticket.UserID),
				zap.Int("message_id", mirrorID),
				zap.Error(err))
		} else {
			result.Entry.DiscussionMessageID = mirrorID
		}
		result.DiscussionMessageID = mirrorID

		return []events.Event{s.newEvent(events.EventUserMessageRelayed, ticket,
			events.Actor{Type: domain.SenderUser, Person: input.User}, now,
			events.UserMessageRelayedPayload{
				User:                input.User,
				Text:                input.Text,
				MediaKind:           input.Media.KindOrNone(),
				IsReplyToStaff:      entry.IsReplyToStaff,
				DiscussionMessageID: mirrorID,
				DiscussionURL:       format.MessageURL(groupID, mirrorID),
				ChannelURL:          ticket.OriginChannelMessageURL,
			})}, nil
	})
	s.record("user_message", err)
	return result, err
}

// findStaffEntry returns the first staff entry whose user-side message is
// sourceMessageID and whose mirror is known.
func (s *RelayService) findStaffEntry(ctx context.Context, userID int64, sourceMessageID int) (*domain.ConversationEntry, error) {
	entries, err := s.conversations.ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := entries[i]
		if e.Sender == domain.SenderStaff && e.SourceMessageID == sourceMessageID && e.RelayConfirmed() {
			return &e, nil
		}
	}
	return nil, nil
}

// RelayStaffReply delivers a staff reply to the ticket owner. The staff entry
// is appended after delivery because its SourceMessageID is the id of the
// message the user receives.
func (s *RelayService) RelayStaffReply(ctx context.Context, input StaffReplyInput) (*StaffRelayResult, error) {
	target, err := s.resolveDiscussionTarget(ctx, input.ReplyTo, format.StaffNoUser)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Info("staff reply has no associated user", zap.Int("message_id", input.ReplyTo))
		}
		s.record("staff_reply", err)
		return nil, err
	}

	var result *StaffRelayResult
	err = s.withUser(ctx, target.UserID, func() ([]events.Event, error) {
		ticket, err := s.tickets.Get(ctx, target.UserID)
		if err != nil {
			return nil, err
		}
		if ticket == nil {
			return nil, apperrors.NewNotFound(format.StaffNoUser, map[string]any{"user_id": target.UserID})
		}

		userMsgID, err := s.gateway.Send(ctx, ticket.UserID, gateway.Outgoing{
			Text:    format.StaffReplyCaption(input.Text),
			Media:   input.Media,
			ReplyTo: target.ReplyTo,
		})
		if err != nil {
			s.logger.Warn("staff reply not delivered",
				zap.Int64("user_id", ticket.UserID),
				zap.Int("message_id", input.MessageID),
				zap.Error(err))
			return nil, err
		}
		result = &StaffRelayResult{UserID: ticket.UserID, UserMessageID: userMsgID}

		now := s.now()
		ticket.LastActivityAt = now
		if err := s.tickets.Put(ctx, ticket); err != nil {
			s.logger.Error("failed to refresh ticket activity", zap.Int64("user_id", ticket.UserID), zap.Error(err))
		}
		entry := &domain.ConversationEntry{
			Sender:                     domain.SenderStaff,
			SourceMessageID:            userMsgID,
			Text:                       input.Text,
			Media:                      input.Media,
			SentAt:                     now,
			DiscussionMessageID:        input.MessageID,
			RepliedDiscussionMessageID: input.ReplyTo,
		}
		if err := s.conversations.Append(ctx, ticket.UserID, entry); err != nil {
			// Delivered already; user replies to it fall back to the ticket anchor.
			s.logger.Error("failed to record staff reply",
				zap.Int64("user_id", ticket.UserID),
				zap.Int("message_id", userMsgID),
				zap.Error(err))
		}

		return []events.Event{s.newEvent(events.EventStaffReplyRelayed, ticket,
			events.Actor{Type: domain.SenderStaff, Person: input.Staff}, now,
			events.StaffReplyRelayedPayload{
				Staff:                      input.Staff,
				Text:                       input.Text,
				MediaKind:                  input.Media.KindOrNone(),
				UserMessageID:              userMsgID,
				RepliedDiscussionMessageID: input.ReplyTo,
			})}, nil
	})
	s.record("staff_reply", err)
	return result, err
}
