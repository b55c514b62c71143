package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/repository"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// TicketService owns the ticket lifecycle: creation, forward confirmation
// and closure.
type TicketService struct {
	*engine
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{engine: newEngine(deps)}
}

// TicketCreateInput is a user's completed ticket submission.
type TicketCreateInput struct {
	User      domain.Person
	IssueType domain.IssueType
	MessageID int
	Text      string
	Media     domain.Media
}

// ForwardInput describes a discussion-group message that forwards a channel
// post.
type ForwardInput struct {
	ChannelMessageID    int
	DiscussionGroupID   int64
	DiscussionMessageID int
}

// ForwardResult reports the ticket after forward confirmation. Linked is
// false when the ticket was already active.
type ForwardResult struct {
	Ticket domain.Ticket
	Linked bool
}

// CloseResult describes a completed closure.
type CloseResult struct {
	Ticket           domain.Ticket
	ClosedBy         domain.Sender
	CloserName       string
	Timestamp        string
	ChannelAnnotated bool
}

// TicketDetail is a ticket with its conversation log.
type TicketDetail struct {
	Ticket       domain.Ticket
	Conversation []domain.ConversationEntry
}

// CreateTicket opens a ticket: it posts to the support channel, then stores
// the ticket and the description as the first conversation entry. Either
// both records are committed or neither is.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if !input.IssueType.Valid() {
		return nil, apperrors.NewValidationError("unknown issue type", map[string]any{"issue_type": input.IssueType})
	}
	input.Text = strings.TrimSpace(input.Text)
	if input.Text == "" && input.Media.IsNone() {
		return nil, apperrors.NewValidationError(format.DescriptionMissing, nil)
	}

	var created *domain.Ticket
	err := s.withUser(ctx, input.User.ID, func() ([]events.Event, error) {
		existing, err := s.tickets.Get(ctx, input.User.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperrors.NewAlreadyExists(format.AlreadyOpen, map[string]any{"ticket_id": existing.ID})
		}

		now := s.now()
		post := format.TicketPost(input.User, input.IssueType, s.clock.Timestamp(now), input.Text, !input.Media.IsNone())
		channelMsgID, err := s.gateway.Send(ctx, s.chats.SupportChannelID, gateway.Outgoing{Text: post, Media: input.Media})
		if err != nil {
			return nil, err
		}

		ticket := &domain.Ticket{
			ID:                      uuid.NewString(),
			UserID:                  input.User.ID,
			UserName:                input.User.DisplayName(),
			IssueType:               input.IssueType,
			Status:                  domain.TicketStatusPendingForward,
			MediaKind:               input.Media.KindOrNone(),
			ChannelID:               s.chats.SupportChannelID,
			OriginChannelMessageID:  channelMsgID,
			OriginChannelMessageURL: format.MessageURL(s.chats.SupportChannelID, channelMsgID),
			ChannelPostText:         post,
			ChannelPostHasMedia:     !input.Media.IsNone(),
			CreatedAt:               now,
			LastActivityAt:          now,
		}
		if err := s.tickets.Put(ctx, ticket); err != nil {
			s.logger.Error("ticket not stored, channel post is orphaned",
				zap.Int64("user_id", ticket.UserID),
				zap.Int("message_id", channelMsgID),
				zap.Error(err))
			return nil, err
		}

		entry := &domain.ConversationEntry{
			Sender:          domain.SenderUser,
			SourceMessageID: input.MessageID,
			Text:            input.Text,
			Media:           input.Media,
			SentAt:          now,
		}
		if err := s.conversations.Append(ctx, ticket.UserID, entry); err != nil {
			if delErr := s.tickets.Delete(ctx, ticket.UserID); delErr != nil {
				s.logger.Error("failed to roll back ticket after conversation append failure",
					zap.Int64("user_id", ticket.UserID),
					zap.Error(delErr))
			}
			return nil, err
		}

		created = ticket
		s.logger.Info("ticket created",
			zap.String("ticket_id", ticket.ID),
			zap.Int64("user_id", ticket.UserID),
			zap.String("issue_type", string(ticket.IssueType)))

		return []events.Event{s.newEvent(events.EventTicketCreated, ticket,
			events.Actor{Type: domain.SenderUser, Person: input.User}, now,
			events.TicketCreatedPayload{
				User:             input.User,
				IssueType:        ticket.IssueType,
				Description:      input.Text,
				MediaKind:        ticket.MediaKind,
				ChannelMessageID: channelMsgID,
				ChannelURL:       ticket.OriginChannelMessageURL,
			})}, nil
	})
	s.record("ticket_created", err)
	return created, err
}

// ConfirmForward links a ticket to the discussion message that forwards its
// channel post. Confirming an already linked ticket changes nothing.
func (s *TicketService) ConfirmForward(ctx context.Context, input ForwardInput) (*ForwardResult, error) {
	found, err := s.tickets.FindByChannelMessageID(ctx, input.ChannelMessageID)
	if err == nil && found == nil {
		err = apperrors.NewNotFound(format.StaffNoUser, map[string]any{"channel_message_id": input.ChannelMessageID})
	}
	if err != nil {
		s.record("ticket_forwarded", err)
		return nil, err
	}

	var result *ForwardResult
	err = s.withUser(ctx, found.UserID, func() ([]events.Event, error) {
		ticket, err := s.tickets.Get(ctx, found.UserID)
		if err != nil {
			return nil, err
		}
		if ticket == nil || ticket.OriginChannelMessageID != input.ChannelMessageID {
			return nil, apperrors.NewNotFound(format.StaffNoUser, map[string]any{"channel_message_id": input.ChannelMessageID})
		}
		if ticket.IsActive() {
			result = &ForwardResult{Ticket: *ticket}
			return nil, nil
		}

		now := s.now()
		ticket.Status = domain.TicketStatusForwarded
		ticket.DiscussionGroupID = input.DiscussionGroupID
		ticket.DiscussionMessageID = input.DiscussionMessageID
		ticket.ForwardedAt = &now
		ticket.LastActivityAt = now
		if err := s.tickets.Put(ctx, ticket); err != nil {
			return nil, err
		}

		result = &ForwardResult{Ticket: *ticket, Linked: true}
		s.logger.Info("ticket forwarded to discussion",
			zap.Int64("user_id", ticket.UserID),
			zap.Int("message_id", input.DiscussionMessageID))

		return []events.Event{s.newEvent(events.EventTicketForwarded, ticket,
			events.Actor{Type: domain.SenderStaff}, now,
			events.TicketForwardedPayload{
				DiscussionGroupID:   input.DiscussionGroupID,
				DiscussionMessageID: input.DiscussionMessageID,
			})}, nil
	})
	s.record("ticket_forwarded", err)
	return result, err
}

// CloseByUser closes the caller's own ticket.
func (s *TicketService) CloseByUser(ctx context.Context, user domain.Person) (*CloseResult, error) {
	var result *CloseResult
	err := s.withUser(ctx, user.ID, func() ([]events.Event, error) {
		ticket, err := s.tickets.Get(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if ticket == nil {
			return nil, apperrors.NewNotFound(format.NoOpenTicket, map[string]any{"user_id": user.ID})
		}
		var event *events.Event
		result, event, err = s.closeLocked(ctx, ticket, domain.SenderUser, user)
		if err != nil {
			return nil, err
		}
		return []events.Event{*event}, nil
	})
	s.record("ticket_closed", err)
	return result, err
}

// CloseByStaff closes the ticket that owns the discussion message staff
// replied to.
func (s *TicketService) CloseByStaff(ctx context.Context, staff domain.Person, replyToMessageID int) (*CloseResult, error) {
	target, err := s.resolveDiscussionTarget(ctx, replyToMessageID, format.StaffNoTicket)
	if err != nil {
		s.record("ticket_closed", err)
		return nil, err
	}

	var result *CloseResult
	err = s.withUser(ctx, target.UserID, func() ([]events.Event, error) {
		ticket, err := s.tickets.Get(ctx, target.UserID)
		if err != nil {
			return nil, err
		}
		if ticket == nil {
			return nil, apperrors.NewNotFound(format.StaffNoTicket, map[string]any{"user_id": target.UserID})
		}
		var event *events.Event
		result, event, err = s.closeLocked(ctx, ticket, domain.SenderStaff, staff)
		if err != nil {
			return nil, err
		}
		return []events.Event{*event}, nil
	})
	s.record("ticket_closed", err)
	return result, err
}

// closeLocked annotates the channel post and removes both records. The
// caller holds the user's lock.
func (s *TicketService) closeLocked(ctx context.Context, ticket *domain.Ticket, by domain.Sender, closer domain.Person) (*CloseResult, *events.Event, error) {
	now := s.now()
	ts := s.clock.Timestamp(now)
	closerName := closer.DisplayName()

	annotated, err := s.AnnotateClosure(ctx, ticket, by == domain.SenderStaff, closerName, ts)
	if err != nil {
		fields := []zap.Field{
			zap.Int64("user_id", ticket.UserID),
			zap.Int("message_id", ticket.OriginChannelMessageID),
			zap.Error(err),
		}
		if apperrors.IsNotFound(err) {
			s.logger.Info("channel post content unknown, skipping closure marker", fields...)
		} else {
			s.logger.Warn("failed to annotate channel post", fields...)
		}
	}

	if err := s.removeRecords(ctx, ticket.UserID); err != nil {
		return nil, nil, err
	}

	result := &CloseResult{
		Ticket:           *ticket,
		ClosedBy:         by,
		CloserName:       closerName,
		Timestamp:        ts,
		ChannelAnnotated: annotated,
	}
	s.logger.Info("ticket closed",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("user_id", ticket.UserID),
		zap.String("closed_by", string(by)))

	event := s.newEvent(events.EventTicketClosed, ticket,
		events.Actor{Type: by, Person: closer}, now,
		events.TicketClosedPayload{
			UserName:         ticket.UserName,
			IssueType:        ticket.IssueType,
			ClosedBy:         by,
			CloserName:       closerName,
			ChannelURL:       ticket.OriginChannelMessageURL,
			ChannelAnnotated: annotated,
		})
	return result, &event, nil
}

// removeRecords deletes the conversation log and the ticket. Stores without
// a transactional close get the log restored when the ticket delete fails.
func (s *TicketService) removeRecords(ctx context.Context, userID int64) error {
	if store, ok := s.tickets.(repository.TicketCloser); ok {
		return store.DeleteWithConversation(ctx, userID)
	}

	entries, err := s.conversations.ListFor(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.conversations.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, userID); err != nil {
		s.restoreConversation(ctx, userID, entries)
		return err
	}
	return nil
}

func (s *TicketService) restoreConversation(ctx context.Context, userID int64, entries []domain.ConversationEntry) {
	for i := range entries {
		entry := entries[i]
		if err := s.conversations.Append(ctx, userID, &entry); err != nil {
			s.logger.Error("failed to restore conversation entry",
				zap.Int64("user_id", userID),
				zap.Int("message_id", entry.SourceMessageID),
				zap.Error(err))
			return
		}
	}
}

// AnnotateClosure appends the closure marker to the ticket's channel post.
// It reports false without editing when the post already carries the marker.
// When the gateway no longer knows the post, the body stored on the ticket at
// creation is used instead.
func (s *TicketService) AnnotateClosure(ctx context.Context, ticket *domain.Ticket, byStaff bool, closerName, ts string) (bool, error) {
	if ticket.ChannelID == 0 || ticket.OriginChannelMessageID == 0 {
		return false, nil
	}
	content, err := s.gateway.GetMessage(ctx, ticket.ChannelID, ticket.OriginChannelMessageID)
	if apperrors.IsNotFound(err) && ticket.ChannelPostText != "" {
		content = storedPost(ticket)
		err = nil
	}
	if err != nil {
		return false, err
	}
	body := content.Body()
	if strings.Contains(body, format.ClosedSentinel) {
		return false, nil
	}

	annotated := body + "\n\n" + format.ClosureMarker(byStaff, closerName, ts)
	if content.HasMedia {
		err = s.gateway.EditCaption(ctx, ticket.ChannelID, ticket.OriginChannelMessageID, annotated)
	} else {
		err = s.gateway.EditText(ctx, ticket.ChannelID, ticket.OriginChannelMessageID, annotated)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func storedPost(ticket *domain.Ticket) *gateway.MessageContent {
	if ticket.ChannelPostHasMedia {
		return &gateway.MessageContent{Caption: ticket.ChannelPostText, HasMedia: true}
	}
	return &gateway.MessageContent{Text: ticket.ChannelPostText}
}

// HasOpenTicket reports whether userID currently has a ticket.
func (s *TicketService) HasOpenTicket(ctx context.Context, userID int64) (bool, error) {
	ticket, err := s.tickets.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return ticket != nil, nil
}

// ListOpenTickets returns every open ticket, oldest first.
func (s *TicketService) ListOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.List(ctx)
}

// GetTicketDetail returns a user's ticket and conversation log.
func (s *TicketService) GetTicketDetail(ctx context.Context, userID int64) (*TicketDetail, error) {
	ticket, err := s.tickets.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperrors.NewNotFound("ticket not found", map[string]any{"user_id": userID})
	}
	entries, err := s.conversations.ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: *ticket, Conversation: entries}, nil
}
