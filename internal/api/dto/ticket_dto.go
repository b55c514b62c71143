package dto

import (
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/service"
)

// TicketSummary response.
type TicketSummary struct {
	ID                  string              `json:"id"`
	UserID              int64               `json:"user_id"`
	UserName            string              `json:"user_name"`
	IssueType           domain.IssueType    `json:"issue_type"`
	Status              domain.TicketStatus `json:"status"`
	MediaKind           domain.MediaKind    `json:"media_type"`
	ChannelMessageID    int                 `json:"channel_message_id"`
	ChannelMessageURL   string              `json:"channel_message_url"`
	DiscussionMessageID int                 `json:"discussion_message_id,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	ForwardedAt         *time.Time          `json:"forwarded_at,omitempty"`
	LastActivityAt      time.Time           `json:"last_activity_at"`
}

// ConversationEntryResponse is one relayed message.
type ConversationEntryResponse struct {
	Seq                 int64            `json:"seq"`
	Sender              domain.Sender    `json:"sender"`
	MessageID           int              `json:"message_id"`
	DiscussionMessageID int              `json:"discussion_message_id,omitempty"`
	Text                string           `json:"text,omitempty"`
	MediaKind           domain.MediaKind `json:"media_type"`
	IsReplyToStaff      bool             `json:"is_reply_to_staff,omitempty"`
	RelayConfirmed      bool             `json:"relay_confirmed"`
	SentAt              time.Time        `json:"sent_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Conversation []ConversationEntryResponse `json:"conversation"`
}

// NewTicketSummary maps a ticket for the admin API.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:                  t.ID,
		UserID:              t.UserID,
		UserName:            t.UserName,
		IssueType:           t.IssueType,
		Status:              t.Status,
		MediaKind:           t.MediaKind,
		ChannelMessageID:    t.OriginChannelMessageID,
		ChannelMessageURL:   t.OriginChannelMessageURL,
		DiscussionMessageID: t.DiscussionMessageID,
		CreatedAt:           t.CreatedAt,
		ForwardedAt:         t.ForwardedAt,
		LastActivityAt:      t.LastActivityAt,
	}
}

// NewTicketDetail maps a ticket with its conversation.
func NewTicketDetail(detail *service.TicketDetail) TicketDetailResponse {
	entries := make([]ConversationEntryResponse, 0, len(detail.Conversation))
	for _, e := range detail.Conversation {
		entries = append(entries, ConversationEntryResponse{
			Seq:                 e.Seq,
			Sender:              e.Sender,
			MessageID:           e.SourceMessageID,
			DiscussionMessageID: e.DiscussionMessageID,
			Text:                e.Text,
			MediaKind:           e.Media.KindOrNone(),
			IsReplyToStaff:      e.IsReplyToStaff,
			RelayConfirmed:      e.RelayConfirmed(),
			SentAt:              e.SentAt,
		})
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(&detail.Ticket),
		Conversation:  entries,
	}
}
