package events

import (
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketForwarded    EventType = "ticket_forwarded"
	EventUserMessageRelayed EventType = "user_message_relayed"
	EventStaffReplyRelayed  EventType = "staff_reply_relayed"
	EventTicketClosed       EventType = "ticket_closed"
)

// Actor identifies who triggered an event.
type Actor struct {
	Type   domain.Sender `json:"type"`
	Person domain.Person `json:"person"`
}

// Event represents a lifecycle event emitted by the relay engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	UserID    int64       `json:"user_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	User             domain.Person    `json:"user"`
	IssueType        domain.IssueType `json:"issue_type"`
	Description      string           `json:"description"`
	MediaKind        domain.MediaKind `json:"media_type"`
	ChannelMessageID int              `json:"channel_message_id"`
	ChannelURL       string           `json:"channel_url"`
}

// TicketForwardedPayload payload.
type TicketForwardedPayload struct {
	DiscussionGroupID   int64 `json:"discussion_group_id"`
	DiscussionMessageID int   `json:"discussion_message_id"`
}

// UserMessageRelayedPayload payload. DiscussionMessageID is zero when the
// mirror could not be sent.
type UserMessageRelayedPayload struct {
	User                domain.Person    `json:"user"`
	Text                string           `json:"text"`
	MediaKind           domain.MediaKind `json:"media_type"`
	IsReplyToStaff      bool             `json:"is_reply_to_staff"`
	DiscussionMessageID int              `json:"discussion_message_id,omitempty"`
	DiscussionURL       string           `json:"discussion_url,omitempty"`
	ChannelURL          string           `json:"channel_url"`
}

// StaffReplyRelayedPayload payload.
type StaffReplyRelayedPayload struct {
	Staff                      domain.Person    `json:"staff"`
	Text                       string           `json:"text"`
	MediaKind                  domain.MediaKind `json:"media_type"`
	UserMessageID              int              `json:"user_message_id"`
	RepliedDiscussionMessageID int              `json:"replied_discussion_message_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	UserName         string           `json:"user_name"`
	IssueType        domain.IssueType `json:"issue_type"`
	ClosedBy         domain.Sender    `json:"closed_by"`
	CloserName       string           `json:"closer_name"`
	ChannelURL       string           `json:"channel_url"`
	ChannelAnnotated bool             `json:"channel_annotated"`
}
