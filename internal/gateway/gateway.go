// Package gateway wraps the chat platform. The relay engine only sees the
// Gateway interface; Telegram is the production implementation.
package gateway

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
)

// Markdown is the parse mode used for staff notifications.
const Markdown = "Markdown"

// Outgoing describes one message to send. Media, when present, is sent with
// Text as its caption; otherwise Text is sent as a plain message.
type Outgoing struct {
	Text           string
	Media          domain.Media
	ReplyTo        int
	ParseMode      string
	DisablePreview bool
	Keyboard       Keyboard
}

// Keyboard is an inline keyboard laid out row by row.
type Keyboard [][]Button

// Button is either a callback button (Data) or a link button (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

// MessageContent is what the relay can read back of a posted message.
type MessageContent struct {
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	HasMedia bool   `json:"has_media"`
}

// Body returns the caption for media posts and the text otherwise.
func (c MessageContent) Body() string {
	if c.HasMedia {
		return c.Caption
	}
	return c.Text
}

// Gateway is the send/edit/read contract consumed by the relay engine.
type Gateway interface {
	Send(ctx context.Context, chatID int64, msg Outgoing) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
	// GetMessage fails with NotFound when the message content is unknown.
	GetMessage(ctx context.Context, chatID int64, messageID int) (*MessageContent, error)
}

// Reply is the message an incoming message replies to.
type Reply struct {
	MessageID int
	From      domain.Person
	Text      string
	Caption   string
}

// Incoming is a normalized inbound message.
type Incoming struct {
	MessageID            int
	ChatID               int64
	ChatType             string
	From                 domain.Person
	SenderChatID         int64
	Text                 string
	Caption              string
	Media                domain.Media
	Command              string
	ReplyTo              *Reply
	ForwardFromChatID    int64
	ForwardFromMessageID int
	Date                 time.Time
}

// Body returns the text the sender wrote, whether as text or as caption.
func (m *Incoming) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// IsPrivate reports whether the message was sent in a one-to-one chat.
func (m *Incoming) IsPrivate() bool {
	return m.ChatType == "private"
}

// ReplyToID returns the replied-to message id, or zero.
func (m *Incoming) ReplyToID() int {
	if m.ReplyTo == nil {
		return 0
	}
	return m.ReplyTo.MessageID
}

// Callback is a normalized inline keyboard press.
type Callback struct {
	ID        string
	From      domain.Person
	ChatID    int64
	MessageID int
	Data      string
}

// Update carries exactly one of Message or Callback.
type Update struct {
	ID       int
	Message  *Incoming
	Callback *Callback
}
