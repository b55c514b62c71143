package domain

import "time"

// Sender indicates which side authored a conversation entry.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderStaff Sender = "staff"
)

// ConversationEntry is one relayed message in a user's conversation log.
//
// For user entries SourceMessageID is the user's own message and
// DiscussionMessageID is the mirror posted into the discussion thread once the
// relay is confirmed. For staff entries SourceMessageID is the message the
// bot delivered into the user's chat and DiscussionMessageID is the staff
// member's message in the thread.
type ConversationEntry struct {
	Seq                        int64     `json:"seq"`
	Sender                     Sender    `json:"sender"`
	SourceMessageID            int       `json:"message_id"`
	Text                       string    `json:"text"`
	Media                      Media     `json:"media"`
	SentAt                     time.Time `json:"sent_at"`
	DiscussionMessageID        int       `json:"discussion_message_id,omitempty"`
	ReplyToSourceMessageID     int       `json:"reply_to_message_id,omitempty"`
	RepliedDiscussionMessageID int       `json:"replied_to_discussion_msg_id,omitempty"`
	IsReplyToStaff             bool      `json:"is_reply_to_staff,omitempty"`
}

// RelayConfirmed reports whether the mirrored message has been sent.
func (e ConversationEntry) RelayConfirmed() bool {
	return e.DiscussionMessageID != 0
}
