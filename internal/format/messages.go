package format

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/ticket-relay/internal/domain"
)

// ClosedSentinel marks a channel post as closed. Annotation is skipped when
// the post already contains it.
const ClosedSentinel = "TICKET CLOSED"

const previewLimit = 100

// Greeting answers /start.
const Greeting = "👋 Hello! I am a Support Bot. How can I help you today?\n\n" +
	"Use /create_ticket to open a new support ticket\n" +
	"Use /close_ticket to close an existing ticket"

// TicketCreated confirms a committed ticket to its user.
const TicketCreated = "🎫 Your ticket has been created and forwarded to our support team.\n" +
	"We will respond as soon as possible.\n" +
	"You can close this ticket at any time with /close_ticket"

// User facing replies of the command surface.
const (
	CategoryPrompt     = "Please select the category that best matches your issue:"
	AlreadyOpen        = "You already have an open ticket! Please close it with /close_ticket first"
	NoActiveTicket     = "You don't have an active ticket. Use /create_ticket to open a new ticket."
	NoOpenTicket       = "You don't have an open ticket."
	TicketPending      = "Your ticket is waiting for our support team to pick it up. Please wait a moment before sending more messages."
	DescriptionMissing = "Please provide either text or media content for your ticket."
	DescriptionTimeout = "You did not provide a description within the time limit. Please use /create_ticket to start again."
	UserRelayOK        = "✅ Your message has been forwarded to our support team."
	UserRelayFailed    = "❌ An error occurred while processing your message. Please try again later."
	StaffRelayOK       = "✅ Message has been forwarded to the user."
	StaffNoUser        = "❓ Cannot find the user associated with this message."
	StaffNoTicket      = "Cannot find a ticket associated with this message."
	StaffRelayFailed   = "❌ Error sending message to the user. Please try again later."
	Unsupported        = "This type of message is not supported. Please send text, photo, video, document, audio or voice."
	CloseNeedsReply    = "This command must be used as a reply to a message from the ticket you want to close."
	CreateFailedSuffix = "Please try again later or contact an administrator."
	CloseFailed        = "An error occurred while closing the ticket. Please try again later or contact an administrator."
	StorageFailed      = "Something went wrong on our side. Please try again later."
)

// CategoryButton is the keyboard label offered for an issue type.
func CategoryButton(issue domain.IssueType) string {
	switch issue {
	case domain.IssueTechnical:
		return "Technical Issue"
	case domain.IssueBilling:
		return "Billing Question"
	case domain.IssueFeature:
		return "Feature Request"
	default:
		return "General Question"
	}
}

// CategorySelected confirms the picked category and asks for a description.
func CategorySelected(issue domain.IssueType) string {
	return fmt.Sprintf("You have selected: %s\n\n"+
		"Please describe your issue in detail: (You can send text, photo, video, or document)", issue.Label())
}

// TicketPost is the support-channel post that anchors a new ticket.
func TicketPost(user domain.Person, issue domain.IssueType, ts, text string, hasMedia bool) string {
	username := user.Username
	if username == "" {
		username = "N/A"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 NEW TICKET #%d\n", user.ID)
	fmt.Fprintf(&b, "👤 User: %s (@%s)\n", user.FirstName, username)
	fmt.Fprintf(&b, "📝 Category: %s\n", issue.Label())
	fmt.Fprintf(&b, "⏰ Time: %s\n", ts)
	switch {
	case text != "" && !hasMedia:
		b.WriteString("🔍 Message:\n" + text)
	case text != "":
		b.WriteString("🔍 Message:\n" + text + "\n\n(Media attached)")
	default:
		b.WriteString("🔍 Message: (Media without text)")
	}
	return b.String()
}

// UserRelayCaption is the text of a user message mirrored into the thread.
func UserRelayCaption(user domain.Person, ts, text string, isReply bool) string {
	who := "👤 " + user.DisplayName()
	verb := "sent a message"
	if isReply {
		verb = "replied"
	}
	if text != "" {
		return fmt.Sprintf("%s %s on %s:\n\n%s", who, verb, ts, text)
	}
	if isReply {
		return fmt.Sprintf("%s replied with media on %s.", who, ts)
	}
	return fmt.Sprintf("%s sent media on %s.", who, ts)
}

// StaffReplyCaption is the text of a staff reply delivered to the user.
func StaffReplyCaption(text string) string {
	if text == "" {
		return "💬 Reply from Support Staff:"
	}
	return "💬 Reply from Support Staff:\n\n" + text
}

// NewTicketNotice is the Markdown staff notification for a new ticket.
func NewTicketNotice(user domain.Person, issue domain.IssueType, ts, description, channelURL string) string {
	var b strings.Builder
	b.WriteString("🎫 NEW TICKET\n\n")
	fmt.Fprintf(&b, "👤 From: %s (ID: %d)\n", escape(user.DisplayName()), user.ID)
	fmt.Fprintf(&b, "📝 Category: %s\n", issue.Label())
	fmt.Fprintf(&b, "⏰ Time: %s\n\n", ts)
	b.WriteString("🔍 Description: " + describe(description) + "\n\n")
	if channelURL != "" {
		b.WriteString("📎 [View in Channel](" + channelURL + ")")
	}
	return b.String()
}

// UserMessageNotice is the Markdown staff notification for a relayed user
// message, linking both the mirror and the ticket's channel post.
func UserMessageNotice(user domain.Person, text, discussionURL, channelURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 New message from %s (ID: %d)\n\n", escape(user.DisplayName()), user.ID)
	b.WriteString("Message: " + describe(text) + "\n\n")
	var links []string
	if discussionURL != "" {
		links = append(links, "📎 [View in Group]("+discussionURL+")")
	}
	if channelURL != "" {
		links = append(links, "🔗 [View Ticket in Channel]("+channelURL+")")
	}
	b.WriteString(strings.Join(links, " | "))
	return b.String()
}

// ClosureMarker is appended to the channel post when a ticket closes.
func ClosureMarker(byStaff bool, closerName, ts string) string {
	if byStaff {
		return fmt.Sprintf("🔒 %s by staff %s on %s", ClosedSentinel, closerName, ts)
	}
	return fmt.Sprintf("🔒 %s by user on %s", ClosedSentinel, ts)
}

// UserClosedConfirmation answers a user who closed their own ticket.
func UserClosedConfirmation(issue domain.IssueType, ts string) string {
	return "✅ Your ticket has been closed.\n\n" +
		"📝 Category: " + issue.Label() + "\n" +
		"⏰ Closed on: " + ts + "\n" +
		"👤 Closed by: You\n\n" +
		"Thank you for contacting us. If you have another question, please use /create_ticket to create a new ticket."
}

// StaffClosedUserNotice tells the user staff closed their ticket.
func StaffClosedUserNotice(issue domain.IssueType, ts, staffName string) string {
	return "🔒 Your ticket has been closed by our support staff.\n\n" +
		"📝 Category: " + issue.Label() + "\n" +
		"⏰ Closed on: " + ts + "\n" +
		"👤 Closed by: " + escape(staffName) + "\n" +
		"Thank you for contacting us. If you have another question, please use /create_ticket to create a new ticket."
}

// ClosureNotice is the Markdown staff notification for a closed ticket.
func ClosureNotice(userName string, userID int64, issue domain.IssueType, ts, closedBy, channelURL string) string {
	var b strings.Builder
	b.WriteString("🔒 TICKET CLOSED\n\n")
	fmt.Fprintf(&b, "👤 User: %s (ID: %d)\n", escape(userName), userID)
	fmt.Fprintf(&b, "📝 Category: %s\n", issue.Label())
	fmt.Fprintf(&b, "⏰ Closed on: %s\n", ts)
	fmt.Fprintf(&b, "✅ Closed by: %s\n\n", escape(closedBy))
	if channelURL != "" {
		b.WriteString("🔗 [View Ticket](" + channelURL + ")")
	}
	return b.String()
}

// StaffClosureConfirmation answers the staff member who closed a ticket.
func StaffClosureConfirmation(userID int64, channelURL string) string {
	text := "✅ Ticket for user ID " + strconv.FormatInt(userID, 10) + " has been closed."
	if channelURL != "" {
		text += "\n🔗 [View Ticket](" + channelURL + ")"
	}
	return text
}

// Preview truncates text to the notification preview length.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "..."
}

func describe(text string) string {
	if text == "" {
		return "[Media without text]"
	}
	return escape(Preview(text))
}

func escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}
