package bot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/listener"
	"github.com/spec-kit/ticket-relay/internal/service"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const issueCallbackPrefix = "issue_"

func categoryKeyboard() gateway.Keyboard {
	kb := make(gateway.Keyboard, 0, len(domain.IssueTypes))
	for _, issue := range domain.IssueTypes {
		kb = append(kb, []gateway.Button{{
			Text: format.CategoryButton(issue),
			Data: issueCallbackPrefix + string(issue),
		}})
	}
	return kb
}

func (b *Bot) handleCreateTicket(ctx context.Context, msg *gateway.Incoming) {
	open, err := b.tickets.HasOpenTicket(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("open ticket check failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.reply(ctx, msg, gateway.Outgoing{Text: format.StorageFailed})
		return
	}
	if open {
		b.reply(ctx, msg, gateway.Outgoing{Text: format.AlreadyOpen})
		return
	}
	b.send(ctx, msg.ChatID, gateway.Outgoing{Text: format.CategoryPrompt, Keyboard: categoryKeyboard()})
}

func (b *Bot) handleCallback(ctx context.Context, cb *gateway.Callback) {
	if err := b.messenger.AnswerCallback(ctx, cb.ID, ""); err != nil {
		b.logger.Debug("callback answer failed", zap.Error(err))
	}
	raw, ok := strings.CutPrefix(cb.Data, issueCallbackPrefix)
	if !ok {
		return
	}
	issue := domain.IssueType(raw)
	if !issue.Valid() {
		b.logger.Warn("unknown issue type in callback", zap.String("data", cb.Data))
		return
	}

	if err := b.messenger.DeleteMessage(ctx, cb.ChatID, cb.MessageID); err != nil {
		b.logger.Debug("category keyboard not removed", zap.Error(err))
	}
	b.send(ctx, cb.ChatID, gateway.Outgoing{Text: format.CategorySelected(issue)})

	description, err := b.listeners.Wait(ctx, cb.From.ID, b.descriptionTimeout)
	switch {
	case errors.Is(err, listener.ErrSuperseded):
		return
	case apperrors.IsTimeout(err):
		b.send(ctx, cb.ChatID, gateway.Outgoing{Text: format.DescriptionTimeout})
		return
	case err != nil:
		b.logger.Debug("description wait aborted", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		return
	}

	ticket, err := b.tickets.CreateTicket(ctx, service.TicketCreateInput{
		User:      description.From,
		IssueType: issue,
		MessageID: description.MessageID,
		Text:      description.Body(),
		Media:     description.Media,
	})
	if err != nil {
		b.logger.Warn("ticket creation failed", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		b.reply(ctx, description, gateway.Outgoing{Text: "❌ " + userMessage(err) + "\n" + format.CreateFailedSuffix})
		return
	}
	b.logger.Info("ticket opened by user", zap.String("ticket_id", ticket.ID), zap.Int64("user_id", ticket.UserID))
	b.reply(ctx, description, gateway.Outgoing{Text: format.TicketCreated})
}

func (b *Bot) handleUserMessage(ctx context.Context, msg *gateway.Incoming) {
	if msg.Body() == "" && msg.Media.IsNone() {
		b.reply(ctx, msg, gateway.Outgoing{Text: format.Unsupported})
		return
	}
	_, err := b.relay.RelayUserMessage(ctx, service.UserMessageInput{
		User:      msg.From,
		MessageID: msg.MessageID,
		ReplyTo:   msg.ReplyToID(),
		Text:      msg.Body(),
		Media:     msg.Media,
	})
	switch {
	case err == nil:
		b.reply(ctx, msg, gateway.Outgoing{Text: format.UserRelayOK})
	case apperrors.IsNotFound(err), apperrors.HasCode(err, apperrors.CodeTicketPending):
		b.reply(ctx, msg, gateway.Outgoing{Text: userMessage(err)})
	default:
		b.reply(ctx, msg, gateway.Outgoing{Text: format.UserRelayFailed})
	}
}

func (b *Bot) handleUserClose(ctx context.Context, msg *gateway.Incoming) {
	result, err := b.tickets.CloseByUser(ctx, msg.From)
	switch {
	case err == nil:
		b.reply(ctx, msg, gateway.Outgoing{Text: format.UserClosedConfirmation(result.Ticket.IssueType, result.Timestamp)})
	case apperrors.IsNotFound(err):
		b.reply(ctx, msg, gateway.Outgoing{Text: format.NoOpenTicket})
	default:
		b.logger.Error("user close failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.reply(ctx, msg, gateway.Outgoing{Text: format.CloseFailed})
	}
}

func (b *Bot) handleForward(ctx context.Context, msg *gateway.Incoming) {
	result, err := b.tickets.ConfirmForward(ctx, service.ForwardInput{
		ChannelMessageID:    msg.ForwardFromMessageID,
		DiscussionGroupID:   msg.ChatID,
		DiscussionMessageID: msg.MessageID,
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			b.logger.Debug("forward does not match a ticket", zap.Int("channel_message_id", msg.ForwardFromMessageID))
			return
		}
		b.logger.Error("forward confirmation failed", zap.Int("channel_message_id", msg.ForwardFromMessageID), zap.Error(err))
		return
	}
	if result.Linked {
		b.logger.Info("ticket linked to discussion thread",
			zap.Int64("user_id", result.Ticket.UserID),
			zap.Int("discussion_message_id", msg.MessageID))
	}
}

func (b *Bot) handleStaffClose(ctx context.Context, msg *gateway.Incoming) {
	if msg.ReplyTo == nil {
		b.reply(ctx, msg, gateway.Outgoing{Text: format.CloseNeedsReply})
		return
	}
	result, err := b.tickets.CloseByStaff(ctx, msg.From, msg.ReplyTo.MessageID)
	switch {
	case err == nil:
		b.reply(ctx, msg, gateway.Outgoing{
			Text:           format.StaffClosureConfirmation(result.Ticket.UserID, result.Ticket.OriginChannelMessageURL),
			ParseMode:      gateway.Markdown,
			DisablePreview: true,
		})
	case apperrors.IsNotFound(err):
		b.reply(ctx, msg, gateway.Outgoing{Text: format.StaffNoTicket})
	default:
		b.logger.Error("staff close failed", zap.Int64("staff_id", msg.From.ID), zap.Error(err))
		b.reply(ctx, msg, gateway.Outgoing{Text: format.CloseFailed})
	}
}

func (b *Bot) handleStaffReply(ctx context.Context, msg *gateway.Incoming) {
	if msg.Body() == "" && msg.Media.IsNone() {
		return
	}
	_, err := b.relay.RelayStaffReply(ctx, service.StaffReplyInput{
		Staff:     msg.From,
		MessageID: msg.MessageID,
		ReplyTo:   msg.ReplyTo.MessageID,
		Text:      msg.Body(),
		Media:     msg.Media,
	})
	switch {
	case err == nil:
		b.reply(ctx, msg, gateway.Outgoing{Text: format.StaffRelayOK})
	case apperrors.IsNotFound(err):
		b.reply(ctx, msg, gateway.Outgoing{Text: format.StaffNoUser})
	default:
		b.reply(ctx, msg, gateway.Outgoing{Text: format.StaffRelayFailed})
	}
}

// userMessage picks the text shown to the user for err.
func userMessage(err error) string {
	de := apperrors.ToDomainError(err)
	switch de.Code {
	case apperrors.CodeNotFound, apperrors.CodeAlreadyExists, apperrors.CodeTicketPending, apperrors.CodeValidation:
		return de.Message
	case apperrors.CodeStorage:
		return format.StorageFailed
	default:
		return "An unexpected error occurred."
	}
}
