package gateway

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/config"
	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// Telegram implements Gateway on top of the Bot API.
type Telegram struct {
	api         *tgbotapi.BotAPI
	posts       PostCache
	tracked     map[int64]bool
	pollTimeout int
	logger      *zap.Logger
}

// NewTelegram authenticates the bot. Messages sent to or edited in the
// support channel are recorded in posts so closure can annotate them.
func NewTelegram(cfg config.TelegramConfig, posts PostCache, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Debug
	logger.Info("authorized telegram bot", zap.String("username", api.Self.UserName))

	return &Telegram{
		api:         api,
		posts:       posts,
		tracked:     map[int64]bool{cfg.SupportChannelID: true},
		pollTimeout: cfg.PollTimeoutSeconds,
		logger:      logger,
	}, nil
}

// Username is the bot's own username.
func (t *Telegram) Username() string {
	return t.api.Self.UserName
}

func (t *Telegram) Send(ctx context.Context, chatID int64, msg Outgoing) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewRelayDeliveryError("send cancelled", err)
	}
	sent, err := t.api.Send(buildSendable(chatID, msg))
	if err != nil {
		return 0, apperrors.NewRelayDeliveryError("failed to send message", err)
	}
	if t.tracked[chatID] {
		content := MessageContent{Text: msg.Text, HasMedia: !msg.Media.IsNone()}
		if content.HasMedia {
			content = MessageContent{Caption: msg.Text, HasMedia: true}
		}
		t.remember(ctx, chatID, sent.MessageID, content)
	}
	return sent.MessageID, nil
}

func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	if _, err := t.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return apperrors.NewRelayDeliveryError("failed to edit message", err)
	}
	if t.tracked[chatID] {
		t.remember(ctx, chatID, messageID, MessageContent{Text: text})
	}
	return nil
}

func (t *Telegram) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	if _, err := t.api.Request(tgbotapi.NewEditMessageCaption(chatID, messageID, caption)); err != nil {
		return apperrors.NewRelayDeliveryError("failed to edit caption", err)
	}
	if t.tracked[chatID] {
		t.remember(ctx, chatID, messageID, MessageContent{Caption: caption, HasMedia: true})
	}
	return nil
}

func (t *Telegram) GetMessage(ctx context.Context, chatID int64, messageID int) (*MessageContent, error) {
	content, err := t.posts.Get(ctx, chatID, messageID)
	if err != nil {
		return nil, apperrors.NewRelayDeliveryError("failed to read post cache", err)
	}
	if content == nil {
		return nil, apperrors.NewNotFound("message content unknown", map[string]any{
			"chat_id":    chatID,
			"message_id": messageID,
		})
	}
	return content, nil
}

// DeleteMessage removes a message, e.g. a spent category keyboard.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return apperrors.NewRelayDeliveryError("failed to delete message", err)
	}
	return nil
}

// AnswerCallback acknowledges an inline keyboard press.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return apperrors.NewRelayDeliveryError("failed to answer callback", err)
	}
	return nil
}

// Updates long-polls the Bot API until ctx is cancelled.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = t.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	source := t.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-source:
				if !ok {
					return
				}
				update, ok := normalize(raw)
				if !ok {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (t *Telegram) remember(ctx context.Context, chatID int64, messageID int, content MessageContent) {
	if err := t.posts.Put(ctx, chatID, messageID, content); err != nil {
		t.logger.Warn("failed to cache channel post",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
}

// buildSendable maps an Outgoing onto the single Bot API method matching its
// media kind.
func buildSendable(chatID int64, msg Outgoing) tgbotapi.Chattable {
	var (
		sendable tgbotapi.Chattable
		base     *tgbotapi.BaseChat
	)
	file := tgbotapi.FileID(msg.Media.Ref)

	switch msg.Media.KindOrNone() {
	case domain.MediaPhoto:
		c := tgbotapi.NewPhoto(chatID, file)
		c.Caption, c.ParseMode = msg.Text, msg.ParseMode
		sendable, base = &c, &c.BaseChat
	case domain.MediaVideo:
		c := tgbotapi.NewVideo(chatID, file)
		c.Caption, c.ParseMode = msg.Text, msg.ParseMode
		sendable, base = &c, &c.BaseChat
	case domain.MediaDocument:
		c := tgbotapi.NewDocument(chatID, file)
		c.Caption, c.ParseMode = msg.Text, msg.ParseMode
		sendable, base = &c, &c.BaseChat
	case domain.MediaAudio:
		c := tgbotapi.NewAudio(chatID, file)
		c.Caption, c.ParseMode = msg.Text, msg.ParseMode
		sendable, base = &c, &c.BaseChat
	case domain.MediaVoice:
		c := tgbotapi.NewVoice(chatID, file)
		c.Caption, c.ParseMode = msg.Text, msg.ParseMode
		sendable, base = &c, &c.BaseChat
	default:
		c := tgbotapi.NewMessage(chatID, msg.Text)
		c.ParseMode = msg.ParseMode
		c.DisableWebPagePreview = msg.DisablePreview
		sendable, base = &c, &c.BaseChat
	}

	if msg.ReplyTo != 0 {
		base.ReplyToMessageID = msg.ReplyTo
		base.AllowSendingWithoutReply = true
	}
	if len(msg.Keyboard) > 0 {
		base.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}
	return sendable
}

func inlineKeyboard(kb Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func normalize(raw tgbotapi.Update) (Update, bool) {
	switch {
	case raw.Message != nil:
		return Update{ID: raw.UpdateID, Message: toIncoming(raw.Message)}, true
	case raw.CallbackQuery != nil:
		cq := raw.CallbackQuery
		cb := &Callback{ID: cq.ID, Data: cq.Data, From: person(cq.From)}
		if cq.Message != nil {
			cb.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				cb.ChatID = cq.Message.Chat.ID
			}
		}
		return Update{ID: raw.UpdateID, Callback: cb}, true
	default:
		return Update{}, false
	}
}

func toIncoming(m *tgbotapi.Message) *Incoming {
	in := &Incoming{
		MessageID: m.MessageID,
		From:      person(m.From),
		Text:      m.Text,
		Caption:   m.Caption,
		Media:     extractMedia(m),
		Date:      m.Time(),
	}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
		in.ChatType = m.Chat.Type
	}
	if m.SenderChat != nil {
		in.SenderChatID = m.SenderChat.ID
	}
	if m.IsCommand() {
		in.Command = m.Command()
	}
	if m.ForwardFromChat != nil {
		in.ForwardFromChatID = m.ForwardFromChat.ID
		in.ForwardFromMessageID = m.ForwardFromMessageID
	}
	if r := m.ReplyToMessage; r != nil {
		in.ReplyTo = &Reply{
			MessageID: r.MessageID,
			From:      person(r.From),
			Text:      r.Text,
			Caption:   r.Caption,
		}
	}
	return in
}

func extractMedia(m *tgbotapi.Message) domain.Media {
	switch {
	case len(m.Photo) > 0:
		// Sizes are ordered smallest first.
		return domain.Media{Kind: domain.MediaPhoto, Ref: m.Photo[len(m.Photo)-1].FileID}
	case m.Video != nil:
		return domain.Media{Kind: domain.MediaVideo, Ref: m.Video.FileID}
	case m.Document != nil:
		return domain.Media{Kind: domain.MediaDocument, Ref: m.Document.FileID}
	case m.Audio != nil:
		return domain.Media{Kind: domain.MediaAudio, Ref: m.Audio.FileID}
	case m.Voice != nil:
		return domain.Media{Kind: domain.MediaVoice, Ref: m.Voice.FileID}
	default:
		return domain.Media{}
	}
}

func person(u *tgbotapi.User) domain.Person {
	if u == nil {
		return domain.Person{}
	}
	return domain.Person{ID: u.ID, FirstName: u.FirstName, Username: u.UserName}
}
