package gateway

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relay/internal/domain"
)

func TestBuildSendableDispatchesOnMediaKind(t *testing.T) {
	cases := []struct {
		kind  domain.MediaKind
		check func(t *testing.T, c tgbotapi.Chattable)
	}{
		{domain.MediaPhoto, func(t *testing.T, c tgbotapi.Chattable) {
			p, ok := c.(*tgbotapi.PhotoConfig)
			require.True(t, ok)
			assert.Equal(t, "caption", p.Caption)
			assert.Equal(t, 9, p.ReplyToMessageID)
		}},
		{domain.MediaVideo, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(*tgbotapi.VideoConfig)
			assert.True(t, ok)
		}},
		{domain.MediaDocument, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(*tgbotapi.DocumentConfig)
			assert.True(t, ok)
		}},
		{domain.MediaAudio, func(t *testing.T, c tgbotapi.Chattable) {
			_, ok := c.(*tgbotapi.AudioConfig)
			assert.True(t, ok)
		}},
		{domain.MediaVoice, func(t *testing.T, c tgbotapi.Chattable) {
			v, ok := c.(*tgbotapi.VoiceConfig)
			require.True(t, ok)
			assert.Equal(t, int64(5), v.ChatID)
		}},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			c := buildSendable(5, Outgoing{
				Text:    "caption",
				Media:   domain.Media{Kind: tc.kind, Ref: "file"},
				ReplyTo: 9,
			})
			tc.check(t, c)
		})
	}
}

func TestBuildSendableTextWithKeyboard(t *testing.T) {
	c := buildSendable(5, Outgoing{
		Text:           "pick one",
		ParseMode:      Markdown,
		DisablePreview: true,
		Keyboard:       Keyboard{{{Text: "Billing", Data: "issue_billing"}}, {{Text: "Open", URL: "https://t.me/c/1/2"}}},
	})
	m, ok := c.(*tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "pick one", m.Text)
	assert.True(t, m.DisableWebPagePreview)

	markup, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "issue_billing", *markup.InlineKeyboard[0][0].CallbackData)
	require.NotNil(t, markup.InlineKeyboard[1][0].URL)
}

func TestNormalizeForwardedReply(t *testing.T) {
	raw := tgbotapi.Update{
		UpdateID: 3,
		Message: &tgbotapi.Message{
			MessageID:            70,
			From:                 &tgbotapi.User{ID: 12, FirstName: "Sam"},
			Chat:                 &tgbotapi.Chat{ID: -200, Type: "supergroup"},
			Caption:              "with photo",
			Photo:                []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
			ForwardFromChat:      &tgbotapi.Chat{ID: -100, Type: "channel"},
			ForwardFromMessageID: 55,
			ReplyToMessage:       &tgbotapi.Message{MessageID: 60, Text: "anchor"},
		},
	}

	update, ok := normalize(raw)
	require.True(t, ok)
	in := update.Message
	require.NotNil(t, in)
	assert.Equal(t, int64(-200), in.ChatID)
	assert.False(t, in.IsPrivate())
	assert.Equal(t, "with photo", in.Body())
	assert.Equal(t, domain.Media{Kind: domain.MediaPhoto, Ref: "large"}, in.Media)
	assert.Equal(t, 55, in.ForwardFromMessageID)
	assert.Equal(t, 60, in.ReplyToID())
	assert.Equal(t, int64(12), in.From.ID)
}

func TestNormalizeCallbackAndUnknown(t *testing.T) {
	update, ok := normalize(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 4},
		Data:    "issue_general",
		Message: &tgbotapi.Message{MessageID: 8, Chat: &tgbotapi.Chat{ID: 4}},
	}})
	require.True(t, ok)
	require.NotNil(t, update.Callback)
	assert.Equal(t, "issue_general", update.Callback.Data)
	assert.Equal(t, int64(4), update.Callback.ChatID)

	_, ok = normalize(tgbotapi.Update{})
	assert.False(t, ok)
}

func TestMemoryPostCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryPostCache(2)
	require.NoError(t, cache.Put(ctx, 1, 1, MessageContent{Text: "a"}))
	require.NoError(t, cache.Put(ctx, 1, 2, MessageContent{Text: "b"}))
	require.NoError(t, cache.Put(ctx, 1, 3, MessageContent{Caption: "c", HasMedia: true}))

	gone, err := cache.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, gone)

	got, err := cache.Get(ctx, 1, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.Body())
}
