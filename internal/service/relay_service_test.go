package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/format"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

func TestUserMessageRequiresActiveTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	input := UserMessageInput{User: alice, MessageID: 20, Text: "hello?"}

	_, err := h.relaySvc.RelayUserMessage(ctx, input)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, format.NoActiveTicket, apperrors.ToDomainError(err).Message)

	h.createTicket(t, alice, "help")
	_, err = h.relaySvc.RelayUserMessage(ctx, input)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketPending))

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Empty(t, h.gateway.sentTo(groupID))
}

func TestUserMessageThreadsUnderAnchor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)

	result, err := h.relaySvc.RelayUserMessage(ctx, UserMessageInput{User: alice, MessageID: 21, Text: "more details"})
	require.NoError(t, err)

	mirrors := h.gateway.sentTo(groupID)
	require.Len(t, mirrors, 1)
	assert.Equal(t, 9000, mirrors[0].Msg.ReplyTo)
	assert.Contains(t, mirrors[0].Msg.Text, "sent a message")
	assert.Equal(t, mirrors[0].ID, result.DiscussionMessageID)

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, mirrors[0].ID, entries[1].DiscussionMessageID)
	assert.False(t, entries[1].IsReplyToStaff)

	notices := h.gateway.sentTo(staffA)
	require.Len(t, notices, 2)
	assert.Contains(t, notices[1].Msg.Text, "New message from")
	assert.Contains(t, notices[1].Msg.Text, "View in Group")
	assert.Contains(t, notices[1].Msg.Text, ticket.OriginChannelMessageURL)
}

func TestUserReplyToStaffThreadsUnderStaffMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)

	staffReply, err := h.relaySvc.RelayStaffReply(ctx, StaffReplyInput{
		Staff:     domain.Person{ID: staffA, FirstName: "Sam"},
		MessageID: 9100,
		ReplyTo:   9000,
		Text:      "which version?",
	})
	require.NoError(t, err)

	_, err = h.relaySvc.RelayUserMessage(ctx, UserMessageInput{
		User:      alice,
		MessageID: 22,
		ReplyTo:   staffReply.UserMessageID,
		Text:      "version 2",
	})
	require.NoError(t, err)

	mirrors := h.gateway.sentTo(groupID)
	require.Len(t, mirrors, 1)
	assert.Equal(t, 9100, mirrors[0].Msg.ReplyTo)
	assert.Contains(t, mirrors[0].Msg.Text, "replied")

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.True(t, last.IsReplyToStaff)
	assert.Equal(t, 9100, last.RepliedDiscussionMessageID)
	assert.Equal(t, staffReply.UserMessageID, last.ReplyToSourceMessageID)
}

func TestUserReplyToOwnMessageThreadsUnderAnchor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)

	_, err := h.relaySvc.RelayUserMessage(ctx, UserMessageInput{User: alice, MessageID: 23, ReplyTo: 10, Text: "bump"})
	require.NoError(t, err)

	mirrors := h.gateway.sentTo(groupID)
	require.Len(t, mirrors, 1)
	assert.Equal(t, 9000, mirrors[0].Msg.ReplyTo)
}

func TestUserRelayFailureKeepsUnconfirmedEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)
	h.gateway.failChat(groupID, true)

	result, err := h.relaySvc.RelayUserMessage(ctx, UserMessageInput{User: alice, MessageID: 24, Text: "lost?"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRelayDelivery))
	require.NotNil(t, result)
	assert.Zero(t, result.DiscussionMessageID)

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "lost?", entries[1].Text)
	assert.False(t, entries[1].RelayConfirmed())
	assert.Len(t, h.gateway.sentTo(staffA), 1, "no message notice for an unrelayed message")
}

func TestStaffReplyToMirrorThreadsUnderUserMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)

	relayed, err := h.relaySvc.RelayUserMessage(ctx, UserMessageInput{
		User:      alice,
		MessageID: 30,
		Text:      "screenshot attached",
		Media:     domain.Media{Kind: domain.MediaDocument, Ref: "doc"},
	})
	require.NoError(t, err)

	result, err := h.relaySvc.RelayStaffReply(ctx, StaffReplyInput{
		Staff:     domain.Person{ID: staffB, FirstName: "Kim"},
		MessageID: 9200,
		ReplyTo:   relayed.DiscussionMessageID,
		Text:      "thanks",
	})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, result.UserID)

	delivered := h.gateway.sentTo(alice.ID)
	require.Len(t, delivered, 1)
	assert.Equal(t, 30, delivered[0].Msg.ReplyTo)
	assert.Equal(t, format.StaffReplyCaption("thanks"), delivered[0].Msg.Text)

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.SenderStaff, last.Sender)
	assert.Equal(t, result.UserMessageID, last.SourceMessageID)
	assert.Equal(t, 9200, last.DiscussionMessageID)
	assert.Equal(t, relayed.DiscussionMessageID, last.RepliedDiscussionMessageID)
}

func TestStaffReplyWithoutTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.relaySvc.RelayStaffReply(ctx, StaffReplyInput{Staff: domain.Person{ID: staffA}, MessageID: 1, ReplyTo: 4242, Text: "?"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, format.StaffNoUser, apperrors.ToDomainError(err).Message)
	assert.Empty(t, h.gateway.sent)
}

func TestStaffReplyDeliveryFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)
	h.gateway.failChat(alice.ID, true)

	_, err := h.relaySvc.RelayStaffReply(ctx, StaffReplyInput{Staff: domain.Person{ID: staffA}, MessageID: 9300, ReplyTo: 9000, Text: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRelayDelivery))

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTicketLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket := h.createTicket(t, alice, "app crashes")
	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "app crashes", entries[0].Text)
	assert.Equal(t, domain.TicketStatusPendingForward, ticket.Status)

	forward, err := h.ticketSvc.ConfirmForward(ctx, ForwardInput{
		ChannelMessageID:    ticket.OriginChannelMessageID,
		DiscussionGroupID:   groupID,
		DiscussionMessageID: 9000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusForwarded, forward.Ticket.Status)
	assert.Equal(t, 9000, forward.Ticket.DiscussionMessageID)

	reply, err := h.relaySvc.RelayStaffReply(ctx, StaffReplyInput{
		Staff:     domain.Person{ID: staffA, FirstName: "Sam"},
		MessageID: 9001,
		ReplyTo:   9000,
		Text:      "try reinstalling",
	})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, reply.UserID)
	delivered := h.gateway.sentTo(alice.ID)
	require.Len(t, delivered, 1)
	assert.Zero(t, delivered[0].Msg.ReplyTo, "anchor replies carry no reply linkage")

	entries, err = h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.SenderStaff, entries[1].Sender)

	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	entries, err = h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, staffID := range []int64{staffA, staffB} {
		notices := h.gateway.sentTo(staffID)
		require.NotEmpty(t, notices)
		assert.Contains(t, notices[len(notices)-1].Msg.Text, "TICKET CLOSED")
	}
}
