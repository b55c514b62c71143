package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/repository"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

func TestCreateTicketCommitsTicketAndFirstEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket := h.createTicket(t, alice, "app crashes")

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, ticket.ID, stored.ID)
	assert.Equal(t, domain.TicketStatusPendingForward, stored.Status)
	assert.Equal(t, "https://t.me/c/1111/"+strconv.Itoa(stored.OriginChannelMessageID), stored.OriginChannelMessageURL)

	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SenderUser, entries[0].Sender)
	assert.Equal(t, "app crashes", entries[0].Text)

	posts := h.gateway.sentTo(channelID)
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Msg.Text, "NEW TICKET #42")

	for _, staffID := range []int64{staffA, staffB} {
		notices := h.gateway.sentTo(staffID)
		require.Len(t, notices, 1)
		assert.Contains(t, notices[0].Msg.Text, "NEW TICKET")
		assert.Contains(t, notices[0].Msg.Text, "View in Channel")
	}
}

func TestCreateTicketRejectsSecondTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createTicket(t, alice, "first")

	_, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{
		User:      alice,
		IssueType: domain.IssueBilling,
		MessageID: 11,
		Text:      "second",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsAlreadyExists(err))
	assert.Equal(t, format.AlreadyOpen, apperrors.ToDomainError(err).Message)

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, domain.IssueTechnical, stored.IssueType)
	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, h.gateway.sentTo(channelID), 1)
}

func TestCreateTicketValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{User: alice, IssueType: domain.IssueGeneral, Text: "   "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = h.ticketSvc.CreateTicket(ctx, TicketCreateInput{User: alice, IssueType: "weather", Text: "hi"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	ticket, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{
		User:      alice,
		IssueType: domain.IssueGeneral,
		Media:     domain.Media{Kind: domain.MediaPhoto, Ref: "photo-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MediaPhoto, ticket.MediaKind)
}

func TestCreateTicketChannelFailureCommitsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.failChat(channelID, true)

	_, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{User: alice, IssueType: domain.IssueTechnical, Text: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRelayDelivery))

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.gateway.sentTo(staffA))
}

func TestConcurrentCreateYieldsSingleTicket(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
				User: alice, IssueType: domain.IssueTechnical, Text: "race",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperrors.IsAlreadyExists(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, rejected)
	entries, err := h.conversations.ListFor(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConfirmForwardIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")

	input := ForwardInput{ChannelMessageID: ticket.OriginChannelMessageID, DiscussionGroupID: groupID, DiscussionMessageID: 9000}
	first, err := h.ticketSvc.ConfirmForward(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.Linked)
	assert.True(t, first.Ticket.IsActive())

	second, err := h.ticketSvc.ConfirmForward(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Linked)

	input.DiscussionMessageID = 9999
	third, err := h.ticketSvc.ConfirmForward(ctx, input)
	require.NoError(t, err)
	assert.False(t, third.Linked)

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusForwarded, stored.Status)
	assert.Equal(t, 9000, stored.DiscussionMessageID)
	assert.Equal(t, groupID, stored.DiscussionGroupID)
	require.NotNil(t, stored.ForwardedAt)
}

func TestConfirmForwardUnknownPost(t *testing.T) {
	h := newHarness(t)
	_, err := h.ticketSvc.ConfirmForward(context.Background(), ForwardInput{ChannelMessageID: 777, DiscussionMessageID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCloseByUserRemovesBothRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)

	result, err := h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.SenderUser, result.ClosedBy)
	assert.True(t, result.ChannelAnnotated)

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	post, ok := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	require.True(t, ok)
	assert.Contains(t, post.Text, "TICKET CLOSED by user")

	for _, staffID := range []int64{staffA, staffB} {
		notices := h.gateway.sentTo(staffID)
		require.NotEmpty(t, notices)
		last := notices[len(notices)-1].Msg.Text
		assert.Contains(t, last, "TICKET CLOSED")
		assert.Contains(t, last, "Closed by: User")
	}
	assert.Empty(t, h.gateway.sentTo(alice.ID), "user confirmation is the caller's job")

	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCloseByStaffNotifiesUserAndSkipsCloser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)
	closer := domain.Person{ID: staffA, FirstName: "Sam"}

	result, err := h.ticketSvc.CloseByStaff(ctx, closer, 9000)
	require.NoError(t, err)
	assert.Equal(t, domain.SenderStaff, result.ClosedBy)
	assert.Equal(t, alice.ID, result.Ticket.UserID)

	userNotices := h.gateway.sentTo(alice.ID)
	require.Len(t, userNotices, 1)
	assert.Contains(t, userNotices[0].Msg.Text, "closed by our support staff")

	assert.Len(t, h.gateway.sentTo(staffA), 1, "closer only got the new ticket notice")
	staffBNotices := h.gateway.sentTo(staffB)
	require.Len(t, staffBNotices, 2)
	assert.Contains(t, staffBNotices[1].Msg.Text, "Closed by: Sam")

	post, _ := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	assert.Contains(t, post.Text, "TICKET CLOSED by staff Sam")
}

func TestCloseByStaffUnknownMessage(t *testing.T) {
	h := newHarness(t)
	_, err := h.ticketSvc.CloseByStaff(context.Background(), domain.Person{ID: staffA}, 31337)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, format.StaffNoTicket, apperrors.ToDomainError(err).Message)
}

func TestAnnotateClosureIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")

	changed, err := h.ticketSvc.AnnotateClosure(ctx, ticket, false, "Alice", "01-03-2024 17:00:00 UTC+7")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = h.ticketSvc.AnnotateClosure(ctx, ticket, true, "Sam", "01-03-2024 17:05:00 UTC+7")
	require.NoError(t, err)
	assert.False(t, changed)

	post, _ := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	assert.Equal(t, 1, strings.Count(post.Text, format.ClosedSentinel))
	assert.Equal(t, 1, h.gateway.edits)
}

func TestAnnotateClosureUsesCaptionForMediaPosts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{
		User:      alice,
		IssueType: domain.IssueGeneral,
		Text:      "see screenshot",
		Media:     domain.Media{Kind: domain.MediaPhoto, Ref: "p"},
	})
	require.NoError(t, err)

	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	post, _ := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	assert.True(t, post.HasMedia)
	assert.Contains(t, post.Caption, format.ClosedSentinel)
}

func TestClosureSurvivesAnnotationFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createTicket(t, alice, "help")
	h.gateway.failChat(channelID, true)

	result, err := h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	assert.False(t, result.ChannelAnnotated)
	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClosureMarkerUsesStoredPostAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	original, ok := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	require.True(t, ok)
	assert.Equal(t, original.Text, ticket.ChannelPostText)
	assert.False(t, ticket.ChannelPostHasMedia)

	// A fresh process has an empty post cache.
	h.gateway.forget(channelID, ticket.OriginChannelMessageID)

	result, err := h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	assert.True(t, result.ChannelAnnotated)
	post, ok := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(post.Text, original.Text))
	assert.Contains(t, post.Text, format.ClosedSentinel)
}

func TestClosureMarkerUsesStoredCaptionAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{
		User:      alice,
		IssueType: domain.IssueGeneral,
		Text:      "see screenshot",
		Media:     domain.Media{Kind: domain.MediaPhoto, Ref: "p"},
	})
	require.NoError(t, err)
	assert.True(t, ticket.ChannelPostHasMedia)
	h.gateway.forget(channelID, ticket.OriginChannelMessageID)

	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	post, ok := h.gateway.post(channelID, ticket.OriginChannelMessageID)
	require.True(t, ok)
	assert.True(t, post.HasMedia)
	assert.Contains(t, post.Caption, "see screenshot")
	assert.Contains(t, post.Caption, format.ClosedSentinel)
}

func TestCreateTicketRollsBackWhenConversationAppendFails(t *testing.T) {
	logger := zap.NewNop()
	conversations := &failingConversations{
		ConversationRepository: repository.NewFileConversationRepository("", logger),
		failAppend:             true,
	}
	h := newHarnessWithStores(t, repository.NewFileTicketRepository("", logger), conversations)
	ctx := context.Background()

	_, err := h.ticketSvc.CreateTicket(ctx, TicketCreateInput{User: alice, IssueType: domain.IssueTechnical, Text: "help"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	entries, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.gateway.sentTo(staffA))

	conversations.failAppend = false
	_, err = h.ticketSvc.CreateTicket(ctx, TicketCreateInput{User: alice, IssueType: domain.IssueTechnical, Text: "help"})
	require.NoError(t, err)
}

func TestCloseRestoresConversationWhenTicketDeleteFails(t *testing.T) {
	logger := zap.NewNop()
	tickets := &failingTickets{TicketRepository: repository.NewFileTicketRepository("", logger)}
	h := newHarnessWithStores(t, tickets, repository.NewFileConversationRepository("", logger))
	ctx := context.Background()
	ticket := h.createTicket(t, alice, "help")
	h.activate(t, ticket, 9000)
	_, err := h.relaySvc.RelayUserMessage(ctx, UserMessageInput{User: alice, MessageID: 11, Text: "still broken"})
	require.NoError(t, err)
	before, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	tickets.failDelete = true
	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	after, err := h.conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Text, after[i].Text)
		assert.Equal(t, before[i].Sender, after[i].Sender)
	}

	tickets.failDelete = false
	_, err = h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
}

func TestCloseUsesTransactionalStoreWhenAvailable(t *testing.T) {
	logger := zap.NewNop()
	conversations := repository.NewFileConversationRepository("", logger)
	tickets := &closingTickets{
		TicketRepository: repository.NewFileTicketRepository("", logger),
		conversations:    conversations,
	}
	h := newHarnessWithStores(t, tickets, conversations)
	ctx := context.Background()
	h.createTicket(t, alice, "help")

	_, err := h.ticketSvc.CloseByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, tickets.closed)

	stored, err := h.tickets.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	entries, err := conversations.ListFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaffClosureAmbiguityPrefersAnchor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := domain.Person{ID: 77, FirstName: "Bob"}

	aliceTicket := h.createTicket(t, alice, "alice issue")
	h.activate(t, aliceTicket, 9000)
	h.createTicket(t, bob, "bob issue")
	// A stale entry in Bob's log claims Alice's anchor as its mirror.
	require.NoError(t, h.conversations.Append(ctx, bob.ID, &domain.ConversationEntry{
		Sender:              domain.SenderUser,
		SourceMessageID:     5,
		DiscussionMessageID: 9000,
	}))

	result, err := h.ticketSvc.CloseByStaff(ctx, domain.Person{ID: staffA, FirstName: "Sam"}, 9000)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, result.Ticket.UserID)

	bobTicket, err := h.tickets.Get(ctx, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, bobTicket)
}

func TestTicketQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createTicket(t, alice, "help")

	open, err := h.ticketSvc.HasOpenTicket(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, open)

	list, err := h.ticketSvc.ListOpenTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	detail, err := h.ticketSvc.GetTicketDetail(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Conversation, 1)

	_, err = h.ticketSvc.GetTicketDetail(ctx, 999)
	assert.True(t, apperrors.IsNotFound(err))
}
