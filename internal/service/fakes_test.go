package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/repository"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const (
	channelID int64 = -1001111
	groupID   int64 = -1002222
	staffA    int64 = 501
	staffB    int64 = 502
)

type sentMessage struct {
	ChatID int64
	ID     int
	Msg    gateway.Outgoing
}

type postKey struct {
	chatID    int64
	messageID int
}

type fakeGateway struct {
	mu     sync.Mutex
	nextID int
	sent   []sentMessage
	posts  map[postKey]gateway.MessageContent
	edits  int
	fail   map[int64]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextID: 100, posts: make(map[postKey]gateway.MessageContent), fail: make(map[int64]bool)}
}

func (g *fakeGateway) Send(_ context.Context, chatID int64, msg gateway.Outgoing) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[chatID] {
		return 0, apperrors.NewRelayDeliveryError("failed to send message", nil)
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{ChatID: chatID, ID: g.nextID, Msg: msg})
	content := gateway.MessageContent{Text: msg.Text}
	if !msg.Media.IsNone() {
		content = gateway.MessageContent{Caption: msg.Text, HasMedia: true}
	}
	g.posts[postKey{chatID, g.nextID}] = content
	return g.nextID, nil
}

func (g *fakeGateway) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[chatID] {
		return apperrors.NewRelayDeliveryError("failed to edit message", nil)
	}
	g.edits++
	g.posts[postKey{chatID, messageID}] = gateway.MessageContent{Text: text}
	return nil
}

func (g *fakeGateway) EditCaption(_ context.Context, chatID int64, messageID int, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[chatID] {
		return apperrors.NewRelayDeliveryError("failed to edit message", nil)
	}
	g.edits++
	g.posts[postKey{chatID, messageID}] = gateway.MessageContent{Caption: caption, HasMedia: true}
	return nil
}

func (g *fakeGateway) GetMessage(_ context.Context, chatID int64, messageID int) (*gateway.MessageContent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	content, ok := g.posts[postKey{chatID, messageID}]
	if !ok {
		return nil, apperrors.NewNotFound("message content unknown", nil)
	}
	return &content, nil
}

func (g *fakeGateway) sentTo(chatID int64) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, s := range g.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (g *fakeGateway) failChat(chatID int64, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[chatID] = fail
}

func (g *fakeGateway) post(chatID int64, messageID int) (gateway.MessageContent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	content, ok := g.posts[postKey{chatID, messageID}]
	return content, ok
}

func (g *fakeGateway) forget(chatID int64, messageID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.posts, postKey{chatID, messageID})
}

type harness struct {
	tickets       repository.TicketRepository
	conversations repository.ConversationRepository
	gateway       *fakeGateway
	ticketSvc     *TicketService
	relaySvc      *RelayService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	return newHarnessWithStores(t,
		repository.NewFileTicketRepository("", logger),
		repository.NewFileConversationRepository("", logger))
}

func newHarnessWithStores(t *testing.T, tickets repository.TicketRepository, conversations repository.ConversationRepository) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		tickets:       tickets,
		conversations: conversations,
		gateway:       newFakeGateway(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	clock := format.NewClock(7)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	deps := Dependencies{
		Tickets:       h.tickets,
		Conversations: h.conversations,
		Gateway:       h.gateway,
		Dispatcher:    dispatcher,
		Chats:         Chats{SupportChannelID: channelID, DiscussionGroupID: groupID},
		Clock:         clock,
		Logger:        logger,
		Now:           func() time.Time { return now },
	}
	h.ticketSvc = NewTicketService(deps)
	h.relaySvc = NewRelayService(deps)

	NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		Gateway:    h.gateway,
		StaffIDs:   []int64{staffA, staffB},
		Clock:      clock,
		Logger:     logger,
	}).RegisterHandlers()
	return h
}

var alice = domain.Person{ID: 42, FirstName: "Alice", Username: "alice"}

func (h *harness) createTicket(t *testing.T, user domain.Person, text string) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		User:      user,
		IssueType: domain.IssueTechnical,
		MessageID: 10,
		Text:      text,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func (h *harness) activate(t *testing.T, ticket *domain.Ticket, discussionID int) {
	t.Helper()
	_, err := h.ticketSvc.ConfirmForward(context.Background(), ForwardInput{
		ChannelMessageID:    ticket.OriginChannelMessageID,
		DiscussionGroupID:   groupID,
		DiscussionMessageID: discussionID,
	})
	if err != nil {
		t.Fatalf("confirm forward: %v", err)
	}
}

// failingTickets fails Delete while failDelete is set.
type failingTickets struct {
	repository.TicketRepository
	failDelete bool
}

func (r *failingTickets) Delete(ctx context.Context, userID int64) error {
	if r.failDelete {
		return apperrors.NewStorageError("ticket.delete", errors.New("disk full"))
	}
	return r.TicketRepository.Delete(ctx, userID)
}

// failingConversations fails Append while failAppend is set.
type failingConversations struct {
	repository.ConversationRepository
	failAppend bool
}

func (r *failingConversations) Append(ctx context.Context, userID int64, entry *domain.ConversationEntry) error {
	if r.failAppend {
		return apperrors.NewStorageError("conversation.append", errors.New("disk full"))
	}
	return r.ConversationRepository.Append(ctx, userID, entry)
}

// closingTickets removes tickets and logs together, like the postgres store.
type closingTickets struct {
	repository.TicketRepository
	conversations repository.ConversationRepository
	closed        []int64
}

func (r *closingTickets) DeleteWithConversation(ctx context.Context, userID int64) error {
	r.closed = append(r.closed, userID)
	if err := r.conversations.Delete(ctx, userID); err != nil {
		return err
	}
	return r.TicketRepository.Delete(ctx, userID)
}
