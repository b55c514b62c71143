// Package bot is the Telegram command surface. It routes normalized updates
// to the relay engine and answers the triggering party.
package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/listener"
	"github.com/spec-kit/ticket-relay/internal/service"
)

// Messenger is the platform surface the command handlers need.
type Messenger interface {
	gateway.Gateway
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// TicketEngine is the ticket lifecycle part of the relay engine.
type TicketEngine interface {
	CreateTicket(ctx context.Context, input service.TicketCreateInput) (*domain.Ticket, error)
	ConfirmForward(ctx context.Context, input service.ForwardInput) (*service.ForwardResult, error)
	CloseByUser(ctx context.Context, user domain.Person) (*service.CloseResult, error)
	CloseByStaff(ctx context.Context, staff domain.Person, replyToMessageID int) (*service.CloseResult, error)
	HasOpenTicket(ctx context.Context, userID int64) (bool, error)
}

// RelayEngine is the message relay part of the relay engine.
type RelayEngine interface {
	RelayUserMessage(ctx context.Context, input service.UserMessageInput) (*service.UserRelayResult, error)
	RelayStaffReply(ctx context.Context, input service.StaffReplyInput) (*service.StaffRelayResult, error)
}

// Options configures a Bot.
type Options struct {
	Messenger          Messenger
	Tickets            TicketEngine
	Relay              RelayEngine
	Listeners          *listener.Registry
	Chats              service.Chats
	DescriptionTimeout time.Duration
	MaxConcurrent      int64
	Clock              format.Clock
	Logger             *zap.Logger
	Now                func() time.Time
}

// Bot dispatches updates. Independent updates are handled concurrently up to
// MaxConcurrent at a time; messages from the same sender are handled in the
// order they arrived.
type Bot struct {
	messenger          Messenger
	tickets            TicketEngine
	relay              RelayEngine
	listeners          *listener.Registry
	chats              service.Chats
	descriptionTimeout time.Duration
	sem                *semaphore.Weighted
	clock              format.Clock
	logger             *zap.Logger
	now                func() time.Time
	queue              senderQueue
	wg                 sync.WaitGroup
}

// New builds a Bot.
func New(opts Options) *Bot {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 64
	}
	if opts.DescriptionTimeout <= 0 {
		opts.DescriptionTimeout = 300 * time.Second
	}
	if opts.Listeners == nil {
		opts.Listeners = listener.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bot{
		messenger:          opts.Messenger,
		tickets:            opts.Tickets,
		relay:              opts.Relay,
		listeners:          opts.Listeners,
		chats:              opts.Chats,
		descriptionTimeout: opts.DescriptionTimeout,
		sem:                semaphore.NewWeighted(opts.MaxConcurrent),
		clock:              opts.Clock,
		logger:             opts.Logger,
		now:                opts.Now,
		queue:              senderQueue{tails: make(map[int64]chan struct{})},
	}
}

// Run consumes updates until the channel closes or ctx is cancelled, then
// waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates <-chan gateway.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			// Descriptions go straight to their waiting handler, which
			// already holds a slot.
			if msg := update.Message; msg != nil && b.isDescription(msg) && b.listeners.Deliver(msg) {
				continue
			}
			if err := b.sem.Acquire(ctx, 1); err != nil {
				return
			}
			// Messages from one sender run in arrival order. Callbacks
			// may wait on a description, so they are not queued.
			var prev <-chan struct{}
			done := func() {}
			if update.Message != nil {
				prev, done = b.queue.enter(update.Message.From.ID)
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer b.sem.Release(1)
				defer done()
				if prev != nil {
					<-prev
				}
				b.Handle(ctx, update)
			}()
		}
	}
}

// senderQueue chains handlers per sender. Each entry waits for the one
// queued before it.
type senderQueue struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

// enter queues a handler for sender. The returned channel, nil when the
// queue was empty, closes once the previous handler finished; done must be
// called when this handler finishes.
func (q *senderQueue) enter(sender int64) (<-chan struct{}, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var prev <-chan struct{}
	if tail, ok := q.tails[sender]; ok {
		prev = tail
	}
	mine := make(chan struct{})
	q.tails[sender] = mine
	return prev, func() {
		q.mu.Lock()
		if q.tails[sender] == mine {
			delete(q.tails, sender)
		}
		q.mu.Unlock()
		close(mine)
	}
}

// Handle processes a single update synchronously.
func (b *Bot) Handle(ctx context.Context, update gateway.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", zap.Int("update_id", update.ID), zap.Any("panic", r))
		}
	}()

	switch {
	case update.Callback != nil:
		b.handleCallback(ctx, update.Callback)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *gateway.Incoming) {
	switch {
	case msg.IsPrivate():
		b.handlePrivate(ctx, msg)
	case msg.ChatID == b.chats.DiscussionGroupID:
		b.handleDiscussion(ctx, msg)
	}
}

func (b *Bot) handlePrivate(ctx context.Context, msg *gateway.Incoming) {
	switch msg.Command {
	case "start":
		b.reply(ctx, msg, gateway.Outgoing{Text: format.Greeting})
	case "create_ticket":
		b.handleCreateTicket(ctx, msg)
	case "close_ticket":
		b.handleUserClose(ctx, msg)
	case "":
		if b.listeners.Deliver(msg) {
			return
		}
		b.handleUserMessage(ctx, msg)
	default:
		b.logger.Debug("ignoring unknown command", zap.String("command", msg.Command))
	}
}

func (b *Bot) handleDiscussion(ctx context.Context, msg *gateway.Incoming) {
	switch {
	case msg.ForwardFromChatID != 0:
		if msg.ForwardFromChatID == b.chats.SupportChannelID {
			b.handleForward(ctx, msg)
		}
	case msg.Command == "close" || msg.Command == "close_ticket":
		b.handleStaffClose(ctx, msg)
	case msg.Command != "":
		// Other commands in the group are not addressed to the relay.
	case msg.ReplyTo != nil:
		b.handleStaffReply(ctx, msg)
	}
}

func (b *Bot) isDescription(msg *gateway.Incoming) bool {
	return msg.IsPrivate() && msg.Command == ""
}

func (b *Bot) reply(ctx context.Context, msg *gateway.Incoming, out gateway.Outgoing) {
	out.ReplyTo = msg.MessageID
	b.send(ctx, msg.ChatID, out)
}

func (b *Bot) send(ctx context.Context, chatID int64, out gateway.Outgoing) {
	if _, err := b.messenger.Send(ctx, chatID, out); err != nil {
		b.logger.Warn("failed to answer", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
