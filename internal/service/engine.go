package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/locker"
	"github.com/spec-kit/ticket-relay/internal/observability"
	"github.com/spec-kit/ticket-relay/internal/repository"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// Chats identifies the two staff-facing chats the relay bridges.
type Chats struct {
	SupportChannelID  int64
	DiscussionGroupID int64
}

// Dependencies bundles what the correlation engine needs. Tickets and
// Conversations are only ever mutated through the engine.
type Dependencies struct {
	Tickets       repository.TicketRepository
	Conversations repository.ConversationRepository
	Gateway       gateway.Gateway
	Locker        locker.Locker
	Dispatcher    events.Dispatcher
	Chats         Chats
	Clock         format.Clock
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// engine holds the state shared by TicketService and RelayService.
type engine struct {
	tickets       repository.TicketRepository
	conversations repository.ConversationRepository
	gateway       gateway.Gateway
	locker        locker.Locker
	dispatcher    events.Dispatcher
	chats         Chats
	clock         format.Clock
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func newEngine(deps Dependencies) *engine {
	e := &engine{
		tickets:       deps.Tickets,
		conversations: deps.Conversations,
		gateway:       deps.Gateway,
		locker:        deps.Locker,
		dispatcher:    deps.Dispatcher,
		chats:         deps.Chats,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		now:           deps.Now,
	}
	if e.locker == nil {
		e.locker = locker.NewKeyedMutex()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// withUser runs fn while holding the user's lock. Events returned by fn are
// published after the lock is released.
func (e *engine) withUser(ctx context.Context, userID int64, fn func() ([]events.Event, error)) error {
	unlock, err := e.locker.Lock(ctx, locker.UserKey(userID))
	if err != nil {
		return err
	}
	pending, err := fn()
	unlock()

	for _, event := range pending {
		e.publish(ctx, event)
	}
	return err
}

func (e *engine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Publish(ctx, event); err != nil {
		e.logger.Warn("event subscribers failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("user_id", event.UserID),
			zap.Error(err))
	}
}

func (e *engine) newEvent(eventType events.EventType, ticket *domain.Ticket, actor events.Actor, at time.Time, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		UserID:    ticket.UserID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// discussionChat is where a ticket's thread lives.
func (e *engine) discussionChat(t *domain.Ticket) int64 {
	if t.DiscussionGroupID != 0 {
		return t.DiscussionGroupID
	}
	return e.chats.DiscussionGroupID
}

func (e *engine) record(event string, err error) {
	e.metrics.RecordRelay(event, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case apperrors.IsNotFound(err):
		return observability.OutcomeNotFound
	case apperrors.IsAlreadyExists(err),
		apperrors.HasCode(err, apperrors.CodeTicketPending),
		apperrors.HasCode(err, apperrors.CodeValidation):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeFailed
	}
}
