package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/format"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	"github.com/spec-kit/ticket-relay/internal/observability"
)

// NotificationService fans lifecycle events out to the staff roster and,
// for staff-initiated closures, to the ticket owner.
type NotificationService struct {
	dispatcher events.Dispatcher
	gateway    gateway.Gateway
	staffIDs   []int64
	clock      format.Clock
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NotificationDependencies bundles the notification collaborators.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Gateway    gateway.Gateway
	StaffIDs   []int64
	Clock      format.Clock
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		gateway:    deps.Gateway,
		staffIDs:   append([]int64(nil), deps.StaffIDs...),
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventUserMessageRelayed, n.handleUserMessageRelayed)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	text := format.NewTicketNotice(p.User, p.IssueType, n.clock.Timestamp(event.Timestamp), p.Description, p.ChannelURL)
	return n.fanOut(ctx, "ticket_created", text, 0)
}

func (n *NotificationService) handleUserMessageRelayed(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.UserMessageRelayedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	text := format.UserMessageNotice(p.User, p.Text, p.DiscussionURL, p.ChannelURL)
	return n.fanOut(ctx, "user_message", text, 0)
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	ts := n.clock.Timestamp(event.Timestamp)

	closedBy := "User"
	var skip int64
	var errs []error
	if p.ClosedBy == domain.SenderStaff {
		closedBy = p.CloserName
		skip = event.Actor.Person.ID
		if err := n.send(ctx, "closure_user", event.UserID, format.StaffClosedUserNotice(p.IssueType, ts, p.CloserName)); err != nil {
			errs = append(errs, err)
		}
	}

	text := format.ClosureNotice(p.UserName, event.UserID, p.IssueType, ts, closedBy, p.ChannelURL)
	if err := n.fanOut(ctx, "ticket_closed", text, skip); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// fanOut sends text to every staff member except skip. Each recipient is
// attempted regardless of earlier failures.
func (n *NotificationService) fanOut(ctx context.Context, kind, text string, skip int64) error {
	var errs []error
	for _, staffID := range n.staffIDs {
		if skip != 0 && staffID == skip {
			continue
		}
		if err := n.send(ctx, kind, staffID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) send(ctx context.Context, kind string, chatID int64, text string) error {
	_, err := n.gateway.Send(ctx, chatID, gateway.Outgoing{
		Text:           text,
		ParseMode:      gateway.Markdown,
		DisablePreview: true,
	})
	if err != nil {
		n.metrics.RecordNotification(kind, observability.OutcomeFailed)
		n.logger.Error("failed to notify",
			zap.String("kind", kind),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return fmt.Errorf("notify %d: %w", chatID, err)
	}
	n.metrics.RecordNotification(kind, observability.OutcomeOK)
	n.logger.Info("sent notification", zap.String("kind", kind), zap.Int64("chat_id", chatID))
	return nil
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
