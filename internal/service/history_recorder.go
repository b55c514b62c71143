package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/repository"
)

const defaultHistoryLimit = 100

// HistoryRecorder persists every lifecycle event as an audit entry so a
// user's support history survives ticket closure.
type HistoryRecorder struct {
	repo   repository.TicketHistoryRepository
	logger *zap.Logger
}

// NewHistoryRecorder builds a recorder over repo.
func NewHistoryRecorder(repo repository.TicketHistoryRepository, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{repo: repo, logger: logger}
}

// Register subscribes the recorder to every event type.
func (h *HistoryRecorder) Register(dispatcher events.Dispatcher) {
	for _, eventType := range events.AllTypes() {
		dispatcher.Subscribe(eventType, h.Handle)
	}
}

// Handle stores one event.
func (h *HistoryRecorder) Handle(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Type, err)
	}
	entry := &domain.TicketHistory{
		TicketID:  event.TicketID,
		UserID:    event.UserID,
		EventType: string(event.Type),
		ActorType: event.Actor.Type,
		ActorID:   event.Actor.Person.ID,
		Payload:   payload,
		CreatedAt: event.Timestamp,
	}
	if err := h.repo.Create(ctx, entry); err != nil {
		h.logger.Warn("failed to record ticket history",
			zap.String("event_type", string(event.Type)),
			zap.Int64("user_id", event.UserID),
			zap.Error(err))
		return err
	}
	return nil
}

// History returns up to limit audit entries for userID, newest first.
func (h *HistoryRecorder) History(ctx context.Context, userID int64, limit int) ([]domain.TicketHistory, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return h.repo.ListByUser(ctx, userID, limit)
}
