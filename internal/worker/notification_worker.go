package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/service"
)

// Subscriber attaches its handlers to a dispatcher.
type Subscriber interface {
	Register(dispatcher events.Dispatcher)
}

// StartNotificationWorker registers the staff/user notification handlers and
// any additional event subscribers, such as the Kafka sink.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, logger *zap.Logger, subscribers ...Subscriber) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	for _, sub := range subscribers {
		if sub == nil {
			continue
		}
		sub.Register(dispatcher)
	}
	if logger != nil {
		logger.Info("event handlers registered", zap.Int("subscribers", len(subscribers)))
	}
}
