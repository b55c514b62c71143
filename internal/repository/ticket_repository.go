package repository

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// TicketRepository stores the one open ticket per user. Lookups return
// (nil, nil) when nothing matches; errors are always StorageErrors and mean
// the mutation was not applied.
type TicketRepository interface {
	Get(ctx context.Context, userID int64) (*domain.Ticket, error)
	Put(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, userID int64) error
	FindByDiscussionMessageID(ctx context.Context, messageID int) (*domain.Ticket, error)
	FindByChannelMessageID(ctx context.Context, messageID int) (*domain.Ticket, error)
	List(ctx context.Context) ([]domain.Ticket, error)
}

// TicketCloser is implemented by stores that keep tickets and conversation
// logs together and can remove both atomically.
type TicketCloser interface {
	DeleteWithConversation(ctx context.Context, userID int64) error
}

type fileTicketRepository struct {
	mu           sync.RWMutex
	path         string
	logger       *zap.Logger
	tickets      map[int64]domain.Ticket
	byDiscussion map[int]int64
	byChannel    map[int]int64
}

// NewFileTicketRepository loads the tracking snapshot at path. An empty path
// keeps tickets in memory only.
func NewFileTicketRepository(path string, logger *zap.Logger) TicketRepository {
	r := &fileTicketRepository{
		path:         path,
		logger:       logger,
		tickets:      loadSnapshot[domain.Ticket](path, "tracking", logger),
		byDiscussion: make(map[int]int64),
		byChannel:    make(map[int]int64),
	}
	for _, t := range r.tickets {
		r.index(t)
	}
	return r
}

func (r *fileTicketRepository) Get(ctx context.Context, userID int64) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[userID]
	if !ok {
		return nil, nil
	}
	return cloneTicket(t), nil
}

func (r *fileTicketRepository) Put(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := *cloneTicket(*ticket)
	prev, had := r.tickets[next.UserID]
	if had {
		r.unindex(prev)
	}
	r.tickets[next.UserID] = next
	r.index(next)

	if err := saveSnapshot(r.path, r.tickets); err != nil {
		r.unindex(next)
		if had {
			r.tickets[next.UserID] = prev
			r.index(prev)
		} else {
			delete(r.tickets, next.UserID)
		}
		return apperrors.NewStorageError("ticket.put", err)
	}
	return nil
}

func (r *fileTicketRepository) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.tickets[userID]
	if !had {
		return nil
	}
	delete(r.tickets, userID)
	r.unindex(prev)

	if err := saveSnapshot(r.path, r.tickets); err != nil {
		r.tickets[userID] = prev
		r.index(prev)
		return apperrors.NewStorageError("ticket.delete", err)
	}
	return nil
}

func (r *fileTicketRepository) FindByDiscussionMessageID(ctx context.Context, messageID int) (*domain.Ticket, error) {
	return r.findBy(r.byDiscussion, messageID), nil
}

func (r *fileTicketRepository) FindByChannelMessageID(ctx context.Context, messageID int) (*domain.Ticket, error) {
	return r.findBy(r.byChannel, messageID), nil
}

func (r *fileTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, *cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fileTicketRepository) findBy(idx map[int]int64, messageID int) *domain.Ticket {
	if messageID == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := idx[messageID]
	if !ok {
		return nil
	}
	t, ok := r.tickets[userID]
	if !ok {
		return nil
	}
	return cloneTicket(t)
}

func (r *fileTicketRepository) index(t domain.Ticket) {
	if t.DiscussionMessageID != 0 {
		if other, taken := r.byDiscussion[t.DiscussionMessageID]; taken && other != t.UserID {
			r.logger.Warn("discussion message already indexed for another user",
				zap.Int("discussion_message_id", t.DiscussionMessageID),
				zap.Int64("user_id", t.UserID),
				zap.Int64("other_user_id", other))
		}
		r.byDiscussion[t.DiscussionMessageID] = t.UserID
	}
	if t.OriginChannelMessageID != 0 {
		r.byChannel[t.OriginChannelMessageID] = t.UserID
	}
}

func (r *fileTicketRepository) unindex(t domain.Ticket) {
	if r.byDiscussion[t.DiscussionMessageID] == t.UserID {
		delete(r.byDiscussion, t.DiscussionMessageID)
	}
	if r.byChannel[t.OriginChannelMessageID] == t.UserID {
		delete(r.byChannel, t.OriginChannelMessageID)
	}
}

func cloneTicket(t domain.Ticket) *domain.Ticket {
	if t.ForwardedAt != nil {
		at := *t.ForwardedAt
		t.ForwardedAt = &at
	}
	return &t
}
