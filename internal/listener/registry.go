// Package listener correlates "wait for this user's next message" requests
// with the message that eventually arrives.
package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/ticket-relay/internal/gateway"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// ErrSuperseded is returned to a waiter replaced by a newer wait for the
// same user.
var ErrSuperseded = errors.New("listener: superseded by a newer wait")

type waiter struct {
	ch chan result
}

type result struct {
	msg *gateway.Incoming
	err error
}

// Registry holds at most one pending wait per user.
type Registry struct {
	mu      sync.Mutex
	waiters map[int64]*waiter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[int64]*waiter)}
}

// Wait blocks until Deliver hands over a message from userID, the timeout
// elapses (TimeoutError) or ctx is cancelled.
func (r *Registry) Wait(ctx context.Context, userID int64, timeout time.Duration) (*gateway.Incoming, error) {
	w := &waiter{ch: make(chan result, 1)}

	r.mu.Lock()
	if prev, ok := r.waiters[userID]; ok {
		prev.ch <- result{err: ErrSuperseded}
	}
	r.waiters[userID] = w
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		return res.msg, res.err
	case <-timer.C:
		if res, ok := r.abandon(userID, w); ok {
			return res.msg, res.err
		}
		return nil, apperrors.NewTimeout("no message received within the time limit")
	case <-ctx.Done():
		if res, ok := r.abandon(userID, w); ok {
			return res.msg, res.err
		}
		return nil, ctx.Err()
	}
}

// abandon unregisters w. If a result raced in first it is returned instead.
func (r *Registry) abandon(userID int64, w *waiter) (result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiters[userID] == w {
		delete(r.waiters, userID)
	}
	select {
	case res := <-w.ch:
		return res, true
	default:
		return result{}, false
	}
}

// Deliver hands msg to the pending wait of its sender and reports whether
// one existed. Undelivered messages follow the normal routing.
func (r *Registry) Deliver(msg *gateway.Incoming) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.waiters[msg.From.ID]
	if !ok {
		return false
	}
	delete(r.waiters, msg.From.ID)
	w.ch <- result{msg: msg}
	return true
}

// Pending reports whether userID has an outstanding wait.
func (r *Registry) Pending(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[userID]
	return ok
}
