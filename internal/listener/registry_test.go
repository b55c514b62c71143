package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/gateway"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

func message(userID int64, text string) *gateway.Incoming {
	return &gateway.Incoming{From: domain.Person{ID: userID}, Text: text}
}

func waitUntilPending(t *testing.T, r *Registry, userID int64) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Pending(userID) }, time.Second, time.Millisecond)
}

func TestWaitReceivesDeliveredMessage(t *testing.T) {
	r := NewRegistry()
	got := make(chan *gateway.Incoming, 1)
	go func() {
		msg, err := r.Wait(context.Background(), 1, time.Second)
		assert.NoError(t, err)
		got <- msg
	}()

	waitUntilPending(t, r, 1)
	assert.False(t, r.Deliver(message(2, "other user")))
	assert.True(t, r.Deliver(message(1, "description")))

	select {
	case msg := <-got:
		assert.Equal(t, "description", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("waiter never received the message")
	}
	assert.False(t, r.Pending(1))
}

func TestWaitTimesOut(t *testing.T) {
	r := NewRegistry()
	_, err := r.Wait(context.Background(), 1, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.False(t, r.Pending(1))
	assert.False(t, r.Deliver(message(1, "late")))
}

func TestNewerWaitSupersedesOlder(t *testing.T) {
	r := NewRegistry()
	first := make(chan error, 1)
	go func() {
		_, err := r.Wait(context.Background(), 1, time.Second)
		first <- err
	}()
	waitUntilPending(t, r, 1)

	second := make(chan *gateway.Incoming, 1)
	go func() {
		msg, _ := r.Wait(context.Background(), 1, time.Second)
		second <- msg
	}()

	select {
	case err := <-first:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("first waiter was not superseded")
	}

	waitUntilPending(t, r, 1)
	require.True(t, r.Deliver(message(1, "hello")))
	assert.Equal(t, "hello", (<-second).Text)
}

func TestWaitHonoursCancellation(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Wait(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.Pending(1))
}
