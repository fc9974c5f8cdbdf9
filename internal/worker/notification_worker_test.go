package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	seen   []string
	block  chan struct{}
	failOn events.EventType
}

func (r *recordingNotifier) Handle(_ context.Context, e events.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.TicketID)
	if e.Type == r.failOn {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (r *recordingNotifier) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestNotificationWorkerDeliversPublishedEvents(t *testing.T) {
	notifier := &recordingNotifier{failOn: events.EventTicketRated}
	w := NewNotificationWorker(notifier, 8, nil)
	dispatcher := events.NewInMemoryDispatcher()
	w.Subscribe(dispatcher)
	w.Start(context.Background(), 1)

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "t1"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketRated, TicketID: "t2"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTicketOverdue, TicketID: "t3"}))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(stopCtx)

	assert.Equal(t, []string{"t1", "t2", "t3"}, notifier.ids())
	assert.Error(t, w.Enqueue(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "late"}))
}

func TestNotificationWorkerRejectsWhenFull(t *testing.T) {
	notifier := &recordingNotifier{block: make(chan struct{})}
	w := NewNotificationWorker(notifier, 1, nil)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "a"}))
	assert.ErrorIs(t, w.Enqueue(ctx, events.Event{Type: events.EventTicketCreated, TicketID: "b"}), ErrQueueFull)

	w.Start(ctx, 1)
	close(notifier.block)
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(stopCtx)
	assert.Equal(t, []string{"a"}, notifier.ids())
}
