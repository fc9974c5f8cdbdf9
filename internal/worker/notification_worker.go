package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// ErrQueueFull is returned by Enqueue when delivery cannot keep up.
var ErrQueueFull = errors.New("notification queue is full")

// Notifier delivers the notifications for one event.
type Notifier interface {
	Handle(ctx context.Context, event events.Event) error
}

// NotificationWorker hands events to a Notifier from background goroutines
// so slow email or webhook delivery never holds up a ticket write.
type NotificationWorker struct {
	notifier Notifier
	logger   *zap.Logger

	mu      sync.RWMutex
	queue   chan events.Event
	closed  bool
	wg      sync.WaitGroup
	started bool
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(notifier Notifier, queueSize int, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &NotificationWorker{
		notifier: notifier,
		logger:   logger,
		queue:    make(chan events.Event, queueSize),
	}
}

// Subscribe routes every event type on d into the queue.
func (w *NotificationWorker) Subscribe(d events.Dispatcher) {
	events.SubscribeAll(d, w.Enqueue)
}

// Enqueue queues an event without blocking.
func (w *NotificationWorker) Enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errors.New("notification worker stopped")
	}
	select {
	case w.queue <- event:
		return nil
	default:
		w.logger.Warn("dropping notification",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)))
		return ErrQueueFull
	}
}

// Start launches n delivery goroutines. ctx is passed to the Notifier.
func (w *NotificationWorker) Start(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for event := range w.queue {
		if err := w.notifier.Handle(ctx, event); err != nil {
			w.logger.Error("notification delivery failed",
				zap.String("ticket_id", event.TicketID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// Stop rejects new events and waits for queued ones to drain or ctx to end.
func (w *NotificationWorker) Stop(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("notification worker stopped before the queue drained", zap.Int("pending", len(w.queue)))
	}
}
