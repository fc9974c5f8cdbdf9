package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/sla"
	"github.com/spec-kit/support-desk/internal/stats"
)

const (
	jobOverdueSweep = "overdue_sweep"
	jobStatsRefresh = "stats_refresh"
)

// SystemActor is the actor recorded on events raised by scheduled jobs.
var SystemActor = domain.Actor{ID: "sla-worker", Type: domain.ActorTypeStaff}

// StatsRefresher recomputes and caches the stats snapshot.
type StatsRefresher interface {
	RefreshStats(ctx context.Context) (*stats.Stats, error)
}

// SLADependencies bundles collaborators for the SLA worker.
type SLADependencies struct {
	Tickets    repository.TicketStore
	Stats      StatsRefresher
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
}

// SLAWorker runs the overdue sweep and the stats refresh on cron schedules.
type SLAWorker struct {
	cron       *cron.Cron
	tickets    repository.TicketStore
	stats      StatsRefresher
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger

	mu sync.Mutex
	// notified maps a ticket to the due date of the overdue episode that was
	// already announced.
	notified map[string]time.Time
}

// NewSLAWorker builds a worker. Nothing runs until Start.
func NewSLAWorker(deps SLADependencies) *SLAWorker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &SLAWorker{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		tickets:    deps.Tickets,
		stats:      deps.Stats,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      clk,
		logger:     logger,
		notified:   make(map[string]time.Time),
	}
}

// Start schedules both jobs. An empty schedule disables that job.
func (w *SLAWorker) Start(ctx context.Context, sweepSchedule, statsSchedule string) error {
	if sweepSchedule != "" {
		if _, err := w.cron.AddFunc(sweepSchedule, func() {
			_, err := w.SweepOverdue(ctx)
			w.metrics.RecordWorkerRun(jobOverdueSweep, err)
			if err != nil {
				w.logger.Error("overdue sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	if statsSchedule != "" && w.stats != nil {
		if _, err := w.cron.AddFunc(statsSchedule, func() {
			_, err := w.stats.RefreshStats(ctx)
			w.metrics.RecordWorkerRun(jobStatsRefresh, err)
			if err != nil {
				w.logger.Error("stats refresh failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	w.cron.Start()
	w.logger.Info("sla worker started",
		zap.String("sweep_schedule", sweepSchedule),
		zap.String("stats_schedule", statsSchedule))
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx expires.
func (w *SLAWorker) Stop(ctx context.Context) {
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		w.logger.Warn("sla worker stop timed out")
	}
}

// SweepOverdue publishes ticket_overdue for every ticket that became overdue
// since the previous sweep and returns the current overdue count.
func (w *SLAWorker) SweepOverdue(ctx context.Context) (int, error) {
	all, err := w.tickets.All(ctx)
	if err != nil {
		return 0, err
	}
	now := w.clock.Now()

	w.mu.Lock()
	var fresh []domain.Ticket
	overdue := make(map[string]bool)
	for i := range all {
		t := &all[i]
		if !sla.TicketOverdue(t, now) {
			continue
		}
		overdue[t.TicketID] = true
		if due, ok := w.notified[t.TicketID]; ok && due.Equal(*t.DueDate) {
			continue
		}
		w.notified[t.TicketID] = *t.DueDate
		fresh = append(fresh, *t)
	}
	for id := range w.notified {
		if !overdue[id] {
			delete(w.notified, id)
		}
	}
	w.mu.Unlock()

	w.metrics.SetOverdue(len(overdue))
	for _, t := range fresh {
		w.publish(ctx, t, now)
	}
	if len(fresh) > 0 {
		w.logger.Info("overdue tickets announced", zap.Int("new", len(fresh)), zap.Int("overdue", len(overdue)))
	}
	return len(overdue), nil
}

func (w *SLAWorker) publish(ctx context.Context, t domain.Ticket, now time.Time) {
	if w.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketOverdue,
		TicketID:  t.TicketID,
		Actor:     SystemActor,
		Timestamp: now,
		Payload: events.TicketOverduePayload{
			DueDate:    *t.DueDate,
			Priority:   t.Priority,
			AssignedTo: t.AssignedTo,
		},
	}
	if err := w.dispatcher.Publish(ctx, event); err != nil {
		w.logger.Warn("overdue event handler failed", zap.String("ticket_id", t.TicketID), zap.Error(err))
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
