package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/stats"
)

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type overdueRecorder struct {
	ids []string
}

func (r *overdueRecorder) handle(_ context.Context, e events.Event) error {
	r.ids = append(r.ids, e.TicketID)
	return nil
}

func seed(t *testing.T, store *repository.MemoryTicketStore, id string, due time.Time, status domain.TicketStatus) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &domain.Ticket{
		TicketID:  id,
		Status:    status,
		Priority:  domain.TicketPriorityHigh,
		DueDate:   &due,
		CreatedAt: now.Add(-48 * time.Hour),
		UpdatedAt: now.Add(-48 * time.Hour),
	}))
}

func TestSweepOverdueAnnouncesOncePerEpisode(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(now)
	store := repository.NewMemoryTicketStore(clk)
	seed(t, store, "late", now.Add(-time.Hour), domain.TicketStatusOpen)
	seed(t, store, "done", now.Add(-time.Hour), domain.TicketStatusResolved)
	seed(t, store, "soon", now.Add(time.Hour), domain.TicketStatusInProgress)

	dispatcher := events.NewInMemoryDispatcher()
	rec := &overdueRecorder{}
	dispatcher.Subscribe(events.EventTicketOverdue, rec.handle)
	w := NewSLAWorker(SLADependencies{Tickets: store, Dispatcher: dispatcher, Clock: clk})

	count, err := w.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"late"}, rec.ids)

	count, err = w.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"late"}, rec.ids, "already announced")

	clk.Advance(2 * time.Hour)
	count, err = w.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"late", "soon"}, rec.ids)

	// Moving the due date starts a new episode.
	late, err := store.Get(ctx, "late")
	require.NoError(t, err)
	expected := late.UpdatedAt
	newDue := clk.Now().Add(-time.Minute)
	late.DueDate = &newDue
	late.UpdatedAt = clk.Now()
	require.NoError(t, store.Update(ctx, late, expected))

	_, err = w.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "soon", "late"}, rec.ids)
}

type countingRefresher struct{ calls int }

func (c *countingRefresher) RefreshStats(context.Context) (*stats.Stats, error) {
	c.calls++
	return &stats.Stats{}, nil
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewSLAWorker(SLADependencies{Tickets: repository.NewMemoryTicketStore(nil), Stats: &countingRefresher{}})
	assert.Error(t, w.Start(context.Background(), "not a schedule", ""))
}

func TestStartAndStop(t *testing.T) {
	refresher := &countingRefresher{}
	w := NewSLAWorker(SLADependencies{Tickets: repository.NewMemoryTicketStore(nil), Stats: refresher})
	require.NoError(t, w.Start(context.Background(), "@every 1h", "@every 1h"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
	assert.Len(t, w.cron.Entries(), 2)
}
