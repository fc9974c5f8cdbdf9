package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
)

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seedTicket(id string, priority domain.TicketPriority, created time.Time) *domain.Ticket {
	return &domain.Ticket{
		TicketID:  id,
		Category:  domain.TicketCategoryOther,
		Priority:  priority,
		Status:    domain.TicketStatusOpen,
		UserEmail: id + "@example.com",
		Subject:   "Subject " + id,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func seededStore(t *testing.T) *MemoryTicketStore {
	t.Helper()
	store := NewMemoryTicketStore(clock.NewFixed(now))
	ctx := context.Background()

	a := seedTicket("a", domain.TicketPriorityLow, now.Add(-3*time.Hour))
	a.AssignedTo = ptr("staff-1")
	a.UserID = ptr("user-1")
	a.UserName = ptr("Grace Hopper")
	a.DueDate = ptr(now.Add(-time.Hour))

	b := seedTicket("b", domain.TicketPriorityCritical, now.Add(-2*time.Hour))
	b.AssignedTo = ptr("staff-1")
	b.Responses = []domain.Response{{ResponseID: "r1", Content: "hi"}}
	b.Description = "VPN drops every hour"

	c := seedTicket("c", domain.TicketPriorityCritical, now.Add(-4*time.Hour))
	c.AssignedTo = ptr("staff-1")
	c.Status = domain.TicketStatusResolved
	c.DueDate = ptr(now.Add(-time.Hour))

	d := seedTicket("d", domain.TicketPriorityNormal, now.Add(-time.Hour))
	d.UserID = ptr("user-1")

	for _, tk := range []*domain.Ticket{a, b, c, d} {
		require.NoError(t, store.Create(ctx, tk))
	}
	return store
}

func ids(tickets []domain.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.TicketID
	}
	return out
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTicketStore(clock.NewFixed(now))
	original := seedTicket("t1", domain.TicketPriorityNormal, now)
	require.NoError(t, store.Create(ctx, original))
	assert.ErrorIs(t, store.Create(ctx, original), ErrDuplicate)

	first, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "t1")
	require.NoError(t, err)

	first.Subject = "first writer"
	first.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.Update(ctx, first, now))

	second.Subject = "second writer"
	second.UpdatedAt = now.Add(2 * time.Second)
	assert.ErrorIs(t, store.Update(ctx, second, now), ErrStaleWrite)

	stored, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Subject)

	assert.ErrorIs(t, store.Update(ctx, seedTicket("missing", domain.TicketPriorityLow, now), now), ErrNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsSameInstantWriters(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(now)
	store := NewMemoryTicketStore(clk)
	require.NoError(t, store.Create(ctx, seedTicket("t1", domain.TicketPriorityNormal, clk.Now())))

	first, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "t1")
	require.NoError(t, err)

	first.Priority = domain.TicketPriorityUrgent
	first.UpdatedAt = clk.Now()
	require.NoError(t, store.Update(ctx, first, now))
	assert.True(t, first.UpdatedAt.After(now), "stored version is written back")

	second.Subject = "other writer"
	second.UpdatedAt = clk.Now()
	assert.ErrorIs(t, store.Update(ctx, second, now), ErrStaleWrite)

	stored, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, stored.Priority)
	assert.Equal(t, "Subject t1", stored.Subject)
	assert.Equal(t, first.UpdatedAt, stored.UpdatedAt)

	second.UpdatedAt = clk.Now()
	require.NoError(t, store.Update(ctx, second, stored.UpdatedAt))
	assert.True(t, second.UpdatedAt.After(stored.UpdatedAt))
}

func TestNormalizeTimes(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	local := now.In(zone)
	ticket := seedTicket("t1", domain.TicketPriorityLow, local)
	ticket.FirstResponseAt = ptr(local.Add(time.Minute))
	ticket.ResolvedAt = ptr(local.Add(time.Hour))
	ticket.DueDate = ptr(local.Add(24 * time.Hour))

	normalizeTimes(ticket)

	for name, ts := range map[string]time.Time{
		"createdAt":       ticket.CreatedAt,
		"updatedAt":       ticket.UpdatedAt,
		"firstResponseAt": *ticket.FirstResponseAt,
		"resolvedAt":      *ticket.ResolvedAt,
		"dueDate":         *ticket.DueDate,
	} {
		assert.Equal(t, time.UTC, ts.Location(), name)
	}
	assert.True(t, ticket.DueDate.Equal(now.Add(24*time.Hour)))
	assert.Nil(t, ticket.ClosedAt)
	assert.Nil(t, ticket.LastResponseAt)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTicketStore(clock.NewFixed(now))
	tk := seedTicket("t1", domain.TicketPriorityNormal, now)
	tk.Tags = []string{"a"}
	require.NoError(t, store.Create(ctx, tk))

	tk.Tags[0] = "mutated"
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	got.Subject = "changed"

	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Tags)
	assert.Equal(t, "Subject t1", again.Subject)
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.TicketFilter
		want   []string
	}{
		{"defaults sort newest first", domain.TicketFilter{}, []string{"d", "b", "a", "c"}},
		{"status", domain.TicketFilter{Status: ptr(domain.TicketStatusResolved)}, []string{"c"}},
		{"priority", domain.TicketFilter{Priority: ptr(domain.TicketPriorityCritical)}, []string{"b", "c"}},
		{"assignee", domain.TicketFilter{AssignedTo: ptr("staff-1"), SortOrder: domain.SortAsc}, []string{"c", "a", "b"}},
		{"user", domain.TicketFilter{UserID: ptr("user-1")}, []string{"d", "a"}},
		{"overdue only counts active tickets", domain.TicketFilter{IsOverdue: ptr(true)}, []string{"a"}},
		{"not overdue", domain.TicketFilter{IsOverdue: ptr(false)}, []string{"d", "b", "c"}},
		{"has responses", domain.TicketFilter{HasResponses: ptr(true)}, []string{"b"}},
		{"search description", domain.TicketFilter{Search: ptr("vpn")}, []string{"b"}},
		{"search user name", domain.TicketFilter{Search: ptr("HOPPER")}, []string{"a"}},
		{"search email", domain.TicketFilter{Search: ptr("d@example")}, []string{"d"}},
		{
			"priority desc then oldest first",
			domain.TicketFilter{AssignedTo: ptr("staff-1"), SortBy: domain.SortByPriority, SortOrder: domain.SortDesc},
			[]string{"c", "b", "a"},
		},
		{"due date sorts missing last", domain.TicketFilter{SortBy: domain.SortByDueDate, SortOrder: domain.SortAsc}, []string{"a", "c", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
			assert.Equal(t, len(tt.want), total)
		})
	}
}

func TestMemoryStoreListPagination(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	page, total, err := store.List(ctx, domain.TicketFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"c"}, ids(page))

	page, total, err = store.List(ctx, domain.TicketFilter{Page: 5, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Empty(t, page)

	_, _, err = store.List(ctx, domain.TicketFilter{Limit: 500})
	assert.Error(t, err)
}

func TestBuildTicketWhere(t *testing.T) {
	filter, err := domain.TicketFilter{
		Status:       ptr(domain.TicketStatusOpen),
		AssignedTo:   ptr("staff-1"),
		Search:       ptr("50%_off"),
		IsOverdue:    ptr(true),
		HasResponses: ptr(false),
	}.Validate()
	require.NoError(t, err)

	where, args := buildTicketWhere(filter, now)
	assert.Contains(t, where, "status=$1")
	assert.Contains(t, where, "assigned_to=$2")
	assert.Contains(t, where, "LOWER(user_email) LIKE $3")
	assert.Contains(t, where, "due_date < $4")
	assert.Contains(t, where, "jsonb_array_length(responses) = 0")
	require.Len(t, args, 4)
	assert.Equal(t, "open", args[0])
	assert.Equal(t, `%50\%\_off%`, args[2])
	assert.Equal(t, now, args[3])

	where, args = buildTicketWhere(domain.TicketFilter{IsOverdue: ptr(false)}, now)
	assert.Contains(t, where, "NOT (due_date IS NOT NULL")
	assert.Len(t, args, 1)
}

func TestBuildTicketOrder(t *testing.T) {
	assert.Equal(t, "created_at DESC, ticket_id ASC", buildTicketOrder(domain.TicketFilter{SortBy: domain.SortByCreatedAt, SortOrder: domain.SortDesc}))
	assert.Equal(t, "due_date ASC NULLS LAST, ticket_id ASC", buildTicketOrder(domain.TicketFilter{SortBy: domain.SortByDueDate, SortOrder: domain.SortAsc}))
	assert.Contains(t, buildTicketOrder(domain.TicketFilter{SortBy: domain.SortByPriority, SortOrder: domain.SortDesc}), "END DESC, created_at ASC")
}

func TestMemoryHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketHistoryRepository()

	empty, err := repo.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.Create(ctx, &domain.TicketHistory{ID: "h1", TicketID: "t1", ChangeType: domain.ChangeTypeStatus}))
	require.NoError(t, repo.Create(ctx, &domain.TicketHistory{ID: "h2", TicketID: "t1", ChangeType: domain.ChangeTypeAssignee}))
	require.NoError(t, repo.Create(ctx, &domain.TicketHistory{ID: "h3", TicketID: "t2", ChangeType: domain.ChangeTypeRating}))

	entries, err := repo.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "h1", entries[0].ID)
	assert.Equal(t, "h2", entries[1].ID)
}
