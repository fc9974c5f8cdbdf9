package lifecycle

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

var start = time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)

func newTestMachine(opts ...Option) (*Machine, *clock.Fixed) {
	clk := clock.NewFixed(start)
	seq := 0
	opts = append([]Option{WithIDGenerator(func(prefix string) string {
		seq++
		return fmt.Sprintf("%s_%d", prefix, seq)
	})}, opts...)
	return NewMachine(clk, opts...), clk
}

func createRequest() domain.CreateTicketRequest {
	return domain.CreateTicketRequest{
		UserEmail:   "jane@example.com",
		Category:    domain.TicketCategoryTechnicalIssue,
		Subject:     "Cannot log in",
		Description: "The login page spins forever after submitting.",
	}
}

func mustCreate(t *testing.T, m *Machine) *domain.Ticket {
	t.Helper()
	ticket, out, err := m.Apply(nil, Create{Actor: domain.UserActor("user-1"), Request: createRequest()})
	require.NoError(t, err)
	require.True(t, out.Created)
	return ticket
}

func ticketIn(status domain.TicketStatus) *domain.Ticket {
	ticket := &domain.Ticket{
		TicketID:  "ticket_x",
		Status:    status,
		Priority:  domain.TicketPriorityNormal,
		Category:  domain.TicketCategoryOther,
		UserEmail: "jane@example.com",
		Subject:   "subject",
		CreatedAt: start.Add(-time.Hour),
		UpdatedAt: start.Add(-time.Hour),
	}
	if status == domain.TicketStatusEscalated {
		to, reason := "lead-1", "needs a senior engineer"
		ticket.EscalatedTo, ticket.EscalationReason = &to, &reason
	}
	return ticket
}

func snapshot(t *testing.T, ticket *domain.Ticket) []byte {
	t.Helper()
	b, err := json.Marshal(ticket)
	require.NoError(t, err)
	return b
}

func TestCreateDefaults(t *testing.T) {
	m, _ := newTestMachine()
	ticket := mustCreate(t, m)

	assert.Equal(t, "ticket_1", ticket.TicketID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityNormal, ticket.Priority)
	assert.Equal(t, domain.TicketCategoryTechnicalIssue, ticket.Category)
	require.NotNil(t, ticket.UserID)
	assert.Equal(t, "user-1", *ticket.UserID)
	assert.True(t, ticket.CreatedAt.Equal(start))
	assert.True(t, ticket.UpdatedAt.Equal(start))
	assert.NotNil(t, ticket.Metadata)
	assert.Empty(t, ticket.Responses)
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestMachine()
	tests := []struct {
		name   string
		mutate func(*domain.CreateTicketRequest)
		field  string
	}{
		{"bad email", func(r *domain.CreateTicketRequest) { r.UserEmail = "nope" }, "userEmail"},
		{"short subject", func(r *domain.CreateTicketRequest) { r.Subject = "hi" }, "subject"},
		{"short description", func(r *domain.CreateTicketRequest) { r.Description = "too short" }, "description"},
		{"unknown category", func(r *domain.CreateTicketRequest) { r.Category = "billing" }, "category"},
		{"unknown priority", func(r *domain.CreateTicketRequest) { r.Priority = "asap" }, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createRequest()
			tt.mutate(&req)
			_, _, err := m.Apply(nil, Create{Request: req})
			require.Error(t, err)
			de := apperrors.ToDomainError(err)
			assert.Equal(t, apperrors.CodeValidation, de.Code)
			assert.Equal(t, tt.field, de.Details["field"])
		})
	}
}

func TestTransitionTable(t *testing.T) {
	m, _ := newTestMachine()
	for _, from := range domain.TicketStatuses {
		for _, to := range domain.TicketStatuses {
			if to == domain.TicketStatusEscalated {
				continue
			}
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				current := ticketIn(from)
				before := snapshot(t, current)

				next, out, err := m.Apply(current, ChangeStatus{To: to})
				assert.Equal(t, before, snapshot(t, current), "input is never mutated")
				if !CanTransition(from, to) {
					require.Error(t, err)
					assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
					de := apperrors.ToDomainError(err)
					assert.Equal(t, string(from), de.Details["current"])
					assert.Equal(t, string(to), de.Details["requested"])
					assert.Nil(t, next)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, to, next.Status)
				gotFrom, gotTo, ok := out.StatusChange()
				assert.True(t, ok)
				assert.Equal(t, from, gotFrom)
				assert.Equal(t, to, gotTo)
			})
		}
	}
}

func TestChangeStatusToEscalatedRequiresEscalate(t *testing.T) {
	m, _ := newTestMachine()
	_, _, err := m.Apply(ticketIn(domain.TicketStatusOpen), ChangeStatus{To: domain.TicketStatusEscalated})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestLifecycleScenario(t *testing.T) {
	m, clk := newTestMachine()
	ticket := mustCreate(t, m)

	clk.Advance(10 * time.Minute)
	ticket, out, err := m.Apply(ticket, Assign{AssignedTo: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, "staff-1", *ticket.AssignedTo)
	assert.True(t, out.Has(domain.ChangeTypeAssignee))
	assert.True(t, out.Has(domain.ChangeTypeStatus))

	clk.Advance(20 * time.Minute)
	ticket, out, err = m.Apply(ticket, AddResponse{
		Actor:   domain.StaffActor("staff-1"),
		Request: domain.AddResponseRequest{Content: "Can you try clearing cookies?"},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Response)
	assert.Equal(t, "resp_2", out.Response.ResponseID)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NotNil(t, ticket.FirstResponseAt)
	require.NotNil(t, ticket.LastResponseAt)

	clk.Advance(4*time.Hour + 30*time.Minute)
	notes := "cookie issue"
	ticket, _, err = m.Apply(ticket, Resolve(&notes))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, 5, *ticket.ActualResolutionTime)
	assert.Equal(t, "cookie issue", *ticket.InternalNotes)

	feedback := "great"
	ticket, out, err = m.Apply(ticket, Rate{Rating: 5, Feedback: &feedback})
	require.NoError(t, err)
	assert.Equal(t, 5, *ticket.SatisfactionRating)
	assert.Equal(t, "great", *ticket.SatisfactionFeedback)
	assert.True(t, out.Has(domain.ChangeTypeRating))

	fresh := mustCreate(t, m)
	_, _, err = m.Apply(fresh, Rate{Rating: 5})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestAssignPolicy(t *testing.T) {
	m, _ := newTestMachine(WithPolicy(Policy{AssignPromotesOpen: false}))
	next, out, err := m.Apply(ticketIn(domain.TicketStatusOpen), Assign{AssignedTo: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, next.Status)
	assert.False(t, out.Has(domain.ChangeTypeStatus))

	m, _ = newTestMachine()
	next, _, err = m.Apply(ticketIn(domain.TicketStatusWaitingForUser), Assign{AssignedTo: "staff-2"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaitingForUser, next.Status, "only open tickets are promoted")

	_, _, err = m.Apply(ticketIn(domain.TicketStatusOpen), Assign{AssignedTo: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestEscalate(t *testing.T) {
	m, clk := newTestMachine()

	t.Run("short reason leaves ticket unchanged", func(t *testing.T) {
		current := ticketIn(domain.TicketStatusOpen)
		before := snapshot(t, current)
		_, _, err := m.Apply(current, Escalate{EscalatedTo: "lead-1", Reason: "short"})
		require.Error(t, err)
		de := apperrors.ToDomainError(err)
		assert.Equal(t, apperrors.CodeValidation, de.Code)
		assert.Equal(t, "reason", de.Details["field"])
		assert.Equal(t, before, snapshot(t, current))
	})

	t.Run("stamps escalation once", func(t *testing.T) {
		next, out, err := m.Apply(ticketIn(domain.TicketStatusInProgress), Escalate{EscalatedTo: "lead-1", Reason: "customer is blocked on release"})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusEscalated, next.Status)
		assert.Equal(t, "lead-1", *next.EscalatedTo)
		require.NotNil(t, next.EscalatedAt)
		first := *next.EscalatedAt
		assert.True(t, out.Has(domain.ChangeTypeEscalation))

		clk.Advance(time.Hour)
		next, _, err = m.Apply(next, ChangeStatus{To: domain.TicketStatusInProgress})
		require.NoError(t, err)
		assert.Equal(t, "lead-1", *next.EscalatedTo, "escalation fields retained for audit")

		next, _, err = m.Apply(next, Escalate{EscalatedTo: "lead-2", Reason: "still blocked after the fix"})
		require.NoError(t, err)
		assert.True(t, next.EscalatedAt.Equal(first))
		assert.Equal(t, "lead-2", *next.EscalatedTo)
	})

	t.Run("already escalated", func(t *testing.T) {
		_, _, err := m.Apply(ticketIn(domain.TicketStatusEscalated), Escalate{EscalatedTo: "lead-1", Reason: "customer is blocked on release"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	})
}

func TestClosedTicketIsFrozen(t *testing.T) {
	m, _ := newTestMachine()
	closed := ticketIn(domain.TicketStatusClosed)
	subject := "new subject"

	cmds := []Command{
		UpdateFields{Patch: domain.TicketPatch{Subject: &subject}},
		Assign{AssignedTo: "staff-1"},
		AddResponse{Actor: domain.StaffActor("staff-1"), Request: domain.AddResponseRequest{Content: "hello"}},
	}
	for _, cmd := range cmds {
		_, _, err := m.Apply(closed, cmd)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "%s: %v", cmd.Name(), err)
	}

	rated, _, err := m.Apply(closed, Rate{Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, *rated.SatisfactionRating)

	reopened, _, err := m.Apply(rated, Reopen(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.ResolvedAt)
	require.NotNil(t, reopened.SatisfactionRating)
	assert.Equal(t, 4, *reopened.SatisfactionRating)
}

func TestReopenKeepsLastRating(t *testing.T) {
	m, clk := newTestMachine()
	ticket := mustCreate(t, m)

	clk.Advance(2 * time.Hour)
	ticket, _, err := m.Apply(ticket, Resolve(nil))
	require.NoError(t, err)
	feedback := "fixed fast"
	ticket, _, err = m.Apply(ticket, Rate{Rating: 5, Feedback: &feedback})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	ticket, _, err = m.Apply(ticket, Reopen(nil))
	require.NoError(t, err)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Equal(t, 5, *ticket.SatisfactionRating)
	assert.Equal(t, "fixed fast", *ticket.SatisfactionFeedback)
	assert.Equal(t, 2, *ticket.ActualResolutionTime)

	_, _, err = m.Apply(ticket, Rate{Rating: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState), "open tickets cannot be rated")

	clk.Advance(3 * time.Hour)
	ticket, _, err = m.Apply(ticket, Resolve(nil))
	require.NoError(t, err)
	assert.Equal(t, start.Add(6*time.Hour), *ticket.ResolvedAt)
	assert.Equal(t, 6, *ticket.ActualResolutionTime)
	assert.Equal(t, 5, *ticket.SatisfactionRating)

	ticket, _, err = m.Apply(ticket, Rate{Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, *ticket.SatisfactionRating)
	assert.Nil(t, ticket.SatisfactionFeedback)
}

func TestUpdateFields(t *testing.T) {
	m, _ := newTestMachine()
	due := start.Add(48 * time.Hour)
	current := ticketIn(domain.TicketStatusOpen)
	current.DueDate = &due
	hours := 12
	current.EstimatedResolutionTime = &hours

	high := domain.TicketPriorityHigh
	tags := []string{"vpn", " vpn ", ""}
	next, out, err := m.Apply(current, UpdateFields{Patch: domain.TicketPatch{
		Priority:                &high,
		Tags:                    &tags,
		DueDate:                 domain.Null[time.Time](),
		EstimatedResolutionTime: domain.Null[int](),
		InternalNotes:           domain.Some(" call back "),
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, next.Priority)
	assert.Equal(t, []string{"vpn"}, next.Tags)
	assert.Nil(t, next.DueDate)
	assert.Nil(t, next.EstimatedResolutionTime)
	assert.Equal(t, "call back", *next.InternalNotes)
	assert.Equal(t, domain.TicketStatusOpen, next.Status)
	assert.True(t, out.Has(domain.ChangeTypePriority))
	assert.True(t, next.UpdatedAt.Equal(start))

	_, _, err = m.Apply(current, UpdateFields{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestPatchCommandsOrdering(t *testing.T) {
	m, _ := newTestMachine()
	subject := "Reopened with more detail"
	open := domain.TicketStatusOpen

	cmds, err := PatchCommands(ticketIn(domain.TicketStatusClosed), domain.TicketPatch{Status: &open, Subject: &subject})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.IsType(t, ChangeStatus{}, cmds[0])

	next, _, err := m.ApplyAll(ticketIn(domain.TicketStatusClosed), cmds...)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, next.Status)
	assert.Equal(t, subject, next.Subject)

	resolved := domain.TicketStatusResolved
	cmds, err = PatchCommands(ticketIn(domain.TicketStatusInProgress), domain.TicketPatch{Status: &resolved, Subject: &subject})
	require.NoError(t, err)
	assert.IsType(t, UpdateFields{}, cmds[0])

	_, err = PatchCommands(ticketIn(domain.TicketStatusOpen), domain.TicketPatch{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestApplyAllIsAtomic(t *testing.T) {
	m, _ := newTestMachine()
	current := ticketIn(domain.TicketStatusOpen)
	before := snapshot(t, current)

	next, _, err := m.ApplyAll(current,
		Assign{AssignedTo: "staff-1"},
		ChangeStatus{To: domain.TicketStatusOpen},
	)
	require.Error(t, err)
	assert.Nil(t, next)
	assert.Equal(t, before, snapshot(t, current))
}

func TestApplyAllAlwaysAdvancesUpdatedAt(t *testing.T) {
	m, clk := newTestMachine()
	created := mustCreate(t, m)
	require.Equal(t, start, created.UpdatedAt)

	next, _, err := m.Apply(created, Assign{AssignedTo: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Microsecond), next.UpdatedAt)

	clk.Set(start.Add(-time.Minute))
	again, _, err := m.Apply(next, Assign{AssignedTo: "staff-2"})
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(next.UpdatedAt))

	clk.Set(start.Add(time.Hour))
	later, _, err := m.Apply(again, Assign{AssignedTo: "staff-3"})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), later.UpdatedAt)
}

func TestUnknownTicket(t *testing.T) {
	m, _ := newTestMachine()
	_, _, err := m.Apply(nil, Assign{AssignedTo: "staff-1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
