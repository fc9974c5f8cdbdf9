package repository

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/sla"
)

var (
	// ErrNotFound is returned when no ticket has the requested id.
	ErrNotFound = errors.New("ticket not found")
	// ErrStaleWrite is returned when the stored ticket changed since it was read.
	ErrStaleWrite = errors.New("ticket was modified since it was read")
	// ErrDuplicate is returned when creating a ticket whose id already exists.
	ErrDuplicate = errors.New("ticket already exists")
)

// TicketStore persists tickets. Update is a conditional write: it succeeds
// only when the stored updatedAt still equals expectedUpdatedAt, which
// serializes writers on a single ticket. The stored updatedAt always moves
// past expectedUpdatedAt; Update writes the value it stored back into ticket.
type TicketStore interface {
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket, expectedUpdatedAt time.Time) error
	All(ctx context.Context) ([]domain.Ticket, error)
}

// nextVersion returns the updatedAt to store for a write conditioned on
// expected. Two writers holding the same snapshot must not both pass the
// check, so the token never stays put even when the clock does.
func nextVersion(proposed, expected time.Time) time.Time {
	if proposed.After(expected) {
		return proposed
	}
	return expected.Add(time.Microsecond)
}

// matchesFilter is the reference semantics of a list filter evaluated at now.
func matchesFilter(t *domain.Ticket, f domain.TicketFilter, now time.Time) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
		return false
	}
	if f.UserID != nil && (t.UserID == nil || *t.UserID != *f.UserID) {
		return false
	}
	if f.IsOverdue != nil && sla.TicketOverdue(t, now) != *f.IsOverdue {
		return false
	}
	if f.HasResponses != nil && (len(t.Responses) > 0) != *f.HasResponses {
		return false
	}
	if f.Search != nil {
		term := strings.ToLower(strings.TrimSpace(*f.Search))
		fields := []string{t.Subject, t.Description, t.UserEmail}
		if t.UserName != nil {
			fields = append(fields, *t.UserName)
		}
		found := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// compareTickets orders tickets for a filter. Priority ties fall back to
// oldest first; other ties fall back to ticket id.
func compareTickets(f domain.TicketFilter) func(a, b domain.Ticket) int {
	desc := f.SortOrder == domain.SortDesc
	directed := func(c int) int {
		if desc {
			return -c
		}
		return c
	}
	return func(a, b domain.Ticket) int {
		var c int
		switch f.SortBy {
		case domain.SortByPriority:
			c = directed(cmp.Compare(a.Priority.Rank(), b.Priority.Rank()))
			if c == 0 {
				c = a.CreatedAt.Compare(b.CreatedAt)
			}
		case domain.SortByUpdatedAt:
			c = directed(a.UpdatedAt.Compare(b.UpdatedAt))
		case domain.SortByDueDate:
			// Tickets without a due date sort last in both directions.
			switch {
			case a.DueDate == nil && b.DueDate == nil:
			case a.DueDate == nil:
				return 1
			case b.DueDate == nil:
				return -1
			default:
				c = directed(a.DueDate.Compare(*b.DueDate))
			}
		default:
			c = directed(a.CreatedAt.Compare(b.CreatedAt))
		}
		if c == 0 {
			c = strings.Compare(a.TicketID, b.TicketID)
		}
		return c
	}
}
