package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
)

// MemoryTicketStore is a TicketStore kept in process memory. It stores and
// returns deep copies so callers never share state with the store.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	clock   clock.Clock
	tickets map[string]*domain.Ticket
	order   []string
}

// NewMemoryTicketStore creates an empty store. The clock evaluates the
// isOverdue filter.
func NewMemoryTicketStore(clk clock.Clock) *MemoryTicketStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryTicketStore{
		clock:   clk,
		tickets: make(map[string]*domain.Ticket),
	}
}

func (s *MemoryTicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryTicketStore) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, int, error) {
	filter, err := filter.Validate()
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()

	s.mu.RLock()
	matched := make([]domain.Ticket, 0)
	for _, id := range s.order {
		t := s.tickets[id]
		if matchesFilter(t, filter, now) {
			matched = append(matched, *t.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, compareTickets(filter))
	total := len(matched)
	from := min(filter.Offset(), total)
	to := min(from+filter.Limit, total)
	return matched[from:to], total, nil
}

func (s *MemoryTicketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.TicketID]; ok {
		return ErrDuplicate
	}
	s.tickets[ticket.TicketID] = ticket.Clone()
	s.order = append(s.order, ticket.TicketID)
	return nil
}

func (s *MemoryTicketStore) Update(ctx context.Context, ticket *domain.Ticket, expectedUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.TicketID]
	if !ok {
		return ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return ErrStaleWrite
	}
	ticket.UpdatedAt = nextVersion(ticket.UpdatedAt, expectedUpdatedAt)
	s.tickets[ticket.TicketID] = ticket.Clone()
	return nil
}

func (s *MemoryTicketStore) All(ctx context.Context) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tickets[id].Clone())
	}
	return out, nil
}
