package lifecycle

import (
	"slices"

	"github.com/spec-kit/support-desk/internal/domain"
)

// allowedTransitions is the complete edge set of the status machine.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress,
		domain.TicketStatusWaitingForUser,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusEscalated,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusWaitingForUser,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusEscalated,
	},
	domain.TicketStatusWaitingForUser: {
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusEscalated,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusClosed,
		domain.TicketStatusOpen,
	},
	domain.TicketStatusClosed: {
		domain.TicketStatusOpen,
	},
	domain.TicketStatusEscalated: {
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
	},
}

// CanTransition reports whether from -> to is a legal edge. Same-status
// requests are never legal.
func CanTransition(from, to domain.TicketStatus) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s domain.TicketStatus) []domain.TicketStatus {
	return slices.Clone(allowedTransitions[s])
}
