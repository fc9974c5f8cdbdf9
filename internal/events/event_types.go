package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketResponseAdded   EventType = "ticket_response_added"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventTicketRated           EventType = "ticket_rated"
	EventTicketOverdue         EventType = "ticket_overdue"
)

// AllEventTypes lists every event the service publishes.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketResponseAdded,
	EventTicketEscalated,
	EventTicketRated,
	EventTicketOverdue,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category  domain.TicketCategory `json:"category"`
	Priority  domain.TicketPriority `json:"priority"`
	Subject   string                `json:"subject"`
	UserEmail string                `json:"user_email"`
	DueDate   *time.Time            `json:"due_date,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedTo       string  `json:"assigned_to"`
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
}

// TicketResponseAddedPayload payload. UserEmail and AssignedTo identify the
// other side of the conversation.
type TicketResponseAddedPayload struct {
	ResponseID    string           `json:"response_id"`
	ResponderType domain.ActorType `json:"responder_type"`
	IsInternal    bool             `json:"is_internal"`
	BodyPreview   string           `json:"body_preview"`
	UserEmail     string           `json:"user_email"`
	AssignedTo    *string          `json:"assigned_to,omitempty"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	EscalatedTo string `json:"escalated_to"`
	Reason      string `json:"reason"`
}

// TicketRatedPayload payload.
type TicketRatedPayload struct {
	Rating int `json:"rating"`
}

// TicketOverduePayload payload.
type TicketOverduePayload struct {
	DueDate    time.Time             `json:"due_date"`
	Priority   domain.TicketPriority `json:"priority"`
	AssignedTo *string               `json:"assigned_to,omitempty"`
}
