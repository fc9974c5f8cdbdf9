package dto

import (
	"time"

	"github.com/xeonx/timeago"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/sla"
	"github.com/spec-kit/support-desk/internal/thread"
)

// TicketView is a ticket plus the values derived at read time.
type TicketView struct {
	*domain.Ticket
	Age            string        `json:"age"`
	CreatedAgo     string        `json:"createdAgo"`
	IsOverdue      bool          `json:"isOverdue"`
	ResponseCounts thread.Counts `json:"responseCounts"`
}

// NewTicketView derives the read-time fields at now.
func NewTicketView(ticket *domain.Ticket, now time.Time) TicketView {
	return TicketView{
		Ticket:         ticket,
		Age:            sla.FormatDuration(sla.TicketAge(ticket.CreatedAt, now)),
		CreatedAgo:     timeago.English.FormatReference(ticket.CreatedAt, now),
		IsOverdue:      sla.TicketOverdue(ticket, now),
		ResponseCounts: thread.Count(ticket.Responses),
	}
}

// TicketListResponse is a page of tickets.
type TicketListResponse struct {
	Data       []TicketView      `json:"data"`
	Pagination domain.Pagination `json:"pagination"`
}

// NewTicketListResponse converts a page.
func NewTicketListResponse(page *domain.TicketPage, now time.Time) TicketListResponse {
	views := make([]TicketView, 0, len(page.Data))
	for i := range page.Data {
		views = append(views, NewTicketView(&page.Data[i], now))
	}
	return TicketListResponse{Data: views, Pagination: page.Pagination}
}
