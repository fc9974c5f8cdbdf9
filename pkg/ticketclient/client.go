package ticketclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/stats"
)

// TicketView is a ticket with its read-time fields.
type TicketView = dto.TicketView

// TicketList is one page of tickets.
type TicketList = dto.TicketListResponse

type envelope[T any] struct {
	Data T `json:"data"`
}

// Client exposes the API operations as typed calls.
type Client struct {
	r Requester
}

// New wraps a Requester.
func New(r Requester) *Client {
	return &Client{r: r}
}

func call[T any](ctx context.Context, r Requester, method, path string, query url.Values, body any) (T, error) {
	var out envelope[T]
	err := r.Do(ctx, method, path, query, body, &out)
	return out.Data, err
}

func ticketPath(id string, suffix string) string {
	return "/tickets/" + url.PathEscape(id) + suffix
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, req domain.CreateTicketRequest) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPost, "/tickets", nil, req)
}

// GetTicket fetches one ticket.
func (c *Client) GetTicket(ctx context.Context, id string) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodGet, ticketPath(id, ""), nil, nil)
}

// ListTickets queries tickets. Empty filter values are not sent.
func (c *Client) ListTickets(ctx context.Context, filter domain.TicketFilter) (TicketList, error) {
	var out TicketList
	err := c.r.Do(ctx, http.MethodGet, "/tickets", filter.Values(), nil, &out)
	return out, err
}

// MyTickets lists the caller's tickets. An empty status lists all of them.
func (c *Client) MyTickets(ctx context.Context, status domain.TicketStatus, page, limit int) (TicketList, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out TicketList
	err := c.r.Do(ctx, http.MethodGet, "/my-tickets", query, nil, &out)
	return out, err
}

// UpdateTicket applies a partial update.
func (c *Client) UpdateTicket(ctx context.Context, id string, patch domain.TicketPatch) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPatch, ticketPath(id, ""), nil, patch)
}

// ResolveTicket marks a ticket resolved.
func (c *Client) ResolveTicket(ctx context.Context, id string, notes *string) (TicketView, error) {
	return c.setStatus(ctx, id, domain.TicketStatusResolved, notes)
}

// CloseTicket closes a ticket.
func (c *Client) CloseTicket(ctx context.Context, id string, notes *string) (TicketView, error) {
	return c.setStatus(ctx, id, domain.TicketStatusClosed, notes)
}

// ReopenTicket reopens a resolved or closed ticket.
func (c *Client) ReopenTicket(ctx context.Context, id string, notes *string) (TicketView, error) {
	return c.setStatus(ctx, id, domain.TicketStatusOpen, notes)
}

// SetPriority changes only the priority.
func (c *Client) SetPriority(ctx context.Context, id string, priority domain.TicketPriority) (TicketView, error) {
	return c.UpdateTicket(ctx, id, domain.TicketPatch{Priority: &priority})
}

func (c *Client) setStatus(ctx context.Context, id string, status domain.TicketStatus, notes *string) (TicketView, error) {
	patch := domain.TicketPatch{Status: &status}
	if notes != nil {
		patch.InternalNotes = domain.Some(*notes)
	}
	return c.UpdateTicket(ctx, id, patch)
}

// AssignTicket sets the assignee.
func (c *Client) AssignTicket(ctx context.Context, id, assignedTo string) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPost, ticketPath(id, "/assign"), nil, domain.AssignTicketRequest{AssignedTo: assignedTo})
}

// Reply appends a response.
func (c *Client) Reply(ctx context.Context, id string, req domain.AddResponseRequest) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPost, ticketPath(id, "/reply"), nil, req)
}

// EscalateTicket escalates a ticket.
func (c *Client) EscalateTicket(ctx context.Context, id, escalatedTo, reason string) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPost, ticketPath(id, "/escalate"), nil,
		domain.EscalateTicketRequest{EscalatedTo: escalatedTo, Reason: reason})
}

// RateTicket records satisfaction.
func (c *Client) RateTicket(ctx context.Context, id string, rating int, feedback *string) (TicketView, error) {
	return call[TicketView](ctx, c.r, http.MethodPost, ticketPath(id, "/rate"), nil,
		domain.RateTicketRequest{Rating: rating, Feedback: feedback})
}

// History lists audit entries.
func (c *Client) History(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	return call[[]domain.TicketHistory](ctx, c.r, http.MethodGet, ticketPath(id, "/history"), nil, nil)
}

// Stats fetches the dashboard snapshot.
func (c *Client) Stats(ctx context.Context) (stats.Stats, error) {
	return call[stats.Stats](ctx, c.r, http.MethodGet, "/stats", nil, nil)
}
