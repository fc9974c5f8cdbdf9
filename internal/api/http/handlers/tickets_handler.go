package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	service *service.TicketService
	clock   clock.Clock
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, clk clock.Clock) *TicketsHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketsHandler{service: ticketService, clock: clk}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filter, err := domain.ParseTicketFilter(queryValues(c))
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(page, h.clock.Now()))
}

// MyTickets GET /my-tickets.
func (h *TicketsHandler) MyTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	page, err := parseIntQuery(c, "page")
	if err != nil {
		return err
	}
	limit, err := parseIntQuery(c, "limit")
	if err != nil {
		return err
	}
	var status *domain.TicketStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := domain.ParseStatus("status", raw)
		if err != nil {
			return err
		}
		status = &parsed
	}
	result, err := h.service.MyTickets(c.UserContext(), actor, status, page, limit)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(result, h.clock.Now()))
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req domain.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(h.single(ticket))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(h.single(ticket))
}

// UpdateTicket PATCH /tickets/:id. A patch that only moves the status to
// resolved, closed or open (optionally with notes) runs the matching status
// command; a priority-only patch runs setPriority.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var patch domain.TicketPatch
	if err := parseBody(c, &patch); err != nil {
		return err
	}
	ctx, id := c.UserContext(), c.Params("id")

	var ticket *domain.Ticket
	if status, notes, ok := statusOnly(patch); ok {
		switch status {
		case domain.TicketStatusResolved:
			ticket, err = h.service.ResolveTicket(ctx, actor, id, notes)
		case domain.TicketStatusClosed:
			ticket, err = h.service.CloseTicket(ctx, actor, id, notes)
		default:
			ticket, err = h.service.ReopenTicket(ctx, actor, id, notes)
		}
	} else if patch.Priority != nil && priorityOnly(patch) {
		ticket, err = h.service.SetPriority(ctx, actor, id, *patch.Priority)
	} else {
		ticket, err = h.service.UpdateTicket(ctx, actor, id, patch)
	}
	if err != nil {
		return err
	}
	return c.JSON(h.single(ticket))
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req domain.AssignTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), actor, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(h.single(ticket))
}

// Reply POST /tickets/:id/reply.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req domain.AddResponseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.AddResponse(c.UserContext(), actor, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(h.single(ticket))
}

// EscalateTicket POST /tickets/:id/escalate.
func (h *TicketsHandler) EscalateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req domain.EscalateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.EscalateTicket(c.UserContext(), actor, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(h.single(ticket))
}

// RateTicket POST /tickets/:id/rate.
func (h *TicketsHandler) RateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req domain.RateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.RateTicket(c.UserContext(), actor, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(h.single(ticket))
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries})
}

// Stats GET /stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	snapshot, err := h.service.Stats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}

func (h *TicketsHandler) single(ticket *domain.Ticket) fiber.Map {
	return fiber.Map{"data": dto.NewTicketView(ticket, h.clock.Now())}
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return apperrors.NewFieldError("body", "is required")
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewFieldError("body", "must be a valid JSON object")
	}
	return nil
}

func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		values.Add(string(key), string(value))
	})
	return values
}

func parseIntQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewFieldError(key, "must be an integer")
	}
	return n, nil
}

// statusOnly reports whether patch is a plain resolve, close or reopen.
func statusOnly(patch domain.TicketPatch) (domain.TicketStatus, *string, bool) {
	if patch.Status == nil {
		return "", nil, false
	}
	switch *patch.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusOpen:
	default:
		return "", nil, false
	}
	rest := patch
	rest.Status = nil
	notes := rest.InternalNotes
	rest.InternalNotes = domain.Nullable[string]{}
	if rest.HasFieldChanges() || (notes.Set && !notes.Valid) {
		return "", nil, false
	}
	return *patch.Status, notes.Ptr(), true
}

func priorityOnly(patch domain.TicketPatch) bool {
	rest := patch
	rest.Priority = nil
	return rest.IsEmpty()
}
