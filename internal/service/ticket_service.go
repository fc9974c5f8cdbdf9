package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/cache"
	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/lifecycle"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/sla"
	"github.com/spec-kit/support-desk/internal/stats"
	"github.com/spec-kit/support-desk/internal/thread"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows: it loads a ticket, runs the
// lifecycle machine, writes conditionally and then records history, events
// and metrics.
type TicketService struct {
	tickets    repository.TicketStore
	history    repository.TicketHistoryRepository
	machine    *lifecycle.Machine
	duePolicy  *sla.DuePolicy
	dispatcher events.Dispatcher
	statsCache *cache.StatsCache
	metrics    *observability.Metrics
	clock      clock.Clock
	location   *time.Location
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketStore repository.TicketStore
	HistoryRepo repository.TicketHistoryRepository
	Machine     *lifecycle.Machine
	// DuePolicy fills dueDate on create. Nil disables automatic due dates.
	DuePolicy  *sla.DuePolicy
	Dispatcher events.Dispatcher
	StatsCache *cache.StatsCache
	Metrics    *observability.Metrics
	Clock      clock.Clock
	// Location anchors the today/week/month windows of the stats.
	Location *time.Location
	Logger   *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(clk)
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketStore,
		history:    deps.HistoryRepo,
		machine:    machine,
		duePolicy:  deps.DuePolicy,
		dispatcher: deps.Dispatcher,
		statsCache: deps.StatsCache,
		metrics:    deps.Metrics,
		clock:      clk,
		location:   loc,
		logger:     logger,
	}
}

// CreateTicket opens a ticket. End users always open tickets for themselves.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, req domain.CreateTicketRequest) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		id := actor.ID
		req.UserID = &id
	}
	cmd := lifecycle.Create{Actor: actor, Request: req}
	if s.duePolicy != nil {
		priority := req.Priority
		if priority == "" {
			priority = domain.TicketPriorityNormal
		}
		if priority.IsValid() {
			due := s.duePolicy.DueDate(s.clock.Now(), priority).Truncate(time.Microsecond)
			hours := s.duePolicy.EstimatedHours(priority)
			cmd.DueDate = &due
			cmd.EstimatedResolutionTime = &hours
		}
	}

	ticket, outcome, err := s.machine.Apply(nil, cmd)
	if err != nil {
		s.recordCommand(cmd.Name(), err)
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		err = s.storeError(err)
		s.recordCommand(cmd.Name(), err)
		return nil, err
	}
	s.recordCommand(cmd.Name(), nil)
	s.afterWrite(ctx, actor, nil, ticket, outcome)
	return thread.ForViewer(ticket, actor), nil
}

// GetTicket returns a ticket as seen by actor. End users only see their own
// tickets, without internal responses or notes.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, ticket); err != nil {
		return nil, err
	}
	return thread.ForViewer(ticket, actor), nil
}

// ListTickets returns a filtered page of tickets for staff.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter domain.TicketFilter) (*domain.TicketPage, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.list(ctx, filter)
}

// MyTickets lists the tickets assigned to a staff member, most urgent first,
// or the tickets an end user opened. A non-nil status narrows the list.
func (s *TicketService) MyTickets(ctx context.Context, actor domain.Actor, status *domain.TicketStatus, page, limit int) (*domain.TicketPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	id := actor.ID
	filter := domain.TicketFilter{Status: status, Page: page, Limit: limit}
	if actor.IsStaff() {
		filter.AssignedTo = &id
		filter.SortBy = domain.SortByPriority
		filter.SortOrder = domain.SortDesc
	} else {
		filter.UserID = &id
	}
	result, err := s.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range result.Data {
		result.Data[i] = *thread.ForViewer(&result.Data[i], actor)
	}
	return result, nil
}

// UpdateTicket applies a partial update. A status in the patch goes through
// the transition table.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, ticketID string, patch domain.TicketPatch) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, nil, func(current *domain.Ticket) ([]lifecycle.Command, error) {
		return lifecycle.PatchCommands(current, patch)
	})
}

// AssignTicket sets the assignee.
func (s *TicketService) AssignTicket(ctx context.Context, actor domain.Actor, ticketID string, req domain.AssignTicketRequest) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, nil, commands(lifecycle.Assign{AssignedTo: req.AssignedTo}))
}

// AddResponse appends a response to the thread. End users may only reply to
// their own tickets.
func (s *TicketService) AddResponse(ctx context.Context, actor domain.Actor, ticketID string, req domain.AddResponseRequest) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, canView, commands(lifecycle.AddResponse{Actor: actor, Request: req}))
}

// EscalateTicket hands the ticket to escalatedTo.
func (s *TicketService) EscalateTicket(ctx context.Context, actor domain.Actor, ticketID string, req domain.EscalateTicketRequest) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, nil, commands(lifecycle.Escalate{EscalatedTo: req.EscalatedTo, Reason: req.Reason}))
}

// ResolveTicket marks the ticket resolved.
func (s *TicketService) ResolveTicket(ctx context.Context, actor domain.Actor, ticketID string, notes *string) (*domain.Ticket, error) {
	return s.changeStatus(ctx, actor, ticketID, lifecycle.Resolve(notes))
}

// CloseTicket closes the ticket.
func (s *TicketService) CloseTicket(ctx context.Context, actor domain.Actor, ticketID string, notes *string) (*domain.Ticket, error) {
	return s.changeStatus(ctx, actor, ticketID, lifecycle.Close(notes))
}

// ReopenTicket returns a resolved or closed ticket to open.
func (s *TicketService) ReopenTicket(ctx context.Context, actor domain.Actor, ticketID string, notes *string) (*domain.Ticket, error) {
	return s.changeStatus(ctx, actor, ticketID, lifecycle.Reopen(notes))
}

// SetPriority changes only the priority.
func (s *TicketService) SetPriority(ctx context.Context, actor domain.Actor, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, nil, commands(lifecycle.SetPriority(priority)))
}

// RateTicket records satisfaction. The requester or staff may rate.
func (s *TicketService) RateTicket(ctx context.Context, actor domain.Actor, ticketID string, req domain.RateTicketRequest) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, canView, commands(lifecycle.Rate{Rating: req.Rating, Feedback: req.Feedback}))
}

// History lists the audit entries of a ticket for staff.
func (s *TicketService) History(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketHistory, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

// Stats returns the dashboard snapshot for staff, served from the cache
// when a fresh copy exists.
func (s *TicketService) Stats(ctx context.Context, actor domain.Actor) (*stats.Stats, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if cached, ok := s.statsCache.Get(ctx); ok {
		return cached, nil
	}
	return s.RefreshStats(ctx)
}

// RefreshStats recomputes the snapshot and stores it in the cache.
func (s *TicketService) RefreshStats(ctx context.Context) (*stats.Stats, error) {
	all, err := s.tickets.All(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	snapshot := stats.Aggregate(all, s.clock.Now(), s.location)
	if err := s.statsCache.Set(ctx, snapshot); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
	return &snapshot, nil
}

func (s *TicketService) changeStatus(ctx context.Context, actor domain.Actor, ticketID string, cmd lifecycle.ChangeStatus) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, ticketID, nil, commands(cmd))
}

type commandBuilder func(current *domain.Ticket) ([]lifecycle.Command, error)

func commands(cmds ...lifecycle.Command) commandBuilder {
	return func(*domain.Ticket) ([]lifecycle.Command, error) { return cmds, nil }
}

// mutate is the read-validate-write cycle shared by every command on an
// existing ticket. The write is conditional on the updatedAt that was read.
func (s *TicketService) mutate(ctx context.Context, actor domain.Actor, ticketID string, access func(domain.Actor, *domain.Ticket) error, build commandBuilder) (*domain.Ticket, error) {
	current, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if access != nil {
		if err := access(actor, current); err != nil {
			return nil, err
		}
	}
	cmds, err := build(current)
	if err != nil {
		return nil, err
	}
	name := commandNames(cmds)

	next, outcome, err := s.machine.ApplyAll(current, cmds...)
	if err != nil {
		s.recordCommand(name, err)
		return nil, err
	}
	if err := s.tickets.Update(ctx, next, current.UpdatedAt); err != nil {
		err = s.storeError(err)
		s.recordCommand(name, err)
		return nil, err
	}
	s.recordCommand(name, nil)
	s.afterWrite(ctx, actor, current, next, outcome)
	return thread.ForViewer(next, actor), nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	id := strings.TrimSpace(ticketID)
	if id == "" {
		return nil, apperrors.NewFieldError("ticketId", "is required")
	}
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err)
	}
	return ticket, nil
}

func (s *TicketService) list(ctx context.Context, filter domain.TicketFilter) (*domain.TicketPage, error) {
	filter, err := filter.Validate()
	if err != nil {
		return nil, err
	}
	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, s.storeError(err)
	}
	return &domain.TicketPage{Data: tickets, Pagination: domain.NewPagination(filter, total)}, nil
}

// afterWrite runs the side effects of a committed command. They never undo
// the write; failures are logged.
func (s *TicketService) afterWrite(ctx context.Context, actor domain.Actor, before, after *domain.Ticket, outcome lifecycle.Outcome) {
	s.recordHistory(ctx, actor, after, outcome)
	for _, event := range buildEvents(actor, before, after, outcome) {
		s.publishEvent(ctx, event)
	}
	for _, change := range outcome.Changes {
		if change.Type == domain.ChangeTypeStatus {
			s.metrics.RecordTransition(statusOf(change.Old), statusOf(change.New))
		}
	}
	if err := s.statsCache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidate failed", zap.String("ticket_id", after.TicketID), zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, outcome lifecycle.Outcome) {
	if s.history == nil {
		return
	}
	for _, change := range outcome.Changes {
		entry := &domain.TicketHistory{
			ID:            uuid.NewString(),
			TicketID:      ticket.TicketID,
			ChangedByType: actor.Type,
			ChangedByID:   actor.ID,
			ChangeType:    change.Type,
			OldValue:      change.Old,
			NewValue:      change.New,
			CreatedAt:     ticket.UpdatedAt,
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Error("record ticket history",
				zap.String("ticket_id", ticket.TicketID),
				zap.String("change_type", string(change.Type)),
				zap.Error(err))
		}
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func (s *TicketService) storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, repository.ErrStaleWrite):
		return apperrors.NewConcurrentModification("ticket", err)
	case apperrors.CodeOf(err) != "":
		return err
	default:
		s.logger.Error("ticket store failure", zap.Error(err))
		return apperrors.NewInternalError(err)
	}
}

func (s *TicketService) recordCommand(name string, err error) {
	result := "ok"
	if err != nil {
		result = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordCommand(name, result)
}

func requireActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.Type.IsValid() {
		return apperrors.NewUnauthorized("actor is not identified")
	}
	return nil
}

func requireStaff(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsStaff() {
		return apperrors.NewForbidden("staff access required")
	}
	return nil
}

// canView allows staff everywhere and end users on the tickets they opened.
func canView(actor domain.Actor, ticket *domain.Ticket) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.IsStaff() {
		return nil
	}
	if ticket.UserID != nil && *ticket.UserID == actor.ID {
		return nil
	}
	return apperrors.NewForbidden("ticket belongs to another user")
}

func commandNames(cmds []lifecycle.Command) string {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name()
	}
	return strings.Join(names, "+")
}

func statusOf(values map[string]any) string {
	if s, ok := values["status"].(string); ok {
		return s
	}
	return ""
}
