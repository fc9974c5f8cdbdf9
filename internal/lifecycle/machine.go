package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/sla"
	"github.com/spec-kit/support-desk/internal/thread"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Policy holds the behaviors that are business decisions rather than rules
// of the transition table.
type Policy struct {
	// AssignPromotesOpen moves an open ticket to in_progress on assignment.
	AssignPromotesOpen bool
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{AssignPromotesOpen: true}
}

// IDGenerator returns a new identifier with the given prefix.
type IDGenerator func(prefix string) string

// UUIDGenerator produces ids like ticket_<uuid>.
func UUIDGenerator(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Option configures a Machine.
type Option func(*Machine)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Machine) { m.policy = p }
}

// WithIDGenerator overrides UUIDGenerator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Machine) { m.newID = g }
}

// Machine applies commands to tickets.
type Machine struct {
	clock  clock.Clock
	newID  IDGenerator
	policy Policy
}

// NewMachine builds a Machine reading time from c.
func NewMachine(c clock.Clock, opts ...Option) *Machine {
	if c == nil {
		c = clock.Real()
	}
	m := &Machine{clock: c, newID: UUIDGenerator, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the active policy.
func (m *Machine) Policy() Policy { return m.policy }

// Apply runs cmd against current and returns the resulting ticket. current is
// never modified; on error the returned ticket is nil.
func (m *Machine) Apply(current *domain.Ticket, cmd Command) (*domain.Ticket, Outcome, error) {
	return m.ApplyAll(current, cmd)
}

// ApplyAll runs cmds in order as one unit. Either every command succeeds or
// the error of the first failing one is returned.
func (m *Machine) ApplyAll(current *domain.Ticket, cmds ...Command) (*domain.Ticket, Outcome, error) {
	var outcome Outcome
	if len(cmds) == 0 {
		return nil, outcome, apperrors.NewValidationError("no command to apply", nil)
	}
	now := m.now()
	next := current.Clone()
	for _, cmd := range cmds {
		var (
			step Outcome
			err  error
		)
		next, step, err = m.apply(next, cmd, now)
		if err != nil {
			return nil, Outcome{}, err
		}
		step.Commands = []string{cmd.Name()}
		outcome.merge(step)
	}
	next.UpdatedAt = now
	if current != nil && !now.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	return next, outcome, nil
}

// now is truncated to the precision Postgres stores so conditional writes
// compare equal after a round trip.
func (m *Machine) now() time.Time {
	return m.clock.Now().UTC().Truncate(time.Microsecond)
}

func (m *Machine) apply(t *domain.Ticket, cmd Command, now time.Time) (*domain.Ticket, Outcome, error) {
	if c, ok := cmd.(Create); ok {
		if t != nil {
			return nil, Outcome{}, apperrors.NewInvalidState("ticket already exists", string(t.Status))
		}
		return m.create(c, now)
	}
	if t == nil {
		return nil, Outcome{}, apperrors.NewNotFound("ticket", nil)
	}

	var (
		out Outcome
		err error
	)
	switch c := cmd.(type) {
	case UpdateFields:
		err = m.updateFields(t, c, &out)
	case ChangeStatus:
		err = m.changeStatus(t, c, now, &out)
	case Assign:
		err = m.assign(t, c, &out)
	case AddResponse:
		err = m.addResponse(t, c, now, &out)
	case Escalate:
		err = m.escalate(t, c, now, &out)
	case Rate:
		err = m.rate(t, c, &out)
	default:
		err = apperrors.NewValidationError(fmt.Sprintf("unsupported command %T", cmd), nil)
	}
	if err != nil {
		return nil, Outcome{}, err
	}
	return t, out, nil
}

func (m *Machine) create(c Create, now time.Time) (*domain.Ticket, Outcome, error) {
	req, err := c.Request.Validate()
	if err != nil {
		return nil, Outcome{}, err
	}
	if req.UserID == nil && c.Actor.Type == domain.ActorTypeUser && c.Actor.ID != "" {
		id := c.Actor.ID
		req.UserID = &id
	}
	t := &domain.Ticket{
		TicketID:                m.newID("ticket"),
		Category:                req.Category,
		Priority:                req.Priority,
		Status:                  domain.TicketStatusOpen,
		UserID:                  req.UserID,
		UserEmail:               req.UserEmail,
		UserName:                req.UserName,
		Subject:                 req.Subject,
		Description:             req.Description,
		Tags:                    req.Tags,
		Attachments:             req.Attachments,
		Metadata:                req.Metadata,
		Responses:               []domain.Response{},
		DueDate:                 c.DueDate,
		EstimatedResolutionTime: c.EstimatedResolutionTime,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	return t, Outcome{Created: true}, nil
}

func (m *Machine) updateFields(t *domain.Ticket, c UpdateFields, out *Outcome) error {
	if t.Status == domain.TicketStatusClosed {
		return errClosed(c)
	}
	if c.Patch.Status != nil {
		return apperrors.NewFieldError("status", "status changes must use a status command")
	}
	if !c.Patch.HasFieldChanges() {
		return apperrors.NewFieldError("patch", "must contain at least one field")
	}
	p, err := c.Patch.Validate()
	if err != nil {
		return err
	}

	if p.Priority != nil && *p.Priority != t.Priority {
		out.record(domain.ChangeTypePriority,
			map[string]any{"priority": string(t.Priority)},
			map[string]any{"priority": string(*p.Priority)})
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.DueDate.Set {
		if p.DueDate.Valid {
			due := p.DueDate.Value.UTC()
			t.DueDate = &due
		} else {
			t.DueDate = nil
		}
	}
	if p.EstimatedResolutionTime.Set {
		t.EstimatedResolutionTime = p.EstimatedResolutionTime.Ptr()
	}
	if p.InternalNotes.Set {
		t.InternalNotes = notesOrNil(p.InternalNotes.Ptr())
	}
	return nil
}

func (m *Machine) changeStatus(t *domain.Ticket, c ChangeStatus, now time.Time, out *Outcome) error {
	to, err := domain.ParseStatus("status", string(c.To))
	if err != nil {
		return err
	}
	if to == domain.TicketStatusEscalated {
		return apperrors.NewFieldError("status", "escalation requires escalatedTo and a reason; use the escalate command")
	}
	if err := m.transition(t, to, out); err != nil {
		return err
	}

	switch to {
	case domain.TicketStatusResolved:
		domain.StampOnce(&t.ResolvedAt, now)
		if hours, ok := sla.ResolutionTime(t.CreatedAt, t.ResolvedAt); ok {
			actual := sla.ActualResolutionHours(hours)
			t.ActualResolutionTime = &actual
		}
	case domain.TicketStatusClosed:
		domain.StampOnce(&t.ClosedAt, now)
	case domain.TicketStatusOpen:
		// Rating and actualResolutionTime describe the last resolution and
		// stay until the next resolve or rate replaces them.
		t.ResolvedAt = nil
		t.ClosedAt = nil
	}
	if notes := notesOrNil(c.Notes); notes != nil {
		t.InternalNotes = notes
	}
	return nil
}

func (m *Machine) assign(t *domain.Ticket, c Assign, out *Outcome) error {
	if t.Status == domain.TicketStatusClosed {
		return errClosed(c)
	}
	req, err := domain.AssignTicketRequest{AssignedTo: c.AssignedTo}.Validate()
	if err != nil {
		return err
	}
	var previous any
	if t.AssignedTo != nil {
		previous = *t.AssignedTo
	}
	assignee := req.AssignedTo
	t.AssignedTo = &assignee
	out.record(domain.ChangeTypeAssignee,
		map[string]any{"assignedTo": previous},
		map[string]any{"assignedTo": assignee})

	if m.policy.AssignPromotesOpen && t.Status == domain.TicketStatusOpen {
		return m.transition(t, domain.TicketStatusInProgress, out)
	}
	return nil
}

func (m *Machine) addResponse(t *domain.Ticket, c AddResponse, now time.Time, out *Outcome) error {
	if t.Status == domain.TicketStatusClosed {
		return errClosed(c)
	}
	resp, err := thread.Append(t, c.Actor, c.Request, m.newID("resp"), now)
	if err != nil {
		return err
	}
	out.Response = &resp
	return nil
}

func (m *Machine) escalate(t *domain.Ticket, c Escalate, now time.Time, out *Outcome) error {
	req, err := domain.EscalateTicketRequest{EscalatedTo: c.EscalatedTo, Reason: c.Reason}.Validate()
	if err != nil {
		return err
	}
	if err := m.transition(t, domain.TicketStatusEscalated, out); err != nil {
		return err
	}
	domain.StampOnce(&t.EscalatedAt, now)
	t.EscalatedTo = &req.EscalatedTo
	t.EscalationReason = &req.Reason
	out.record(domain.ChangeTypeEscalation, nil, map[string]any{
		"escalatedTo": req.EscalatedTo,
		"reason":      req.Reason,
	})
	return nil
}

func (m *Machine) rate(t *domain.Ticket, c Rate, out *Outcome) error {
	req, err := domain.RateTicketRequest{Rating: c.Rating, Feedback: c.Feedback}.Validate()
	if err != nil {
		return err
	}
	if t.Status != domain.TicketStatusResolved && t.Status != domain.TicketStatusClosed {
		return apperrors.NewInvalidState("only resolved or closed tickets can be rated", string(t.Status))
	}
	var previous map[string]any
	if t.SatisfactionRating != nil {
		previous = map[string]any{"rating": *t.SatisfactionRating}
	}
	rating := req.Rating
	t.SatisfactionRating = &rating
	t.SatisfactionFeedback = req.Feedback
	next := map[string]any{"rating": rating}
	if req.Feedback != nil {
		next["feedback"] = *req.Feedback
	}
	out.record(domain.ChangeTypeRating, previous, next)
	return nil
}

// transition moves t to status `to` if the edge exists.
func (m *Machine) transition(t *domain.Ticket, to domain.TicketStatus, out *Outcome) error {
	from := t.Status
	if !CanTransition(from, to) {
		return apperrors.NewInvalidTransition(string(from), string(to))
	}
	t.Status = to
	out.record(domain.ChangeTypeStatus,
		map[string]any{"status": string(from)},
		map[string]any{"status": string(to)})
	return nil
}

func notesOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
