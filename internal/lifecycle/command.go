// Package lifecycle implements the ticket state machine. Commands are a
// closed set of types dispatched by Machine.Apply, which never mutates the
// ticket it is given.
package lifecycle

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Command is one lifecycle operation. The unexported method seals the set.
type Command interface {
	Name() string
	command()
}

// Create opens a new ticket. DueDate and EstimatedResolutionTime are filled
// by the caller's due-date policy when known.
type Create struct {
	Actor                   domain.Actor
	Request                 domain.CreateTicketRequest
	DueDate                 *time.Time
	EstimatedResolutionTime *int
}

// UpdateFields applies a patch without a status change.
type UpdateFields struct {
	Patch domain.TicketPatch
}

// ChangeStatus moves the ticket along one edge. Notes replace internalNotes
// when present.
type ChangeStatus struct {
	To    domain.TicketStatus
	Notes *string
}

// Assign sets the assignee.
type Assign struct {
	AssignedTo string
}

// AddResponse appends to the thread.
type AddResponse struct {
	Actor   domain.Actor
	Request domain.AddResponseRequest
}

// Escalate hands the ticket to a higher tier.
type Escalate struct {
	EscalatedTo string
	Reason      string
}

// Rate records requester satisfaction.
type Rate struct {
	Rating   int
	Feedback *string
}

func (Create) Name() string       { return "create" }
func (UpdateFields) Name() string { return "update" }
func (ChangeStatus) Name() string { return "change_status" }
func (Assign) Name() string       { return "assign" }
func (AddResponse) Name() string  { return "add_response" }
func (Escalate) Name() string     { return "escalate" }
func (Rate) Name() string         { return "rate" }

func (Create) command()       {}
func (UpdateFields) command() {}
func (ChangeStatus) command() {}
func (Assign) command()       {}
func (AddResponse) command()  {}
func (Escalate) command()     {}
func (Rate) command()         {}

// Resolve, Close and Reopen are the status wrappers exposed to callers.
func Resolve(notes *string) ChangeStatus {
	return ChangeStatus{To: domain.TicketStatusResolved, Notes: notes}
}

func Close(notes *string) ChangeStatus {
	return ChangeStatus{To: domain.TicketStatusClosed, Notes: notes}
}

func Reopen(notes *string) ChangeStatus {
	return ChangeStatus{To: domain.TicketStatusOpen, Notes: notes}
}

// SetPriority is a single-field update.
func SetPriority(p domain.TicketPriority) UpdateFields {
	return UpdateFields{Patch: domain.TicketPatch{Priority: &p}}
}

// PatchCommands validates patch and splits it into the commands to apply.
// A status change on a closed ticket goes first so a reopen unlocks the
// field edits; otherwise fields are applied before the status moves.
func PatchCommands(current *domain.Ticket, patch domain.TicketPatch) ([]Command, error) {
	patch, err := patch.Validate()
	if err != nil {
		return nil, err
	}
	var status *ChangeStatus
	if patch.Status != nil {
		status = &ChangeStatus{To: *patch.Status}
		patch.Status = nil
	}
	if status == nil {
		return []Command{UpdateFields{Patch: patch}}, nil
	}
	if !patch.HasFieldChanges() {
		return []Command{*status}, nil
	}
	if current != nil && current.Status == domain.TicketStatusClosed {
		return []Command{*status, UpdateFields{Patch: patch}}, nil
	}
	return []Command{UpdateFields{Patch: patch}, *status}, nil
}

// Change is one audited modification produced by a command.
type Change struct {
	Type domain.TicketChangeType
	Old  map[string]any
	New  map[string]any
}

// Outcome describes what a command did to the ticket.
type Outcome struct {
	Commands []string
	Created  bool
	Changes  []Change
	Response *domain.Response
}

// StatusChange returns the first and last status of the applied commands.
func (o Outcome) StatusChange() (from, to domain.TicketStatus, ok bool) {
	for _, c := range o.Changes {
		if c.Type != domain.ChangeTypeStatus {
			continue
		}
		if !ok {
			from = domain.TicketStatus(c.Old["status"].(string))
			ok = true
		}
		to = domain.TicketStatus(c.New["status"].(string))
	}
	return from, to, ok
}

// Has reports whether the outcome contains a change of the given type.
func (o Outcome) Has(t domain.TicketChangeType) bool {
	for _, c := range o.Changes {
		if c.Type == t {
			return true
		}
	}
	return false
}

func (o *Outcome) merge(other Outcome) {
	o.Commands = append(o.Commands, other.Commands...)
	o.Created = o.Created || other.Created
	o.Changes = append(o.Changes, other.Changes...)
	if other.Response != nil {
		o.Response = other.Response
	}
}

func (o *Outcome) record(t domain.TicketChangeType, oldValue, newValue map[string]any) {
	o.Changes = append(o.Changes, Change{Type: t, Old: oldValue, New: newValue})
}

func errClosed(cmd Command) error {
	return apperrors.NewInvalidState("ticket is closed; reopen it before "+cmd.Name(), string(domain.TicketStatusClosed))
}
