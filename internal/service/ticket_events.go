package service

import (
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/lifecycle"
)

const previewLength = 120

// buildEvents translates a command outcome into the events to publish, in
// the order the changes happened.
func buildEvents(actor domain.Actor, before, after *domain.Ticket, outcome lifecycle.Outcome) []events.Event {
	base := events.Event{TicketID: after.TicketID, Actor: actor, Timestamp: after.UpdatedAt}
	out := make([]events.Event, 0, len(outcome.Changes)+1)
	with := func(t events.EventType, payload any) {
		e := base
		e.Type = t
		e.Payload = payload
		out = append(out, e)
	}

	if outcome.Created {
		with(events.EventTicketCreated, events.TicketCreatedPayload{
			Category:  after.Category,
			Priority:  after.Priority,
			Subject:   after.Subject,
			UserEmail: after.UserEmail,
			DueDate:   after.DueDate,
		})
	}
	for _, change := range outcome.Changes {
		switch change.Type {
		case domain.ChangeTypeStatus:
			with(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
				OldStatus: domain.TicketStatus(statusOf(change.Old)),
				NewStatus: domain.TicketStatus(statusOf(change.New)),
			})
		case domain.ChangeTypePriority:
			with(events.EventTicketPriorityChanged, events.TicketPriorityChangedPayload{
				OldPriority: domain.TicketPriority(stringValue(change.Old, "priority")),
				NewPriority: domain.TicketPriority(stringValue(change.New, "priority")),
			})
		case domain.ChangeTypeAssignee:
			payload := events.TicketAssignedPayload{AssignedTo: stringValue(change.New, "assignedTo")}
			if before != nil && before.AssignedTo != nil {
				previous := *before.AssignedTo
				payload.PreviousAssignee = &previous
			}
			with(events.EventTicketAssigned, payload)
		case domain.ChangeTypeEscalation:
			with(events.EventTicketEscalated, events.TicketEscalatedPayload{
				EscalatedTo: stringValue(change.New, "escalatedTo"),
				Reason:      stringValue(change.New, "reason"),
			})
		case domain.ChangeTypeRating:
			rating := 0
			if after.SatisfactionRating != nil {
				rating = *after.SatisfactionRating
			}
			with(events.EventTicketRated, events.TicketRatedPayload{Rating: rating})
		}
	}
	if r := outcome.Response; r != nil {
		with(events.EventTicketResponseAdded, events.TicketResponseAddedPayload{
			ResponseID:    r.ResponseID,
			ResponderType: r.ResponderType,
			IsInternal:    r.IsInternal,
			BodyPreview:   stringPreview(r.Content, previewLength),
			UserEmail:     after.UserEmail,
			AssignedTo:    after.AssignedTo,
		})
	}
	return out
}

func stringValue(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
