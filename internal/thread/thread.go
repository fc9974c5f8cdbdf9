// Package thread manages the response thread of a ticket.
package thread

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Append validates req, adds a response authored by actor to t and updates
// the response milestones. The thread stays chronological: createdAt is
// clamped so it never precedes the previous entry. Status is never changed.
func Append(t *domain.Ticket, actor domain.Actor, req domain.AddResponseRequest, responseID string, now time.Time) (domain.Response, error) {
	if !actor.Type.IsValid() || actor.ID == "" {
		return domain.Response{}, apperrors.NewUnauthorized("responder identity is required")
	}
	req, err := req.Validate()
	if err != nil {
		return domain.Response{}, err
	}
	if req.IsInternal && !actor.IsStaff() {
		return domain.Response{}, apperrors.NewForbidden("only staff can post internal responses")
	}

	at := now
	if n := len(t.Responses); n > 0 && at.Before(t.Responses[n-1].CreatedAt) {
		at = t.Responses[n-1].CreatedAt
	}

	resp := domain.Response{
		ResponseID:    responseID,
		ResponderID:   actor.ID,
		ResponderType: actor.Type,
		Content:       req.Content,
		Attachments:   req.Attachments,
		IsInternal:    req.IsInternal,
		CreatedAt:     at,
	}
	t.Responses = append(t.Responses, resp)

	if !resp.IsInternal {
		domain.StampOnce(&t.FirstResponseAt, at)
		last := at
		t.LastResponseAt = &last
	}
	return resp, nil
}

// Visible filters internal responses out for non-staff viewers.
func Visible(responses []domain.Response, viewer domain.Actor) []domain.Response {
	if viewer.IsStaff() {
		return responses
	}
	out := make([]domain.Response, 0, len(responses))
	for _, r := range responses {
		if !r.IsInternal {
			out = append(out, r)
		}
	}
	return out
}

// ForViewer returns a copy of t with staff-only content removed when the
// viewer is not staff.
func ForViewer(t *domain.Ticket, viewer domain.Actor) *domain.Ticket {
	if t == nil || viewer.IsStaff() {
		return t
	}
	c := t.Clone()
	c.Responses = Visible(c.Responses, viewer)
	c.InternalNotes = nil
	return c
}

// Counts summarizes a thread by responder.
type Counts struct {
	Total    int `json:"total"`
	Staff    int `json:"staff"`
	User     int `json:"user"`
	Internal int `json:"internal"`
}

// Count tallies responses by responder type.
func Count(responses []domain.Response) Counts {
	var c Counts
	for _, r := range responses {
		c.Total++
		switch r.ResponderType {
		case domain.ActorTypeStaff:
			c.Staff++
		case domain.ActorTypeUser:
			c.User++
		}
		if r.IsInternal {
			c.Internal++
		}
	}
	return c
}
