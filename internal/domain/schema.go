package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// Field constraints for ticket payloads.
const (
	SubjectMinLen          = 3
	SubjectMaxLen          = 255
	DescriptionMinLen      = 10
	DescriptionMaxLen      = 10000
	ResponseMinLen         = 1
	ResponseMaxLen         = 10000
	EscalationReasonMinLen = 10
	EscalationReasonMaxLen = 1000
	FeedbackMaxLen         = 5000
	RatingMin              = 1
	RatingMax              = 5
)

var formats = validator.New()

// ParseStatus validates enum membership.
func ParseStatus(field, s string) (TicketStatus, error) {
	status := TicketStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", apperrors.NewFieldError(field, "must be one of open, in_progress, waiting_for_user, resolved, closed, escalated")
	}
	return status, nil
}

// ParsePriority validates enum membership.
func ParsePriority(field, s string) (TicketPriority, error) {
	priority := TicketPriority(strings.ToLower(strings.TrimSpace(s)))
	if !priority.IsValid() {
		return "", apperrors.NewFieldError(field, "must be one of low, normal, high, urgent, critical")
	}
	return priority, nil
}

// ParseCategory validates enum membership.
func ParseCategory(field, s string) (TicketCategory, error) {
	category := TicketCategory(strings.ToLower(strings.TrimSpace(s)))
	if !category.IsValid() {
		return "", apperrors.NewFieldError(field, "must be a known ticket category")
	}
	return category, nil
}

// boundedText trims s and checks its length in characters.
func boundedText(field, s string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < min {
		return "", apperrors.NewFieldError(field, fmt.Sprintf("must be at least %d characters", min))
	}
	if max > 0 && n > max {
		return "", apperrors.NewFieldError(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return s, nil
}

// NewSubject validates a ticket subject.
func NewSubject(s string) (string, error) {
	return boundedText("subject", s, SubjectMinLen, SubjectMaxLen)
}

// NewDescription validates a ticket description.
func NewDescription(s string) (string, error) {
	return boundedText("description", s, DescriptionMinLen, DescriptionMaxLen)
}

// NewEmail validates a requester address.
func NewEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := formats.Var(s, "required,email"); err != nil {
		return "", apperrors.NewFieldError("userEmail", "must be a valid email address")
	}
	return s, nil
}

// NewActorID validates an opaque staff/user identifier.
func NewActorID(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperrors.NewFieldError(field, "is required")
	}
	return s, nil
}

// NewTags normalizes a tag list into a set preserving first-seen order.
func NewTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// NewAttachments validates the shape of each attachment.
func NewAttachments(field string, in []Attachment) ([]Attachment, error) {
	out := make([]Attachment, 0, len(in))
	for i, a := range in {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		a.Filename = strings.TrimSpace(a.Filename)
		if a.Filename == "" {
			return nil, apperrors.NewFieldError(prefix+".filename", "is required")
		}
		if err := formats.Var(a.URL, "required,url"); err != nil {
			return nil, apperrors.NewFieldError(prefix+".url", "must be a valid URL")
		}
		if a.Size <= 0 {
			return nil, apperrors.NewFieldError(prefix+".fileSize", "must be a positive integer")
		}
		a.MimeType = strings.TrimSpace(a.MimeType)
		if a.MimeType == "" {
			return nil, apperrors.NewFieldError(prefix+".mimeType", "is required")
		}
		out = append(out, a)
	}
	return out, nil
}

// NewRating validates a satisfaction score.
func NewRating(rating int) (int, error) {
	if rating < RatingMin || rating > RatingMax {
		return 0, apperrors.NewFieldError("rating", fmt.Sprintf("must be between %d and %d", RatingMin, RatingMax))
	}
	return rating, nil
}

// NewHours validates a positive whole number of hours.
func NewHours(field string, hours int) (int, error) {
	if hours <= 0 {
		return 0, apperrors.NewFieldError(field, "must be a positive integer")
	}
	return hours, nil
}

func optionalText(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// CreateTicketRequest is the payload of the create command.
type CreateTicketRequest struct {
	UserID      *string        `json:"userId,omitempty"`
	UserEmail   string         `json:"userEmail"`
	UserName    *string        `json:"userName,omitempty"`
	Category    TicketCategory `json:"category"`
	Priority    TicketPriority `json:"priority,omitempty"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate returns a normalized copy of r. Priority defaults to normal.
func (r CreateTicketRequest) Validate() (CreateTicketRequest, error) {
	var err error
	out := r
	if out.UserEmail, err = NewEmail(r.UserEmail); err != nil {
		return out, err
	}
	if out.Category, err = ParseCategory("category", string(r.Category)); err != nil {
		return out, err
	}
	if r.Priority == "" {
		out.Priority = TicketPriorityNormal
	} else if out.Priority, err = ParsePriority("priority", string(r.Priority)); err != nil {
		return out, err
	}
	if out.Subject, err = NewSubject(r.Subject); err != nil {
		return out, err
	}
	if out.Description, err = NewDescription(r.Description); err != nil {
		return out, err
	}
	if out.Attachments, err = NewAttachments("attachments", r.Attachments); err != nil {
		return out, err
	}
	out.UserID = optionalText(r.UserID)
	out.UserName = optionalText(r.UserName)
	out.Tags = NewTags(r.Tags)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return out, nil
}

// TicketPatch is the payload of the update command. Every field is optional;
// the nullable ones accept an explicit null to clear the stored value.
type TicketPatch struct {
	Status                  *TicketStatus       `json:"status,omitempty"`
	Priority                *TicketPriority     `json:"priority,omitempty"`
	Category                *TicketCategory     `json:"category,omitempty"`
	Subject                 *string             `json:"subject,omitempty"`
	Description             *string             `json:"description,omitempty"`
	Tags                    *[]string           `json:"tags,omitempty"`
	DueDate                 Nullable[time.Time] `json:"dueDate,omitzero"`
	EstimatedResolutionTime Nullable[int]       `json:"estimatedResolutionTime,omitzero"`
	InternalNotes           Nullable[string]    `json:"internalNotes,omitzero"`
}

// HasFieldChanges reports whether the patch touches anything besides status.
func (p TicketPatch) HasFieldChanges() bool {
	return p.Priority != nil || p.Category != nil || p.Subject != nil || p.Description != nil ||
		p.Tags != nil || p.DueDate.Set || p.EstimatedResolutionTime.Set || p.InternalNotes.Set
}

// IsEmpty reports whether the patch carries no field at all.
func (p TicketPatch) IsEmpty() bool {
	return p.Status == nil && !p.HasFieldChanges()
}

// Validate checks each present field and returns a normalized copy.
func (p TicketPatch) Validate() (TicketPatch, error) {
	out := p
	if p.IsEmpty() {
		return out, apperrors.NewFieldError("patch", "must contain at least one field")
	}
	if p.Status != nil {
		status, err := ParseStatus("status", string(*p.Status))
		if err != nil {
			return out, err
		}
		out.Status = &status
	}
	if p.Priority != nil {
		priority, err := ParsePriority("priority", string(*p.Priority))
		if err != nil {
			return out, err
		}
		out.Priority = &priority
	}
	if p.Category != nil {
		category, err := ParseCategory("category", string(*p.Category))
		if err != nil {
			return out, err
		}
		out.Category = &category
	}
	if p.Subject != nil {
		subject, err := NewSubject(*p.Subject)
		if err != nil {
			return out, err
		}
		out.Subject = &subject
	}
	if p.Description != nil {
		description, err := NewDescription(*p.Description)
		if err != nil {
			return out, err
		}
		out.Description = &description
	}
	if p.Tags != nil {
		tags := NewTags(*p.Tags)
		out.Tags = &tags
	}
	if p.EstimatedResolutionTime.Valid {
		if _, err := NewHours("estimatedResolutionTime", p.EstimatedResolutionTime.Value); err != nil {
			return out, err
		}
	}
	if p.InternalNotes.Valid {
		out.InternalNotes.Value = strings.TrimSpace(p.InternalNotes.Value)
	}
	return out, nil
}

// AddResponseRequest is the payload of the reply command.
type AddResponseRequest struct {
	Content     string       `json:"content"`
	IsInternal  bool         `json:"isInternal"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate returns a normalized copy of r.
func (r AddResponseRequest) Validate() (AddResponseRequest, error) {
	var err error
	out := r
	if out.Content, err = boundedText("content", r.Content, ResponseMinLen, ResponseMaxLen); err != nil {
		return out, err
	}
	if out.Attachments, err = NewAttachments("attachments", r.Attachments); err != nil {
		return out, err
	}
	return out, nil
}

// AssignTicketRequest is the payload of the assign command.
type AssignTicketRequest struct {
	AssignedTo string `json:"assignedTo"`
}

// Validate returns a normalized copy of r.
func (r AssignTicketRequest) Validate() (AssignTicketRequest, error) {
	id, err := NewActorID("assignedTo", r.AssignedTo)
	return AssignTicketRequest{AssignedTo: id}, err
}

// EscalateTicketRequest is the payload of the escalate command.
type EscalateTicketRequest struct {
	EscalatedTo string `json:"escalatedTo"`
	Reason      string `json:"reason"`
}

// Validate returns a normalized copy of r.
func (r EscalateTicketRequest) Validate() (EscalateTicketRequest, error) {
	var err error
	out := r
	if out.EscalatedTo, err = NewActorID("escalatedTo", r.EscalatedTo); err != nil {
		return out, err
	}
	if out.Reason, err = boundedText("reason", r.Reason, EscalationReasonMinLen, EscalationReasonMaxLen); err != nil {
		return out, err
	}
	return out, nil
}

// RateTicketRequest is the payload of the rate command.
type RateTicketRequest struct {
	Rating   int     `json:"rating"`
	Feedback *string `json:"feedback,omitempty"`
}

// Validate returns a normalized copy of r.
func (r RateTicketRequest) Validate() (RateTicketRequest, error) {
	out := r
	if _, err := NewRating(r.Rating); err != nil {
		return out, err
	}
	out.Feedback = optionalText(r.Feedback)
	if out.Feedback != nil && utf8.RuneCountInString(*out.Feedback) > FeedbackMaxLen {
		return out, apperrors.NewFieldError("feedback", fmt.Sprintf("must be at most %d characters", FeedbackMaxLen))
	}
	return out, nil
}
