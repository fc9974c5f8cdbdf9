package domain

import (
	"slices"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "open"
	TicketStatusInProgress     TicketStatus = "in_progress"
	TicketStatusWaitingForUser TicketStatus = "waiting_for_user"
	TicketStatusResolved       TicketStatus = "resolved"
	TicketStatusClosed         TicketStatus = "closed"
	TicketStatusEscalated      TicketStatus = "escalated"
)

// TicketStatuses lists every status in declaration order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingForUser,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusEscalated,
}

// IsValid reports enum membership.
func (s TicketStatus) IsValid() bool {
	return slices.Contains(TicketStatuses, s)
}

// IsActive reports whether work on the ticket is still pending. Only active
// tickets can become overdue.
func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingForUser:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityNormal   TicketPriority = "normal"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityUrgent   TicketPriority = "urgent"
	TicketPriorityCritical TicketPriority = "critical"
)

// TicketPriorities lists priorities from least to most urgent.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityNormal,
	TicketPriorityHigh,
	TicketPriorityUrgent,
	TicketPriorityCritical,
}

// IsValid reports enum membership.
func (p TicketPriority) IsValid() bool {
	return slices.Contains(TicketPriorities, p)
}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p TicketPriority) Rank() int {
	return slices.Index(TicketPriorities, p) + 1
}

// TicketCategory classifies what the requester needs help with.
type TicketCategory string

const (
	TicketCategoryTechnicalIssue    TicketCategory = "technical_issue"
	TicketCategoryAccountProblem    TicketCategory = "account_problem"
	TicketCategoryAdoptionInquiry   TicketCategory = "adoption_inquiry"
	TicketCategoryPaymentIssue      TicketCategory = "payment_issue"
	TicketCategoryFeatureRequest    TicketCategory = "feature_request"
	TicketCategoryReportBug         TicketCategory = "report_bug"
	TicketCategoryGeneralQuestion   TicketCategory = "general_question"
	TicketCategoryComplianceConcern TicketCategory = "compliance_concern"
	TicketCategoryDataRequest       TicketCategory = "data_request"
	TicketCategoryOther             TicketCategory = "other"
)

// TicketCategories lists every category in declaration order.
var TicketCategories = []TicketCategory{
	TicketCategoryTechnicalIssue,
	TicketCategoryAccountProblem,
	TicketCategoryAdoptionInquiry,
	TicketCategoryPaymentIssue,
	TicketCategoryFeatureRequest,
	TicketCategoryReportBug,
	TicketCategoryGeneralQuestion,
	TicketCategoryComplianceConcern,
	TicketCategoryDataRequest,
	TicketCategoryOther,
}

// IsValid reports enum membership.
func (c TicketCategory) IsValid() bool {
	return slices.Contains(TicketCategories, c)
}

// Attachment is file metadata referenced by a ticket or a response.
type Attachment struct {
	Filename   string     `json:"filename"`
	URL        string     `json:"url"`
	Size       int64      `json:"fileSize"`
	MimeType   string     `json:"mimeType"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// Response is one entry of a ticket thread.
type Response struct {
	ResponseID    string       `json:"responseId"`
	ResponderID   string       `json:"responderId"`
	ResponderType ActorType    `json:"responderType"`
	Content       string       `json:"content"`
	Attachments   []Attachment `json:"attachments"`
	IsInternal    bool         `json:"isInternal"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Milestones holds the derived timestamps each stamped once by the
// transition that owns it. Only reopen clears ResolvedAt and ClosedAt.
type Milestones struct {
	FirstResponseAt *time.Time `json:"firstResponseAt"`
	LastResponseAt  *time.Time `json:"lastResponseAt"`
	ResolvedAt      *time.Time `json:"resolvedAt"`
	ClosedAt        *time.Time `json:"closedAt"`
	EscalatedAt     *time.Time `json:"escalatedAt"`
}

// StampOnce sets *field to at unless it is already set. It reports whether
// the field changed.
func StampOnce(field **time.Time, at time.Time) bool {
	if *field != nil {
		return false
	}
	t := at
	*field = &t
	return true
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	TicketID   string         `json:"ticketId"`
	Category   TicketCategory `json:"category"`
	Priority   TicketPriority `json:"priority"`
	Status     TicketStatus   `json:"status"`
	UserID     *string        `json:"userId"`
	UserEmail  string         `json:"userEmail"`
	UserName   *string        `json:"userName"`
	AssignedTo *string        `json:"assignedTo"`

	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	Attachments []Attachment   `json:"attachments"`
	Metadata    map[string]any `json:"metadata"`
	Responses   []Response     `json:"responses"`

	Milestones

	DueDate                 *time.Time `json:"dueDate"`
	EstimatedResolutionTime *int       `json:"estimatedResolutionTime"`
	ActualResolutionTime    *int       `json:"actualResolutionTime"`

	EscalatedTo      *string `json:"escalatedTo"`
	EscalationReason *string `json:"escalationReason"`

	SatisfactionRating   *int    `json:"satisfactionRating"`
	SatisfactionFeedback *string `json:"satisfactionFeedback"`
	InternalNotes        *string `json:"internalNotes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAssigned reports whether an assignee is set.
func (t *Ticket) IsAssigned() bool {
	return t.AssignedTo != nil && *t.AssignedTo != ""
}

// Clone returns a deep copy so callers can mutate without aliasing t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.UserID = clonePtr(t.UserID)
	c.UserName = clonePtr(t.UserName)
	c.AssignedTo = clonePtr(t.AssignedTo)
	c.Tags = slices.Clone(t.Tags)
	c.Attachments = cloneAttachments(t.Attachments)
	c.Metadata = cloneMetadata(t.Metadata)
	if t.Responses != nil {
		c.Responses = make([]Response, len(t.Responses))
		for i, r := range t.Responses {
			r.Attachments = cloneAttachments(r.Attachments)
			c.Responses[i] = r
		}
	}
	c.FirstResponseAt = clonePtr(t.FirstResponseAt)
	c.LastResponseAt = clonePtr(t.LastResponseAt)
	c.ResolvedAt = clonePtr(t.ResolvedAt)
	c.ClosedAt = clonePtr(t.ClosedAt)
	c.EscalatedAt = clonePtr(t.EscalatedAt)
	c.DueDate = clonePtr(t.DueDate)
	c.EstimatedResolutionTime = clonePtr(t.EstimatedResolutionTime)
	c.ActualResolutionTime = clonePtr(t.ActualResolutionTime)
	c.EscalatedTo = clonePtr(t.EscalatedTo)
	c.EscalationReason = clonePtr(t.EscalationReason)
	c.SatisfactionRating = clonePtr(t.SatisfactionRating)
	c.SatisfactionFeedback = clonePtr(t.SatisfactionFeedback)
	c.InternalNotes = clonePtr(t.InternalNotes)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAttachments(in []Attachment) []Attachment {
	if in == nil {
		return nil
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		a.UploadedAt = clonePtr(a.UploadedAt)
		out[i] = a
	}
	return out
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
