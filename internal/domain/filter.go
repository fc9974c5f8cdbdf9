package domain

import (
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// SortField enumerates sortable ticket columns.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByPriority  SortField = "priority"
	SortByDueDate   SortField = "dueDate"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TicketFilter captures list query parameters.
type TicketFilter struct {
	Status       *TicketStatus
	Priority     *TicketPriority
	Category     *TicketCategory
	AssignedTo   *string
	UserID       *string
	Search       *string
	IsOverdue    *bool
	HasResponses *bool
	Page         int
	Limit        int
	SortBy       SortField
	SortOrder    SortOrder
}

// Validate applies defaults and bounds, returning a normalized copy.
func (f TicketFilter) Validate() (TicketFilter, error) {
	out := f
	if out.Page == 0 {
		out.Page = 1
	}
	if out.Page < 1 {
		return out, apperrors.NewFieldError("page", "must be at least 1")
	}
	if out.Limit == 0 {
		out.Limit = DefaultPageSize
	}
	if out.Limit < 1 || out.Limit > MaxPageSize {
		return out, apperrors.NewFieldError("limit", "must be between 1 and 100")
	}
	switch out.SortBy {
	case "":
		out.SortBy = SortByCreatedAt
	case SortByCreatedAt, SortByUpdatedAt, SortByPriority, SortByDueDate:
	default:
		return out, apperrors.NewFieldError("sortBy", "must be one of createdAt, updatedAt, priority, dueDate")
	}
	switch out.SortOrder {
	case "":
		out.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return out, apperrors.NewFieldError("sortOrder", "must be asc or desc")
	}
	if out.Status != nil && !out.Status.IsValid() {
		return out, apperrors.NewFieldError("status", "must be a known ticket status")
	}
	if out.Priority != nil && !out.Priority.IsValid() {
		return out, apperrors.NewFieldError("priority", "must be a known ticket priority")
	}
	if out.Category != nil && !out.Category.IsValid() {
		return out, apperrors.NewFieldError("category", "must be a known ticket category")
	}
	out.AssignedTo = optionalText(out.AssignedTo)
	out.UserID = optionalText(out.UserID)
	out.Search = optionalText(out.Search)
	return out, nil
}

// Offset returns the number of rows to skip for the current page.
func (f TicketFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ParseTicketFilter reads a filter from query parameters and validates it.
func ParseTicketFilter(q url.Values) (TicketFilter, error) {
	var f TicketFilter
	if v := q.Get("status"); v != "" {
		status, err := ParseStatus("status", v)
		if err != nil {
			return f, err
		}
		f.Status = &status
	}
	if v := q.Get("priority"); v != "" {
		priority, err := ParsePriority("priority", v)
		if err != nil {
			return f, err
		}
		f.Priority = &priority
	}
	if v := q.Get("category"); v != "" {
		category, err := ParseCategory("category", v)
		if err != nil {
			return f, err
		}
		f.Category = &category
	}
	if v := q.Get("assignedTo"); v != "" {
		f.AssignedTo = &v
	}
	if v := q.Get("userId"); v != "" {
		f.UserID = &v
	}
	if v := q.Get("search"); v != "" {
		f.Search = &v
	}
	var err error
	if f.IsOverdue, err = parseBoolParam(q, "isOverdue"); err != nil {
		return f, err
	}
	if f.HasResponses, err = parseBoolParam(q, "hasResponses"); err != nil {
		return f, err
	}
	if f.Page, err = parseIntParam(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam(q, "limit"); err != nil {
		return f, err
	}
	if v := q.Get("page"); v != "" && f.Page < 1 {
		return f, apperrors.NewFieldError("page", "must be at least 1")
	}
	if v := q.Get("limit"); v != "" && f.Limit < 1 {
		return f, apperrors.NewFieldError("limit", "must be between 1 and 100")
	}
	f.SortBy = SortField(q.Get("sortBy"))
	f.SortOrder = SortOrder(strings.ToLower(q.Get("sortOrder")))
	return f.Validate()
}

// Values encodes the filter as query parameters, omitting absent values.
func (f TicketFilter) Values() url.Values {
	q := url.Values{}
	setString := func(key string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			q.Set(key, *v)
		}
	}
	if f.Status != nil {
		q.Set("status", string(*f.Status))
	}
	if f.Priority != nil {
		q.Set("priority", string(*f.Priority))
	}
	if f.Category != nil {
		q.Set("category", string(*f.Category))
	}
	setString("assignedTo", f.AssignedTo)
	setString("userId", f.UserID)
	setString("search", f.Search)
	if f.IsOverdue != nil {
		q.Set("isOverdue", strconv.FormatBool(*f.IsOverdue))
	}
	if f.HasResponses != nil {
		q.Set("hasResponses", strconv.FormatBool(*f.HasResponses))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.SortBy != "" {
		q.Set("sortBy", string(f.SortBy))
	}
	if f.SortOrder != "" {
		q.Set("sortOrder", string(f.SortOrder))
	}
	return q
}

func parseBoolParam(q url.Values, key string) (*bool, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperrors.NewFieldError(key, "must be true or false")
	}
	return &b, nil
}

func parseIntParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.NewFieldError(key, "must be an integer")
	}
	return n, nil
}

// Pagination describes the page returned by a list query.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// NewPagination derives page counts for a validated filter.
func NewPagination(f TicketFilter, total int) Pagination {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return Pagination{
		CurrentPage:  f.Page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: f.Limit,
	}
}

// TicketPage is one page of a list query.
type TicketPage struct {
	Data       []Ticket   `json:"data"`
	Pagination Pagination `json:"pagination"`
}
