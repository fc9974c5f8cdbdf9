// Package stats aggregates dashboard metrics over a ticket collection.
package stats

import (
	"cmp"
	"slices"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/sla"
)

// CategoryCount is one row of the category breakdown.
type CategoryCount struct {
	Category domain.TicketCategory `json:"category"`
	Count    int                   `json:"count"`
}

// StaffActivity summarizes one assignee's workload.
type StaffActivity struct {
	StaffID       string `json:"staffId"`
	AssignedCount int    `json:"assignedCount"`
	ResolvedCount int    `json:"resolvedCount"`
}

// Stats is the dashboard snapshot. Averages are nil when there is no sample.
type Stats struct {
	Total          int `json:"total"`
	Open           int `json:"open"`
	InProgress     int `json:"inProgress"`
	WaitingForUser int `json:"waitingForUser"`
	Resolved       int `json:"resolved"`
	Closed         int `json:"closed"`
	Escalated      int `json:"escalated"`
	Overdue        int `json:"overdue"`
	Unassigned     int `json:"unassigned"`

	AverageResponseTime   *float64 `json:"averageResponseTime"`
	AverageResolutionTime *float64 `json:"averageResolutionTime"`
	SatisfactionAverage   *float64 `json:"satisfactionAverage"`

	TicketsToday     int `json:"ticketsToday"`
	TicketsThisWeek  int `json:"ticketsThisWeek"`
	TicketsThisMonth int `json:"ticketsThisMonth"`

	ByPriority    map[domain.TicketPriority]int `json:"byPriority"`
	ByCategory    []CategoryCount               `json:"byCategory"`
	StaffActivity []StaffActivity               `json:"staffActivity"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// ByStatus returns the count for a status.
func (s Stats) ByStatus(status domain.TicketStatus) int {
	switch status {
	case domain.TicketStatusOpen:
		return s.Open
	case domain.TicketStatusInProgress:
		return s.InProgress
	case domain.TicketStatusWaitingForUser:
		return s.WaitingForUser
	case domain.TicketStatusResolved:
		return s.Resolved
	case domain.TicketStatusClosed:
		return s.Closed
	case domain.TicketStatusEscalated:
		return s.Escalated
	}
	return 0
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

// Window holds the half-open calendar periods used for "created" counts.
type Window struct {
	DayStart, DayEnd     time.Time
	WeekStart, WeekEnd   time.Time
	MonthStart, MonthEnd time.Time
}

// WindowAt computes the day, ISO week (Monday start) and month containing
// now in loc.
func WindowAt(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7
	week := day.AddDate(0, 0, -offset)
	month := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Window{
		DayStart:   day,
		DayEnd:     day.AddDate(0, 0, 1),
		WeekStart:  week,
		WeekEnd:    week.AddDate(0, 0, 7),
		MonthStart: month,
		MonthEnd:   month.AddDate(0, 1, 0),
	}
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// Aggregate computes Stats for tickets at instant now. Calendar periods are
// evaluated in loc. It does not modify the tickets.
func Aggregate(tickets []domain.Ticket, now time.Time, loc *time.Location) Stats {
	s := Stats{
		ByPriority:    make(map[domain.TicketPriority]int, len(domain.TicketPriorities)),
		ByCategory:    []CategoryCount{},
		StaffActivity: []StaffActivity{},
		GeneratedAt:   now,
	}
	for _, p := range domain.TicketPriorities {
		s.ByPriority[p] = 0
	}
	w := WindowAt(now, loc)
	categories := map[domain.TicketCategory]int{}
	staff := map[string]*StaffActivity{}
	var response, resolution, satisfaction mean

	for i := range tickets {
		t := &tickets[i]
		s.Total++
		switch t.Status {
		case domain.TicketStatusOpen:
			s.Open++
		case domain.TicketStatusInProgress:
			s.InProgress++
		case domain.TicketStatusWaitingForUser:
			s.WaitingForUser++
		case domain.TicketStatusResolved:
			s.Resolved++
		case domain.TicketStatusClosed:
			s.Closed++
		case domain.TicketStatusEscalated:
			s.Escalated++
		}
		if t.Priority.IsValid() {
			s.ByPriority[t.Priority]++
		}
		categories[t.Category]++

		if sla.TicketOverdue(t, now) {
			s.Overdue++
		}
		if !t.IsAssigned() && t.Status != domain.TicketStatusClosed {
			s.Unassigned++
		}

		if within(t.CreatedAt, w.DayStart, w.DayEnd) {
			s.TicketsToday++
		}
		if within(t.CreatedAt, w.WeekStart, w.WeekEnd) {
			s.TicketsThisWeek++
		}
		if within(t.CreatedAt, w.MonthStart, w.MonthEnd) {
			s.TicketsThisMonth++
		}

		if hours, ok := sla.ResolutionTime(t.CreatedAt, t.FirstResponseAt); ok {
			response.add(hours)
		}
		if hours, ok := sla.ResolutionTime(t.CreatedAt, t.ResolvedAt); ok {
			resolution.add(hours)
		}
		if t.SatisfactionRating != nil {
			satisfaction.add(float64(*t.SatisfactionRating))
		}

		if t.IsAssigned() {
			a, ok := staff[*t.AssignedTo]
			if !ok {
				a = &StaffActivity{StaffID: *t.AssignedTo}
				staff[*t.AssignedTo] = a
			}
			a.AssignedCount++
			if t.ResolvedAt != nil {
				a.ResolvedCount++
			}
		}
	}

	s.AverageResponseTime = response.value()
	s.AverageResolutionTime = resolution.value()
	s.SatisfactionAverage = satisfaction.value()

	for _, c := range domain.TicketCategories {
		if n := categories[c]; n > 0 {
			s.ByCategory = append(s.ByCategory, CategoryCount{Category: c, Count: n})
		}
	}
	// Stable keeps declaration order among equal counts.
	slices.SortStableFunc(s.ByCategory, func(a, b CategoryCount) int {
		return cmp.Compare(b.Count, a.Count)
	})

	for _, a := range staff {
		s.StaffActivity = append(s.StaffActivity, *a)
	}
	slices.SortFunc(s.StaffActivity, func(a, b StaffActivity) int {
		if c := cmp.Compare(b.AssignedCount, a.AssignedCount); c != 0 {
			return c
		}
		return cmp.Compare(a.StaffID, b.StaffID)
	})
	return s
}
