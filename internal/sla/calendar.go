package sla

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/spec-kit/support-desk/internal/domain"
)

// DefaultTargets are resolution targets in working time per priority.
func DefaultTargets() map[domain.TicketPriority]time.Duration {
	return map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityCritical: 4 * time.Hour,
		domain.TicketPriorityUrgent:   8 * time.Hour,
		domain.TicketPriorityHigh:     24 * time.Hour,
		domain.TicketPriorityNormal:   48 * time.Hour,
		domain.TicketPriorityLow:      96 * time.Hour,
	}
}

// PolicyConfig describes the business calendar used for due dates.
type PolicyConfig struct {
	WorkStart time.Duration
	WorkEnd   time.Duration
	// Workdays overrides the Monday to Friday default when non-empty.
	Workdays []time.Weekday
	// Holidays are recurring dates in MM-DD form.
	Holidays []string
	Location *time.Location
	Targets  map[domain.TicketPriority]time.Duration
}

// DuePolicy derives due dates by adding working time to a creation instant.
type DuePolicy struct {
	calendar *cal.BusinessCalendar
	targets  map[domain.TicketPriority]time.Duration
	loc      *time.Location
}

// NewDuePolicy builds a policy on a rickar/cal business calendar.
func NewDuePolicy(cfg PolicyConfig) (*DuePolicy, error) {
	c := cal.NewBusinessCalendar()
	if cfg.WorkEnd > cfg.WorkStart {
		c.SetWorkHours(cfg.WorkStart, cfg.WorkEnd)
	} else if cfg.WorkStart != 0 || cfg.WorkEnd != 0 {
		return nil, fmt.Errorf("work hours end %s must be after start %s", cfg.WorkEnd, cfg.WorkStart)
	}
	if len(cfg.Workdays) > 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			c.SetWorkday(d, false)
		}
		for _, d := range cfg.Workdays {
			c.SetWorkday(d, true)
		}
	}
	for _, raw := range cfg.Holidays {
		holiday, err := parseHoliday(raw)
		if err != nil {
			return nil, err
		}
		c.AddHoliday(holiday)
	}

	targets := DefaultTargets()
	for p, d := range cfg.Targets {
		if d > 0 {
			targets[p] = d
		}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &DuePolicy{calendar: c, targets: targets, loc: loc}, nil
}

// Target returns the working-time budget for a priority.
func (p *DuePolicy) Target(priority domain.TicketPriority) time.Duration {
	if d, ok := p.targets[priority]; ok {
		return d
	}
	return p.targets[domain.TicketPriorityNormal]
}

// DueDate adds the priority target in working time to createdAt.
func (p *DuePolicy) DueDate(createdAt time.Time, priority domain.TicketPriority) time.Time {
	due := p.calendar.AddWorkHours(createdAt.In(p.loc), p.Target(priority))
	return due.UTC()
}

// EstimatedHours returns the target expressed in whole hours.
func (p *DuePolicy) EstimatedHours(priority domain.TicketPriority) int {
	return int(math.Ceil(p.Target(priority).Hours()))
}

// WorkingHours returns the working time between start and end in hours.
func (p *DuePolicy) WorkingHours(start, end time.Time) float64 {
	if !end.After(start) {
		return 0
	}
	return p.calendar.WorkHoursInRange(start.In(p.loc), end.In(p.loc)).Hours()
}

func parseHoliday(raw string) (*cal.Holiday, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("holiday %q: expected MM-DD", raw)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return nil, fmt.Errorf("holiday %q: invalid month", raw)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return nil, fmt.Errorf("holiday %q: invalid day", raw)
	}
	return &cal.Holiday{
		Name:  raw,
		Type:  cal.ObservancePublic,
		Month: time.Month(month),
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	}, nil
}
