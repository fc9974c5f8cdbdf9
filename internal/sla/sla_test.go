package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestTicketAge(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.InDelta(t, 5.5, TicketAge(created, created.Add(5*time.Hour+30*time.Minute)), 1e-9)
	assert.Equal(t, 0.0, TicketAge(created, created.Add(-time.Hour)), "age never goes negative")
	assert.Less(t, TicketAge(created, created.Add(time.Hour)), TicketAge(created, created.Add(2*time.Hour)))
}

func TestResolutionTime(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	resolved := created.Add(5 * time.Hour)

	hours, ok := ResolutionTime(created, &resolved)
	assert.True(t, ok)
	assert.Equal(t, 5.0, hours)

	_, ok = ResolutionTime(created, nil)
	assert.False(t, ok)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		due    *time.Time
		status domain.TicketStatus
		want   bool
	}{
		{"past due open", &yesterday, domain.TicketStatusOpen, true},
		{"past due in progress", &yesterday, domain.TicketStatusInProgress, true},
		{"past due waiting", &yesterday, domain.TicketStatusWaitingForUser, true},
		{"past due closed", &yesterday, domain.TicketStatusClosed, false},
		{"past due resolved", &yesterday, domain.TicketStatusResolved, false},
		{"past due escalated", &yesterday, domain.TicketStatusEscalated, false},
		{"future due open", &tomorrow, domain.TicketStatusOpen, false},
		{"due exactly now", &now, domain.TicketStatusOpen, false},
		{"no due date", nil, domain.TicketStatusOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverdue(tt.due, tt.status, now))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "less than 1 hour"},
		{0.99, "less than 1 hour"},
		{1, "1 hour"},
		{1.4, "1 hour"},
		{5.6, "6 hours"},
		{23.4, "23 hours"},
		{23.6, "1 day"},
		{24, "1 day"},
		{25, "1 day 1 hour"},
		{50.2, "2 days 2 hours"},
		{47.7, "2 days"},
		{72, "3 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.hours), "hours=%v", tt.hours)
	}
}

func TestActualResolutionHours(t *testing.T) {
	assert.Equal(t, 1, ActualResolutionHours(0.1))
	assert.Equal(t, 5, ActualResolutionHours(4.6))
	assert.Equal(t, 30, ActualResolutionHours(30.2))
}
