package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestDuePolicyDueDate(t *testing.T) {
	policy, err := NewDuePolicy(PolicyConfig{WorkStart: 9 * time.Hour, WorkEnd: 17 * time.Hour})
	require.NoError(t, err)

	tests := []struct {
		name     string
		created  time.Time
		priority domain.TicketPriority
		want     time.Time
	}{
		{
			name:     "critical within one day",
			created:  time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), // Monday
			priority: domain.TicketPriorityCritical,
			want:     time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC),
		},
		{
			name:     "critical crossing the weekend",
			created:  time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC), // Friday
			priority: domain.TicketPriorityCritical,
			want:     time.Date(2025, 1, 13, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "urgent spans the next morning",
			created:  time.Date(2025, 1, 7, 13, 0, 0, 0, time.UTC), // Tuesday
			priority: domain.TicketPriorityUrgent,
			want:     time.Date(2025, 1, 8, 13, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(policy.DueDate(tt.created, tt.priority)), "got %s", policy.DueDate(tt.created, tt.priority))
		})
	}
}

func TestDuePolicyHolidays(t *testing.T) {
	policy, err := NewDuePolicy(PolicyConfig{
		WorkStart: 9 * time.Hour,
		WorkEnd:   17 * time.Hour,
		Holidays:  []string{"12-25"},
	})
	require.NoError(t, err)

	created := time.Date(2025, 12, 24, 15, 0, 0, 0, time.UTC) // Wednesday
	due := policy.DueDate(created, domain.TicketPriorityCritical)
	assert.Equal(t, 26, due.Day())
	assert.Equal(t, 11, due.Hour())
}

func TestDuePolicyConfigErrors(t *testing.T) {
	_, err := NewDuePolicy(PolicyConfig{WorkStart: 17 * time.Hour, WorkEnd: 9 * time.Hour})
	assert.Error(t, err)

	_, err = NewDuePolicy(PolicyConfig{Holidays: []string{"25/12"}})
	assert.Error(t, err)

	_, err = NewDuePolicy(PolicyConfig{Holidays: []string{"13-01"}})
	assert.Error(t, err)
}

func TestDuePolicyTargets(t *testing.T) {
	policy, err := NewDuePolicy(PolicyConfig{
		Targets: map[domain.TicketPriority]time.Duration{domain.TicketPriorityHigh: 12 * time.Hour},
	})
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, policy.Target(domain.TicketPriorityHigh))
	assert.Equal(t, 4*time.Hour, policy.Target(domain.TicketPriorityCritical))
	assert.Equal(t, 96, policy.EstimatedHours(domain.TicketPriorityLow))
	assert.Equal(t, 48*time.Hour, policy.Target(domain.TicketPriority("unknown")))
}

func TestDuePolicyWorkingHours(t *testing.T) {
	policy, err := NewDuePolicy(PolicyConfig{WorkStart: 9 * time.Hour, WorkEnd: 17 * time.Hour})
	require.NoError(t, err)

	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC) // Friday
	end := time.Date(2025, 1, 13, 17, 0, 0, 0, time.UTC)  // Monday
	assert.InDelta(t, 16.0, policy.WorkingHours(start, end), 0.01)
	assert.Equal(t, 0.0, policy.WorkingHours(end, start))
}
