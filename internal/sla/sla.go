// Package sla computes service-level timings for tickets.
package sla

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketAge returns the hours elapsed since createdAt. It never goes negative.
func TicketAge(createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// ResolutionTime returns the hours between createdAt and resolvedAt. The
// second result is false when resolvedAt is absent.
func ResolutionTime(createdAt time.Time, resolvedAt *time.Time) (float64, bool) {
	if resolvedAt == nil {
		return 0, false
	}
	return TicketAge(createdAt, *resolvedAt), true
}

// IsOverdue reports whether an active ticket has passed its due date.
func IsOverdue(dueDate *time.Time, status domain.TicketStatus, now time.Time) bool {
	if dueDate == nil || !status.IsActive() {
		return false
	}
	return now.After(*dueDate)
}

// TicketOverdue applies IsOverdue to a ticket.
func TicketOverdue(t *domain.Ticket, now time.Time) bool {
	return IsOverdue(t.DueDate, t.Status, now)
}

// ActualResolutionHours rounds a resolution time to whole hours, with a floor
// of one so the stored value stays positive.
func ActualResolutionHours(hours float64) int {
	rounded := int(math.Round(hours))
	if rounded < 1 {
		return 1
	}
	return rounded
}

// FormatDuration renders hours for humans, e.g. "3 hours" or "2 days 5 hours".
func FormatDuration(hours float64) string {
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		rounded := int(math.Round(hours))
		if rounded < 24 {
			return plural(rounded, "hour")
		}
	}
	days := int(math.Floor(hours / 24))
	remainder := int(math.Round(hours - float64(days)*24))
	if remainder >= 24 {
		days++
		remainder -= 24
	}
	if remainder == 0 {
		return plural(days, "day")
	}
	return plural(days, "day") + " " + plural(remainder, "hour")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
