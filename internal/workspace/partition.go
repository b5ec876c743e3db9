package workspace

import (
	"time"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/google/uuid"
)

// Partition returns one plan day per calendar day of [start, end], numbered
// from 1. Either bound missing, or end before start, yields no days.
// Dates are compared on the UTC calendar.
func Partition(start, end *time.Time) []store.PlanDay {
	if start == nil || end == nil {
		return []store.PlanDay{}
	}
	first := utcDay(*start)
	last := utcDay(*end)
	if last.Before(first) {
		return []store.PlanDay{}
	}

	days := make([]store.PlanDay, 0, int(last.Sub(first).Hours()/24)+1)
	for day, n := first, 1; !day.After(last); day, n = day.AddDate(0, 0, 1), n+1 {
		date := day
		days = append(days, store.PlanDay{
			ID:       uuid.NewString(),
			DayNo:    n,
			PlanDate: &date,
		})
	}
	return days
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
