package orchestrator

import (
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// Calendar is the subset of *calendar.Calendar the orchestrator package
// depends on for working-day arithmetic.
type Calendar interface {
	IsWorkingDay(t time.Time) bool
	NextWorkingDay(from time.Time) (time.Time, error)
	WorkingDayStart(date time.Time) time.Time
	WorkingDayEnd(date time.Time) time.Time
	FitsInWorkingDay(t time.Time, durationMinutes int) bool
	Location() *time.Location
}

// Splitter is the subset of *splitter.Splitter the dry-run estimator
// depends on.
type Splitter interface {
	NeedsSplitting(start time.Time, d int) bool
	Split(start time.Time, d int) ([]domain.TimeSlot, error)
}
