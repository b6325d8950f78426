// Package calendar is the working-day and working-hours oracle described in
// spec.md §4.1. It is backed by a shift-schedule table and a holiday table,
// both loaded once at construction and treated as read-only afterward.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
)

// Store is the read side of the persistence adapter that Calendar depends
// on: shift schedules, public holidays, and the working-hours config.
type Store interface {
	LoadWorkingHoursConfig(ctx context.Context) (domain.WorkingHoursConfig, error)
	LoadShiftSchedules(ctx context.Context) ([]domain.ShiftSchedule, error)
	LoadPublicHolidays(ctx context.Context) ([]domain.PublicHoliday, error)
}

// Calendar answers working-day and working-window questions in a single
// canonical timezone. It is created at call entry and discarded at exit, as
// required by spec.md §5.
type Calendar struct {
	config    domain.WorkingHoursConfig
	location  *time.Location
	shifts    map[time.Weekday]domain.ShiftSchedule
	holidays  map[string]bool // "2006-01-02" -> active
	log       logx.Logger
}

// Load constructs a Calendar from the Store, falling back to
// DefaultWorkingHoursConfig (and UTC+2 Johannesburg) on a read failure, per
// the ErrConfigUnavailable recovery policy in spec.md §7.
func Load(ctx context.Context, store Store, log logx.Logger) (*Calendar, error) {
	cfg, err := store.LoadWorkingHoursConfig(ctx)
	if err != nil {
		log.Warn("working hours config unavailable, using defaults", "error", err)
		cfg = domain.DefaultWorkingHoursConfig()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("failed to load timezone, falling back to UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	shiftRows, err := store.LoadShiftSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading shift schedules: %v", domain.ErrConfigUnavailable, err)
	}
	shifts := make(map[time.Weekday]domain.ShiftSchedule, len(shiftRows))
	for _, s := range shiftRows {
		shifts[s.DayOfWeek] = s
	}

	holidayRows, err := store.LoadPublicHolidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading public holidays: %v", domain.ErrConfigUnavailable, err)
	}
	holidays := make(map[string]bool, len(holidayRows))
	for _, h := range holidayRows {
		if h.IsActive {
			holidays[h.Date.In(loc).Format("2006-01-02")] = true
		}
	}

	return &Calendar{
		config:   cfg,
		location: loc,
		shifts:   shifts,
		holidays: holidays,
		log:      log,
	}, nil
}

// Location returns the calendar's canonical timezone.
func (c *Calendar) Location() *time.Location { return c.location }

// IsWorkingDay reports whether date is a working day: not a weekend, not an
// active holiday, and not marked non-working by the day-of-week's shift
// schedule.
func (c *Calendar) IsWorkingDay(date time.Time) bool {
	date = date.In(c.location)
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	if c.holidays[date.Format("2006-01-02")] {
		return false
	}
	if shift, ok := c.shifts[date.Weekday()]; ok {
		if !shift.IsActive || !shift.IsWorkingDay {
			return false
		}
	}
	return true
}

// NextWorkingDay returns the smallest date strictly after from where
// IsWorkingDay holds. Returns ErrNoWorkingDayFound if none is found within
// 7 consecutive days, which indicates a configuration error.
func (c *Calendar) NextWorkingDay(from time.Time) (time.Time, error) {
	cursor := from.In(c.location)
	for i := 0; i < 7; i++ {
		cursor = cursor.AddDate(0, 0, 1)
		if c.IsWorkingDay(cursor) {
			return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, c.location), nil
		}
	}
	return time.Time{}, domain.ErrNoWorkingDayFound
}

// WorkingDayStart returns date's working window start in the configured
// timezone.
func (c *Calendar) WorkingDayStart(date time.Time) time.Time {
	date = date.In(c.location)
	startH, _, _ := c.window()
	return time.Date(date.Year(), date.Month(), date.Day(), startH, 0, 0, 0, c.location)
}

// WorkingDayEnd returns date's working window end in the configured
// timezone.
func (c *Calendar) WorkingDayEnd(date time.Time) time.Time {
	date = date.In(c.location)
	_, endH, endM := c.window()
	return time.Date(date.Year(), date.Month(), date.Day(), endH, endM, 0, 0, c.location)
}

func (c *Calendar) window() (startH, endH, endM int) {
	if c.config.BusyPeriodActive {
		return c.config.BusyStartHour, c.config.BusyEndHour, c.config.BusyEndMinute
	}
	return c.config.WorkStartHour, c.config.WorkEndHour, c.config.WorkEndMinute
}

// RemainingWorkingMinutes returns the number of whole minutes left in t's
// working window: 0 if t falls on a non-working day or after that day's
// end.
func (c *Calendar) RemainingWorkingMinutes(t time.Time) int {
	t = t.In(c.location)
	if !c.IsWorkingDay(t) {
		return 0
	}
	end := c.WorkingDayEnd(t)
	start := c.WorkingDayStart(t)
	effective := t
	if effective.Before(start) {
		effective = start
	}
	if !effective.Before(end) {
		return 0
	}
	return int(end.Sub(effective) / time.Minute)
}

// FitsInWorkingDay reports whether a duration of d minutes starting at t
// fits within the remainder of t's working day.
func (c *Calendar) FitsInWorkingDay(t time.Time, d int) bool {
	return c.RemainingWorkingMinutes(t) >= d
}

// DailyWorkingMinutes returns the configured working-day length in minutes,
// honoring a busy-period override.
func (c *Calendar) DailyWorkingMinutes() int {
	return c.config.DailyWorkingMinutes()
}
