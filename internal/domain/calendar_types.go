package domain

import "time"

// WorkingHoursConfig is loaded once per scheduling call and cached for the
// call's lifetime. Hours are local-wall-clock in the configured timezone.
type WorkingHoursConfig struct {
	WorkStartHour  int
	WorkEndHour    int
	WorkEndMinute  int
	Timezone       string

	// BusyPeriodActive, when true, overrides the start/end above with the
	// busy-window fields for the duration the override applies.
	BusyPeriodActive bool
	BusyStartHour    int
	BusyEndHour      int
	BusyEndMinute    int
}

// DailyWorkingMinutes returns (endH-startH)*60 + endMin, honoring the busy
// period override when active.
func (c WorkingHoursConfig) DailyWorkingMinutes() int {
	startH, endH, endM := c.effectiveWindow()
	return (endH-startH)*60 + endM
}

func (c WorkingHoursConfig) effectiveWindow() (startH, endH, endM int) {
	if c.BusyPeriodActive {
		return c.BusyStartHour, c.BusyEndHour, c.BusyEndMinute
	}
	return c.WorkStartHour, c.WorkEndHour, c.WorkEndMinute
}

// DefaultWorkingHoursConfig matches the §6.3 documented defaults used when
// configuration cannot be read (ErrConfigUnavailable is non-fatal).
func DefaultWorkingHoursConfig() WorkingHoursConfig {
	return WorkingHoursConfig{
		WorkStartHour: 8,
		WorkEndHour:   16,
		WorkEndMinute: 30,
		Timezone:      "Africa/Johannesburg",
	}
}

// ShiftSchedule configures whether a given day-of-week is worked at all.
// DayOfWeek follows time.Weekday: 0=Sunday .. 6=Saturday.
type ShiftSchedule struct {
	DayOfWeek    time.Weekday
	ShiftStart   time.Time // wall-clock time-of-day component only
	ShiftEnd     time.Time
	IsWorkingDay bool
	IsActive     bool
}

// PublicHoliday marks a single non-working calendar date, overriding
// ShiftSchedule for that date when IsActive.
type PublicHoliday struct {
	Date     time.Time
	IsActive bool
}
