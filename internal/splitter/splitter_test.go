package splitter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printshop/scheduler/internal/calendar"
	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/splitter"
)

type fakeStore struct{}

func (fakeStore) LoadWorkingHoursConfig(ctx context.Context) (domain.WorkingHoursConfig, error) {
	return domain.WorkingHoursConfig{WorkStartHour: 8, WorkEndHour: 16, WorkEndMinute: 30, Timezone: "Africa/Johannesburg"}, nil
}
func (fakeStore) LoadShiftSchedules(ctx context.Context) ([]domain.ShiftSchedule, error) {
	return nil, nil
}
func (fakeStore) LoadPublicHolidays(ctx context.Context) ([]domain.PublicHoliday, error) {
	return nil, nil
}

func newCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.Load(context.Background(), fakeStore{}, logx.Noop())
	require.NoError(t, err)
	return cal
}

// S1 — single stage fits today.
func TestSplit_FitsInDay(t *testing.T) {
	cal := newCalendar(t)
	loc := cal.Location()
	sp := splitter.New(cal)

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, loc) // Monday
	require.False(t, sp.NeedsSplitting(start, 60))

	slots, err := sp.Split(start, 60)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.False(t, slots[0].IsSplit)
	require.Equal(t, 60, slots[0].DurationMinutes)
	require.Equal(t, time.Date(2026, 8, 3, 10, 0, 0, 0, loc), slots[0].End)
}

// S2 — single stage overflows into the next working day.
func TestSplit_OverflowsIntoNextDay(t *testing.T) {
	cal := newCalendar(t)
	loc := cal.Location()
	sp := splitter.New(cal)

	start := time.Date(2026, 8, 3, 15, 0, 0, 0, loc) // Monday 15:00
	require.True(t, sp.NeedsSplitting(start, 180))

	slots, err := sp.Split(start, 180)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	require.Equal(t, 90, slots[0].DurationMinutes)
	require.True(t, slots[0].IsSplit)
	require.Equal(t, time.Date(2026, 8, 3, 16, 30, 0, 0, loc), slots[0].End)

	require.Equal(t, 90, slots[1].DurationMinutes)
	require.False(t, slots[1].IsSplit)
	require.Equal(t, time.Date(2026, 8, 4, 8, 0, 0, 0, loc), slots[1].Start)
	require.Equal(t, time.Date(2026, 8, 4, 9, 30, 0, 0, loc), slots[1].End)

	sum := 0
	for _, s := range slots {
		sum += s.DurationMinutes
		require.Equal(t, len(slots), *s.TotalParts)
	}
	require.Equal(t, 180, sum)
}

// S3 — weekend jump: Friday 16:00 + 120m.
func TestSplit_WeekendJump(t *testing.T) {
	cal := newCalendar(t)
	loc := cal.Location()
	sp := splitter.New(cal)

	start := time.Date(2026, 7, 31, 16, 0, 0, 0, loc) // Friday
	slots, err := sp.Split(start, 120)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	require.Equal(t, 30, slots[0].DurationMinutes)
	require.Equal(t, time.Date(2026, 7, 31, 16, 30, 0, 0, loc), slots[0].End)

	require.Equal(t, time.Monday, slots[1].Start.Weekday())
	require.Equal(t, 90, slots[1].DurationMinutes)
	require.Equal(t, time.Date(2026, 8, 3, 8, 0, 0, 0, loc), slots[1].Start)
	require.Equal(t, time.Date(2026, 8, 3, 9, 30, 0, 0, loc), slots[1].End)
}

func TestSplit_RejectsNonPositiveDuration(t *testing.T) {
	cal := newCalendar(t)
	sp := splitter.New(cal)
	_, err := sp.Split(time.Now(), 0)
	require.Error(t, err)
}
