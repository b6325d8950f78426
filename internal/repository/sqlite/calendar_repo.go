package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// CalendarRepository implements calendar.Store over SQLite.
type CalendarRepository struct {
	db *DB
}

// NewCalendarRepository builds a CalendarRepository.
func NewCalendarRepository(db *DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

func (r *CalendarRepository) LoadWorkingHoursConfig(ctx context.Context) (domain.WorkingHoursConfig, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT work_start_hour, work_end_hour, work_end_minute, timezone,
		       busy_period_active, busy_start_hour, busy_end_hour, busy_end_minute
		FROM working_hours_config WHERE id = 1`)

	var cfg domain.WorkingHoursConfig
	var busyActive int
	var busyStart, busyEnd, busyEndMin sql.NullInt64
	err := row.Scan(&cfg.WorkStartHour, &cfg.WorkEndHour, &cfg.WorkEndMinute, &cfg.Timezone,
		&busyActive, &busyStart, &busyEnd, &busyEndMin)
	if err == sql.ErrNoRows {
		return domain.DefaultWorkingHoursConfig(), nil
	}
	if err != nil {
		return domain.WorkingHoursConfig{}, fmt.Errorf("loading working hours config: %w", err)
	}

	cfg.BusyPeriodActive = busyActive != 0
	cfg.BusyStartHour = int(busyStart.Int64)
	cfg.BusyEndHour = int(busyEnd.Int64)
	cfg.BusyEndMinute = int(busyEndMin.Int64)
	return cfg, nil
}

func (r *CalendarRepository) LoadShiftSchedules(ctx context.Context) ([]domain.ShiftSchedule, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT day_of_week, shift_start, shift_end, is_working_day, is_active FROM shift_schedules`)
	if err != nil {
		return nil, fmt.Errorf("loading shift schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.ShiftSchedule
	for rows.Next() {
		var dow int
		var startStr, endStr string
		var isWorking, isActive int
		if err := rows.Scan(&dow, &startStr, &endStr, &isWorking, &isActive); err != nil {
			return nil, fmt.Errorf("scanning shift schedule row: %w", err)
		}
		start, _ := time.Parse("15:04", startStr)
		end, _ := time.Parse("15:04", endStr)
		out = append(out, domain.ShiftSchedule{
			DayOfWeek:    time.Weekday(dow),
			ShiftStart:   start,
			ShiftEnd:     end,
			IsWorkingDay: isWorking != 0,
			IsActive:     isActive != 0,
		})
	}
	return out, rows.Err()
}

func (r *CalendarRepository) LoadPublicHolidays(ctx context.Context) ([]domain.PublicHoliday, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `SELECT date, is_active FROM public_holidays`)
	if err != nil {
		return nil, fmt.Errorf("loading public holidays: %w", err)
	}
	defer rows.Close()

	var out []domain.PublicHoliday
	for rows.Next() {
		var dateStr string
		var active int
		if err := rows.Scan(&dateStr, &active); err != nil {
			return nil, fmt.Errorf("scanning public holiday row: %w", err)
		}
		d, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing holiday date %q: %w", dateStr, err)
		}
		out = append(out, domain.PublicHoliday{Date: d, IsActive: active != 0})
	}
	return out, rows.Err()
}
