// Package splitter breaks a (startTime, totalMinutes) duration into an
// ordered sequence of domain.TimeSlot parts, each entirely inside one
// working day, per spec.md §4.3.
package splitter

import (
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// Calendar is the subset of *calendar.Calendar the splitter depends on.
type Calendar interface {
	IsWorkingDay(t time.Time) bool
	NextWorkingDay(from time.Time) (time.Time, error)
	WorkingDayStart(date time.Time) time.Time
	RemainingWorkingMinutes(t time.Time) int
	FitsInWorkingDay(t time.Time, d int) bool
}

// Splitter converts durations into working-day-bounded slot sequences.
type Splitter struct {
	cal Calendar
}

// New builds a Splitter against the given calendar.
func New(cal Calendar) *Splitter {
	return &Splitter{cal: cal}
}

// NeedsSplitting reports whether duration d starting at start does not fit
// in the remainder of start's working day.
func (s *Splitter) NeedsSplitting(start time.Time, d int) bool {
	return !s.cal.FitsInWorkingDay(start, d)
}

// Split implements the algorithm in spec.md §4.3: it walks forward from
// start, consuming d minutes across as many working days as needed, and
// returns one TimeSlot per day touched. Sum of slot minutes always equals
// d; every slot lies within a single working window; totalSplits is set
// on every returned element.
func (s *Splitter) Split(start time.Time, d int) ([]domain.TimeSlot, error) {
	if d <= 0 {
		return nil, fmt.Errorf("splitter: duration must be positive, got %d", d)
	}

	cursor := start
	remaining := d
	var out []domain.TimeSlot

	for remaining > 0 {
		if !s.cal.IsWorkingDay(cursor) {
			next, err := s.cal.NextWorkingDay(cursor)
			if err != nil {
				return nil, err
			}
			cursor = s.cal.WorkingDayStart(next)
		}

		avail := s.cal.RemainingWorkingMinutes(cursor)
		if avail == 0 {
			next, err := s.cal.NextWorkingDay(cursor)
			if err != nil {
				return nil, err
			}
			cursor = s.cal.WorkingDayStart(next)
			continue
		}

		beforeTake := remaining
		take := remaining
		if avail < take {
			take = avail
		}
		end := cursor.Add(time.Duration(take) * time.Minute)
		out = append(out, domain.TimeSlot{
			Start:           cursor,
			End:             end,
			DurationMinutes: take,
			IsSplit:         take < beforeTake,
		})

		remaining -= take
		cursor = end

		if remaining > 0 {
			next, err := s.cal.NextWorkingDay(cursor)
			if err != nil {
				return nil, err
			}
			cursor = s.cal.WorkingDayStart(next)
		}
	}

	total := len(out)
	for i := range out {
		part := i + 1
		totalCopy := total
		out[i].SplitPart = &part
		out[i].TotalParts = &totalCopy
		rem := d
		for j := 0; j <= i; j++ {
			rem -= out[j].DurationMinutes
		}
		out[i].RemainingMinutes = &rem
	}

	return out, nil
}
