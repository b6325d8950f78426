package pathproc

import (
	"context"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// Calendar is the subset of *calendar.Calendar the convergence processor
// depends on for snapping a start time into working hours.
type Calendar interface {
	IsWorkingDay(t time.Time) bool
	WorkingDayStart(date time.Time) time.Time
	WorkingDayEnd(date time.Time) time.Time
	NextWorkingDay(from time.Time) (time.Time, error)
}

// ConvergenceProcessor schedules convergence stages starting no earlier
// than max(coverPathEnd, textPathEnd), snapped forward into working hours.
// It is a thin specialization of PathProcessor that only differs in the
// starting-time rule, per spec.md §9.
type ConvergenceProcessor struct {
	pathProcessor *PathProcessor
	cal           Calendar
}

// NewConvergenceProcessor builds a ConvergenceProcessor sharing a
// PathProcessor's splitter/capacity/writer wiring.
func NewConvergenceProcessor(pp *PathProcessor, cal Calendar) *ConvergenceProcessor {
	return &ConvergenceProcessor{pathProcessor: pp, cal: cal}
}

// SnapToWorkingHours moves t forward to the start of the next working day
// if t does not already fall inside a working window on a working day.
func (c *ConvergenceProcessor) SnapToWorkingHours(t time.Time) (time.Time, error) {
	if c.cal.IsWorkingDay(t) {
		start := c.cal.WorkingDayStart(t)
		end := c.cal.WorkingDayEnd(t)
		if !t.Before(start) && t.Before(end) {
			return t, nil
		}
	}
	next, err := c.cal.NextWorkingDay(t)
	if err != nil {
		return time.Time{}, err
	}
	return c.cal.WorkingDayStart(next), nil
}

// ValidateConvergenceTiming reports an error if convStart precedes either
// coverEnd or textEnd, per spec.md §4.6.
func ValidateConvergenceTiming(convStart time.Time, coverEnd, textEnd *time.Time) error {
	if coverEnd != nil && convStart.Before(*coverEnd) {
		return fmt.Errorf("convergence start %s precedes cover path end %s", convStart, *coverEnd)
	}
	if textEnd != nil && convStart.Before(*textEnd) {
		return fmt.Errorf("convergence start %s precedes text path end %s", convStart, *textEnd)
	}
	return nil
}

// Process snaps convergenceStart into working hours and schedules path
// exactly like PathProcessor.Process, threading the snapped time through
// as the first stage's earliest start.
func (c *ConvergenceProcessor) Process(ctx context.Context, jobID string, path []*domain.StageInstance, convergenceStart time.Time) (*PathResult, error) {
	snapped, err := c.SnapToWorkingHours(convergenceStart)
	if err != nil {
		return nil, err
	}
	return c.pathProcessor.process(ctx, jobID, path, snapped)
}
