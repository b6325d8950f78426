package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/pathproc"
)

// InstanceReader fetches a single StageInstance by ID. The optional stageId
// override of spec.md §6.1 ManualRescheduleStage is applied afterwards by
// ManualRescheduler.Reschedule, not by the reader.
type InstanceReader interface {
	InstanceByID(ctx context.Context, instanceID string) (*domain.StageInstance, error)
}

// ManualReschedulerResult is the §6.1 ManualRescheduleStage response shape.
type ManualReschedulerResult struct {
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// ManualRescheduler commits a single stage instance to a new target date,
// reusing the same Splitter/CapacityStore commit path every automatic
// scheduling call goes through so the result stays consistent with
// queueEndTime bookkeeping.
type ManualRescheduler struct {
	instances InstanceReader
	cal       Calendar
	pathProc  *pathproc.PathProcessor
	log       logx.Logger
}

// NewManualRescheduler builds a ManualRescheduler.
func NewManualRescheduler(instances InstanceReader, cal Calendar, pathProc *pathproc.PathProcessor, log logx.Logger) *ManualRescheduler {
	return &ManualRescheduler{instances: instances, cal: cal, pathProc: pathProc, log: log}
}

// Reschedule commits stageInstanceID to start no earlier than the start of
// targetDate's working window. An empty overrideStageID keeps the
// instance's existing stageId (and therefore its capacity queue).
func (m *ManualRescheduler) Reschedule(ctx context.Context, stageInstanceID string, targetDate time.Time, overrideStageID string) (*ManualReschedulerResult, error) {
	inst, err := m.instances.InstanceByID(ctx, stageInstanceID)
	if err != nil {
		return nil, fmt.Errorf("loading stage instance %s: %w", stageInstanceID, err)
	}
	if overrideStageID != "" {
		inst.StageID = overrideStageID
	}

	earliest := m.cal.WorkingDayStart(targetDate)
	if !m.cal.IsWorkingDay(targetDate) {
		next, err := m.cal.NextWorkingDay(targetDate)
		if err != nil {
			return nil, fmt.Errorf("%w: finding next working day for manual reschedule: %v", domain.ErrNoWorkingDayFound, err)
		}
		earliest = m.cal.WorkingDayStart(next)
	}

	result, err := m.pathProc.Process(ctx, inst.JobID, []*domain.StageInstance{inst}, earliest)
	if err != nil {
		return nil, fmt.Errorf("rescheduling stage instance %s: %w", stageInstanceID, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, result.Errors[0])
	}
	if len(result.StageCompletions) == 0 {
		return nil, fmt.Errorf("manual reschedule of %s produced no completion", stageInstanceID)
	}

	completion := result.StageCompletions[0]
	m.log.Info("manually rescheduled stage", "instanceId", stageInstanceID, "jobId", inst.JobID,
		"start", completion.Start, "end", completion.End)

	return &ManualReschedulerResult{ScheduledStart: completion.Start, ScheduledEnd: completion.End}, nil
}
