// Package pathproc implements the PathProcessor and ConvergenceProcessor of
// spec.md §4.5 and §4.6: sequential scheduling of one workflow path,
// calling out to the Splitter and CapacityStore for each stage in turn.
package pathproc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
)

// Splitter is the subset of *splitter.Splitter the path processor depends
// on.
type Splitter interface {
	NeedsSplitting(start time.Time, d int) bool
	Split(start time.Time, d int) ([]domain.TimeSlot, error)
}

// CapacityCommitter is the subset of *capacity.Store the path processor
// depends on.
type CapacityCommitter interface {
	ScheduleSimple(ctx context.Context, instanceID, jobID, stageID string, durationMinutes int, earliestStart time.Time) (start, end time.Time, err error)
	CommitSplit(ctx context.Context, instanceID, jobID, stageID string, parts []domain.TimeSlot) ([]domain.StageTimeSlot, error)
}

// InstanceWriter is the persistence boundary for StageInstance mutations
// made while scheduling: recording computed times and materializing
// continuation instances for a split chain.
type InstanceWriter interface {
	UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error
	UpdateSplitMetadata(ctx context.Context, instanceID string, splitSequence, totalSplits int, parentSplitID *string, uniqueStageKey string) error
	CreateContinuationInstance(ctx context.Context, inst *domain.StageInstance) error
}

// StageCompletion records one scheduled stage within a path.
type StageCompletion struct {
	StageID   string
	InstanceID string
	Start     time.Time
	End       time.Time
	WasSplit  bool
}

// PathResult is the outcome of processing one workflow path.
type PathResult struct {
	PathCompletionTime time.Time
	TotalMinutes       int
	StageCompletions   []StageCompletion
	Errors             []error
}

// PathProcessor schedules every stage of one linear path sequentially.
type PathProcessor struct {
	splitter Splitter
	capacity CapacityCommitter
	writer   InstanceWriter
	log      logx.Logger
}

// New builds a PathProcessor.
func New(splitter Splitter, capacity CapacityCommitter, writer InstanceWriter, log logx.Logger) *PathProcessor {
	return &PathProcessor{splitter: splitter, capacity: capacity, writer: writer, log: log}
}

// Process schedules path.stages in stageOrder, starting from now. Errors
// in a single stage are caught, recorded, and the path continues with the
// next stage at the same lastEnd.
func (p *PathProcessor) Process(ctx context.Context, jobID string, path []*domain.StageInstance, now time.Time) (*PathResult, error) {
	return p.process(ctx, jobID, path, now)
}

func (p *PathProcessor) process(ctx context.Context, jobID string, path []*domain.StageInstance, firstEarliest time.Time) (*PathResult, error) {
	result := &PathResult{PathCompletionTime: firstEarliest}
	if len(path) == 0 {
		return result, nil
	}

	lastEnd := firstEarliest
	for i, stage := range path {
		earliest := lastEnd
		if i == 0 {
			earliest = firstEarliest
		}

		result.TotalMinutes += stage.Duration()

		start, end, wasSplit, err := p.scheduleStage(ctx, jobID, stage, earliest)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("stage %s (instance %s): %w", stage.StageID, stage.InstanceID, err))
			continue
		}

		result.StageCompletions = append(result.StageCompletions, StageCompletion{
			StageID:    stage.StageID,
			InstanceID: stage.InstanceID,
			Start:      start,
			End:        end,
			WasSplit:   wasSplit,
		})
		lastEnd = end
	}

	result.PathCompletionTime = lastEnd
	return result, nil
}

// scheduleStage schedules one stage instance, splitting across working
// days when it does not fit, per spec.md §4.5 steps 2-3. The returned
// start is the instance's real committed start — for a simple (unsplit)
// stage that is whatever capacity.Store.ScheduleSimple actually committed
// (which may run later than earliest if the stage's queue is already
// occupied), not the earliest time requested.
func (p *PathProcessor) scheduleStage(ctx context.Context, jobID string, stage *domain.StageInstance, earliest time.Time) (start, end time.Time, wasSplit bool, err error) {
	duration := stage.Duration()

	if p.splitter.NeedsSplitting(earliest, duration) {
		parts, serr := p.splitter.Split(earliest, duration)
		if serr != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("splitting stage: %w", serr)
		}

		if _, cerr := p.capacity.CommitSplit(ctx, stage.InstanceID, jobID, stage.StageID, parts); cerr != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("committing split: %w", cerr)
		}

		total := len(parts)
		firstInstanceID := stage.InstanceID
		uniqueKey := domain.BuildUniqueStageKey(jobID, stage.StageID, 1)
		if err := p.writer.UpdateSplitMetadata(ctx, stage.InstanceID, 1, total, nil, uniqueKey); err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("%w: recording split metadata: %v", domain.ErrPersistence, err)
		}
		if err := p.writer.UpdateScheduledTimes(ctx, stage.InstanceID, parts[0].Start, parts[0].End); err != nil {
			return time.Time{}, time.Time{}, false, fmt.Errorf("%w: recording scheduled times: %v", domain.ErrPersistence, err)
		}

		for i := 1; i < total; i++ {
			seq := i + 1
			part := parts[i]
			continuation := &domain.StageInstance{
				InstanceID:               uuid.NewString(),
				JobID:                    jobID,
				StageID:                  stage.StageID,
				StageOrder:               stage.StageOrder,
				PartAssignment:           stage.PartAssignment,
				EstimatedDurationMinutes: part.DurationMinutes,
				Status:                   domain.StatusPending,
				SplitSequence:            seq,
				TotalSplits:              total,
				ParentSplitID:            &firstInstanceID,
				UniqueStageKey:           domain.BuildUniqueStageKey(jobID, stage.StageID, seq),
				ScheduledStart:           &part.Start,
				ScheduledEnd:             &part.End,
			}
			if err := p.writer.CreateContinuationInstance(ctx, continuation); err != nil {
				return time.Time{}, time.Time{}, false, fmt.Errorf("%w: creating continuation instance: %v", domain.ErrPersistence, err)
			}
		}

		return parts[0].Start, parts[total-1].End, true, nil
	}

	actualStart, actualEnd, err := p.capacity.ScheduleSimple(ctx, stage.InstanceID, jobID, stage.StageID, duration, earliest)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if err := p.writer.UpdateScheduledTimes(ctx, stage.InstanceID, actualStart, actualEnd); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: recording scheduled times: %v", domain.ErrPersistence, err)
	}
	return actualStart, actualEnd, false, nil
}
