package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/pathproc"
)

// QueueReader is the subset of *capacity.Store the dry-run estimator reads
// from, never writes to.
type QueueReader interface {
	QueueEndTime(ctx context.Context, stageID string, date time.Time) (time.Time, error)
}

// PendingProofJob is a job awaiting proof approval, a candidate for
// tentative due date estimation per spec.md §4.10.
type PendingProofJob struct {
	JobID        string
	JobTableName string
}

// ProofPendingLister supplies jobs that have a pending proof stage and no
// recorded proof approval.
type ProofPendingLister interface {
	JobsAwaitingProofApproval(ctx context.Context) ([]PendingProofJob, error)
}

// JobDueDateWriter persists the estimated tentative due date.
type JobDueDateWriter interface {
	SetTentativeDueDate(ctx context.Context, jobID string, date time.Time) error
}

// dryRunCapacity wraps a QueueReader to satisfy CapacityCommitter without
// ever committing anything: ScheduleSimple computes a start/end purely
// from the current queue tail and the calendar, CommitSplit is a no-op.
type dryRunCapacity struct {
	cal   Calendar
	queue QueueReader
}

// ScheduleSimple mirrors capacity.Store.ScheduleSimple's day-walk exactly,
// minus the final commit: it must produce the same estimated start/end a
// real commit would, including the multi-day search for a day the stage's
// queue and duration both fit, or the tentative due date estimate could
// understate how long a long-duration stage near day-end will actually
// take.
func (d *dryRunCapacity) ScheduleSimple(ctx context.Context, instanceID, jobID, stageID string, durationMinutes int, earliestStart time.Time) (time.Time, time.Time, error) {
	day := earliestStart
	for i := 0; i < 366; i++ {
		queueEnd, err := d.queue.QueueEndTime(ctx, stageID, day)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		candidate := queueEnd
		if earliestStart.After(candidate) {
			candidate = earliestStart
		}
		if !d.cal.IsWorkingDay(candidate) {
			next, err := d.cal.NextWorkingDay(candidate)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			day = d.cal.WorkingDayStart(next)
			continue
		}
		if d.cal.FitsInWorkingDay(candidate, durationMinutes) {
			start := candidate
			return start, start.Add(time.Duration(durationMinutes) * time.Minute), nil
		}
		next, err := d.cal.NextWorkingDay(day)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		day = d.cal.WorkingDayStart(next)
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: could not estimate stage %s within a year", domain.ErrInconsistency, stageID)
}

func (d *dryRunCapacity) CommitSplit(ctx context.Context, instanceID, jobID, stageID string, parts []domain.TimeSlot) ([]domain.StageTimeSlot, error) {
	return nil, nil
}

// noopWriter satisfies pathproc.InstanceWriter without persisting
// anything, so a dry run never mutates real StageInstance rows.
type noopWriter struct{}

func (noopWriter) UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error {
	return nil
}

func (noopWriter) UpdateSplitMetadata(ctx context.Context, instanceID string, splitSequence, totalSplits int, parentSplitID *string, uniqueStageKey string) error {
	return nil
}

func (noopWriter) CreateContinuationInstance(ctx context.Context, inst *domain.StageInstance) error {
	return nil
}

// TentativeDueDateEstimator implements spec.md §4.10: for jobs still
// awaiting proof approval, it dry-run schedules the remaining workflow
// without committing any capacity, then adds one working day of buffer and
// persists the result as the job's tentative due date.
type TentativeDueDateEstimator struct {
	analyzer WorkflowAnalyzer
	cal      Calendar
	queue    QueueReader
	splitter Splitter
	jobs     ProofPendingLister
	writer   JobDueDateWriter
	log      logx.Logger
}

// NewTentativeDueDateEstimator builds a TentativeDueDateEstimator.
func NewTentativeDueDateEstimator(analyzer WorkflowAnalyzer, cal Calendar, queue QueueReader, splitter Splitter, jobs ProofPendingLister, writer JobDueDateWriter, log logx.Logger) *TentativeDueDateEstimator {
	return &TentativeDueDateEstimator{analyzer: analyzer, cal: cal, queue: queue, splitter: splitter, jobs: jobs, writer: writer, log: log}
}

// DailyWorkingMinutesSource reports the working day's length, used to size
// the one-day completion buffer.
type DailyWorkingMinutesSource interface {
	DailyWorkingMinutes() int
}

// RecalcTentativeDueDates dry-run schedules every job still awaiting proof
// approval and persists a buffered estimate of its completion date.
// Failures on individual jobs are logged and do not abort the run.
func (e *TentativeDueDateEstimator) RecalcTentativeDueDates(ctx context.Context, minutesSource DailyWorkingMinutesSource) error {
	pending, err := e.jobs.JobsAwaitingProofApproval(ctx)
	if err != nil {
		return err
	}

	dryCap := &dryRunCapacity{cal: e.cal, queue: e.queue}
	pp := pathproc.New(e.splitter, dryCap, noopWriter{}, e.log)
	convProc := pathproc.NewConvergenceProcessor(pp, e.cal)
	jobOrch := New(e.analyzer, pp, convProc, time.Now, e.log)

	buffer := time.Duration(minutesSource.DailyWorkingMinutes()) * time.Minute

	for _, job := range pending {
		result, err := jobOrch.ScheduleJob(ctx, job.JobID, job.JobTableName)
		if err != nil {
			e.log.Warn("tentative due date scheduling failed", "jobId", job.JobID, "error", err)
			continue
		}

		estimate := result.ScheduledCompletionDate.Add(buffer)
		if err := e.writer.SetTentativeDueDate(ctx, job.JobID, estimate); err != nil {
			e.log.Warn("failed to persist tentative due date", "jobId", job.JobID, "error", err)
		}
	}

	return nil
}
