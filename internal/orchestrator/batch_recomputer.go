package orchestrator

import (
	"context"
	"sort"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
)

// CapacityResetter is the subset of *capacity.Store the recomputer depends
// on to clear committed queues before a full recalculation.
type CapacityResetter interface {
	Reset(ctx context.Context) error
}

// JobLister supplies the candidate set for a batch recalculation.
type JobLister interface {
	ActiveJobs(ctx context.Context) ([]*domain.Job, error)
}

// JobResult is one job's outcome within a RecalculateAll run.
type JobResult struct {
	JobID  string
	Result *SchedulingResult
	Err    error
}

// BatchResult is the aggregate outcome of RecalculateAll.
type BatchResult struct {
	Successful int
	Failed     int
	Results    []JobResult
}

// BatchRecomputer implements spec.md §4.8's RecalculateAll: reset every
// stage's committed queue, then reschedule every active job from scratch,
// oldest first, with expedited jobs ahead of non-expedited jobs created at
// the same instant.
type BatchRecomputer struct {
	capacity CapacityResetter
	jobs     JobLister
	jobOrch  *JobOrchestrator
	log      logx.Logger
}

// NewBatchRecomputer builds a BatchRecomputer.
func NewBatchRecomputer(capacity CapacityResetter, jobs JobLister, jobOrch *JobOrchestrator, log logx.Logger) *BatchRecomputer {
	return &BatchRecomputer{capacity: capacity, jobs: jobs, jobOrch: jobOrch, log: log}
}

// RecalculateAll resets all committed capacity and reschedules every active
// job. A single job's failure is recorded and does not abort the batch.
func (b *BatchRecomputer) RecalculateAll(ctx context.Context) (*BatchResult, error) {
	if err := b.capacity.Reset(ctx); err != nil {
		return nil, err
	}

	jobs, err := b.jobs.ActiveJobs(ctx)
	if err != nil {
		return nil, err
	}

	sortForRecalculation(jobs)

	batch := &BatchResult{}
	for _, job := range jobs {
		result, err := b.jobOrch.ScheduleJob(ctx, job.JobID, job.JobTableName())
		jr := JobResult{JobID: job.JobID, Result: result, Err: err}
		batch.Results = append(batch.Results, jr)

		if err != nil || (result != nil && !result.Success) {
			batch.Failed++
			b.log.Warn("job failed during batch recalculation", "jobId", job.JobID, "error", err)
			continue
		}
		batch.Successful++
	}

	return batch, nil
}

// sortForRecalculation orders jobs oldest-created first, with expedited
// jobs placed ahead of non-expedited jobs created at the same instant, and
// jobId as the final, fully deterministic tiebreak.
func sortForRecalculation(jobs []*domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, c := jobs[i], jobs[j]
		if !a.CreatedAt.Equal(c.CreatedAt) {
			return a.CreatedAt.Before(c.CreatedAt)
		}
		if a.IsExpedited != c.IsExpedited {
			return a.IsExpedited
		}
		return a.JobID < c.JobID
	})
}
