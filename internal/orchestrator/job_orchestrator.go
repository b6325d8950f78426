// Package orchestrator implements the top-level scheduling operations of
// spec.md §4.7-§4.10: JobOrchestrator, BatchRecomputer, ShiftReorderer, and
// TentativeDueDateEstimator.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/pathproc"
)

// WorkflowAnalyzer is the subset of *workflow.Analyzer the orchestrator
// depends on.
type WorkflowAnalyzer interface {
	Analyze(ctx context.Context, jobTableName, jobID string) (*domain.Workflow, error)
}

// Clock supplies "now"; injected so tests are deterministic.
type Clock func() time.Time

// GraphSyncer projects a scheduled workflow into the optional dependency
// graph store (spec.md's graphstore secondary store, §2). Nil-safe: a
// JobOrchestrator built without one simply skips the projection.
type GraphSyncer interface {
	SyncWorkflow(ctx context.Context, wf *domain.Workflow) error
}

// PathResults mirrors §6.1's SchedulingResult.pathResults.
type PathResults struct {
	CoverEnd       *time.Time
	TextEnd        *time.Time
	ConvergenceEnd *time.Time
}

// SchedulingResult is the §6.1 ScheduleJob response.
type SchedulingResult struct {
	Success                 bool
	JobID                   string
	ScheduledCompletionDate time.Time
	TotalMinutes            int
	Errors                  []error
	PathResults             PathResults
	CorrelationID           string
}

// JobOrchestrator is the scheduleJob(jobId, jobTableName) entry point of
// spec.md §4.7.
type JobOrchestrator struct {
	analyzer WorkflowAnalyzer
	pathProc *pathproc.PathProcessor
	convProc *pathproc.ConvergenceProcessor
	graph    GraphSyncer
	now      Clock
	log      logx.Logger
}

// New builds a JobOrchestrator. now may be nil, in which case time.Now is
// used. No dependency graph projector is attached; see WithGraphSyncer.
func New(analyzer WorkflowAnalyzer, pathProc *pathproc.PathProcessor, convProc *pathproc.ConvergenceProcessor, now Clock, log logx.Logger) *JobOrchestrator {
	if now == nil {
		now = time.Now
	}
	return &JobOrchestrator{analyzer: analyzer, pathProc: pathProc, convProc: convProc, now: now, log: log}
}

// WithGraphSyncer attaches a dependency graph projector, returning the same
// orchestrator for chaining at wiring time.
func (o *JobOrchestrator) WithGraphSyncer(graph GraphSyncer) *JobOrchestrator {
	o.graph = graph
	return o
}

// ScheduleJob analyzes the job's workflow, processes its cover and text
// paths, then its convergence path starting at max(coverEnd, textEnd), and
// aggregates per-stage errors. Every call is tagged with a fresh
// correlation ID so its decisions can be traced in the log.
func (o *JobOrchestrator) ScheduleJob(ctx context.Context, jobID, jobTableName string) (*SchedulingResult, error) {
	correlationID := uuid.NewString()
	runLog := o.log.With("correlationId", correlationID, "jobId", jobID)
	runLog.Info("scheduling job")

	wf, err := o.analyzer.Analyze(ctx, jobTableName, jobID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	result := &SchedulingResult{JobID: jobID, CorrelationID: correlationID}

	var coverEnd, textEnd *time.Time

	if len(wf.CoverPath) > 0 {
		coverResult, err := o.pathProc.Process(ctx, jobID, wf.CoverPath, now)
		if err != nil {
			return nil, err
		}
		t := coverResult.PathCompletionTime
		coverEnd = &t
		result.PathResults.CoverEnd = &t
		result.TotalMinutes += coverResult.TotalMinutes
		result.Errors = append(result.Errors, coverResult.Errors...)
		runLog.Info("cover path scheduled", "end", t)
	}

	if len(wf.TextPath) > 0 {
		textResult, err := o.pathProc.Process(ctx, jobID, wf.TextPath, now)
		if err != nil {
			return nil, err
		}
		t := textResult.PathCompletionTime
		textEnd = &t
		result.PathResults.TextEnd = &t
		result.TotalMinutes += textResult.TotalMinutes
		result.Errors = append(result.Errors, textResult.Errors...)
		runLog.Info("text path scheduled", "end", t)
	}

	convStart := convergenceStart(now, coverEnd, textEnd)

	var completion time.Time
	switch {
	case len(wf.ConvergencePath) > 0:
		convResult, err := o.convProc.Process(ctx, jobID, wf.ConvergencePath, convStart)
		if err != nil {
			return nil, err
		}
		completion = convResult.PathCompletionTime
		result.PathResults.ConvergenceEnd = &completion
		result.TotalMinutes += convResult.TotalMinutes
		result.Errors = append(result.Errors, convResult.Errors...)
		runLog.Info("convergence path scheduled", "end", completion)
	case textEnd != nil:
		completion = *textEnd
	case coverEnd != nil:
		completion = *coverEnd
	default:
		completion = now
	}

	result.ScheduledCompletionDate = completion
	result.Success = len(result.Errors) == 0

	if o.graph != nil {
		if err := o.graph.SyncWorkflow(ctx, wf); err != nil {
			runLog.Warn("graphstore sync failed, dependency analytics may be stale", "error", err)
		}
	}

	return result, nil
}

// convergenceStart computes max(coverEnd, textEnd), dropping absent paths
// and falling back to now when both are absent (spec.md §9, open question
// b).
func convergenceStart(now time.Time, coverEnd, textEnd *time.Time) time.Time {
	switch {
	case coverEnd != nil && textEnd != nil:
		if coverEnd.After(*textEnd) {
			return *coverEnd
		}
		return *textEnd
	case coverEnd != nil:
		return *coverEnd
	case textEnd != nil:
		return *textEnd
	default:
		return now
	}
}
