// Package workflow implements the WorkflowAnalyzer of spec.md §4.4: a pure
// transformation from a job's persisted stage instances into cover/text/
// convergence paths.
package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/printshop/scheduler/internal/domain"
)

// StageInstanceReader is the read side of the persistence adapter the
// analyzer depends on.
type StageInstanceReader interface {
	// StageInstancesForJob returns every StageInstance for jobId in the
	// given table, unordered; the analyzer sorts by StageOrder.
	StageInstancesForJob(ctx context.Context, jobTableName, jobID string) ([]*domain.StageInstance, error)
}

// Analyzer builds Workflow values from persisted stage instances.
type Analyzer struct {
	reader StageInstanceReader
}

// New builds an Analyzer.
func New(reader StageInstanceReader) *Analyzer {
	return &Analyzer{reader: reader}
}

// Analyze reads every StageInstance for jobID (from jobTableName) and
// groups them into cover, text, and convergence paths ordered by
// StageOrder ascending. Returns ErrWorkflowNotFound if the job has zero
// stages.
func (a *Analyzer) Analyze(ctx context.Context, jobTableName, jobID string) (*domain.Workflow, error) {
	stages, err := a.reader.StageInstancesForJob(ctx, jobTableName, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stage instances: %v", domain.ErrPersistence, err)
	}
	if len(stages) == 0 {
		return nil, domain.ErrWorkflowNotFound
	}

	sort.Slice(stages, func(i, j int) bool { return stages[i].StageOrder < stages[j].StageOrder })

	wf := &domain.Workflow{JobID: jobID}
	for _, s := range stages {
		switch {
		case s.PartAssignment == domain.PartCover:
			wf.CoverPath = append(wf.CoverPath, s)
		case s.PartAssignment == domain.PartText:
			wf.TextPath = append(wf.TextPath, s)
		default:
			// PartBoth and PartNone (and, by construction, anything else)
			// converge: UnknownPartAssignment is impossible by design.
			wf.ConvergencePath = append(wf.ConvergencePath, s)
		}
	}
	return wf, nil
}

// CanStageStart reports whether the stage instance identified by
// instanceID may start, per spec.md §4.4: a convergence-path stage may
// start only once every cover and text stage is completed; within a path,
// every earlier-ordered stage must be completed.
func CanStageStart(wf *domain.Workflow, instanceID string) (canStart bool, blockedBy []string) {
	all := append(append(append([]*domain.StageInstance{}, wf.CoverPath...), wf.TextPath...), wf.ConvergencePath...)

	var target *domain.StageInstance
	for _, s := range all {
		if s.InstanceID == instanceID {
			target = s
			break
		}
	}
	if target == nil {
		return false, []string{"unknown instance"}
	}

	if target.PartAssignment.IsConvergence() {
		for _, s := range wf.CoverPath {
			if s.Status != domain.StatusCompleted {
				blockedBy = append(blockedBy, s.InstanceID)
			}
		}
		for _, s := range wf.TextPath {
			if s.Status != domain.StatusCompleted {
				blockedBy = append(blockedBy, s.InstanceID)
			}
		}
		return len(blockedBy) == 0, blockedBy
	}

	path := wf.CoverPath
	if target.PartAssignment == domain.PartText {
		path = wf.TextPath
	}
	for _, s := range path {
		if s.StageOrder >= target.StageOrder {
			break
		}
		if s.Status != domain.StatusCompleted {
			blockedBy = append(blockedBy, s.InstanceID)
		}
	}
	return len(blockedBy) == 0, blockedBy
}
