// Package domain holds the scheduler's entity and value types: production
// stages, jobs, stage instances, the calendar configuration tables, and the
// transient value types (TimeSlot, Workflow) produced by a scheduling run.
//
// Entities are plain structs with no persistence-layer knowledge; the
// repository package is responsible for reading and writing them.
package domain

import (
	"strconv"
	"time"
)

// PartAssignment identifies which workflow path a stage instance belongs
// to. A stage with PartCover runs on the cover path, PartText on the text
// path; PartBoth and PartNone both converge.
type PartAssignment string

const (
	PartCover PartAssignment = "cover"
	PartText  PartAssignment = "text"
	PartBoth  PartAssignment = "both"
	PartNone  PartAssignment = ""
)

// IsConvergence reports whether a part assignment belongs to the
// convergence path: both and the empty assignment do.
func (p PartAssignment) IsConvergence() bool {
	return p == PartBoth || p == PartNone
}

// StageInstanceStatus is the lifecycle state of one StageInstance.
type StageInstanceStatus string

const (
	StatusPending   StageInstanceStatus = "pending"
	StatusActive    StageInstanceStatus = "active"
	StatusCompleted StageInstanceStatus = "completed"
)

// ProductionStage is a configured production step (a press, a laminator, a
// finishing line). Immutable for the lifetime of a scheduling run.
type ProductionStage struct {
	StageID             string
	Name                string
	RunningSpeedPerHour  *float64
	MakeReadyMinutes     *int
	StageGroupID         *string
	ParallelEnabled      bool
}

// JobStatus is the lifecycle state of a production job.
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusOnHold    JobStatus = "on_hold"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ProductCategory discriminates the storage partition a job's stage
// instances live in, per the source system's dynamic-table-selection
// design note (§9). TableForCategory maps one to a logical table name.
type ProductCategory string

const (
	CategoryBusinessCards ProductCategory = "business_cards"
	CategoryFlyers        ProductCategory = "flyers"
	CategoryPostcards     ProductCategory = "postcards"
	CategoryPosters       ProductCategory = "posters"
	CategorySleeves       ProductCategory = "sleeves"
	CategoryStickers      ProductCategory = "stickers"
	CategoryCovers        ProductCategory = "covers"
	CategoryBoxes         ProductCategory = "boxes"
)

// TableForCategory returns the logical job_stage_instances partition name
// for a product category. Unknown categories fall back to the generic
// production_jobs table, matching the source's default-partition behavior.
func TableForCategory(c ProductCategory) string {
	switch c {
	case CategoryBusinessCards, CategoryFlyers, CategoryPostcards, CategoryPosters,
		CategorySleeves, CategoryStickers, CategoryCovers, CategoryBoxes:
		return string(c) + "_jobs"
	default:
		return "production_jobs"
	}
}

// Job is a production job owning one or more StageInstances.
type Job struct {
	JobID             string
	WorkOrderNumber   string
	CategoryID        *ProductCategory
	DueDate           time.Time
	Status            JobStatus
	HasCustomWorkflow bool
	IsExpedited       bool
	CreatedAt         time.Time
	TentativeDueDate  *time.Time
	ProofApprovedAt   *time.Time
}

// JobTableName resolves the logical storage partition for this job.
func (j *Job) JobTableName() string {
	if j.CategoryID == nil {
		return "production_jobs"
	}
	return TableForCategory(*j.CategoryID)
}

// StageInstance is one stage applied to one job: the scheduling unit.
type StageInstance struct {
	InstanceID               string
	JobID                    string
	StageID                  string
	StageOrder               int
	PartAssignment           PartAssignment
	EstimatedDurationMinutes int
	Status                   StageInstanceStatus

	ScheduledStart *time.Time
	ScheduledEnd   *time.Time

	SplitSequence  int
	TotalSplits    int
	ParentSplitID  *string
	UniqueStageKey string
}

// DefaultEstimatedDurationMinutes is used when a stage instance carries no
// explicit duration.
const DefaultEstimatedDurationMinutes = 60

// Duration returns the stage's estimated duration, defaulting to
// DefaultEstimatedDurationMinutes when unset.
func (s *StageInstance) Duration() int {
	if s.EstimatedDurationMinutes <= 0 {
		return DefaultEstimatedDurationMinutes
	}
	return s.EstimatedDurationMinutes
}

// IsSplit reports whether this instance is part of a multi-day split chain.
func (s *StageInstance) IsSplit() bool {
	return s.TotalSplits > 1
}

// BuildUniqueStageKey derives the uniqueStageKey invariant from §3:
// jobId + stageId + splitSequence.
func BuildUniqueStageKey(jobID, stageID string, splitSequence int) string {
	return jobID + ":" + stageID + ":" + strconv.Itoa(splitSequence)
}

// TimeSlot is the transient value returned by the Splitter and path
// processors: one contiguous interval inside a single working window.
type TimeSlot struct {
	Start            time.Time
	End              time.Time
	DurationMinutes  int
	IsSplit          bool
	SplitPart        *int
	TotalParts       *int
	RemainingMinutes *int
}

// Workflow is the rebuilt-per-call grouping of a job's stage instances into
// cover, text, and convergence paths. Never persisted.
type Workflow struct {
	JobID            string
	CoverPath        []*StageInstance
	TextPath         []*StageInstance
	ConvergencePath  []*StageInstance
}
