package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// StageInstanceRepository implements workflow.StageInstanceReader and
// pathproc.InstanceWriter over the shared production_stage_instances table.
type StageInstanceRepository struct {
	db *DB
}

// NewStageInstanceRepository builds a StageInstanceRepository.
func NewStageInstanceRepository(db *DB) *StageInstanceRepository {
	return &StageInstanceRepository{db: db}
}

func (r *StageInstanceRepository) StageInstancesForJob(ctx context.Context, jobTableName, jobID string) ([]*domain.StageInstance, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT instance_id, job_id, stage_id, stage_order, part_assignment, estimated_duration_minutes,
		       status, scheduled_start, scheduled_end, split_sequence, total_splits, parent_split_id, unique_stage_key
		FROM production_stage_instances WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying stage instances: %w", err)
	}
	defer rows.Close()

	var out []*domain.StageInstance
	for rows.Next() {
		s := &domain.StageInstance{}
		var partAssignment string
		var status string
		var scheduledStart, scheduledEnd sql.NullTime
		var parentSplitID sql.NullString
		var uniqueKey sql.NullString

		if err := rows.Scan(&s.InstanceID, &s.JobID, &s.StageID, &s.StageOrder, &partAssignment,
			&s.EstimatedDurationMinutes, &status, &scheduledStart, &scheduledEnd,
			&s.SplitSequence, &s.TotalSplits, &parentSplitID, &uniqueKey); err != nil {
			return nil, fmt.Errorf("scanning stage instance row: %w", err)
		}

		s.PartAssignment = domain.PartAssignment(partAssignment)
		s.Status = domain.StageInstanceStatus(status)
		if scheduledStart.Valid {
			t := scheduledStart.Time.In(r.db.Timezone())
			s.ScheduledStart = &t
		}
		if scheduledEnd.Valid {
			t := scheduledEnd.Time.In(r.db.Timezone())
			s.ScheduledEnd = &t
		}
		if parentSplitID.Valid {
			s.ParentSplitID = &parentSplitID.String
		}
		if uniqueKey.Valid {
			s.UniqueStageKey = uniqueKey.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InstanceByID implements orchestrator.InstanceReader.
func (r *StageInstanceRepository) InstanceByID(ctx context.Context, instanceID string) (*domain.StageInstance, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT instance_id, job_id, stage_id, stage_order, part_assignment, estimated_duration_minutes,
		       status, scheduled_start, scheduled_end, split_sequence, total_splits, parent_split_id, unique_stage_key
		FROM production_stage_instances WHERE instance_id = ?`, instanceID)

	s := &domain.StageInstance{}
	var partAssignment, status string
	var scheduledStart, scheduledEnd sql.NullTime
	var parentSplitID, uniqueKey sql.NullString

	if err := row.Scan(&s.InstanceID, &s.JobID, &s.StageID, &s.StageOrder, &partAssignment,
		&s.EstimatedDurationMinutes, &status, &scheduledStart, &scheduledEnd,
		&s.SplitSequence, &s.TotalSplits, &parentSplitID, &uniqueKey); err != nil {
		return nil, fmt.Errorf("loading stage instance %s: %w", instanceID, err)
	}

	s.PartAssignment = domain.PartAssignment(partAssignment)
	s.Status = domain.StageInstanceStatus(status)
	if scheduledStart.Valid {
		t := scheduledStart.Time.In(r.db.Timezone())
		s.ScheduledStart = &t
	}
	if scheduledEnd.Valid {
		t := scheduledEnd.Time.In(r.db.Timezone())
		s.ScheduledEnd = &t
	}
	if parentSplitID.Valid {
		s.ParentSplitID = &parentSplitID.String
	}
	if uniqueKey.Valid {
		s.UniqueStageKey = uniqueKey.String
	}
	return s, nil
}

// UpdateScheduledTimes persists the computed (start, end) for a stage
// instance.
func (r *StageInstanceRepository) UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		UPDATE production_stage_instances SET scheduled_start = ?, scheduled_end = ? WHERE instance_id = ?`,
		r.db.ToDBTime(start), r.db.ToDBTime(end), instanceID)
	if err != nil {
		return fmt.Errorf("updating scheduled times: %w", err)
	}
	return nil
}

// UpdateSplitMetadata records the split-chain bookkeeping fields on an
// already-existing instance (the first slot of a split).
func (r *StageInstanceRepository) UpdateSplitMetadata(ctx context.Context, instanceID string, splitSequence, totalSplits int, parentSplitID *string, uniqueStageKey string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		UPDATE production_stage_instances
		SET split_sequence = ?, total_splits = ?, parent_split_id = ?, unique_stage_key = ?
		WHERE instance_id = ?`,
		splitSequence, totalSplits, nullableString(parentSplitID), uniqueStageKey, instanceID)
	if err != nil {
		return fmt.Errorf("updating split metadata: %w", err)
	}
	return nil
}

// CreateContinuationInstance inserts a brand new StageInstance row for a
// split-chain continuation.
func (r *StageInstanceRepository) CreateContinuationInstance(ctx context.Context, inst *domain.StageInstance) error {
	var start, end sql.NullTime
	if inst.ScheduledStart != nil {
		start = sql.NullTime{Time: r.db.ToDBTime(*inst.ScheduledStart), Valid: true}
	}
	if inst.ScheduledEnd != nil {
		end = sql.NullTime{Time: r.db.ToDBTime(*inst.ScheduledEnd), Valid: true}
	}

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO production_stage_instances (
			instance_id, job_id, stage_id, stage_order, part_assignment, estimated_duration_minutes,
			status, scheduled_start, scheduled_end, split_sequence, total_splits, parent_split_id, unique_stage_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.InstanceID, inst.JobID, inst.StageID, inst.StageOrder, string(inst.PartAssignment),
		inst.EstimatedDurationMinutes, string(inst.Status), start, end,
		inst.SplitSequence, inst.TotalSplits, nullableString(inst.ParentSplitID), inst.UniqueStageKey)
	if err != nil {
		return fmt.Errorf("creating continuation instance: %w", err)
	}
	return nil
}

// SlotsForStageDate implements orchestrator.SlotRepository.
func (r *StageInstanceRepository) SlotsForStageDate(ctx context.Context, stageID string, date time.Time) ([]domain.StageTimeSlot, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT slot_id, stage_id, date, slot_start, slot_end, duration_minutes, job_id, instance_id
		FROM stage_time_slots WHERE stage_id = ? AND date = ? ORDER BY slot_start ASC`, stageID, dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("listing slots for stage date: %w", err)
	}
	defer rows.Close()

	var out []domain.StageTimeSlot
	for rows.Next() {
		var s domain.StageTimeSlot
		var dateStr string
		if err := rows.Scan(&s.SlotID, &s.StageID, &dateStr, &s.SlotStart, &s.SlotEnd, &s.DurationMinutes, &s.JobID, &s.InstanceID); err != nil {
			return nil, fmt.Errorf("scanning slot row: %w", err)
		}
		s.Date, _ = time.ParseInLocation("2006-01-02", dateStr, r.db.Timezone())
		out = append(out, s)
	}
	return out, rows.Err()
}

// RewriteSlot implements orchestrator.SlotRepository: moves one committed
// slot to a new (start, end) during a ShiftReorderer run.
func (r *StageInstanceRepository) RewriteSlot(ctx context.Context, slotID string, start, end time.Time) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		UPDATE stage_time_slots SET slot_start = ?, slot_end = ? WHERE slot_id = ?`,
		r.db.ToDBTime(start), r.db.ToDBTime(end), slotID)
	if err != nil {
		return fmt.Errorf("rewriting slot: %w", err)
	}
	return nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
