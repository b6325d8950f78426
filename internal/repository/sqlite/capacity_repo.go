package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
)

// CapacityRepository implements capacity.Repository over SQLite.
type CapacityRepository struct {
	db *DB
}

// NewCapacityRepository builds a CapacityRepository.
func NewCapacityRepository(db *DB) *CapacityRepository {
	return &CapacityRepository{db: db}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func (r *CapacityRepository) LatestSlot(ctx context.Context, stageID string, date time.Time) (*domain.StageTimeSlot, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT slot_id, stage_id, date, slot_start, slot_end, duration_minutes, job_id, instance_id
		FROM stage_time_slots
		WHERE stage_id = ? AND date = ?
		ORDER BY slot_end DESC LIMIT 1`, stageID, dateKey(date))

	var s domain.StageTimeSlot
	var dateStr string
	err := row.Scan(&s.SlotID, &s.StageID, &dateStr, &s.SlotStart, &s.SlotEnd, &s.DurationMinutes, &s.JobID, &s.InstanceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest slot: %w", err)
	}
	s.Date, _ = time.ParseInLocation("2006-01-02", dateStr, r.db.Timezone())
	s.SlotStart = s.SlotStart.In(r.db.Timezone())
	s.SlotEnd = s.SlotEnd.In(r.db.Timezone())
	return &s, nil
}

func (r *CapacityRepository) SlotsForStage(ctx context.Context, stageID string) ([]domain.StageTimeSlot, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT slot_id, stage_id, date, slot_start, slot_end, duration_minutes, job_id, instance_id
		FROM stage_time_slots WHERE stage_id = ? ORDER BY rowid ASC`, stageID)
	if err != nil {
		return nil, fmt.Errorf("listing slots for stage: %w", err)
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

func (r *CapacityRepository) InsertSlot(ctx context.Context, slot domain.StageTimeSlot) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO stage_time_slots (slot_id, stage_id, date, slot_start, slot_end, duration_minutes, job_id, instance_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.SlotID, slot.StageID, dateKey(slot.Date), r.db.ToDBTime(slot.SlotStart), r.db.ToDBTime(slot.SlotEnd),
		slot.DurationMinutes, slot.JobID, slot.InstanceID)
	if err != nil {
		return fmt.Errorf("inserting stage time slot: %w", err)
	}
	return nil
}

func (r *CapacityRepository) UpsertCapacityRecord(ctx context.Context, rec domain.StageCapacityRecord) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO stage_capacity_records (
			stage_id, date, committed_minutes, available_minutes, queue_length_minutes,
			queue_ends_at, pending_jobs_count, active_jobs_count, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stage_id, date) DO UPDATE SET
			committed_minutes = excluded.committed_minutes,
			available_minutes = excluded.available_minutes,
			queue_length_minutes = excluded.queue_length_minutes,
			queue_ends_at = excluded.queue_ends_at,
			pending_jobs_count = excluded.pending_jobs_count,
			active_jobs_count = excluded.active_jobs_count,
			calculated_at = excluded.calculated_at`,
		rec.StageID, dateKey(rec.Date), rec.CommittedMinutes, rec.AvailableMinutes, rec.QueueLengthMinutes,
		r.db.ToDBTime(rec.QueueEndsAt), rec.PendingJobsCount, rec.ActiveJobsCount, r.db.ToDBTime(rec.CalculatedAt))
	if err != nil {
		return fmt.Errorf("upserting capacity record: %w", err)
	}
	return nil
}

func (r *CapacityRepository) CapacityRecord(ctx context.Context, stageID string, date time.Time) (*domain.StageCapacityRecord, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT stage_id, date, committed_minutes, available_minutes, queue_length_minutes,
		       queue_ends_at, pending_jobs_count, active_jobs_count, calculated_at
		FROM stage_capacity_records WHERE stage_id = ? AND date = ?`, stageID, dateKey(date))

	var rec domain.StageCapacityRecord
	var dateStr string
	err := row.Scan(&rec.StageID, &dateStr, &rec.CommittedMinutes, &rec.AvailableMinutes, &rec.QueueLengthMinutes,
		&rec.QueueEndsAt, &rec.PendingJobsCount, &rec.ActiveJobsCount, &rec.CalculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying capacity record: %w", err)
	}
	rec.Date, _ = time.ParseInLocation("2006-01-02", dateStr, r.db.Timezone())
	rec.QueueEndsAt = rec.QueueEndsAt.In(r.db.Timezone())
	return &rec, nil
}

// Reset clears every committed slot and capacity record, used by
// BatchRecomputer.RecalculateAll.
func (r *CapacityRepository) Reset(ctx context.Context) error {
	return r.db.Reset(ctx)
}
