// Package capacity implements the per-stage, per-day committed-minutes and
// FIFO queue tracker described in spec.md §4.2.
package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
)

// Calendar is the subset of *calendar.Calendar the capacity store depends
// on.
type Calendar interface {
	IsWorkingDay(t time.Time) bool
	NextWorkingDay(from time.Time) (time.Time, error)
	WorkingDayStart(date time.Time) time.Time
	WorkingDayEnd(date time.Time) time.Time
	RemainingWorkingMinutes(t time.Time) int
	FitsInWorkingDay(t time.Time, d int) bool
}

// Repository is the persistence boundary the capacity store writes
// through: StageTimeSlot rows and StageCapacityRecord rows.
type Repository interface {
	// LatestSlot returns the StageTimeSlot with the latest SlotEnd for
	// (stageID, date), or nil if none exists yet.
	LatestSlot(ctx context.Context, stageID string, date time.Time) (*domain.StageTimeSlot, error)
	// SlotsForStage returns every StageTimeSlot for stageID in insertion
	// order, used by FindGap.
	SlotsForStage(ctx context.Context, stageID string) ([]domain.StageTimeSlot, error)
	InsertSlot(ctx context.Context, slot domain.StageTimeSlot) error
	UpsertCapacityRecord(ctx context.Context, rec domain.StageCapacityRecord) error
	CapacityRecord(ctx context.Context, stageID string, date time.Time) (*domain.StageCapacityRecord, error)
	// Reset atomically clears every StageTimeSlot and StageCapacityRecord
	// row. Used by BatchRecomputer only.
	Reset(ctx context.Context) error
}

// Store is the per-stage capacity tracker. Created at call entry,
// discarded at exit, matching the Calendar lifecycle in spec.md §5.
type Store struct {
	cal  Calendar
	repo Repository
	log  logx.Logger

	mu     sync.Mutex
	stageLocks map[string]*sync.Mutex
}

// New builds a capacity Store.
func New(cal Calendar, repo Repository, log logx.Logger) *Store {
	return &Store{
		cal:        cal,
		repo:       repo,
		log:        log,
		stageLocks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns (creating if needed) the mutex guarding commits to a
// single stageId, implementing the per-stage lock granularity of spec.md
// §5.
func (s *Store) lockFor(stageID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.stageLocks[stageID]
	if !ok {
		l = &sync.Mutex{}
		s.stageLocks[stageID] = l
	}
	return l
}

// QueueEndTime returns the latest slotEnd on (stageID, date), or
// workingDayStart(date) if no slot exists yet.
func (s *Store) QueueEndTime(ctx context.Context, stageID string, date time.Time) (time.Time, error) {
	slot, err := s.repo.LatestSlot(ctx, stageID, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: reading latest slot: %v", domain.ErrPersistence, err)
	}
	if slot == nil {
		return s.cal.WorkingDayStart(date), nil
	}
	return slot.SlotEnd, nil
}

// NextStartTime is the non-splitting path for callers that pre-split: walk
// forward day by day from `from` until durationMinutes fits in the
// remainder of the queue-end time.
func (s *Store) NextStartTime(ctx context.Context, stageID string, durationMinutes int, from time.Time) (time.Time, error) {
	day := from
	for i := 0; i < 366; i++ {
		t, err := s.QueueEndTime(ctx, stageID, day)
		if err != nil {
			return time.Time{}, err
		}
		if s.cal.FitsInWorkingDay(t, durationMinutes) {
			return t, nil
		}
		next, err := s.cal.NextWorkingDay(day)
		if err != nil {
			return time.Time{}, err
		}
		day = next
	}
	return time.Time{}, fmt.Errorf("%w: no capacity found for stage %s within a year", domain.ErrInconsistency, stageID)
}

// ScheduleSimple commits a single, non-split StageTimeSlot for a stage
// instance and returns its (start, end). start = max(queueEndTime for the
// chosen day, earliestStart), rounded into the working window.
func (s *Store) ScheduleSimple(ctx context.Context, instanceID, jobID, stageID string, durationMinutes int, earliestStart time.Time) (start, end time.Time, err error) {
	lock := s.lockFor(stageID)
	lock.Lock()
	defer lock.Unlock()

	day := earliestStart
	for i := 0; i < 366; i++ {
		queueEnd, qerr := s.QueueEndTime(ctx, stageID, day)
		if qerr != nil {
			return time.Time{}, time.Time{}, qerr
		}
		candidate := queueEnd
		if earliestStart.After(candidate) {
			candidate = earliestStart
		}
		if !s.cal.IsWorkingDay(candidate) {
			next, nerr := s.cal.NextWorkingDay(candidate)
			if nerr != nil {
				return time.Time{}, time.Time{}, nerr
			}
			day = s.cal.WorkingDayStart(next)
			continue
		}
		if s.cal.FitsInWorkingDay(candidate, durationMinutes) {
			start = candidate
			end = start.Add(time.Duration(durationMinutes) * time.Minute)
			if err := s.commitSlot(ctx, domain.StageTimeSlot{
				SlotID:          uuid.NewString(),
				StageID:         stageID,
				Date:            dateOnly(start),
				SlotStart:       start,
				SlotEnd:         end,
				DurationMinutes: durationMinutes,
				JobID:           jobID,
				InstanceID:      instanceID,
			}); err != nil {
				return time.Time{}, time.Time{}, err
			}
			return start, end, nil
		}
		next, nerr := s.cal.NextWorkingDay(day)
		if nerr != nil {
			return time.Time{}, time.Time{}, nerr
		}
		day = s.cal.WorkingDayStart(next)
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: could not place stage %s within a year", domain.ErrInconsistency, stageID)
}

// CommitSplit commits N pre-split StageTimeSlots (one per domain.TimeSlot
// part) for instanceID, updating capacity for every day touched.
func (s *Store) CommitSplit(ctx context.Context, instanceID, jobID, stageID string, parts []domain.TimeSlot) ([]domain.StageTimeSlot, error) {
	lock := s.lockFor(stageID)
	lock.Lock()
	defer lock.Unlock()

	slots := make([]domain.StageTimeSlot, 0, len(parts))
	for _, p := range parts {
		slot := domain.StageTimeSlot{
			SlotID:          uuid.NewString(),
			StageID:         stageID,
			Date:            dateOnly(p.Start),
			SlotStart:       p.Start,
			SlotEnd:         p.End,
			DurationMinutes: p.DurationMinutes,
			JobID:           jobID,
			InstanceID:      instanceID,
		}
		if err := s.commitSlot(ctx, slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// commitSlot inserts the slot and recomputes the (stageID, date) capacity
// record, then reads it back to enforce the queueEndsAt invariant from
// spec.md §3; a readback disagreement is an Inconsistency.
func (s *Store) commitSlot(ctx context.Context, slot domain.StageTimeSlot) error {
	if err := s.repo.InsertSlot(ctx, slot); err != nil {
		return fmt.Errorf("%w: inserting stage time slot: %v", domain.ErrPersistence, err)
	}

	existing, err := s.repo.CapacityRecord(ctx, slot.StageID, slot.Date)
	if err != nil {
		return fmt.Errorf("%w: reading capacity record: %v", domain.ErrPersistence, err)
	}
	rec := domain.StageCapacityRecord{
		StageID:      slot.StageID,
		Date:         slot.Date,
		QueueEndsAt:  slot.SlotEnd,
		CalculatedAt: slot.SlotEnd, // slot end doubles as the calculation marker; the repo stores it as given
	}
	if existing != nil {
		rec.CommittedMinutes = existing.CommittedMinutes + slot.DurationMinutes
		rec.PendingJobsCount = existing.PendingJobsCount + 1
		if existing.QueueEndsAt.After(slot.SlotEnd) {
			rec.QueueEndsAt = existing.QueueEndsAt
		}
	} else {
		rec.CommittedMinutes = slot.DurationMinutes
		rec.PendingJobsCount = 1
	}
	rec.AvailableMinutes = maxInt(0, totalDailyWindowMinutes(s.cal, slot.Date)-rec.CommittedMinutes)
	rec.QueueLengthMinutes = rec.CommittedMinutes

	if err := s.repo.UpsertCapacityRecord(ctx, rec); err != nil {
		return fmt.Errorf("%w: upserting capacity record: %v", domain.ErrPersistence, err)
	}

	readback, err := s.repo.CapacityRecord(ctx, slot.StageID, slot.Date)
	if err != nil {
		return fmt.Errorf("%w: reading back capacity record: %v", domain.ErrPersistence, err)
	}
	if readback == nil || !readback.QueueEndsAt.Equal(rec.QueueEndsAt) {
		return fmt.Errorf("%w: queueEndsAt readback mismatch for stage %s date %s", domain.ErrInconsistency, slot.StageID, slot.Date.Format("2006-01-02"))
	}
	return nil
}

// FindGap scans existing StageTimeSlots for stageID in insertion order and
// returns the earliest interval that lies entirely inside a single working
// window without overlapping an existing slot. Returns (nil, nil) when no
// such gap exists; callers must fall back to NextStartTime/ScheduleSimple.
func (s *Store) FindGap(ctx context.Context, stageID string, durationMinutes int, earliestStart time.Time) (*domain.TimeSlot, error) {
	slots, err := s.repo.SlotsForStage(ctx, stageID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing slots for gap search: %v", domain.ErrPersistence, err)
	}

	candidate := earliestStart
	for _, slot := range slots {
		if slot.SlotStart.Before(candidate) {
			continue
		}
		if !s.cal.IsWorkingDay(candidate) {
			continue
		}
		gapMinutes := int(slot.SlotStart.Sub(candidate) / time.Minute)
		if gapMinutes >= durationMinutes && s.cal.FitsInWorkingDay(candidate, durationMinutes) {
			end := candidate.Add(time.Duration(durationMinutes) * time.Minute)
			return &domain.TimeSlot{Start: candidate, End: end, DurationMinutes: durationMinutes}, nil
		}
		if slot.SlotEnd.After(candidate) {
			candidate = slot.SlotEnd
		}
	}
	return nil, nil
}

// Reset clears all StageCapacityRecords and StageTimeSlots. Used by
// BatchRecomputer only.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.repo.Reset(ctx); err != nil {
		return fmt.Errorf("%w: resetting capacity store: %v", domain.ErrPersistence, err)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// totalDailyWindowMinutes returns the working day's total window length in
// minutes, used to compute AvailableMinutes for a capacity record.
func totalDailyWindowMinutes(cal Calendar, date time.Time) int {
	start := cal.WorkingDayStart(date)
	end := cal.WorkingDayEnd(date)
	return int(end.Sub(start) / time.Minute)
}
