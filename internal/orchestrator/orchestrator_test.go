package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printshop/scheduler/internal/calendar"
	"github.com/printshop/scheduler/internal/capacity"
	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/orchestrator"
	"github.com/printshop/scheduler/internal/pathproc"
	"github.com/printshop/scheduler/internal/splitter"
	"github.com/printshop/scheduler/internal/workflow"
)

type calendarStore struct{}

func (calendarStore) LoadWorkingHoursConfig(ctx context.Context) (domain.WorkingHoursConfig, error) {
	return domain.WorkingHoursConfig{WorkStartHour: 8, WorkEndHour: 16, WorkEndMinute: 30, Timezone: "Africa/Johannesburg"}, nil
}
func (calendarStore) LoadShiftSchedules(ctx context.Context) ([]domain.ShiftSchedule, error) {
	return nil, nil
}
func (calendarStore) LoadPublicHolidays(ctx context.Context) ([]domain.PublicHoliday, error) {
	return nil, nil
}

// memRepo is an in-memory capacity.Repository fake, duplicated from the
// capacity package's own test fake since it isn't exported.
type memRepo struct {
	mu    sync.Mutex
	slots []domain.StageTimeSlot
	caps  map[string]domain.StageCapacityRecord
}

func newMemRepo() *memRepo { return &memRepo{caps: make(map[string]domain.StageCapacityRecord)} }

func repoKey(stageID string, date time.Time) string {
	return stageID + "|" + date.Format("2006-01-02")
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func (m *memRepo) LatestSlot(ctx context.Context, stageID string, date time.Time) (*domain.StageTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.StageTimeSlot
	for i := range m.slots {
		s := m.slots[i]
		if s.StageID != stageID || !sameDate(s.Date, date) {
			continue
		}
		if latest == nil || s.SlotEnd.After(latest.SlotEnd) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *memRepo) SlotsForStage(ctx context.Context, stageID string) ([]domain.StageTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StageTimeSlot
	for _, s := range m.slots {
		if s.StageID == stageID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) InsertSlot(ctx context.Context, slot domain.StageTimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = append(m.slots, slot)
	return nil
}

func (m *memRepo) UpsertCapacityRecord(ctx context.Context, rec domain.StageCapacityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[repoKey(rec.StageID, rec.Date)] = rec
	return nil
}

func (m *memRepo) CapacityRecord(ctx context.Context, stageID string, date time.Time) (*domain.StageCapacityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.caps[repoKey(stageID, date)]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (m *memRepo) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = nil
	m.caps = make(map[string]domain.StageCapacityRecord)
	return nil
}

// fakeReader feeds one job's stage instances to workflow.Analyzer.
type fakeReader struct {
	stages []*domain.StageInstance
}

func (f fakeReader) StageInstancesForJob(ctx context.Context, table, jobID string) ([]*domain.StageInstance, error) {
	return f.stages, nil
}

// fakeWriter records every scheduled-times/split write made during a run.
type fakeWriter struct {
	mu            sync.Mutex
	updates       map[string][2]time.Time
	continuations []*domain.StageInstance
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{updates: make(map[string][2]time.Time)}
}

func (w *fakeWriter) UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.updates[instanceID] = [2]time.Time{start, end}
	return nil
}

func (w *fakeWriter) UpdateSplitMetadata(ctx context.Context, instanceID string, splitSequence, totalSplits int, parentSplitID *string, uniqueStageKey string) error {
	return nil
}

func (w *fakeWriter) CreateContinuationInstance(ctx context.Context, inst *domain.StageInstance) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.continuations = append(w.continuations, inst)
	return nil
}

func buildOrchestrator(t *testing.T, now time.Time) (*orchestrator.JobOrchestrator, *calendar.Calendar, *fakeReader, *fakeWriter) {
	t.Helper()
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	capStore := capacity.New(cal, newMemRepo(), logx.Noop())
	spl := splitter.New(cal)
	reader := &fakeReader{}
	writer := newFakeWriter()

	analyzer := workflow.New(reader)
	pp := pathproc.New(spl, capStore, writer, logx.Noop())
	convProc := pathproc.NewConvergenceProcessor(pp, cal)
	jobOrch := orchestrator.New(analyzer, pp, convProc, func() time.Time { return now }, logx.Noop())
	return jobOrch, cal, reader, writer
}

// S4 — parallel cover/text paths converge at max(coverEnd, textEnd).
func TestScheduleJob_ConvergenceWaitsOnLongerPath(t *testing.T) {
	loc := mustLoc(t)
	monday0800 := time.Date(2026, 8, 3, 8, 0, 0, 0, loc)
	jobOrch, _, reader, _ := buildOrchestrator(t, monday0800)

	reader.stages = []*domain.StageInstance{
		{InstanceID: "cover1", StageID: "cover-print", StageOrder: 1, PartAssignment: domain.PartCover, EstimatedDurationMinutes: 60},
		{InstanceID: "text1", StageID: "text-print", StageOrder: 1, PartAssignment: domain.PartText, EstimatedDurationMinutes: 180},
		{InstanceID: "conv1", StageID: "binding", StageOrder: 2, PartAssignment: domain.PartBoth, EstimatedDurationMinutes: 30},
	}

	result, err := jobOrch.ScheduleJob(context.Background(), "job-1", "flyers_jobs")
	require.NoError(t, err)
	require.True(t, result.Success)

	require.NotNil(t, result.PathResults.CoverEnd)
	require.NotNil(t, result.PathResults.TextEnd)
	require.Equal(t, monday0800.Add(60*time.Minute), *result.PathResults.CoverEnd)
	require.Equal(t, monday0800.Add(180*time.Minute), *result.PathResults.TextEnd)

	// Convergence starts no earlier than the text path's end (the longer
	// of the two), and the final completion sits 30 minutes after that.
	require.NotNil(t, result.PathResults.ConvergenceEnd)
	require.False(t, result.PathResults.ConvergenceEnd.Before(*result.PathResults.TextEnd))
	require.Equal(t, *result.PathResults.ConvergenceEnd, result.ScheduledCompletionDate)
}

func TestScheduleJob_SinglePathNoConvergence(t *testing.T) {
	loc := mustLoc(t)
	monday0800 := time.Date(2026, 8, 3, 8, 0, 0, 0, loc)
	jobOrch, _, reader, _ := buildOrchestrator(t, monday0800)

	reader.stages = []*domain.StageInstance{
		{InstanceID: "c1", StageID: "cutter", StageOrder: 1, PartAssignment: domain.PartCover, EstimatedDurationMinutes: 45},
	}

	result, err := jobOrch.ScheduleJob(context.Background(), "job-1", "flyers_jobs")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Nil(t, result.PathResults.ConvergenceEnd)
	require.Equal(t, monday0800.Add(45*time.Minute), result.ScheduledCompletionDate)
}

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)
	return cal.Location()
}
