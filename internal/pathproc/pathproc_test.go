package pathproc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/pathproc"
)

// fakeSplitter never splits; durations always fit.
type fakeSplitter struct{}

func (fakeSplitter) NeedsSplitting(start time.Time, d int) bool { return false }
func (fakeSplitter) Split(start time.Time, d int) ([]domain.TimeSlot, error) {
	end := start.Add(time.Duration(d) * time.Minute)
	return []domain.TimeSlot{{Start: start, End: end, DurationMinutes: d}}, nil
}

// splittingSplitter splits any duration over 30 minutes into two halves
// (the second takes the odd minute), used to exercise the
// continuation-instance path.
type splittingSplitter struct{}

func (splittingSplitter) NeedsSplitting(start time.Time, d int) bool { return d > 30 }
func (splittingSplitter) Split(start time.Time, d int) ([]domain.TimeSlot, error) {
	half := d / 2
	mid := start.Add(time.Duration(half) * time.Minute)
	end := mid.Add(time.Duration(d-half) * time.Minute)
	return []domain.TimeSlot{
		{Start: start, End: mid, DurationMinutes: half, IsSplit: true},
		{Start: mid, End: end, DurationMinutes: d - half, IsSplit: false},
	}, nil
}

// fakeCapacity schedules back-to-back from the given earliest time, no
// persistence, no gaps.
type fakeCapacity struct {
	splitCalls int
}

func (f *fakeCapacity) ScheduleSimple(ctx context.Context, instanceID, jobID, stageID string, durationMinutes int, earliestStart time.Time) (time.Time, time.Time, error) {
	return earliestStart, earliestStart.Add(time.Duration(durationMinutes) * time.Minute), nil
}

func (f *fakeCapacity) CommitSplit(ctx context.Context, instanceID, jobID, stageID string, parts []domain.TimeSlot) ([]domain.StageTimeSlot, error) {
	f.splitCalls++
	return nil, nil
}

// occupiedCapacity simulates a stage whose queue is already occupied ahead
// of the requested earliestStart: every ScheduleSimple call commits
// queueEnd instead of earliestStart, exactly as capacity.Store.ScheduleSimple
// would when a prior commit already holds that slot.
type occupiedCapacity struct {
	queueEnd time.Time
}

func (c *occupiedCapacity) ScheduleSimple(ctx context.Context, instanceID, jobID, stageID string, durationMinutes int, earliestStart time.Time) (time.Time, time.Time, error) {
	start := c.queueEnd
	if earliestStart.After(start) {
		start = earliestStart
	}
	return start, start.Add(time.Duration(durationMinutes) * time.Minute), nil
}

func (c *occupiedCapacity) CommitSplit(ctx context.Context, instanceID, jobID, stageID string, parts []domain.TimeSlot) ([]domain.StageTimeSlot, error) {
	return nil, nil
}

type fakeWriter struct {
	updates      map[string][2]time.Time
	continuations []*domain.StageInstance
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{updates: make(map[string][2]time.Time)}
}

func (w *fakeWriter) UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error {
	w.updates[instanceID] = [2]time.Time{start, end}
	return nil
}

func (w *fakeWriter) UpdateSplitMetadata(ctx context.Context, instanceID string, splitSequence, totalSplits int, parentSplitID *string, uniqueStageKey string) error {
	return nil
}

func (w *fakeWriter) CreateContinuationInstance(ctx context.Context, inst *domain.StageInstance) error {
	w.continuations = append(w.continuations, inst)
	return nil
}

func TestPathProcessor_SchedulesSequentially(t *testing.T) {
	writer := newFakeWriter()
	pp := pathproc.New(fakeSplitter{}, &fakeCapacity{}, writer, nil)

	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	path := []*domain.StageInstance{
		{InstanceID: "s1", StageID: "print", StageOrder: 1, EstimatedDurationMinutes: 60},
		{InstanceID: "s2", StageID: "laminate", StageOrder: 2, EstimatedDurationMinutes: 30},
	}

	result, err := pp.Process(context.Background(), "job-1", path, now)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.StageCompletions, 2)

	require.Equal(t, now, result.StageCompletions[0].Start)
	require.Equal(t, now.Add(time.Hour), result.StageCompletions[0].End)
	require.Equal(t, now.Add(time.Hour), result.StageCompletions[1].Start)
	require.Equal(t, now.Add(90*time.Minute), result.StageCompletions[1].End)
	require.Equal(t, now.Add(90*time.Minute), result.PathCompletionTime)
	require.Equal(t, 90, result.TotalMinutes)
}

func TestPathProcessor_EmptyPathReturnsNow(t *testing.T) {
	pp := pathproc.New(fakeSplitter{}, &fakeCapacity{}, newFakeWriter(), nil)
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)

	result, err := pp.Process(context.Background(), "job-1", nil, now)
	require.NoError(t, err)
	require.Equal(t, now, result.PathCompletionTime)
}

// TestPathProcessor_CommittedStartReflectsQueueOccupancy guards against
// StageCompletion.Start silently echoing the requested earliest time
// instead of the start capacity.Store actually committed.
func TestPathProcessor_CommittedStartReflectsQueueOccupancy(t *testing.T) {
	writer := newFakeWriter()
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	queueEnd := now.Add(90 * time.Minute)
	cap := &occupiedCapacity{queueEnd: queueEnd}
	pp := pathproc.New(fakeSplitter{}, cap, writer, nil)

	path := []*domain.StageInstance{
		{InstanceID: "s1", StageID: "cutter", StageOrder: 1, EstimatedDurationMinutes: 30},
	}

	result, err := pp.Process(context.Background(), "job-1", path, now)
	require.NoError(t, err)
	require.Len(t, result.StageCompletions, 1)

	// The stage's queue is already occupied until queueEnd, later than the
	// requested earliest (now): the committed start must be queueEnd, not
	// the bare earliest time requested.
	require.Equal(t, queueEnd, result.StageCompletions[0].Start)
	require.Equal(t, queueEnd.Add(30*time.Minute), result.StageCompletions[0].End)

	recorded := writer.updates["s1"]
	require.Equal(t, queueEnd, recorded[0])
}

func TestPathProcessor_SplitCreatesContinuation(t *testing.T) {
	writer := newFakeWriter()
	cap := &fakeCapacity{}
	pp := pathproc.New(splittingSplitter{}, cap, writer, nil)

	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	path := []*domain.StageInstance{
		{InstanceID: "s1", StageID: "press", StageOrder: 1, EstimatedDurationMinutes: 120},
	}

	result, err := pp.Process(context.Background(), "job-2", path, now)
	require.NoError(t, err)
	require.True(t, result.StageCompletions[0].WasSplit)
	require.Equal(t, 1, cap.splitCalls)
	require.Len(t, writer.continuations, 1)
	require.Equal(t, 2, writer.continuations[0].SplitSequence)
	require.Equal(t, "s1", *writer.continuations[0].ParentSplitID)
}
