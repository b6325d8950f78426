package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printshop/scheduler/internal/calendar"
	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/orchestrator"
)

type fakeSlotRepo struct {
	slots map[string]domain.StageTimeSlot // slotID -> slot
}

func newFakeSlotRepo(slots []domain.StageTimeSlot) *fakeSlotRepo {
	r := &fakeSlotRepo{slots: make(map[string]domain.StageTimeSlot)}
	for _, s := range slots {
		r.slots[s.SlotID] = s
	}
	return r
}

func (r *fakeSlotRepo) SlotsForStageDate(ctx context.Context, stageID string, date time.Time) ([]domain.StageTimeSlot, error) {
	var out []domain.StageTimeSlot
	for _, s := range r.slots {
		if s.StageID == stageID && sameDate(s.Date, date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) RewriteSlot(ctx context.Context, slotID string, start, end time.Time) error {
	s := r.slots[slotID]
	s.SlotStart = start
	s.SlotEnd = end
	r.slots[slotID] = s
	return nil
}

type instanceTimes struct {
	updates map[string][2]time.Time
}

func (i *instanceTimes) UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error {
	if i.updates == nil {
		i.updates = make(map[string][2]time.Time)
	}
	i.updates[instanceID] = [2]time.Time{start, end}
	return nil
}

// fakeInstanceMetaReader serves fixed StageInstance metadata keyed by
// InstanceID, for ShiftReorderer's job-grouping/split-tail lookups.
type fakeInstanceMetaReader struct {
	byID map[string]*domain.StageInstance
}

func newFakeInstanceMetaReader(insts ...*domain.StageInstance) *fakeInstanceMetaReader {
	r := &fakeInstanceMetaReader{byID: make(map[string]*domain.StageInstance)}
	for _, inst := range insts {
		r.byID[inst.InstanceID] = inst
	}
	return r
}

func (r *fakeInstanceMetaReader) InstanceByID(ctx context.Context, instanceID string) (*domain.StageInstance, error) {
	inst, ok := r.byID[instanceID]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

// S6 — reordering a day's queue reschedules every slot back-to-back in the
// new order, starting from the shift's opening time.
func TestShiftReorderer_ReorderDay_SwapsQueueOrder(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotA", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 60, JobID: "jobA", InstanceID: "jobA-print"},
		{SlotID: "slotB", StageID: "press1", Date: date, SlotStart: date.Add(9 * time.Hour), SlotEnd: date.Add(10 * time.Hour), DurationMinutes: 60, JobID: "jobB", InstanceID: "jobB-print"},
	})

	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(
		&domain.StageInstance{InstanceID: "jobA-print", JobID: "jobA", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobB-print", JobID: "jobB", StageOrder: 1},
	)

	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobB-print", "jobA-print"}, orchestrator.ReorderOptions{})
	require.NoError(t, err)

	start := cal.WorkingDayStart(date)
	require.Equal(t, start, repo.slots["slotB"].SlotStart)
	require.Equal(t, start.Add(time.Hour), repo.slots["slotB"].SlotEnd)
	require.Equal(t, start.Add(time.Hour), repo.slots["slotA"].SlotStart)
	require.Equal(t, start.Add(2*time.Hour), repo.slots["slotA"].SlotEnd)

	require.Equal(t, [2]time.Time{start, start.Add(time.Hour)}, inst.updates["jobB-print"])
}

func TestShiftReorderer_MissingInstanceErrors(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)
	repo := newFakeSlotRepo(nil)
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	reorderer := orchestrator.NewShiftReorderer(cal, repo, &instanceTimes{}, newFakeInstanceMetaReader(), logx.Noop())
	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"ghost"}, orchestrator.ReorderOptions{})
	require.ErrorIs(t, err, domain.ErrStagesNotAllOnDate)
}

// TestShiftReorderer_ShiftStartOverridesWorkingDayStart guards the
// shiftStart/shiftEnd parameters spec.md §4.9 names but the original
// implementation dropped: the cursor must start from the supplied
// shiftStart wall-clock time, not the calendar's own working-day start.
func TestShiftReorderer_ShiftStartOverridesWorkingDayStart(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotA", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 60, JobID: "jobA", InstanceID: "jobA-print"},
	})
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(&domain.StageInstance{InstanceID: "jobA-print", JobID: "jobA", StageOrder: 1})
	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	shiftStart := time.Date(1, 1, 1, 13, 0, 0, 0, loc)
	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobA-print"}, orchestrator.ReorderOptions{ShiftStart: shiftStart})
	require.NoError(t, err)

	want := time.Date(2026, 8, 3, 13, 0, 0, 0, loc)
	require.Equal(t, want, repo.slots["slotA"].SlotStart)
	require.Equal(t, want.Add(time.Hour), repo.slots["slotA"].SlotEnd)
}

// TestShiftReorderer_GroupsSameJobInstancesContiguously guards §4.9 step 3:
// when only one instance of a multi-instance job is named, the other
// instance of the same job already queued that day must be pulled in
// immediately afterward (stageOrder ascending), keeping the job contiguous
// instead of leaving it split across the new order.
func TestShiftReorderer_GroupsSameJobInstancesContiguously(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotOther", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 60, JobID: "jobOther", InstanceID: "other-print"},
		{SlotID: "slotCover", StageID: "press1", Date: date, SlotStart: date.Add(9 * time.Hour), SlotEnd: date.Add(10 * time.Hour), DurationMinutes: 60, JobID: "jobX", InstanceID: "jobX-cover"},
		{SlotID: "slotText", StageID: "press1", Date: date, SlotStart: date.Add(10 * time.Hour), SlotEnd: date.Add(11 * time.Hour), DurationMinutes: 30, JobID: "jobX", InstanceID: "jobX-text"},
	})
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(
		&domain.StageInstance{InstanceID: "other-print", JobID: "jobOther", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobX-cover", JobID: "jobX", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobX-text", JobID: "jobX", StageOrder: 2},
	)
	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	// Name only jobX-text first; jobX-cover must still be pulled in right
	// after it (stageOrder ascending means cover, stageOrder 1, actually
	// precedes text within the job group) and before jobOther's instance.
	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobX-text", "other-print"}, orchestrator.ReorderOptions{})
	require.NoError(t, err)

	start := cal.WorkingDayStart(date)
	// jobX's instances land first, contiguously, cover (stageOrder 1) then
	// text (stageOrder 2), regardless of the supplied order; jobOther
	// follows.
	require.Equal(t, start, repo.slots["slotCover"].SlotStart)
	require.Equal(t, start.Add(time.Hour), repo.slots["slotText"].SlotStart)
	require.Equal(t, start.Add(90*time.Minute), repo.slots["slotOther"].SlotStart)
}

// TestShiftReorderer_PushesSplitInstancesToTail guards §4.9's split-tail
// rule: an instance representing a continuation of an already-split stage
// must land after every non-split instance, even if named first.
func TestShiftReorderer_PushesSplitInstancesToTail(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotSplit", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 60, JobID: "jobSplit", InstanceID: "jobSplit-part2"},
		{SlotID: "slotPlain", StageID: "press1", Date: date, SlotStart: date.Add(9 * time.Hour), SlotEnd: date.Add(10 * time.Hour), DurationMinutes: 60, JobID: "jobPlain", InstanceID: "jobPlain-print"},
	})
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(
		&domain.StageInstance{InstanceID: "jobSplit-part2", JobID: "jobSplit", StageOrder: 1, SplitSequence: 2, TotalSplits: 2},
		&domain.StageInstance{InstanceID: "jobPlain-print", JobID: "jobPlain", StageOrder: 1},
	)
	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobSplit-part2", "jobPlain-print"}, orchestrator.ReorderOptions{})
	require.NoError(t, err)

	start := cal.WorkingDayStart(date)
	require.Equal(t, start, repo.slots["slotPlain"].SlotStart)
	require.Equal(t, start.Add(time.Hour), repo.slots["slotSplit"].SlotStart)
}

// TestShiftReorderer_SumsDurationAcrossMultipleSlotsPerInstance guards step
// 2's "total duration per instance is the sum of its slot durations" when
// one instance has more than one slot on the target date.
func TestShiftReorderer_SumsDurationAcrossMultipleSlotsPerInstance(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotA1", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(8*time.Hour + 30*time.Minute), DurationMinutes: 30, JobID: "jobA", InstanceID: "jobA-print"},
		{SlotID: "slotA2", StageID: "press1", Date: date, SlotStart: date.Add(8*time.Hour + 30*time.Minute), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 30, JobID: "jobA", InstanceID: "jobA-print"},
		{SlotID: "slotB", StageID: "press1", Date: date, SlotStart: date.Add(9 * time.Hour), SlotEnd: date.Add(9*time.Hour + 20*time.Minute), DurationMinutes: 20, JobID: "jobB", InstanceID: "jobB-print"},
	})
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(
		&domain.StageInstance{InstanceID: "jobA-print", JobID: "jobA", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobB-print", JobID: "jobB", StageOrder: 1},
	)
	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobB-print", "jobA-print"}, orchestrator.ReorderOptions{})
	require.NoError(t, err)

	start := cal.WorkingDayStart(date)
	require.Equal(t, start, repo.slots["slotB"].SlotStart)
	require.Equal(t, start.Add(20*time.Minute), repo.slots["slotB"].SlotEnd)
	// jobA's two slots follow back-to-back, each keeping its own duration.
	require.Equal(t, start.Add(20*time.Minute), repo.slots["slotA1"].SlotStart)
	require.Equal(t, start.Add(50*time.Minute), repo.slots["slotA1"].SlotEnd)
	require.Equal(t, start.Add(50*time.Minute), repo.slots["slotA2"].SlotStart)
	require.Equal(t, start.Add(80*time.Minute), repo.slots["slotA2"].SlotEnd)
	require.Equal(t, [2]time.Time{start.Add(20 * time.Minute), start.Add(80 * time.Minute)}, inst.updates["jobA-print"])
}

// TestShiftReorderer_DayWideReorderPullsInUnsuppliedInstances guards the
// dayWideReorder parameter: when true, every instance already queued on
// stageID/date is re-sequenced, not just the ones named explicitly.
func TestShiftReorderer_DayWideReorderPullsInUnsuppliedInstances(t *testing.T) {
	loc := mustLoc(t)
	date := time.Date(2026, 8, 3, 0, 0, 0, 0, loc)

	repo := newFakeSlotRepo([]domain.StageTimeSlot{
		{SlotID: "slotA", StageID: "press1", Date: date, SlotStart: date.Add(8 * time.Hour), SlotEnd: date.Add(9 * time.Hour), DurationMinutes: 60, JobID: "jobA", InstanceID: "jobA-print"},
		{SlotID: "slotB", StageID: "press1", Date: date, SlotStart: date.Add(9 * time.Hour), SlotEnd: date.Add(10 * time.Hour), DurationMinutes: 60, JobID: "jobB", InstanceID: "jobB-print"},
		{SlotID: "slotC", StageID: "press1", Date: date, SlotStart: date.Add(10 * time.Hour), SlotEnd: date.Add(11 * time.Hour), DurationMinutes: 60, JobID: "jobC", InstanceID: "jobC-print"},
	})
	cal, err := calendar.Load(context.Background(), calendarStore{}, logx.Noop())
	require.NoError(t, err)

	insts := newFakeInstanceMetaReader(
		&domain.StageInstance{InstanceID: "jobA-print", JobID: "jobA", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobB-print", JobID: "jobB", StageOrder: 1},
		&domain.StageInstance{InstanceID: "jobC-print", JobID: "jobC", StageOrder: 1},
	)
	inst := &instanceTimes{}
	reorderer := orchestrator.NewShiftReorderer(cal, repo, inst, insts, logx.Noop())

	// Only jobB is named explicitly; jobC (queued after jobA, before this
	// call) must still be re-sequenced because dayWideReorder is set.
	err = reorderer.ReorderDay(context.Background(), "press1", date, []string{"jobB-print"}, orchestrator.ReorderOptions{DayWideReorder: true})
	require.NoError(t, err)

	start := cal.WorkingDayStart(date)
	require.Equal(t, start, repo.slots["slotB"].SlotStart)
	// jobA and jobC follow, in their original relative order (A before C).
	require.Equal(t, start.Add(time.Hour), repo.slots["slotA"].SlotStart)
	require.Equal(t, start.Add(2*time.Hour), repo.slots["slotC"].SlotStart)
}
