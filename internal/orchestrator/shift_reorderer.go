package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/logx"
)

// SlotRepository is the subset of the persistence layer ShiftReorderer
// depends on to read and rewrite a single day's committed slots for one
// stage.
type SlotRepository interface {
	SlotsForStageDate(ctx context.Context, stageID string, date time.Time) ([]domain.StageTimeSlot, error)
	RewriteSlot(ctx context.Context, slotID string, start, end time.Time) error
}

// InstanceTimeWriter updates a StageInstance's scheduled window after a
// slot has been moved.
type InstanceTimeWriter interface {
	UpdateScheduledTimes(ctx context.Context, instanceID string, start, end time.Time) error
}

// GroupingType selects how ReorderDay expands the caller-supplied instance
// order before committing slot times (spec.md §4.9 step 3, and the
// groupingType parameter of §6.1's ReorderDay).
type GroupingType string

const (
	// GroupingByJob is the default: other supplied instances belonging to
	// the same job are pulled in, stageOrder ascending, before the next
	// job's instances, keeping multi-part (cover/text) jobs contiguous.
	GroupingByJob GroupingType = "job"
	// GroupingNone uses desiredInstanceOrder literally, with no
	// same-job expansion.
	GroupingNone GroupingType = "none"
)

// ReorderOptions carries spec.md §4.9's tunable parameters beyond the bare
// instance order.
type ReorderOptions struct {
	// ShiftStart and ShiftEnd are wall-clock time-of-day components only
	// (as domain.ShiftSchedule stores them); the date part is ignored.
	// A zero ShiftStart falls back to the stage's normal working-day start.
	// ShiftEnd is not read: slots are laid out back-to-back from the start
	// with no end bound.
	ShiftStart time.Time
	ShiftEnd   time.Time
	// DayWideReorder, when true, pulls in every existing slot on
	// stageID/date even if its instance wasn't named in
	// desiredInstanceOrder, appending the untouched ones after the
	// supplied ones in their original relative order. When false (the
	// spec's literal algorithm), only the supplied instances are
	// rewritten.
	DayWideReorder bool
	// GroupingType selects the step-3 same-job expansion; the zero value
	// behaves as GroupingByJob.
	GroupingType GroupingType
}

// ShiftReorderer implements spec.md §4.9's ReorderDay: a supervisor
// re-sequences the instances queued on one stage for one date, and the
// slots of every gathered instance are rewritten back-to-back in the new
// order from the shift start. Slots of instances that were not gathered
// keep their times.
type ShiftReorderer struct {
	cal       Calendar
	repo      SlotRepository
	inst      InstanceTimeWriter
	instances InstanceReader
	log       logx.Logger
}

// NewShiftReorderer builds a ShiftReorderer.
func NewShiftReorderer(cal Calendar, repo SlotRepository, inst InstanceTimeWriter, instances InstanceReader, log logx.Logger) *ShiftReorderer {
	return &ShiftReorderer{cal: cal, repo: repo, inst: inst, instances: instances, log: log}
}

// instanceGroup collects every slot belonging to one instance on the
// target date, plus the instance metadata needed for ordering.
type instanceGroup struct {
	instanceID string
	jobID      string
	stageOrder int
	isSplit    bool
	slots      []domain.StageTimeSlot
	position   int // explicit position from desiredInstanceOrder, or appended after for day-wide extras
}

// ReorderDay re-sequences stageID's slots on date to match
// desiredInstanceOrder, honoring opts. Every supplied instance must already
// have a slot on that date, or ErrStagesNotAllOnDate is returned. Instances
// with IsSplit()==true are pushed to the tail of the final order, ordered
// among themselves by their position in desiredInstanceOrder (day-wide
// extras after them, in original slot order).
func (r *ShiftReorderer) ReorderDay(ctx context.Context, stageID string, date time.Time, desiredInstanceOrder []string, opts ReorderOptions) error {
	existing, err := r.repo.SlotsForStageDate(ctx, stageID, date)
	if err != nil {
		return err
	}

	slotsByInstance := make(map[string][]domain.StageTimeSlot)
	for _, s := range existing {
		slotsByInstance[s.InstanceID] = append(slotsByInstance[s.InstanceID], s)
	}
	for id, slots := range slotsByInstance {
		sort.Slice(slots, func(i, j int) bool { return slots[i].SlotStart.Before(slots[j].SlotStart) })
		slotsByInstance[id] = slots
	}

	position := make(map[string]int, len(desiredInstanceOrder))
	for i, id := range desiredInstanceOrder {
		position[id] = i
	}

	jobOf := make(map[string]string, len(slotsByInstance))
	for id, slots := range slotsByInstance {
		if len(slots) > 0 {
			jobOf[id] = slots[0].JobID
		}
	}

	for _, id := range desiredInstanceOrder {
		if _, ok := slotsByInstance[id]; !ok {
			return fmt.Errorf("%w: instance %s has no slot on %s", domain.ErrStagesNotAllOnDate, id, date.Format("2006-01-02"))
		}
	}

	candidateIDs := append([]string{}, desiredInstanceOrder...)
	included := make(map[string]bool, len(desiredInstanceOrder))
	for _, id := range desiredInstanceOrder {
		included[id] = true
	}

	if opts.GroupingType != GroupingNone {
		// Step 3: pull in every other instance sharing a job with a
		// supplied instance, even if it wasn't named explicitly, so the
		// job stays contiguous once grouped by stageOrder.
		wantedJobs := make(map[string]bool, len(desiredInstanceOrder))
		for _, id := range desiredInstanceOrder {
			wantedJobs[jobOf[id]] = true
		}
		var siblingIDs []string
		for id := range slotsByInstance {
			if included[id] || !wantedJobs[jobOf[id]] {
				continue
			}
			siblingIDs = append(siblingIDs, id)
		}
		sort.Strings(siblingIDs)
		for _, id := range siblingIDs {
			pos := len(desiredInstanceOrder)
			for _, did := range desiredInstanceOrder {
				if jobOf[did] == jobOf[id] {
					pos = position[did]
					break
				}
			}
			position[id] = pos
			candidateIDs = append(candidateIDs, id)
			included[id] = true
		}
	}

	if opts.DayWideReorder {
		// Append every remaining existing instance after the ones already
		// gathered, in their original relative slot-start order.
		type idStart struct {
			id    string
			start time.Time
		}
		var extras []idStart
		for id, slots := range slotsByInstance {
			if included[id] {
				continue
			}
			extras = append(extras, idStart{id: id, start: slots[0].SlotStart})
		}
		sort.Slice(extras, func(i, j int) bool { return extras[i].start.Before(extras[j].start) })
		for i, e := range extras {
			position[e.id] = len(candidateIDs) + i
			candidateIDs = append(candidateIDs, e.id)
		}
	}

	groups := make([]instanceGroup, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		slots := slotsByInstance[id]
		jobID := ""
		if len(slots) > 0 {
			jobID = slots[0].JobID
		}
		stageOrder := 0
		isSplit := false
		if r.instances != nil {
			if meta, merr := r.instances.InstanceByID(ctx, id); merr == nil && meta != nil {
				stageOrder = meta.StageOrder
				isSplit = meta.IsSplit()
				if meta.JobID != "" {
					jobID = meta.JobID
				}
			}
		}
		groups = append(groups, instanceGroup{
			instanceID: id,
			jobID:      jobID,
			stageOrder: stageOrder,
			isSplit:    isSplit,
			slots:      slots,
			position:   position[id],
		})
	}

	ordered := r.expand(groups, opts.GroupingType)

	loc := r.cal.Location()
	cursor := opts.ShiftStart
	if cursor.IsZero() {
		cursor = r.cal.WorkingDayStart(date)
	} else {
		cursor = combineDateAndTimeOfDay(date, cursor, loc)
	}

	for _, group := range ordered {
		var firstStart, lastEnd time.Time
		for i, slot := range group.slots {
			duration := slot.DurationMinutes
			start := cursor
			end := start.Add(time.Duration(duration) * time.Minute)

			if err := r.repo.RewriteSlot(ctx, slot.SlotID, start, end); err != nil {
				return err
			}
			if i == 0 {
				firstStart = start
			}
			lastEnd = end
			cursor = end
		}

		if err := r.inst.UpdateScheduledTimes(ctx, group.instanceID, firstStart, lastEnd); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}

		r.log.Info("reordered slot", "stageId", stageID, "instanceId", group.instanceID, "start", firstStart, "end", lastEnd)
	}

	return nil
}

// expand applies spec.md §4.9 step 3 (same-job contiguous grouping) unless
// grouping is explicitly disabled, then pushes split instances to the tail.
func (r *ShiftReorderer) expand(groups []instanceGroup, grouping GroupingType) []instanceGroup {
	head := make([]instanceGroup, 0, len(groups))
	var tail []instanceGroup
	for _, g := range groups {
		if g.isSplit {
			tail = append(tail, g)
			continue
		}
		head = append(head, g)
	}

	if grouping != GroupingNone {
		head = groupByJob(head)
	} else {
		sort.SliceStable(head, func(i, j int) bool { return head[i].position < head[j].position })
	}
	sort.SliceStable(tail, func(i, j int) bool { return tail[i].position < tail[j].position })

	return append(head, tail...)
}

// groupByJob orders instances by job of first appearance (desired
// position), then within each job's group by stageOrder ascending, so a
// job's cover-then-text instances land contiguously.
func groupByJob(groups []instanceGroup) []instanceGroup {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].position < groups[j].position })

	jobOrder := make([]string, 0)
	byJob := make(map[string][]instanceGroup)
	for _, g := range groups {
		if _, seen := byJob[g.jobID]; !seen {
			jobOrder = append(jobOrder, g.jobID)
		}
		byJob[g.jobID] = append(byJob[g.jobID], g)
	}

	out := make([]instanceGroup, 0, len(groups))
	for _, jobID := range jobOrder {
		members := byJob[jobID]
		sort.SliceStable(members, func(i, j int) bool { return members[i].stageOrder < members[j].stageOrder })
		out = append(out, members...)
	}
	return out
}

// combineDateAndTimeOfDay takes date's year/month/day and timeOfDay's
// hour/minute/second, in loc.
func combineDateAndTimeOfDay(date, timeOfDay time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	t := timeOfDay
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
