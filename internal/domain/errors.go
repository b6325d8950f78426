package domain

import "errors"

// Sentinel error kinds, matched by callers with errors.Is. Each maps to a
// row in spec.md §7's error-handling table.
var (
	// ErrWorkflowNotFound is raised by the workflow analyzer when a job has
	// zero stage instances. Aborts ScheduleJob.
	ErrWorkflowNotFound = errors.New("workflow not found: job has no stage instances")

	// ErrNoWorkingDayFound is raised by Calendar when no working day is
	// found within 7 consecutive days. Fatal: aborts the whole call.
	ErrNoWorkingDayFound = errors.New("no working day found within 7 days")

	// ErrPersistence wraps any write/read failure from the persistence
	// adapter. Aborts the current stage; caller records it and continues.
	ErrPersistence = errors.New("persistence error")

	// ErrInconsistency is raised when a capacity readback disagrees with a
	// just-completed commit. Aborts the whole call.
	ErrInconsistency = errors.New("capacity store inconsistency")

	// ErrStagesNotAllOnDate is raised by ShiftReorderer when a supplied
	// instance has no slot on the requested date. No writes occur.
	ErrStagesNotAllOnDate = errors.New("not all supplied stages have a slot on the given date")

	// ErrCancelled is returned when a caller's cancellation signal is
	// observed between stages. Already-committed stages remain valid.
	ErrCancelled = errors.New("scheduling run cancelled")

	// ErrConfigUnavailable is raised when working-hours configuration
	// cannot be read; callers may recover with documented defaults.
	ErrConfigUnavailable = errors.New("working hours configuration unavailable")
)
