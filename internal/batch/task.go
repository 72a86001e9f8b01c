package batch

import "time"

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"   // Created, worker has not started
	StatusRunning   Status = "running"   // Worker is executing the work function
	StatusSucceeded Status = "succeeded" // Finished with a success outcome
	StatusFailed    Status = "failed"    // Finished with a failure outcome or fault
)

// Terminal reports whether the status is final. Terminal tasks never
// transition again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Unit is an immutable descriptor for one unit of work.
// ID must be unique within a batch; Payload is opaque to the tracker
// and is interpreted only by the work function.
type Unit struct {
	ID      string
	Label   string // Human-readable name for display
	Payload any
}

// Outcome is the result of executing one unit: exactly one of Data or Err
// is populated. Immutable once constructed.
type Outcome struct {
	Data any
	Err  string
}

// Succeed builds a success outcome carrying the result payload.
func Succeed(data any) Outcome {
	return Outcome{Data: data}
}

// Fail builds a failure outcome carrying a human-readable message.
func Fail(msg string) Outcome {
	return Outcome{Err: msg}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == ""
}

// WorkFn executes one unit and returns its outcome. It is supplied by the
// caller, invoked exactly once per unit per batch on a dedicated goroutine,
// and may block for as long as it needs. It should not panic; a panic that
// does escape is converted to a failure outcome at the worker boundary.
type WorkFn func(Unit) Outcome

// TaskState tracks the lifecycle of a single unit. One exists per unit,
// created at submission time. Only the owning worker mutates it;
// observers read copies via Tracker.Snapshot.
//
// Field presence follows status: StartedAt is set iff status != pending,
// FinishedAt and Outcome are set iff the status is terminal.
type TaskState struct {
	Unit       Unit
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    *Outcome
}

// Elapsed returns how long the task has been running, or its total
// duration once finished. Zero while pending.
func (t *TaskState) Elapsed() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if !t.FinishedAt.IsZero() {
		return t.FinishedAt.Sub(t.StartedAt)
	}
	return time.Since(t.StartedAt)
}
