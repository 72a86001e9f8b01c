package batch

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Submission errors returned by Install.
var (
	ErrEmptyBatch    = errors.New("batch contains no units")
	ErrDuplicateUnit = errors.New("duplicate unit id")
)

// ErrUnknownUnit is returned by Mark operations for ids not in the batch.
var ErrUnknownUnit = errors.New("unknown unit id")

// Counts is a per-status tally of the current batch.
type Counts struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
}

// Tracker holds the task states for one batch behind a single mutex.
// Workers mutate only their own entry; any number of observers may read
// concurrently through Snapshot/IsComplete. The map is installed atomically,
// so observers never see a partially-populated batch.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*TaskState
	order []string // insertion order, for stable display
}

// NewTracker creates an empty tracker. Install must be called before any
// Mark operation.
func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[string]*TaskState),
	}
}

// Install atomically replaces the task map with a fresh one, one pending
// task per unit. Rejects empty batches and duplicate ids without touching
// the existing map.
func (tr *Tracker) Install(units []Unit) error {
	if len(units) == 0 {
		return ErrEmptyBatch
	}

	tasks := make(map[string]*TaskState, len(units))
	order := make([]string, 0, len(units))
	for _, u := range units {
		if _, exists := tasks[u.ID]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateUnit, u.ID)
		}
		tasks[u.ID] = &TaskState{Unit: u, Status: StatusPending}
		order = append(order, u.ID)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tasks = tasks
	tr.order = order
	return nil
}

// MarkRunning transitions a pending task to running and records its start
// time. Called by the task's own worker, never by observers.
func (tr *Tracker) MarkRunning(id string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	task, exists := tr.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	if task.Status != StatusPending {
		return fmt.Errorf("unit %q cannot start from status %q", id, task.Status)
	}

	task.Status = StatusRunning
	task.StartedAt = time.Now()
	return nil
}

// MarkFinished transitions a running task to its terminal status, derived
// from the outcome, and records the finish time.
func (tr *Tracker) MarkFinished(id string, out Outcome) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	task, exists := tr.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, id)
	}
	if task.Status != StatusRunning {
		return fmt.Errorf("unit %q cannot finish from status %q", id, task.Status)
	}

	task.FinishedAt = time.Now()
	task.Outcome = &out
	if out.OK() {
		task.Status = StatusSucceeded
	} else {
		task.Status = StatusFailed
	}
	return nil
}

// Get returns a copy of one task's state.
func (tr *Tracker) Get(id string) (TaskState, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	task, exists := tr.tasks[id]
	if !exists {
		return TaskState{}, false
	}
	return cloneTask(task), true
}

// Snapshot returns a copy of all task states, read under a single lock
// acquisition so the result reflects one consistent instant. Safe for the
// caller to inspect without further locking.
func (tr *Tracker) Snapshot() map[string]TaskState {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	snap := make(map[string]TaskState, len(tr.tasks))
	for id, task := range tr.tasks {
		snap[id] = cloneTask(task)
	}
	return snap
}

// Order returns unit ids in submission order.
func (tr *Tracker) Order() []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return append([]string(nil), tr.order...)
}

// IsComplete reports whether the batch is non-empty and every task has
// reached a terminal status. Evaluated under the same lock as mutations,
// so a true result is never stale.
func (tr *Tracker) IsComplete() bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	if len(tr.tasks) == 0 {
		return false
	}
	for _, task := range tr.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// Counts tallies tasks by status under one lock acquisition.
func (tr *Tracker) Counts() Counts {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	c := Counts{Total: len(tr.tasks)}
	for _, task := range tr.tasks {
		switch task.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusSucceeded:
			c.Succeeded++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

func cloneTask(task *TaskState) TaskState {
	cp := *task
	if task.Outcome != nil {
		out := *task.Outcome
		cp.Outcome = &out
	}
	return cp
}
