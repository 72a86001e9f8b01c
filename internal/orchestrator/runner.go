package orchestrator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/events"
)

// ErrBatchInFlight is returned by SubmitAll while a previous batch is still
// active. A new batch may only be submitted once the previous one has
// completed and Shutdown has been called.
var ErrBatchInFlight = errors.New("a batch is already in flight")

// ErrNilWorkFn is returned by SubmitAll when no work function is supplied.
var ErrNilWorkFn = errors.New("work function is nil")

// Orchestrator runs one batch of independent work units concurrently and
// tracks per-unit state behind a lock. The caller owns its lifecycle:
// SubmitAll, then poll Snapshot/IsComplete, then Shutdown.
//
// The bus is optional; when set, the orchestrator publishes a lifecycle
// event per transition plus a batch progress event. Events supplement the
// polling API, they do not replace it.
type Orchestrator struct {
	mu       sync.Mutex
	tracker  *batch.Tracker
	group    *errgroup.Group
	bus      *events.EventBus
	active   bool // SubmitAll accepted, Shutdown not yet called
	launched bool // at least one batch was ever submitted
}

// New creates an orchestrator. bus may be nil.
func New(bus *events.EventBus) *Orchestrator {
	return &Orchestrator{
		tracker: batch.NewTracker(),
		bus:     bus,
	}
}

// SubmitAll installs a fresh task map (one pending task per unit, installed
// atomically so no observer sees a partial batch) and starts one worker per
// unit. All units run in parallel; the pool is sized to the batch.
//
// Preconditions are checked synchronously: units must be non-empty with
// unique ids, fn must be non-nil, and no batch may be in flight. In-flight
// means either Shutdown has not been called, or it was called before the
// batch finished and stragglers may still be running.
func (o *Orchestrator) SubmitAll(units []batch.Unit, fn batch.WorkFn) error {
	if fn == nil {
		return ErrNilWorkFn
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active {
		return ErrBatchInFlight
	}
	if o.launched && !o.tracker.IsComplete() {
		return ErrBatchInFlight
	}

	tracker := batch.NewTracker()
	if err := tracker.Install(units); err != nil {
		return fmt.Errorf("installing batch: %w", err)
	}

	o.tracker = tracker
	o.active = true
	o.launched = true

	g := &errgroup.Group{}
	g.SetLimit(len(units))
	o.group = g

	for _, unit := range units {
		u := unit
		g.Go(func() error {
			o.runUnit(tracker, u, fn)
			return nil
		})
	}

	return nil
}

// runUnit drives one task through its lifecycle: mark running under the
// lock, execute the work function outside it, then record the outcome.
// Any panic escaping the work function becomes a failure outcome for this
// task only; sibling workers are unaffected.
func (o *Orchestrator) runUnit(tracker *batch.Tracker, u batch.Unit, fn batch.WorkFn) {
	if err := tracker.MarkRunning(u.ID); err != nil {
		log.Printf("ERROR: failed to mark unit %q running: %v", u.ID, err)
		return
	}
	o.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        u.ID,
		Label:     u.Label,
		Timestamp: time.Now(),
	})
	o.publishProgress(tracker)

	out := safeInvoke(fn, u)

	if err := tracker.MarkFinished(u.ID, out); err != nil {
		log.Printf("ERROR: failed to record outcome for unit %q: %v", u.ID, err)
		return
	}

	state, _ := tracker.Get(u.ID)
	if out.OK() {
		o.publish(events.TopicTask, events.TaskSucceededEvent{
			ID:        u.ID,
			Label:     u.Label,
			Duration:  state.Elapsed(),
			Timestamp: time.Now(),
		})
	} else {
		o.publish(events.TopicTask, events.TaskFailedEvent{
			ID:        u.ID,
			Label:     u.Label,
			Err:       out.Err,
			Duration:  state.Elapsed(),
			Timestamp: time.Now(),
		})
	}
	o.publishProgress(tracker)
}

// safeInvoke calls fn and converts an escaping panic into a failure outcome.
func safeInvoke(fn batch.WorkFn, u batch.Unit) (out batch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = batch.Fail(fmt.Sprintf("work function panicked: %v", r))
		}
	}()
	return fn(u)
}

// Snapshot returns a consistent copy of the current batch's task states.
// Safe to call from any goroutine at any point in the lifecycle, including
// after Shutdown, when it still reflects the last-known state.
func (o *Orchestrator) Snapshot() map[string]batch.TaskState {
	return o.currentTracker().Snapshot()
}

// IsComplete reports whether every task in the current batch is terminal.
// False before the first SubmitAll and immediately after one, while tasks
// are still pending.
func (o *Orchestrator) IsComplete() bool {
	return o.currentTracker().IsComplete()
}

// Counts returns the current per-status tally.
func (o *Orchestrator) Counts() batch.Counts {
	return o.currentTracker().Counts()
}

// Order returns unit ids in submission order.
func (o *Orchestrator) Order() []string {
	return o.currentTracker().Order()
}

// Wait blocks until all workers of the current batch have exited.
// Intended for headless callers and tests; the polling observer contract
// does not need it.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	g := o.group
	o.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}
}

// Shutdown releases the worker pool reference. Non-blocking: it does not
// wait for stragglers, and running workers finish their own tasks
// regardless. Idempotent, and safe to call before completion; Snapshot
// continues to serve the last-known state afterwards.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active {
		return
	}
	o.active = false
	o.group = nil
}

// currentTracker returns the tracker for the current batch. Taking the
// pointer under the orchestrator lock keeps map enumeration atomic with
// respect to a concurrent SubmitAll replacing the batch.
func (o *Orchestrator) currentTracker() *batch.Tracker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tracker
}

func (o *Orchestrator) publish(topic string, event events.Event) {
	if o.bus != nil {
		o.bus.Publish(topic, event)
	}
}

func (o *Orchestrator) publishProgress(tracker *batch.Tracker) {
	if o.bus == nil {
		return
	}
	c := tracker.Counts()
	o.bus.Publish(events.TopicBatch, events.BatchProgressEvent{
		Total:     c.Total,
		Pending:   c.Pending,
		Running:   c.Running,
		Succeeded: c.Succeeded,
		Failed:    c.Failed,
		Timestamp: time.Now(),
	})
}
