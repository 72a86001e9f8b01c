package orchestrator

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/events"
)

func units(ids ...string) []batch.Unit {
	out := make([]batch.Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, batch.Unit{ID: id, Label: id})
	}
	return out
}

func sleepWork(d time.Duration) batch.WorkFn {
	return func(u batch.Unit) batch.Outcome {
		time.Sleep(d)
		return batch.Succeed(u.ID)
	}
}

func TestSubmitAllRunsBatchToCompletion(t *testing.T) {
	o := New(nil)
	if err := o.SubmitAll(units("a", "b", "c"), sleepWork(20*time.Millisecond)); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}

	o.Wait()
	if !o.IsComplete() {
		t.Fatal("batch not complete after Wait")
	}

	snap := o.Snapshot()
	for id, task := range snap {
		if task.Status != batch.StatusSucceeded {
			t.Errorf("task %q: expected succeeded, got %q", id, task.Status)
		}
		if task.FinishedAt.Before(task.StartedAt) {
			t.Errorf("task %q: FinishedAt before StartedAt", id)
		}
	}
}

func TestMixedSuccessAndFailure(t *testing.T) {
	o := New(nil)
	fn := func(u batch.Unit) batch.Outcome {
		time.Sleep(10 * time.Millisecond)
		if u.ID == "bad" {
			return batch.Fail("service temporarily unavailable")
		}
		return batch.Succeed("data for " + u.ID)
	}

	if err := o.SubmitAll(units("good", "bad"), fn); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap["good"].Status != batch.StatusSucceeded {
		t.Errorf("expected 'good' succeeded, got %q", snap["good"].Status)
	}
	if snap["bad"].Status != batch.StatusFailed {
		t.Errorf("expected 'bad' failed, got %q", snap["bad"].Status)
	}
	if snap["bad"].Outcome.Err != "service temporarily unavailable" {
		t.Errorf("unexpected failure message: %q", snap["bad"].Outcome.Err)
	}
}

func TestPanicIsolation(t *testing.T) {
	o := New(nil)
	fn := func(u batch.Unit) batch.Outcome {
		if u.ID == "boom" {
			panic("worker exploded")
		}
		time.Sleep(10 * time.Millisecond)
		return batch.Succeed(u.ID)
	}

	if err := o.SubmitAll(units("a", "boom", "b"), fn); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if snap["boom"].Status != batch.StatusFailed {
		t.Errorf("expected panicking task failed, got %q", snap["boom"].Status)
	}
	if snap["boom"].Outcome == nil || snap["boom"].Outcome.Err == "" {
		t.Error("expected non-empty error message for panicking task")
	}
	// Siblings are unaffected.
	for _, id := range []string{"a", "b"} {
		if snap[id].Status != batch.StatusSucceeded {
			t.Errorf("sibling %q affected by panic: %q", id, snap[id].Status)
		}
	}
}

func TestIsCompleteImmediatelyAfterSubmit(t *testing.T) {
	o := New(nil)
	if o.IsComplete() {
		t.Error("expected false before any submission")
	}

	if err := o.SubmitAll(units("a"), sleepWork(100*time.Millisecond)); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}
	if o.IsComplete() {
		t.Error("expected false immediately after SubmitAll")
	}

	o.Wait()
	if !o.IsComplete() {
		t.Error("expected true after all workers exited")
	}
}

func TestDuplicateIDRejectedBeforeStart(t *testing.T) {
	o := New(nil)
	var invoked atomic.Int32
	fn := func(u batch.Unit) batch.Outcome {
		invoked.Add(1)
		return batch.Succeed(nil)
	}

	err := o.SubmitAll(units("a", "a"), fn)
	if !errors.Is(err, batch.ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit, got %v", err)
	}

	// No worker started, no partial map observable.
	time.Sleep(20 * time.Millisecond)
	if n := invoked.Load(); n != 0 {
		t.Errorf("expected no invocations after rejection, got %d", n)
	}
	if len(o.Snapshot()) != 0 {
		t.Error("rejected submission left tasks visible")
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	o := New(nil)
	if err := o.SubmitAll(nil, sleepWork(0)); !errors.Is(err, batch.ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestNilWorkFnRejected(t *testing.T) {
	o := New(nil)
	if err := o.SubmitAll(units("a"), nil); !errors.Is(err, ErrNilWorkFn) {
		t.Errorf("expected ErrNilWorkFn, got %v", err)
	}
}

func TestOverlappingSubmitRejected(t *testing.T) {
	o := New(nil)
	if err := o.SubmitAll(units("a"), sleepWork(50*time.Millisecond)); err != nil {
		t.Fatalf("first SubmitAll failed: %v", err)
	}

	if err := o.SubmitAll(units("b"), sleepWork(0)); !errors.Is(err, ErrBatchInFlight) {
		t.Errorf("expected ErrBatchInFlight, got %v", err)
	}

	// Still rejected after completion until Shutdown is called.
	o.Wait()
	if err := o.SubmitAll(units("b"), sleepWork(0)); !errors.Is(err, ErrBatchInFlight) {
		t.Errorf("expected ErrBatchInFlight before Shutdown, got %v", err)
	}
}

func TestResubmitAfterShutdown(t *testing.T) {
	o := New(nil)
	_ = o.SubmitAll(units("a"), sleepWork(10*time.Millisecond))
	o.Wait()
	o.Shutdown()

	if err := o.SubmitAll(units("x", "y"), sleepWork(10*time.Millisecond)); err != nil {
		t.Fatalf("resubmit after shutdown failed: %v", err)
	}
	o.Wait()

	snap := o.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected fresh batch of 2, got %d", len(snap))
	}
	if _, stale := snap["a"]; stale {
		t.Error("old batch's task visible after resubmission")
	}
}

func TestShutdownIdempotentAndEarly(t *testing.T) {
	o := New(nil)
	o.Shutdown() // before any batch: no-op

	_ = o.SubmitAll(units("a", "b"), sleepWork(30*time.Millisecond))

	// Early shutdown must not block or disturb in-flight workers.
	start := time.Now()
	o.Shutdown()
	o.Shutdown()
	if time.Since(start) > 20*time.Millisecond {
		t.Error("Shutdown blocked waiting for stragglers")
	}

	// Stragglers still finish and Snapshot still serves their state.
	deadline := time.Now().Add(time.Second)
	for !o.IsComplete() {
		if time.Now().After(deadline) {
			t.Fatal("stragglers did not finish after early shutdown")
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := o.Snapshot()
	if snap["a"].Status != batch.StatusSucceeded || snap["b"].Status != batch.StatusSucceeded {
		t.Errorf("unexpected statuses after early shutdown: %+v", snap)
	}
}

// TestTrueParallelism runs 50 units of ~50ms each and asserts the batch
// finishes in time close to the slowest unit, not the sum of all units.
func TestTrueParallelism(t *testing.T) {
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("unit-%02d", i)
	}

	o := New(nil)
	start := time.Now()
	if err := o.SubmitAll(units(ids...), sleepWork(50*time.Millisecond)); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}
	o.Wait()
	elapsed := time.Since(start)

	// Serialized execution would take 2.5s; allow generous scheduling slack.
	if elapsed > 500*time.Millisecond {
		t.Errorf("50 units took %v, expected parallel execution near 50ms", elapsed)
	}
	if c := o.Counts(); c.Succeeded != 50 {
		t.Errorf("expected 50 succeeded, got %+v", c)
	}
}

// TestPollerObservesMonotonicTransitions polls snapshots during a batch and
// verifies no task ever moves backward or skips running.
func TestPollerObservesMonotonicTransitions(t *testing.T) {
	rank := map[batch.Status]int{
		batch.StatusPending:   0,
		batch.StatusRunning:   1,
		batch.StatusSucceeded: 2,
		batch.StatusFailed:    2,
	}

	o := New(nil)
	fn := func(u batch.Unit) batch.Outcome {
		time.Sleep(time.Duration(len(u.ID)) * 7 * time.Millisecond)
		if u.ID == "ccc" {
			return batch.Fail("boom")
		}
		return batch.Succeed(nil)
	}
	if err := o.SubmitAll(units("a", "bb", "ccc", "dddd"), fn); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}

	last := map[string]batch.Status{}
	for !o.IsComplete() {
		for id, task := range o.Snapshot() {
			if prev, seen := last[id]; seen {
				if rank[task.Status] < rank[prev] {
					t.Fatalf("task %q moved backward: %q -> %q", id, prev, task.Status)
				}
				if prev.Terminal() && task.Status != prev {
					t.Fatalf("task %q changed terminal status: %q -> %q", id, prev, task.Status)
				}
			}
			last[id] = task.Status
		}
		time.Sleep(2 * time.Millisecond)
	}
	o.Wait()
}

func TestLifecycleEventsPublished(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicTask, 16)

	o := New(bus)
	fn := func(u batch.Unit) batch.Outcome {
		if u.ID == "bad" {
			return batch.Fail("nope")
		}
		return batch.Succeed(nil)
	}
	if err := o.SubmitAll(units("ok", "bad"), fn); err != nil {
		t.Fatalf("SubmitAll failed: %v", err)
	}
	o.Wait()

	got := map[string]int{}
	timeout := time.After(time.Second)
	for i := 0; i < 4; i++ {
		select {
		case e := <-sub:
			got[e.EventType()]++
		case <-timeout:
			t.Fatalf("timeout after %d events: %v", i, got)
		}
	}

	if got[events.EventTypeTaskStarted] != 2 {
		t.Errorf("expected 2 started events, got %d", got[events.EventTypeTaskStarted])
	}
	if got[events.EventTypeTaskSucceeded] != 1 || got[events.EventTypeTaskFailed] != 1 {
		t.Errorf("unexpected terminal events: %v", got)
	}
}
