package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	UnitID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicBatch = "batch"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskSucceeded = "task.succeeded"
	EventTypeTaskFailed    = "task.failed"
	EventTypeBatchProgress = "batch.progress"
)

// TaskStartedEvent is published when a unit's worker begins execution.
type TaskStartedEvent struct {
	ID        string
	Label     string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) UnitID() string    { return e.ID }

// TaskSucceededEvent is published when a unit finishes with a success outcome.
type TaskSucceededEvent struct {
	ID        string
	Label     string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskSucceededEvent) EventType() string { return EventTypeTaskSucceeded }
func (e TaskSucceededEvent) UnitID() string    { return e.ID }

// TaskFailedEvent is published when a unit finishes with a failure outcome,
// including failures converted from worker faults.
type TaskFailedEvent struct {
	ID        string
	Label     string
	Err       string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) UnitID() string    { return e.ID }

// BatchProgressEvent is published after every task transition with the
// batch-wide status tally.
type BatchProgressEvent struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Timestamp time.Time
}

func (e BatchProgressEvent) EventType() string { return EventTypeBatchProgress }
func (e BatchProgressEvent) UnitID() string    { return "" }
