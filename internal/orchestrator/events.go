package orchestrator

import (
	"sync/atomic"
	"time"
)

// EventType represents the type of controller event.
type EventType string

const (
	// EventTurnStarted indicates a turn began processing.
	EventTurnStarted EventType = "turn_started"
	// EventStateChanged indicates the turn advanced to a new state.
	EventStateChanged EventType = "state_changed"
	// EventHandlerFinished indicates one handler invocation completed.
	EventHandlerFinished EventType = "handler_finished"
	// EventTurnCompleted indicates the turn produced its response.
	EventTurnCompleted EventType = "turn_completed"
)

// Event is one observable step of turn processing.
type Event struct {
	Type       EventType
	SessionID  string
	TurnID     string
	State      State
	Capability string
	Message    string
	Timestamp  time.Time
}

// Emitter fans turn events out to an observer channel. Emission is
// non-blocking: when the observer falls behind, events are dropped and
// counted rather than stalling a turn.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event without blocking.
func (e *Emitter) Emit(event Event) {
	if e == nil {
		return
	}
	event.Timestamp = time.Now()
	select {
	case e.events <- event:
	default:
		e.droppedCount.Add(1)
	}
}

// Events returns the receive side of the event stream.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Dropped returns how many events were discarded because the buffer was full.
func (e *Emitter) Dropped() uint64 {
	return e.droppedCount.Load()
}
