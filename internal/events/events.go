// Package events defines the progress events a deliberation emits and the
// sinks that consume them.
package events

import (
	"sync"
	"time"
)

// Event types in stream order.
const (
	TypeStreamStart    = "stream_start"
	TypeStage1Start    = "stage1_start"
	TypeStage1Complete = "stage1_complete"
	TypeStage2Start    = "stage2_start"
	TypeStage2Complete = "stage2_complete"
	TypeStage3Start    = "stage3_start"
	TypeStage3Complete = "stage3_complete"
	TypeTitleComplete  = "title_complete"
	TypeComplete       = "complete"
	TypeError          = "error"
)

// Event is a single progress event in a deliberation stream.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Metadata  interface{} `json:"metadata,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// New returns an event of the given type stamped with the current time.
func New(eventType string) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC()}
}

// NewData returns a stamped event carrying a data payload.
func NewData(eventType string, data interface{}) Event {
	e := New(eventType)
	e.Data = data
	return e
}

// NewError returns a stamped error event carrying a message.
func NewError(message string) Event {
	e := New(TypeError)
	e.Message = message
	return e
}

// Sink receives deliberation events in emission order. Implementations must
// tolerate being called from a single goroutine per deliberation; a sink
// shared across deliberations must synchronize internally.
type Sink interface {
	Send(event Event) error
}

// The SinkFunc type adapts a function to a Sink.
type SinkFunc func(event Event) error

// Send calls f(event).
func (f SinkFunc) Send(event Event) error { return f(event) }

// Discard is a Sink that drops all events.
var Discard Sink = SinkFunc(func(Event) error { return nil })

// Collector is a Sink that records every event it receives, preserving
// order. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Send appends the event to the collected sequence.
func (c *Collector) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the collected events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns just the type discriminators in arrival order.
func (c *Collector) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}
