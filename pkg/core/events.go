package core

import (
	"log"
	"time"
)

// EventType names a runtime event delivered to a Recorder.
type EventType string

const (
	EventCleanupScheduled EventType = "cleanup_scheduled"
	EventCleanupCompleted EventType = "cleanup_completed"
	EventCleanupFailed    EventType = "cleanup_failed"
	EventResourceDropped  EventType = "resource_dropped"
	EventShutdown         EventType = "shutdown"
)

// Event is the record handed to monitor sinks. The runtime treats sinks
// as opaque: it never reads an event back.
type Event struct {
	Type    EventType
	Time    time.Time
	Message string
	Err     error
	Fields  map[string]string
}

// Recorder receives runtime events. Implementations must be safe for
// concurrent use and must not block; slow sinks should buffer internally.
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ev Event)

func (f RecorderFunc) Record(ev Event) { f(ev) }

// NewLogRecorder returns a Recorder that writes events to the standard
// logger. It is the default sink for guard and registry diagnostics.
func NewLogRecorder() Recorder {
	return RecorderFunc(func(ev Event) {
		if ev.Err != nil {
			log.Printf("[%s] %s: %v", ev.Type, ev.Message, ev.Err)
			return
		}
		log.Printf("[%s] %s", ev.Type, ev.Message)
	})
}

// NopRecorder discards all events.
var NopRecorder Recorder = RecorderFunc(func(Event) {})
