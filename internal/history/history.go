package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart        EventType = "start"
	EventStop         EventType = "stop"
	EventLaunchFailed EventType = "launch_failed"
)

// Record describes one module instance at the moment an event was emitted.
type Record struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind,omitempty"`
	PID       int        `json:"pid"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Error     string     `json:"error,omitempty"`
	LogPath   string     `json:"log_path,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SendTimeout bounds a single Send made through Emit.
const SendTimeout = 5 * time.Second

// Emit delivers e to every sink. Failures are logged and never returned;
// history is an audit trail and must not affect process control.
func Emit(ctx context.Context, sinks []Sink, e Event, log *slog.Logger) {
	if len(sinks) == 0 {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, SendTimeout)
		if err := s.Send(sctx, e); err != nil {
			log.Warn("history sink send failed", "event", e.Type, "name", e.Record.Name, "error", err)
		}
		cancel()
	}
}

// StoppedAtOrNil returns the stop time in UTC or nil for the SQL sinks.
func (r Record) StoppedAtOrNil() any {
	if r.StoppedAt == nil {
		return nil
	}
	return r.StoppedAt.UTC()
}

// ErrorOrNil returns the error text or nil for the SQL sinks.
func (r Record) ErrorOrNil() any {
	if r.Error == "" {
		return nil
	}
	return r.Error
}
