package history

import (
	"context"
	"time"
)

// EventType defines the kind of run lifecycle event.
type EventType string

const (
	EventStart  EventType = "start"
	EventFinish EventType = "finish"
)

// Record captures one run of the wrapped job.
type Record struct {
	Job        string    `json:"job"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	ExitCode   int       `json:"exit_code"`
	LogPath    string    `json:"log_path"`
	ExitErr    string    `json:"exit_err,omitempty"`
}

// Event is a run lifecycle event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for run history events. Implementations must be
// safe for concurrent use. Sink failures are reported as warnings by
// callers and never change a run's outcome.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
