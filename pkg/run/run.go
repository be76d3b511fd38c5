// Package run models one external execution attempt of a compiled
// composition and the client-side machinery that observes it: a log
// stream state machine with an explicit-reconnect policy and a polling
// fallback for contexts without a live stream.
package run

import "time"

// Status is the server-owned lifecycle state of a run. This package only
// observes transitions; it never forces a terminal state locally.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request may be sent for this status.
func (s Status) Cancellable() bool {
	switch s {
	case StatusQueued, StatusStarting, StatusRunning:
		return true
	}
	return false
}

// Metrics are the executor-reported phase durations of a run.
type Metrics struct {
	QueueMs     int64 `json:"queue_ms"`
	StartupMs   int64 `json:"startup_ms"`
	ExecutionMs int64 `json:"execution_ms"`
	TotalMs     int64 `json:"total_ms"`
}

// Run is one execution attempt as reported by the external executor.
type Run struct {
	ID            string     `json:"id"`
	CompositionID string     `json:"composition_id"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Output        string     `json:"output"`
	Error         string     `json:"error,omitempty"`
	Metrics       *Metrics   `json:"metrics,omitempty"`
}

// Event is one message from a run's log stream. Type is "log" for content
// events and "complete" for the terminal event.
type Event struct {
	Type       string    `json:"type"`
	Content    string    `json:"content,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	IsComplete bool      `json:"is_complete,omitempty"`
	Status     Status    `json:"status,omitempty"`
}

const (
	EventLog      = "log"
	EventComplete = "complete"
)
