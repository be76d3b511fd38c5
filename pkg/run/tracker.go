package run

import (
	"context"
	"fmt"
	"sync"
)

// StreamState is the lifecycle of the log stream client.
type StreamState string

const (
	StreamIdle       StreamState = "idle"
	StreamConnecting StreamState = "connecting"
	StreamConnected  StreamState = "connected"
	StreamCompleted  StreamState = "completed"
	StreamError      StreamState = "error"
)

// StreamSource opens a one-shot event subscription for a run. The channel
// closes when the subscription ends, whether by a complete event, a
// transport failure, or context cancellation.
type StreamSource interface {
	Subscribe(ctx context.Context, runID string) (<-chan Event, error)
}

// Update is pushed to the tracker's observer after every state or buffer
// change.
type Update struct {
	State       StreamState
	Log         string
	FinalStatus Status
}

// Tracker supervises the log stream of a single run. It holds one
// subscription at a time; recovery from a transport error requires an
// explicit Reconnect, never an automatic retry. The accumulated log buffer
// survives reconnects.
type Tracker struct {
	runID    string
	source   StreamSource
	onUpdate func(Update)

	mu          sync.Mutex
	state       StreamState
	buf         *LogBuffer
	finalStatus Status
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewTracker creates an idle tracker for the given run. onUpdate may be nil.
func NewTracker(runID string, source StreamSource, onUpdate func(Update)) *Tracker {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Tracker{
		runID:    runID,
		source:   source,
		onUpdate: onUpdate,
		state:    StreamIdle,
		buf:      NewLogBuffer(""),
	}
}

// SeedLog preloads the buffer with previously persisted log text. It is a
// no-op once the tracker has left the idle state.
func (t *Tracker) SeedLog(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StreamIdle {
		return
	}
	t.buf = NewLogBuffer(content)
}

// Connect opens the subscription. It is valid only from the idle state.
func (t *Tracker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StreamIdle {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cannot connect from state %q", state)
	}
	t.mu.Unlock()
	return t.open(ctx)
}

// Reconnect re-opens the subscription after a transport error. The log
// buffer is preserved. It is valid only from the error state.
func (t *Tracker) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StreamError {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cannot reconnect from state %q", state)
	}
	t.state = StreamIdle
	t.mu.Unlock()
	return t.open(ctx)
}

func (t *Tracker) open(ctx context.Context) error {
	t.setState(StreamConnecting)

	subCtx, cancel := context.WithCancel(ctx)
	events, err := t.source.Subscribe(subCtx, t.runID)
	if err != nil {
		cancel()
		t.setState(StreamError)
		return fmt.Errorf("subscribe run %s: %w", t.runID, err)
	}

	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.setState(StreamConnected)

	go func() {
		defer close(done)
		t.consume(events)
	}()
	return nil
}

func (t *Tracker) consume(events <-chan Event) {
	for ev := range events {
		switch ev.Type {
		case EventLog:
			t.mu.Lock()
			t.buf.Append(ev.Content)
			t.mu.Unlock()
			t.emit()
		case EventComplete:
			t.mu.Lock()
			t.finalStatus = ev.Status
			t.state = StreamCompleted
			cancel := t.cancel
			t.cancel = nil
			t.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			t.emit()
			return
		}
	}

	// Channel closed without a complete event: transport failure unless the
	// tracker itself tore the subscription down. The dead subscription's
	// context is cancelled here so it does not outlive the error state.
	t.mu.Lock()
	if t.state == StreamConnected {
		t.state = StreamError
		cancel := t.cancel
		t.cancel = nil
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		t.emit()
		return
	}
	t.mu.Unlock()
}

// Close tears the subscription down when the observed run changes or the
// caller is no longer interested. Terminal states are preserved.
func (t *Tracker) Close() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	done := t.done
	if t.state == StreamConnected || t.state == StreamConnecting {
		t.state = StreamIdle
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State returns the current stream state.
func (t *Tracker) State() StreamState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Log returns the accumulated log text.
func (t *Tracker) Log() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// FinalStatus returns the status delivered by the complete event, if any.
func (t *Tracker) FinalStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalStatus
}

func (t *Tracker) setState(s StreamState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	t.emit()
}

func (t *Tracker) emit() {
	t.mu.Lock()
	u := Update{
		State:       t.state,
		Log:         t.buf.String(),
		FinalStatus: t.finalStatus,
	}
	t.mu.Unlock()
	t.onUpdate(u)
}
