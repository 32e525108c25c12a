package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeKeyUpdate represents a per-file key update after a share change.
	EventTypeKeyUpdate EventType = "key_update"
	// EventTypeDecryptFile represents one file decrypted by a bulk run.
	EventTypeDecryptFile EventType = "decrypt_file"
	// EventTypeDecryptRun represents a whole bulk decryption run.
	EventTypeDecryptRun EventType = "decrypt_run"
	// EventTypeModule represents a module registry change.
	EventTypeModule EventType = "module"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	User      string        `json:"user,omitempty"`
	Path      string        `json:"path,omitempty"`
	Module    string        `json:"module,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
}

// Logger records audit events in a bounded in-memory ring, optionally
// streaming each event as a JSON line to a writer.
type Logger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	out       io.Writer
}

// NewLogger creates an audit logger keeping at most maxEvents entries.
// out may be nil to keep events in memory only.
func NewLogger(maxEvents int, out io.Writer) *Logger {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	return &Logger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		out:       out,
	}
}

// Log records an event.
func (l *Logger) Log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		if data, err := json.Marshal(event); err == nil {
			l.out.Write(append(data, '\n'))
		}
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
}

// LogKeyUpdate records a per-file key update.
func (l *Logger) LogKeyUpdate(user, path, module string, success bool, err error) {
	l.Log(withError(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeKeyUpdate,
		User:      user,
		Path:      path,
		Module:    module,
		Success:   success,
	}, err))
}

// LogDecryptFile records one file handled by a bulk decryption run.
func (l *Logger) LogDecryptFile(user, path string, success bool, err error, duration time.Duration) {
	l.Log(withError(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeDecryptFile,
		User:      user,
		Path:      path,
		Success:   success,
		Duration:  duration,
	}, err))
}

// LogDecryptRun records a completed bulk decryption run.
func (l *Logger) LogDecryptRun(user string, success bool, duration time.Duration) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeDecryptRun,
		User:      user,
		Success:   success,
		Duration:  duration,
	})
}

func withError(event *Event, err error) *Event {
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// Recent returns a copy of the buffered events, oldest first.
func (l *Logger) Recent() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}
