package anchorsync

import (
	"fmt"
	"sync"
	"time"
)

type EventKind string

const (
	EventInfo       EventKind = "info"
	EventSignal     EventKind = "signal"
	EventDiagnostic EventKind = "diagnostic"
	EventError      EventKind = "error"
)

type Event struct {
	Time    time.Time
	Kind    EventKind
	Message string
}

func (e Event) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format("15:04:05.000"), e.Kind, e.Message)
}

// EventLog is a bounded, goroutine-safe record of what the session did. Every
// entry is mirrored to the logger.
type EventLog struct {
	mu      sync.Mutex
	entries []Event
	next    int
	full    bool
	log     Logger
	now     func() time.Time
}

func NewEventLog(size int, log Logger, now func() time.Time) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	if now == nil {
		now = time.Now
	}
	return &EventLog{
		entries: make([]Event, size),
		log:     log,
		now:     now,
	}
}

func (l *EventLog) Add(kind EventKind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch kind {
	case EventError:
		l.log.Errorf("%s", msg)
	case EventDiagnostic:
		l.log.Debugf("%s", msg)
	default:
		l.log.Infof("%s", msg)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = Event{Time: l.now(), Kind: kind, Message: msg}
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Entries returns the retained events, oldest first.
func (l *EventLog) Entries() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]Event, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Event, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}
