package main

import (
	"fmt"
	"sync"

	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// observer prints session signals for the terminal and lets commands wait for
// locate results.
type observer struct {
	mu        sync.Mutex
	placedCh  chan anchorsync.ObjectSnapshot
	completed chan int
	quiet     bool
}

func newObserver(quiet bool) *observer {
	return &observer{
		placedCh:  make(chan anchorsync.ObjectSnapshot, 16),
		completed: make(chan int, 4),
		quiet:     quiet,
	}
}

func (o *observer) printf(format string, args ...any) {
	if o.quiet {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Printf(format, args...)
}

func (o *observer) progress(fraction float64) {
	o.printf("   Move your device to capture more environment data: %.0f%%\n", fraction*100)
}

func (o *observer) placed(snap anchorsync.ObjectSnapshot) {
	select {
	case o.placedCh <- snap:
	default:
	}
}

func (o *observer) OnSessionStarted() {
	o.printf("📡 Session started\n")
}

func (o *observer) OnSessionUpdated(models.SessionStatus) {}

func (o *observer) OnAnchorLocated(event models.AnchorLocatedEvent) {
	o.printf("   %s -> %s\n", event.Identifier, event.Status)
}

func (o *observer) OnLocateCompleted(event models.LocateCompletedEvent) {
	select {
	case o.completed <- event.WatcherID:
	default:
	}
}

func (o *observer) OnDiagnostic(string) {}

func (o *observer) OnError(message string) {
	o.printf("⚠️  Service error: %s\n", message)
}
