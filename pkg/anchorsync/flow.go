package anchorsync

import (
	"fmt"
	"sync"
)

type flowKind string

const (
	flowSave   flowKind = "save"
	flowLocate flowKind = "locate"
)

// flowGuard allows one save or locate flow at a time. A locate may replace a
// running locate.
type flowGuard struct {
	mu     sync.Mutex
	active flowKind
}

func (g *flowGuard) acquire(kind flowKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.active == "":
		g.active = kind
		return nil
	case g.active == kind && kind == flowLocate:
		return nil
	default:
		return fmt.Errorf("%s requested while %s is active: %w", kind, g.active, ErrFlowInProgress)
	}
}

func (g *flowGuard) release(kind flowKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == kind {
		g.active = ""
	}
}

func (g *flowGuard) current() flowKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
