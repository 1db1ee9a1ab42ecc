package anchorsync

import (
	"context"
	"errors"
	"sync"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// LocateCoordinator searches for persisted anchors and places the local object
// on each one the service finds.
type LocateCoordinator struct {
	mu       sync.Mutex
	criteria LocateCriteria
	placed   func(ObjectSnapshot)

	session    *SessionController
	placement  *Placement
	dispatcher *Dispatcher
	flows      *flowGuard
	events     *EventLog
	log        Logger
}

// Configure replaces the identifiers to search for. Input order is kept.
func (c *LocateCoordinator) Configure(identifiers []string) error {
	if identifiers == nil {
		c.log.Warnf("configure locate: %v: nil identifiers", ErrInvalidArgument)
		return ErrInvalidArgument
	}

	c.mu.Lock()
	c.criteria.Identifiers = append(c.criteria.Identifiers[:0], identifiers...)
	snapshot := c.criteria.clone()
	c.mu.Unlock()

	if err := c.session.Configure(snapshot); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return nil
}

func (c *LocateCoordinator) Criteria() LocateCriteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criteria.clone()
}

// OnPlaced registers fn to run on the owning context after a located anchor was placed.
func (c *LocateCoordinator) OnPlaced(fn func(ObjectSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placed = fn
}

// BeginLocate starts one watcher over the current criteria.
func (c *LocateCoordinator) BeginLocate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.session.IsOpen() {
		c.log.Warnf("begin locate: %v", ErrNoActiveSession)
		return ErrNoActiveSession
	}
	if err := c.flows.acquire(flowLocate); err != nil {
		c.log.Warnf("locate rejected: %v", err)
		return err
	}

	criteria := c.Criteria()
	w, err := c.session.CreateWatcher(criteria)
	if err != nil {
		c.flows.release(flowLocate)
		return err
	}
	c.events.Add(EventInfo, "Locating %d anchor(s) with watcher %d", len(criteria.Identifiers), w.ID())
	return nil
}

// EndLocate stops the active watcher. Safe to call when none is running.
func (c *LocateCoordinator) EndLocate() {
	if c.session.StopWatcher() {
		c.events.Add(EventInfo, "Locate stopped")
	}
	c.flows.release(flowLocate)
}

// OnLocated handles an anchor-located signal. It may run on any goroutine and
// never touches spatial objects itself.
func (c *LocateCoordinator) OnLocated(event models.AnchorLocatedEvent) {
	c.log.Debugf("anchor %s reported as %s by watcher %d", event.Identifier, event.Status, event.WatcherID)
	if event.Status != models.StatusLocated {
		return
	}
	if id, ok := c.session.ActiveWatcherID(); !ok || id != event.WatcherID {
		if c.session.holdWatcherSignal(event.WatcherID, func() { c.OnLocated(event) }) {
			c.log.Debugf("holding anchor %s until watcher %d is tracked", event.Identifier, event.WatcherID)
			return
		}
		c.log.Debugf("ignoring anchor %s from inactive watcher %d", event.Identifier, event.WatcherID)
		return
	}
	if event.Record == nil {
		c.log.Warnf("anchor %s located without a record", event.Identifier)
		return
	}

	record := event.Record.Clone()
	err := c.dispatcher.Schedule(func(ctx context.Context) {
		obj, err := c.placement.PlaceOrMove(ctx, record.Pose, record)
		if err != nil {
			c.events.Add(EventError, "placing located anchor %s: %s", record.ID, describeError(err))
			return
		}
		c.session.SetCurrentAnchor(record)
		c.events.Add(EventInfo, "Anchor %s located at %s", record.ID, record.Pose)

		c.mu.Lock()
		placed := c.placed
		c.mu.Unlock()
		if placed != nil {
			placed(obj.snapshot())
		}
	})
	if err != nil {
		c.events.Add(EventError, "dropping located anchor %s: %v", record.ID, err)
	}
}

// OnLocateCompleted releases tracking of a watcher that finished on its own.
func (c *LocateCoordinator) OnLocateCompleted(event models.LocateCompletedEvent) {
	if c.session.WatcherCompleted(event.WatcherID) {
		c.flows.release(flowLocate)
		return
	}
	c.session.holdWatcherSignal(event.WatcherID, func() { c.OnLocateCompleted(event) })
}

func (c *LocateCoordinator) releaseFlow() {
	c.flows.release(flowLocate)
}
