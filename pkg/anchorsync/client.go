package anchorsync

import (
	"context"
	"fmt"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/logger"
	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// Client wires the session, coordinators and placement around one remote
// service. Spatial state lives on the dispatcher, which the caller must pump
// with Run (or Dispatcher().RunPending).
type Client struct {
	cfg        *Config
	remote     RemoteService
	dispatcher *Dispatcher
	events     *EventLog
	session    *SessionController
	gate       *ReadinessGate
	store      *ObjectStore
	placement  *Placement
	persist    *PersistenceCoordinator
	locate     *LocateCoordinator
	flows      *flowGuard
	log        Logger

	ownsDispatcher bool
}

func NewClient(remote RemoteService, renderer Renderer, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote service is required: %w", ErrInvalidArgument)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &Client{
		cfg:    cfg,
		remote: remote,
		flows:  &flowGuard{},
		log:    cfg.Logger,
	}

	c.dispatcher = cfg.Dispatcher
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(cfg.Logger)
		c.ownsDispatcher = true
	}
	c.events = NewEventLog(cfg.EventLogSize, cfg.Logger, cfg.Clock)
	c.session = NewSessionController(remote, c.events, cfg.Logger)
	c.gate = NewReadinessGate(remote, cfg.Logger)
	c.store = NewObjectStore(c.dispatcher, cfg.Logger)
	c.placement = NewPlacement(c.store, renderer, cfg.Logger)

	c.persist = &PersistenceCoordinator{
		remote:     remote,
		gate:       c.gate,
		store:      c.store,
		dispatcher: c.dispatcher,
		session:    c.session,
		flows:      c.flows,
		cfg:        cfg,
		events:     c.events,
		log:        cfg.Logger,
	}
	c.locate = &LocateCoordinator{
		session:    c.session,
		placement:  c.placement,
		dispatcher: c.dispatcher,
		flows:      c.flows,
		events:     c.events,
		log:        cfg.Logger,
	}

	c.session.OnWatcherReleased(c.locate.releaseFlow)
	c.session.SetListener(&signalRouter{
		dispatcher: c.dispatcher,
		locate:     c.locate,
		observer:   cfg.Observer,
		events:     c.events,
		log:        cfg.Logger,
	})

	return c, nil
}

// Run pumps the dispatcher on the calling goroutine until ctx is done or the client is closed.
func (c *Client) Run(ctx context.Context) error {
	return c.dispatcher.Run(ctx)
}

func (c *Client) Dispatcher() *Dispatcher              { return c.dispatcher }
func (c *Client) Events() *EventLog                    { return c.events }
func (c *Client) Session() *SessionController          { return c.session }
func (c *Client) Persistence() *PersistenceCoordinator { return c.persist }
func (c *Client) Locator() *LocateCoordinator          { return c.locate }
func (c *Client) Placement() *Placement                { return c.placement }
func (c *Client) Objects() *ObjectStore                { return c.store }
func (c *Client) ReadinessGate() *ReadinessGate        { return c.gate }
func (c *Client) Config() Config                       { return *c.cfg }

// Start creates and starts a session, pausing for the settle delay around creation.
func (c *Client) Start(ctx context.Context) error {
	c.events.Add(EventInfo, "Starting...")
	if err := sleepContext(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	if err := c.session.Create(ctx); err != nil {
		return err
	}
	if err := sleepContext(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	if err := c.session.Start(ctx); err != nil {
		return err
	}
	c.events.Add(EventInfo, "Tap anywhere to place object")
	return nil
}

// Place spawns or moves the current object to pose.
func (c *Client) Place(ctx context.Context, pose models.Pose) (ObjectSnapshot, error) {
	var snap ObjectSnapshot
	err := c.dispatcher.Call(ctx, func(owned context.Context) error {
		obj, err := c.placement.PlaceOrMove(owned, pose, nil)
		if err != nil {
			return err
		}
		snap = obj.snapshot()
		return nil
	})
	return snap, err
}

// Save persists the current object as a new cloud anchor.
func (c *Client) Save(ctx context.Context) (*SaveAttempt, error) {
	return c.persist.Save(ctx)
}

// Query opens a session if needed and starts locating identifiers.
func (c *Client) Query(ctx context.Context, identifiers []string) error {
	if identifiers == nil {
		return ErrInvalidArgument
	}
	if c.session.State() == StateStopped {
		if err := c.session.Reset(ctx); err != nil {
			return err
		}
	}
	if c.session.State() == StateUninitialized {
		if err := sleepContext(ctx, c.cfg.SettleDelay); err != nil {
			return err
		}
		if err := c.session.Create(ctx); err != nil {
			return err
		}
	}
	if err := c.locate.Configure(identifiers); err != nil {
		return err
	}
	if c.session.State() == StateCreated {
		if err := c.session.Start(ctx); err != nil {
			return err
		}
	}
	return c.locate.BeginLocate(ctx)
}

// EndQuery stops the running locate, if any.
func (c *Client) EndQuery() {
	c.locate.EndLocate()
}

// Delete removes the current object's anchor from the remote service and unbinds it locally.
func (c *Client) Delete(ctx context.Context) (*models.CloudAnchorRecord, error) {
	var record *models.CloudAnchorRecord
	err := c.dispatcher.Call(ctx, func(context.Context) error {
		obj := c.store.Current()
		if obj == nil || !obj.Bound() {
			return ErrNoBoundAnchor
		}
		record = obj.Record()
		return nil
	})
	if err != nil {
		c.log.Warnf("delete: %v", err)
		return nil, err
	}

	if err := c.remote.DeleteAnchor(ctx, *record); err != nil {
		c.events.Add(EventError, "delete anchor %s failed: %s", record.ID, describeError(err))
		return nil, fmt.Errorf("delete anchor %s: %w", record.ID, err)
	}

	err = c.dispatcher.Call(context.WithoutCancel(ctx), func(context.Context) error {
		if obj := c.store.Current(); obj != nil && obj.Bound() && obj.binding.record.ID == record.ID {
			obj.unbind()
		}
		return nil
	})
	if current := c.session.CurrentAnchor(); current != nil && current.ID == record.ID {
		c.session.SetCurrentAnchor(nil)
	}
	c.events.Add(EventInfo, "Deleted cloud anchor: %s", record.ID)
	return record, err
}

func (c *Client) Stop() {
	c.session.Stop()
}

func (c *Client) Reset(ctx context.Context) error {
	return c.session.Reset(ctx)
}

// Cleanup destroys the current local object.
func (c *Client) Cleanup(ctx context.Context) error {
	return c.dispatcher.Call(ctx, c.placement.Cleanup)
}

// Current returns a snapshot of the current object.
func (c *Client) Current(ctx context.Context) (ObjectSnapshot, bool, error) {
	var (
		snap ObjectSnapshot
		ok   bool
	)
	err := c.dispatcher.Call(ctx, func(context.Context) error {
		if obj := c.store.Current(); obj != nil {
			snap, ok = obj.snapshot(), true
		}
		return nil
	})
	return snap, ok, err
}

// Close stops the session and its watcher, then stops the dispatcher if the client created it.
func (c *Client) Close() {
	c.session.Stop()
	c.flows.release(flowLocate)
	if c.ownsDispatcher {
		c.dispatcher.Close()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
