package anchorsync

import (
	"context"
	"sync"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

type SaveState int

const (
	SaveIdle SaveState = iota
	SaveBindingLocal
	SaveAwaitingReadiness
	SaveSubmitting
	SaveSucceeded
	SaveFailed
)

func (s SaveState) String() string {
	switch s {
	case SaveIdle:
		return "Idle"
	case SaveBindingLocal:
		return "BindingLocal"
	case SaveAwaitingReadiness:
		return "AwaitingReadiness"
	case SaveSubmitting:
		return "Submitting"
	case SaveSucceeded:
		return "Succeeded"
	case SaveFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s SaveState) terminal() bool {
	return s == SaveSucceeded || s == SaveFailed
}

// SaveAttempt is the state machine of one save. It ends in exactly one terminal state.
type SaveAttempt struct {
	mu      sync.Mutex
	state   SaveState
	history []SaveState
	object  string
	record  *models.CloudAnchorRecord
	samples []float64
	drift   float64
	err     error
}

func newSaveAttempt() *SaveAttempt {
	return &SaveAttempt{state: SaveIdle, history: []SaveState{SaveIdle}}
}

func (a *SaveAttempt) transition(next SaveState) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.terminal() {
		return false
	}
	a.state = next
	a.history = append(a.history, next)
	return true
}

func (a *SaveAttempt) State() SaveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History lists every state the attempt passed through, starting with Idle.
func (a *SaveAttempt) History() []SaveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SaveState, len(a.history))
	copy(out, a.history)
	return out
}

// ObjectID is the id of the local object being saved.
func (a *SaveAttempt) ObjectID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.object
}

// Record is the persisted record after success.
func (a *SaveAttempt) Record() *models.CloudAnchorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Clone()
}

// Samples are the readiness fractions observed while waiting.
func (a *SaveAttempt) Samples() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.samples))
	copy(out, a.samples)
	return out
}

// Drift is the distance between the locally estimated pose and the pose the service persisted.
func (a *SaveAttempt) Drift() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drift
}

func (a *SaveAttempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *SaveAttempt) addSample(f float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, f)
}

// PersistenceCoordinator drives save attempts for local objects.
type PersistenceCoordinator struct {
	remote     RemoteService
	gate       *ReadinessGate
	store      *ObjectStore
	dispatcher *Dispatcher
	session    *SessionController
	flows      *flowGuard
	cfg        *Config
	events     *EventLog
	log        Logger
}

// Save persists the current object.
func (c *PersistenceCoordinator) Save(ctx context.Context) (*SaveAttempt, error) {
	return c.save(ctx, "")
}

// SaveObject persists the object with the given id.
func (c *PersistenceCoordinator) SaveObject(ctx context.Context, objectID string) (*SaveAttempt, error) {
	if objectID == "" {
		return nil, ErrInvalidArgument
	}
	return c.save(ctx, objectID)
}

func (c *PersistenceCoordinator) save(ctx context.Context, objectID string) (*SaveAttempt, error) {
	if err := c.flows.acquire(flowSave); err != nil {
		c.log.Warnf("save rejected: %v", err)
		return nil, err
	}
	defer c.flows.release(flowSave)

	attempt := newSaveAttempt()

	attempt.transition(SaveBindingLocal)
	pending, err := c.bindLocal(ctx, objectID, attempt)
	if err != nil {
		return attempt, c.fail(attempt, err)
	}

	attempt.transition(SaveAwaitingReadiness)
	err = c.gate.Wait(ctx, c.cfg.PollInterval, c.cfg.MaxWait, func(fraction float64) {
		attempt.addSample(fraction)
		if c.cfg.OnProgress != nil {
			c.cfg.OnProgress(fraction)
		}
		c.events.Add(EventInfo, "Move your device to capture more environment data: %.0f%%", fraction*100)
	})
	if err != nil {
		c.abandon(attempt.ObjectID())
		return attempt, c.fail(attempt, err)
	}

	attempt.transition(SaveSubmitting)
	c.events.Add(EventInfo, "Saving...")
	submitted := pending.Clone()
	if c.cfg.Expiration > 0 {
		exp := c.cfg.Clock().Add(c.cfg.Expiration)
		submitted.Expiration = &exp
	}
	saved, err := c.remote.CreateAnchor(ctx, *submitted)
	if err != nil {
		c.abandon(attempt.ObjectID())
		return attempt, c.fail(attempt, &SaveFailedError{Cause: err})
	}
	if !saved.HasID() {
		c.abandon(attempt.ObjectID())
		return attempt, c.fail(attempt, &SaveFailedError{Cause: ErrNoAnchorReturned})
	}

	// The anchor exists remotely now, so binding must not be abandoned on
	// cancellation. If it still cannot happen the remote anchor is removed.
	var drift float64
	err = c.dispatcher.Call(context.WithoutCancel(ctx), func(context.Context) error {
		obj := c.store.Get(attempt.ObjectID())
		if obj == nil {
			return ErrNoTargetObject
		}
		drift = obj.Pose().Distance(saved.Pose)
		obj.bind(saved)
		return nil
	})
	if err != nil {
		c.compensate(ctx, saved)
		c.abandon(attempt.ObjectID())
		return attempt, c.fail(attempt, &SaveFailedError{Cause: err})
	}
	if drift > 0 {
		c.log.Infof("local pose drifted %.4fm from persisted anchor %s; using remote pose", drift, saved.ID)
	}

	c.session.SetCurrentAnchor(saved)

	attempt.mu.Lock()
	attempt.record = saved.Clone()
	attempt.drift = drift
	attempt.mu.Unlock()
	attempt.transition(SaveSucceeded)
	c.events.Add(EventInfo, "Saved cloud anchor: %s", saved.ID)
	return attempt, nil
}

// bindLocal attaches a pending record synthesised from the object's pose.
func (c *PersistenceCoordinator) bindLocal(ctx context.Context, objectID string, attempt *SaveAttempt) (*models.CloudAnchorRecord, error) {
	var pending *models.CloudAnchorRecord
	err := c.dispatcher.Call(ctx, func(context.Context) error {
		obj := c.store.Current()
		if objectID != "" {
			obj = c.store.Get(objectID)
		}
		if obj == nil {
			return ErrNoTargetObject
		}
		if !obj.CanBind() {
			return ErrMissingBindingCapability
		}
		if obj.Bound() {
			return ErrAlreadyBound
		}

		rec := obj.Record()
		if rec == nil {
			rec = &models.CloudAnchorRecord{Pose: obj.Pose()}
			obj.attachPending(rec)
		}

		attempt.mu.Lock()
		attempt.object = obj.id
		attempt.mu.Unlock()
		pending = rec
		return nil
	})
	return pending, err
}

// abandon drops the pending record so the next attempt starts from the current pose.
func (c *PersistenceCoordinator) abandon(objectID string) {
	if objectID == "" {
		return
	}
	err := c.dispatcher.Schedule(func(context.Context) {
		if obj := c.store.Get(objectID); obj != nil && !obj.Bound() {
			obj.unbind()
		}
	})
	if err != nil {
		c.log.Warnf("could not release pending record of %s: %v", objectID, err)
	}
}

// compensate deletes an anchor that was created but could not be bound locally.
func (c *PersistenceCoordinator) compensate(ctx context.Context, saved *models.CloudAnchorRecord) {
	if err := c.remote.DeleteAnchor(context.WithoutCancel(ctx), *saved); err != nil {
		c.log.Errorf("anchor %s was saved but not bound, and deleting it failed: %s", saved.ID, describeError(err))
		return
	}
	c.log.Warnf("deleted anchor %s that could not be bound locally", saved.ID)
}

func (c *PersistenceCoordinator) fail(attempt *SaveAttempt, err error) error {
	attempt.mu.Lock()
	attempt.err = err
	attempt.mu.Unlock()
	attempt.transition(SaveFailed)
	c.events.Add(EventError, "Save failed: %s", describeError(err))
	return err
}
