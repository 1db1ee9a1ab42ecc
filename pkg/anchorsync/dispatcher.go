package anchorsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/himanishpuri/AnchorSync/pkg/logger"
)

// Action is work run on the owning context. ctx identifies the running action
// to Owns and stays valid only until the action returns.
type Action func(ctx context.Context)

// Dispatcher marshals work onto the single execution context that owns spatial
// objects. Actions run in FIFO order, exactly once, and never inside the
// Schedule call that queued them.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []Action
	closed bool
	wake   chan struct{}

	pump sync.Mutex
	log  Logger
}

type ownerKey struct{}

// owner marks one executing action.
type owner struct {
	d    *Dispatcher
	live atomic.Bool
}

func NewDispatcher(log Logger) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Dispatcher{
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

// Schedule queues action for the owning context.
func (d *Dispatcher) Schedule(action Action) error {
	if action == nil {
		return ErrInvalidArgument
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.queue = append(d.queue, action)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call runs fn on the owning context and waits for its result. Calling it
// with the ctx of a running action fails with ErrReentrantCall instead of
// deadlocking the pump.
func (d *Dispatcher) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.Owns(ctx) {
		return ErrReentrantCall
	}
	done := make(chan error, 1)
	if err := d.Schedule(func(owned context.Context) { done <- fn(owned) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Owns reports whether ctx was handed to an action of d that is still running.
func (d *Dispatcher) Owns(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	o, ok := ctx.Value(ownerKey{}).(*owner)
	return ok && o.d == d && o.live.Load()
}

// Pending returns the number of queued actions.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// RunPending executes the actions queued so far on the calling goroutine.
// Actions they schedule wait for the next pump. It returns 0 without running
// anything while another pump is in progress, including from inside an action.
func (d *Dispatcher) RunPending() int {
	if !d.pump.TryLock() {
		return 0
	}
	defer d.pump.Unlock()
	return d.drain()
}

// Run pumps the queue until ctx is done or the dispatcher is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.pump.Lock()
		d.drain()
		d.pump.Unlock()

		d.mu.Lock()
		drained := d.closed && len(d.queue) == 0
		d.mu.Unlock()
		if drained {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// Close stops accepting new actions. Already queued actions still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain runs one batch. The caller holds d.pump.
func (d *Dispatcher) drain() int {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, action := range batch {
		d.execute(action)
	}
	return len(batch)
}

func (d *Dispatcher) execute(action Action) {
	o := &owner{d: d}
	o.live.Store(true)
	defer o.live.Store(false)
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("dispatched action panicked: %v", r)
		}
	}()
	action(context.WithValue(context.Background(), ownerKey{}, o))
}
