package anchorsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/himanishpuri/AnchorSync/pkg/models"
)

type SessionState int

const (
	StateUninitialized SessionState = iota
	StateCreated
	StateStarted
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateCreated:
		return "Created"
	case StateStarted:
		return "Started"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// LocateCriteria is the ordered set of anchor identifiers a watcher searches for.
type LocateCriteria struct {
	Identifiers []string
}

func (c LocateCriteria) clone() LocateCriteria {
	ids := make([]string, len(c.Identifiers))
	copy(ids, c.Identifiers)
	return LocateCriteria{Identifiers: ids}
}

// SessionController owns the remote session lifecycle and the active watcher.
type SessionController struct {
	mu       sync.Mutex
	state    SessionState
	busy     bool
	remote   RemoteService
	listener Listener
	criteria LocateCriteria
	anchor   *models.CloudAnchorRecord
	watcher  Watcher

	// watcherPending is set while CreateWatcher waits on the remote call.
	watcherPending bool
	held           []heldSignal

	onWatcherReleased func()

	events *EventLog
	log    Logger
}

// heldSignal is a watcher signal that arrived before its watcher's id was known.
type heldSignal struct {
	watcherID int
	replay    func()
}

func NewSessionController(remote RemoteService, events *EventLog, log Logger) *SessionController {
	return &SessionController{
		remote: remote,
		events: events,
		log:    log,
	}
}

// SetListener installs the signal sink subscribed when the session starts.
func (s *SessionController) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// OnWatcherReleased registers fn to run whenever the active watcher goes away.
func (s *SessionController) OnWatcherReleased(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWatcherReleased = fn
}

func (s *SessionController) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOpen reports whether the session is started.
func (s *SessionController) IsOpen() bool {
	return s.State() == StateStarted
}

// begin claims the controller for a remote transition when the state allows it.
func (s *SessionController) begin(op string, allowed ...SessionState) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return s.state, fmt.Errorf("%s while another transition is pending: %w", op, ErrInvalidTransition)
	}
	for _, st := range allowed {
		if s.state == st {
			s.busy = true
			return s.state, nil
		}
	}
	return s.state, fmt.Errorf("%s from %s: %w", op, s.state, ErrInvalidTransition)
}

// finish releases the claim and applies next unless a Stop happened meanwhile.
func (s *SessionController) finish(from, next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.state != from {
		return false
	}
	s.state = next
	return true
}

func (s *SessionController) Create(ctx context.Context) error {
	from, err := s.begin("create", StateUninitialized, StateStopped)
	if err != nil {
		if from != StateUninitialized && from != StateStopped {
			err = fmt.Errorf("create from %s: %w", from, ErrSessionAlreadyExists)
		}
		s.log.Warnf("%v", err)
		return err
	}

	s.events.Add(EventInfo, "Creating session...")
	if err := s.remote.CreateSession(ctx); err != nil {
		s.finish(from, from)
		s.events.Add(EventError, "create session failed: %s", describeError(err))
		return fmt.Errorf("create session: %w", err)
	}
	s.finish(from, StateCreated)
	return nil
}

// Configure sets the session's search identifiers. Valid only before Start.
func (s *SessionController) Configure(criteria LocateCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStarted {
		return fmt.Errorf("configure after start: %w", ErrInvalidTransition)
	}
	s.criteria = criteria.clone()
	return nil
}

func (s *SessionController) Criteria() LocateCriteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria.clone()
}

func (s *SessionController) Start(ctx context.Context) error {
	if _, err := s.begin("start", StateCreated); err != nil {
		s.log.Warnf("%v", err)
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		s.remote.Subscribe(listener)
	}

	s.events.Add(EventInfo, "Starting session...")
	if err := s.remote.StartSession(ctx); err != nil {
		if listener != nil {
			s.remote.Subscribe(nil)
		}
		s.finish(StateCreated, StateCreated)
		startErr := newSessionStartError(err)
		s.events.Add(EventError, "Error: %s", describeError(startErr))
		return startErr
	}

	if !s.finish(StateCreated, StateStarted) {
		s.remote.Subscribe(nil)
		return fmt.Errorf("session stopped while starting: %w", ErrNoActiveSession)
	}
	s.events.Add(EventInfo, "Session started")
	return nil
}

// Stop releases the active watcher and closes the session. Safe to call at any time.
func (s *SessionController) Stop() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	release := s.onWatcherReleased
	stopRemote := s.state == StateCreated || s.state == StateStarted
	if stopRemote {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if w != nil {
		w.Stop()
		if release != nil {
			release()
		}
	}
	if stopRemote {
		s.remote.StopSession()
		s.events.Add(EventInfo, "Session stopped")
	}
}

// Reset clears session-local state. Only valid once stopped.
func (s *SessionController) Reset(ctx context.Context) error {
	if _, err := s.begin("reset", StateStopped); err != nil {
		s.log.Warnf("%v", err)
		return err
	}

	if err := s.remote.ResetSession(ctx); err != nil {
		s.finish(StateStopped, StateStopped)
		s.events.Add(EventError, "reset session failed: %s", describeError(err))
		return fmt.Errorf("reset session: %w", err)
	}

	s.mu.Lock()
	s.criteria = LocateCriteria{}
	s.anchor = nil
	s.mu.Unlock()
	s.finish(StateStopped, StateUninitialized)
	s.events.Add(EventInfo, "Session reset")
	return nil
}

// SetCurrentAnchor remembers the anchor most recently saved or located in this session.
func (s *SessionController) SetCurrentAnchor(rec *models.CloudAnchorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = rec.Clone()
}

func (s *SessionController) CurrentAnchor() *models.CloudAnchorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor.Clone()
}

// CreateWatcher starts a locate against the open session, replacing any
// watcher still tracked. Signals held while the remote call was pending are
// replayed once the new watcher is tracked; those for other watchers are dropped.
func (s *SessionController) CreateWatcher(criteria LocateCriteria) (Watcher, error) {
	s.mu.Lock()
	if s.state != StateStarted {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	old := s.watcher
	s.watcher = nil
	s.watcherPending = true
	s.held = nil
	s.mu.Unlock()

	if old != nil {
		s.log.Debugf("stopping superseded watcher %d", old.ID())
		old.Stop()
	}

	w, err := s.remote.CreateWatcher(criteria.clone())

	s.mu.Lock()
	held := s.held
	s.held = nil
	s.watcherPending = false
	if err == nil && s.state == StateStarted {
		s.watcher = w
	}
	tracked := s.watcher == w
	s.mu.Unlock()

	if err != nil {
		s.events.Add(EventError, "create watcher failed: %s", describeError(err))
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if !tracked {
		w.Stop()
		return nil, fmt.Errorf("session stopped while creating watcher: %w", ErrNoActiveSession)
	}

	for _, h := range held {
		if h.watcherID == w.ID() {
			h.replay()
		}
	}
	return w, nil
}

// holdWatcherSignal keeps replay for later if a watcher is being created.
func (s *SessionController) holdWatcherSignal(watcherID int, replay func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.watcherPending {
		return false
	}
	s.held = append(s.held, heldSignal{watcherID: watcherID, replay: replay})
	return true
}

// ActiveWatcherID returns the tracked watcher's id.
func (s *SessionController) ActiveWatcherID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return 0, false
	}
	return s.watcher.ID(), true
}

// StopWatcher stops the tracked watcher, if any.
func (s *SessionController) StopWatcher() bool {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return false
	}
	w.Stop()
	return true
}

// WatcherCompleted drops tracking of watcher id after it finished on its own.
func (s *SessionController) WatcherCompleted(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil || s.watcher.ID() != id {
		return false
	}
	s.watcher = nil
	return true
}
