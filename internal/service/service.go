// Package service is an in-process anchoring service. It persists anchors in a
// Storage backend and delivers notifications from its own goroutines, the way
// a device SDK delivers them from a worker thread.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"github.com/himanishpuri/AnchorSync/pkg/logger"
	"github.com/himanishpuri/AnchorSync/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultProgressStep  = 0.25
	DefaultLocateLatency = 50 * time.Millisecond
	notificationBuffer   = 256
)

type sessionState int

const (
	sessionNone sessionState = iota
	sessionCreated
	sessionStarted
	sessionStopped
)

// Faults makes individual operations fail, for exercising error paths.
type Faults struct {
	CreateSession error
	StartSession  error
	CreateAnchor  error
	DeleteAnchor  error
	CreateWatcher error
	// DropAnchorID makes CreateAnchor report success without assigning an identifier.
	DropAnchorID bool
}

type Config struct {
	ProgressStep  float64
	LocateLatency time.Duration
	Logger        anchorsync.Logger
}

type Option func(*Config)

// WithProgressStep sets how much capture progress each readiness poll adds.
func WithProgressStep(step float64) Option {
	return func(c *Config) {
		c.ProgressStep = step
	}
}

// WithLocateLatency sets the delay before each located notification.
func WithLocateLatency(d time.Duration) Option {
	return func(c *Config) {
		c.LocateLatency = d
	}
}

func WithLogger(log anchorsync.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// AnchorService implements anchorsync.RemoteService.
type AnchorService struct {
	mu          sync.Mutex
	state       sessionState
	progress    float64
	listener    anchorsync.Listener
	watchers    map[int]*watcher
	nextWatcher int
	tracked     map[string]bool
	faults      Faults

	store  anchorsync.Storage
	cfg    Config
	log    anchorsync.Logger
	notify chan func(anchorsync.Listener)
	done   chan struct{}
	group  errgroup.Group
	closed sync.Once
}

func New(store anchorsync.Storage, opts ...Option) *AnchorService {
	cfg := Config{
		ProgressStep:  DefaultProgressStep,
		LocateLatency: DefaultLocateLatency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = DefaultProgressStep
	}

	s := &AnchorService{
		watchers: make(map[int]*watcher),
		tracked:  make(map[string]bool),
		store:    store,
		cfg:      cfg,
		log:      cfg.Logger,
		notify:   make(chan func(anchorsync.Listener), notificationBuffer),
		done:     make(chan struct{}),
	}
	s.group.Go(s.deliver)
	return s
}

// SetFaults replaces the injected failures.
func (s *AnchorService) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// deliver runs listener callbacks, in order, on the service's notification goroutine.
func (s *AnchorService) deliver() error {
	for {
		select {
		case <-s.done:
			return nil
		case fn := <-s.notify:
			s.mu.Lock()
			l := s.listener
			s.mu.Unlock()
			if l != nil {
				fn(l)
			}
		}
	}
}

func (s *AnchorService) post(fn func(anchorsync.Listener)) {
	select {
	case <-s.done:
	case s.notify <- fn:
	}
}

func remoteErr(typ, format string, args ...any) error {
	return &anchorsync.RemoteError{Type: typ, Message: fmt.Sprintf(format, args...)}
}

func (s *AnchorService) Subscribe(listener anchorsync.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

func (s *AnchorService) CreateSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.faults.CreateSession != nil {
		err := s.faults.CreateSession
		s.mu.Unlock()
		return err
	}
	if s.state == sessionCreated || s.state == sessionStarted {
		s.mu.Unlock()
		return remoteErr("InvalidOperationException", "a session is already active")
	}
	s.state = sessionCreated
	s.progress = 0
	s.mu.Unlock()

	s.post(func(l anchorsync.Listener) { l.OnDiagnostic("session created") })
	return nil
}

func (s *AnchorService) StartSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.faults.StartSession != nil {
		err := s.faults.StartSession
		s.mu.Unlock()
		return err
	}
	if s.state != sessionCreated {
		s.mu.Unlock()
		return remoteErr("InvalidOperationException", "session must be created before it is started")
	}
	s.state = sessionStarted
	s.mu.Unlock()

	s.post(func(l anchorsync.Listener) { l.OnSessionStarted() })
	return nil
}

func (s *AnchorService) StopSession() {
	s.mu.Lock()
	if s.state == sessionCreated || s.state == sessionStarted {
		s.state = sessionStopped
	}
	watchers := s.detachWatchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}

func (s *AnchorService) ResetSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	watchers := s.detachWatchersLocked()
	s.state = sessionNone
	s.progress = 0
	s.tracked = make(map[string]bool)
	s.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	return nil
}

func (s *AnchorService) detachWatchersLocked() []*watcher {
	out := make([]*watcher, 0, len(s.watchers))
	for id, w := range s.watchers {
		out = append(out, w)
		delete(s.watchers, id)
	}
	return out
}

// IsReadyForCreate advances capture progress by one step per poll.
func (s *AnchorService) IsReadyForCreate() bool {
	s.mu.Lock()
	if s.state != sessionStarted {
		s.mu.Unlock()
		return false
	}
	if s.progress < 1 {
		s.progress += s.cfg.ProgressStep
		if s.progress > 1 {
			s.progress = 1
		}
	}
	progress := s.progress
	s.mu.Unlock()

	s.post(func(l anchorsync.Listener) {
		l.OnSessionUpdated(models.SessionStatus{
			ReadyForCreateProgress:       progress,
			RecommendedForCreateProgress: progress,
		})
	})
	return progress >= 1
}

func (s *AnchorService) RecommendedProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *AnchorService) CreateAnchor(ctx context.Context, record models.CloudAnchorRecord) (*models.CloudAnchorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	faults := s.faults
	state := s.state
	progress := s.progress
	s.mu.Unlock()

	if faults.CreateAnchor != nil {
		return nil, faults.CreateAnchor
	}
	if state != sessionStarted {
		return nil, remoteErr("InvalidOperationException", "no started session")
	}
	if progress < 1 {
		return nil, remoteErr("CloudSpatialException", "not enough environment data (%.0f%%)", progress*100)
	}
	if record.ID != "" {
		return nil, remoteErr("ArgumentException", "anchor %s was already created", record.ID)
	}
	if faults.DropAnchorID {
		out := record.Clone()
		return out, nil
	}

	saved, err := s.store.CreateAnchor(record)
	if err != nil {
		return nil, &anchorsync.RemoteError{Type: "CloudSpatialException", Message: "persisting anchor", Inner: err}
	}
	s.post(func(l anchorsync.Listener) { l.OnDiagnostic("anchor " + saved.ID + " created") })
	return &saved, nil
}

func (s *AnchorService) DeleteAnchor(ctx context.Context, record models.CloudAnchorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	fault := s.faults.DeleteAnchor
	s.mu.Unlock()
	if fault != nil {
		return fault
	}
	if record.ID == "" {
		return remoteErr("ArgumentException", "anchor has no identifier")
	}
	if err := s.store.DeleteAnchor(record.ID); err != nil {
		return &anchorsync.RemoteError{Type: "CloudSpatialException", Message: "deleting anchor " + record.ID, Inner: err}
	}
	return nil
}

func (s *AnchorService) CreateWatcher(criteria anchorsync.LocateCriteria) (anchorsync.Watcher, error) {
	s.mu.Lock()
	if s.faults.CreateWatcher != nil {
		err := s.faults.CreateWatcher
		s.mu.Unlock()
		return nil, err
	}
	if s.state != sessionStarted {
		s.mu.Unlock()
		return nil, remoteErr("InvalidOperationException", "no started session")
	}
	s.nextWatcher++
	w := &watcher{
		id:   s.nextWatcher,
		ids:  append([]string(nil), criteria.Identifiers...),
		stop: make(chan struct{}),
	}
	s.watchers[w.id] = w
	s.mu.Unlock()

	s.group.Go(func() error {
		s.runWatcher(w)
		return nil
	})
	return w, nil
}

func (s *AnchorService) runWatcher(w *watcher) {
	found, err := s.store.GetAnchorsByIDs(w.ids)
	if err != nil {
		s.post(func(l anchorsync.Listener) { l.OnError("locate lookup failed: " + err.Error()) })
		found = map[string]models.CloudAnchorRecord{}
	}

	seen := make(map[string]bool, len(w.ids))
	for _, id := range w.ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if !w.wait(s.cfg.LocateLatency, s.done) {
			return
		}

		event := models.AnchorLocatedEvent{WatcherID: w.id, Identifier: id}
		if rec, ok := found[id]; ok {
			s.mu.Lock()
			already := s.tracked[id]
			s.tracked[id] = true
			s.mu.Unlock()

			if already {
				event.Status = models.StatusAlreadyTracked
			} else {
				event.Status = models.StatusLocated
				event.Record = rec.Clone()
			}
		} else {
			event.Status = models.StatusNotLocatedAnchorDoesNotExist
		}
		s.post(func(l anchorsync.Listener) { l.OnAnchorLocated(event) })
	}

	if w.stopped() {
		return
	}
	s.mu.Lock()
	delete(s.watchers, w.id)
	s.mu.Unlock()
	s.post(func(l anchorsync.Listener) { l.OnLocateCompleted(models.LocateCompletedEvent{WatcherID: w.id}) })
}

// Close stops all watchers and waits for the service's goroutines to exit.
func (s *AnchorService) Close() error {
	s.StopSession()
	s.closed.Do(func() { close(s.done) })
	return s.group.Wait()
}

type watcher struct {
	id   int
	ids  []string
	stop chan struct{}
	once sync.Once
}

func (w *watcher) ID() int { return w.id }

func (w *watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

func (w *watcher) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// wait sleeps for d unless the watcher is stopped or the service is closing.
func (w *watcher) wait(d time.Duration, done <-chan struct{}) bool {
	if d <= 0 {
		return !w.stopped()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stop:
		return false
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
