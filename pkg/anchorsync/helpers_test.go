package anchorsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/AnchorSync/pkg/logger"
	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func nopLogger() *logger.Logger {
	return logger.FromZap(zap.NewNop())
}

// observedLogger records every entry so tests can assert on what was logged.
func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

type fakeWatcher struct {
	id      int
	stopped atomic.Bool
}

func (w *fakeWatcher) ID() int { return w.id }
func (w *fakeWatcher) Stop()   { w.stopped.Store(true) }

// fakeRemote is a scripted RemoteService. Signals are only emitted when a test
// calls one of the emit helpers.
type fakeRemote struct {
	mu sync.Mutex

	createSessionErr error
	startErr         error
	resetErr         error
	createAnchorErr  error
	deleteErr        error
	watcherErr       error

	// readyAt is the number of readiness polls after which the service is
	// ready. Zero means it never becomes ready.
	readyAt int
	polls   int

	noID       bool
	remotePose *models.Pose
	startHook  func()
	createHook func()
	// eagerWatcher delivers these signals from inside CreateWatcher.
	eagerWatcher func(f *fakeRemote, watcherID int)

	listener   Listener
	nextAnchor int
	watchers   []*fakeWatcher
	submitted  []models.CloudAnchorRecord
	deleted    []string
	calls      []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{readyAt: 2}
}

func (f *fakeRemote) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) CreateSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSession")
	return f.createSessionErr
}

func (f *fakeRemote) StartSession(ctx context.Context) error {
	f.mu.Lock()
	f.record("StartSession")
	hook, err := f.startHook, f.startErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeRemote) StopSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StopSession")
}

func (f *fakeRemote) ResetSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResetSession")
	f.polls = 0
	return f.resetErr
}

func (f *fakeRemote) IsReadyForCreate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.readyAt > 0 && f.polls >= f.readyAt
}

func (f *fakeRemote) RecommendedProgress() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readyAt <= 0 {
		return 0.5
	}
	return float64(f.polls) / float64(f.readyAt)
}

func (f *fakeRemote) CreateAnchor(ctx context.Context, rec models.CloudAnchorRecord) (*models.CloudAnchorRecord, error) {
	f.mu.Lock()
	hook := f.createHook
	f.mu.Unlock()
	if hook != nil {
		defer hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateAnchor")
	f.submitted = append(f.submitted, *rec.Clone())
	if f.createAnchorErr != nil {
		return nil, f.createAnchorErr
	}
	out := rec.Clone()
	if f.noID {
		return out, nil
	}
	f.nextAnchor++
	out.ID = fmt.Sprintf("anchor-%d", f.nextAnchor)
	if f.remotePose != nil {
		out.Pose = *f.remotePose
	}
	return out, nil
}

func (f *fakeRemote) DeleteAnchor(ctx context.Context, rec models.CloudAnchorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteAnchor")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, rec.ID)
	return nil
}

func (f *fakeRemote) CreateWatcher(criteria LocateCriteria) (Watcher, error) {
	f.mu.Lock()
	f.record("CreateWatcher")
	if f.watcherErr != nil {
		f.mu.Unlock()
		return nil, f.watcherErr
	}
	w := &fakeWatcher{id: len(f.watchers) + 1}
	f.watchers = append(f.watchers, w)
	eager := f.eagerWatcher
	f.mu.Unlock()

	if eager != nil {
		eager(f, w.id)
	}
	return w, nil
}

func (f *fakeRemote) Subscribe(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeRemote) currentListener() Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

func (f *fakeRemote) watcher(i int) *fakeWatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchers[i]
}

func (f *fakeRemote) emitLocated(watcherID int, status models.LocateStatus, rec *models.CloudAnchorRecord) {
	id := ""
	if rec != nil {
		id = rec.ID
	}
	f.currentListener().OnAnchorLocated(models.AnchorLocatedEvent{
		WatcherID:  watcherID,
		Identifier: id,
		Status:     status,
		Record:     rec,
	})
}

func (f *fakeRemote) emitCompleted(watcherID int) {
	f.currentListener().OnLocateCompleted(models.LocateCompletedEvent{WatcherID: watcherID})
}

// newTestClient builds a client with fast timings and pumps its dispatcher
// until the test ends.
func newTestClient(t *testing.T, remote RemoteService, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithSettleDelay(0),
		WithPollInterval(time.Millisecond),
		WithMaxWait(time.Second),
		WithLogger(nopLogger()),
	}
	client, err := NewClient(remote, nil, append(base, opts...)...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()
	t.Cleanup(func() {
		client.Close()
		require.NoError(t, <-done)
	})
	return client
}

// startedClient returns a client whose session is already started.
func startedClient(t *testing.T, remote *fakeRemote, opts ...Option) *Client {
	t.Helper()
	client := newTestClient(t, remote, opts...)
	require.NoError(t, client.Start(context.Background()))
	return client
}

// onOwner runs fn on the dispatcher's owning context.
func onOwner(t *testing.T, d *Dispatcher, fn func(ctx context.Context) error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.Call(ctx, fn)
}

// settle waits until every action queued so far, and those they queue, has run.
func settle(t *testing.T, d *Dispatcher) {
	t.Helper()
	for range 3 {
		require.NoError(t, onOwner(t, d, func(context.Context) error { return nil }))
	}
}
