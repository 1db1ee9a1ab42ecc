package anchorsync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSucceeds(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var progress []float64
	client := startedClient(t, remote,
		WithClock(func() time.Time { return now }),
		WithExpiration(24*time.Hour),
		WithProgressHandler(func(f float64) { progress = append(progress, f) }),
	)

	placed, err := client.Place(ctx, models.NewPose(1, 0, 2))
	require.NoError(t, err)

	attempt, err := client.Save(ctx)
	require.NoError(t, err)

	assert.Equal(t, SaveSucceeded, attempt.State())
	assert.Equal(t, []SaveState{SaveIdle, SaveBindingLocal, SaveAwaitingReadiness, SaveSubmitting, SaveSucceeded}, attempt.History())
	assert.Equal(t, placed.ID, attempt.ObjectID())
	assert.Equal(t, []float64{0.5, 1}, attempt.Samples())
	assert.Equal(t, attempt.Samples(), progress)
	assert.NoError(t, attempt.Err())

	rec := attempt.Record()
	require.NotNil(t, rec)
	assert.Equal(t, "anchor-1", rec.ID)
	require.NotNil(t, rec.Expiration)
	assert.Equal(t, now.Add(24*time.Hour), *rec.Expiration)

	snap, ok, err := client.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Bound)
	assert.Equal(t, rec.ID, snap.Record.ID)
	assert.Equal(t, rec.ID, client.Session().CurrentAnchor().ID)

	var messages []string
	for _, e := range client.Events().Entries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Move your device to capture more environment data: 50%")
	assert.Contains(t, messages, "Saving...")
	assert.Contains(t, messages, "Saved cloud anchor: anchor-1")
}

func TestSaveAdoptsRemotePose(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remotePose := models.NewPose(1.02, 0, 1.98)
	remote.remotePose = &remotePose
	client := startedClient(t, remote)

	_, err := client.Place(ctx, models.NewPose(1, 0, 2))
	require.NoError(t, err)
	attempt, err := client.Save(ctx)
	require.NoError(t, err)
	assert.Greater(t, attempt.Drift(), 0.0)

	snap, _, err := client.Current(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(remotePose, snap.Pose); diff != "" {
		t.Errorf("object pose does not follow the persisted record (-want +got):\n%s", diff)
	}
}

func TestSaveWithoutObject(t *testing.T) {
	client := startedClient(t, newFakeRemote())

	attempt, err := client.Save(context.Background())
	assert.ErrorIs(t, err, ErrNoTargetObject)
	require.NotNil(t, attempt)
	assert.Equal(t, SaveFailed, attempt.State())
	assert.Equal(t, []SaveState{SaveIdle, SaveBindingLocal, SaveFailed}, attempt.History())
}

func TestSaveReadinessTimeoutLeavesObjectUnbound(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.readyAt = 0
	log, logs := observedLogger()
	client := startedClient(t, remote, WithMaxWait(20*time.Millisecond), WithLogger(log))

	_, err := client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)

	attempt, err := client.Save(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Equal(t, SaveFailed, attempt.State())
	assert.NotContains(t, attempt.History(), SaveSubmitting)
	assert.NotContains(t, remote.Calls(), "CreateAnchor")
	assert.NotEmpty(t, attempt.Samples())

	settle(t, client.Dispatcher())
	snap, _, err := client.Current(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Bound)
	assert.Nil(t, snap.Record, "pending record is dropped")
	assert.Positive(t, logs.FilterMessageSnippet("Save failed").Len())
}

func TestSaveRemoteFailure(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	cause := &RemoteError{Message: "quota exceeded", Type: "CloudAnchorError"}
	remote.createAnchorErr = cause
	log, logs := observedLogger()
	client := startedClient(t, remote, WithLogger(log))

	_, err := client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)

	attempt, err := client.Save(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.ErrorIs(t, err, ErrRemoteService)

	var saveErr *SaveFailedError
	require.True(t, errors.As(err, &saveErr))
	assert.Same(t, cause, saveErr.Cause)
	assert.Equal(t, SaveFailed, attempt.State())

	entries := logs.FilterMessageSnippet("quota exceeded").All()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "CloudAnchorError")

	settle(t, client.Dispatcher())
	snap, _, err := client.Current(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Bound)
}

func TestSaveWithoutReturnedID(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.noID = true
	client := startedClient(t, remote)

	_, err := client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)

	_, err = client.Save(ctx)
	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.ErrorIs(t, err, ErrNoAnchorReturned)
}

func TestSaveAlreadyBound(t *testing.T) {
	ctx := context.Background()
	client := startedClient(t, newFakeRemote())

	_, err := client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)
	_, err = client.Save(ctx)
	require.NoError(t, err)

	_, err = client.Save(ctx)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestSaveMissingCapability(t *testing.T) {
	ctx := context.Background()
	client := startedClient(t, newFakeRemote())

	require.NoError(t, onOwner(t, client.Dispatcher(), func(owned context.Context) error {
		_, err := client.Objects().Adopt(owned, models.NewPose(0, 0, 1), nil)
		return err
	}))

	_, err := client.Save(ctx)
	assert.ErrorIs(t, err, ErrMissingBindingCapability)
}

func TestSaveObjectRequiresID(t *testing.T) {
	client := newTestClient(t, newFakeRemote())
	_, err := client.Persistence().SaveObject(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSaveAttemptIsOneShot(t *testing.T) {
	a := newSaveAttempt()
	assert.True(t, a.transition(SaveBindingLocal))
	assert.True(t, a.transition(SaveFailed))
	assert.False(t, a.transition(SaveSubmitting))
	assert.False(t, a.transition(SaveSucceeded))
	assert.Equal(t, SaveFailed, a.State())
	assert.Equal(t, []SaveState{SaveIdle, SaveBindingLocal, SaveFailed}, a.History())
}

func TestSaveStateString(t *testing.T) {
	assert.Equal(t, "AwaitingReadiness", SaveAwaitingReadiness.String())
	assert.Equal(t, "Unknown", SaveState(42).String())
}

func TestSaveStampsExpirationAtSubmission(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var now atomic.Int64
	now.Store(start.UnixNano())

	client := startedClient(t, remote,
		WithClock(func() time.Time { return time.Unix(0, now.Load()).UTC() }),
		// Each readiness sample takes an hour of wall time.
		WithProgressHandler(func(float64) { now.Add(int64(time.Hour)) }),
	)
	_, err := client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)

	attempt, err := client.Save(ctx)
	require.NoError(t, err)
	require.Len(t, attempt.Samples(), 2)

	want := start.Add(2 * time.Hour).Add(DefaultExpiration)
	rec := attempt.Record()
	require.NotNil(t, rec.Expiration)
	assert.True(t, want.Equal(*rec.Expiration), "expiration %s, want %s", rec.Expiration, want)

	remote.mu.Lock()
	submitted := remote.submitted[0]
	remote.mu.Unlock()
	require.NotNil(t, submitted.Expiration)
	assert.True(t, want.Equal(*submitted.Expiration))
}

func TestSaveBindsEvenIfCancelledAfterSubmission(t *testing.T) {
	remote := newFakeRemote()
	client := startedClient(t, remote)

	_, err := client.Place(context.Background(), models.NewPose(0, 0, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote.createHook = cancel

	attempt, err := client.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveSucceeded, attempt.State())
	require.Error(t, ctx.Err())

	snap, ok, err := client.Current(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Bound)
	assert.Equal(t, attempt.Record().ID, snap.Record.ID)
	assert.Empty(t, remote.deleted)
}

func TestSaveDeletesAnchorThatCannotBeBound(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	log, logs := observedLogger()
	d := NewDispatcher(log)
	client, err := NewClient(remote, nil,
		WithDispatcher(d),
		WithSettleDelay(0),
		WithPollInterval(time.Millisecond),
		WithMaxWait(time.Second),
		WithLogger(log),
	)
	require.NoError(t, err)
	defer client.Close()

	pumped := make(chan error, 1)
	go func() { pumped <- d.Run(ctx) }()

	require.NoError(t, client.Start(ctx))
	_, err = client.Place(ctx, models.NewPose(0, 0, 1))
	require.NoError(t, err)

	// The owning context goes away while the service is persisting the anchor.
	remote.createHook = d.Close

	attempt, err := client.Save(ctx)
	require.NoError(t, <-pumped)

	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.ErrorIs(t, err, ErrDispatcherClosed)
	assert.Equal(t, SaveFailed, attempt.State())
	assert.Nil(t, attempt.Record())

	remote.mu.Lock()
	deleted := append([]string(nil), remote.deleted...)
	remote.mu.Unlock()
	assert.Equal(t, []string{"anchor-1"}, deleted, "the unbound remote anchor is removed")
	assert.Equal(t, 1, logs.FilterMessageSnippet("could not be bound locally").Len())

	obj := client.Objects().Current()
	require.NotNil(t, obj)
	assert.False(t, obj.Bound())
}
