// ABOUTME: Tests for the session registry
// ABOUTME: Covers start collapsing, dispatch, stop idempotency, and failure cleanup

package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFactory builds FakeEngines and remembers them by conversation id.
type fakeFactory struct {
	mu      sync.Mutex
	engines map[string]*FakeEngine

	// startErr applies to engines created after it is set.
	startErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{engines: make(map[string]*FakeEngine)}
}

func (f *fakeFactory) factory(conversationID string, sink EventSink) Engine {
	f.mu.Lock()
	defer f.mu.Unlock()

	eng := NewFakeEngine(conversationID, sink)
	eng.StartErr = f.startErr
	f.engines[conversationID] = eng
	return eng
}

func (f *fakeFactory) engine(conversationID string) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[conversationID]
}

func noopSink(string, Event) {}

func TestRegistry_EnsureStartedCreatesOnce(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	s1, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
	require.NoError(t, err)
	require.NotNil(t, s1)

	s2, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	assert.Equal(t, 1, ff.engine("c1").StartCalls())
	assert.True(t, r.IsRunning("c1"))
}

func TestRegistry_ConcurrentEnsureStartedCollapses(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ff.engine("c1").StartCalls())
	assert.Equal(t, []string{"c1"}, r.Running())
}

func TestRegistry_StartFailureLeavesNoEntry(t *testing.T) {
	ff := newFakeFactory()
	ff.startErr = errors.New("sandbox unavailable")
	r := NewRegistry(ff.factory, noopSink, nil)

	_, err := r.EnsureStarted(context.Background(), "c1", InitParams{}, "user-1")
	require.Error(t, err)
	assert.False(t, r.IsRunning("c1"))

	// A later attempt may succeed once the engine can start.
	ff.startErr = nil
	_, err = r.EnsureStarted(context.Background(), "c1", InitParams{}, "user-1")
	assert.NoError(t, err)
}

func TestRegistry_Dispatch(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	_, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, "c1", map[string]any{"event_type": "some_event"}))
	assert.Len(t, ff.engine("c1").Dispatched(), 1)
}

func TestRegistry_DispatchMissingSession(t *testing.T) {
	r := NewRegistry(newFakeFactory().factory, noopSink, nil)

	err := r.Dispatch(context.Background(), "ghost", "msg")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_StopIsIdempotent(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	_, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
	require.NoError(t, err)

	r.Stop(ctx, "c1")
	r.Stop(ctx, "c1")

	assert.Equal(t, 1, ff.engine("c1").StopCalls())
	assert.False(t, r.IsRunning("c1"))
}

func TestRegistry_StopAll(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := r.EnsureStarted(ctx, id, InitParams{}, "user-1")
		require.NoError(t, err)
	}

	r.StopAll(ctx)

	assert.Empty(t, r.Running())
	for _, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, 1, ff.engine(id).StopCalls())
	}
}

func TestSession_WorkspaceBranchCachesObservation(t *testing.T) {
	ff := newFakeFactory()
	r := NewRegistry(ff.factory, noopSink, nil)
	ctx := context.Background()

	s, err := r.EnsureStarted(ctx, "c1", InitParams{}, "user-1")
	require.NoError(t, err)

	ff.engine("c1").SetBranch("feature")
	branch, err := s.WorkspaceBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)
	assert.Equal(t, "feature", s.ObservedBranch())

	// A failing probe does not erase the cached observation
	ff.engine("c1").BranchErr = errors.New("detached HEAD")
	_, err = s.WorkspaceBranch(ctx)
	require.Error(t, err)
	assert.Equal(t, "feature", s.ObservedBranch())
}
