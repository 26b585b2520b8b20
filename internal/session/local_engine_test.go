// ABOUTME: Tests for the local workspace execution engine
// ABOUTME: Runs real shell commands in a temp directory and probes git branches

package session

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalEngine(t *testing.T) (*LocalEngine, <-chan Event) {
	t.Helper()

	events := make(chan Event, 16)
	factory := NewLocalEngineFactory(t.TempDir(), nil)
	eng := factory("c1", func(_ string, event Event) {
		events <- event
	}).(*LocalEngine)

	require.NoError(t, eng.Start(context.Background(), InitParams{}, "user-1"))
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng, events
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event emitted")
		return Event{}
	}
}

func TestLocalEngine_RunEmitsCommandResult(t *testing.T) {
	eng, events := newLocalEngine(t)

	msg := json.RawMessage(`{"action":"run","args":{"command":"echo hello"}}`)
	require.NoError(t, eng.Dispatch(context.Background(), msg))

	ev := waitEvent(t, events)
	assert.Equal(t, EventCommandResult, ev.Kind)
	assert.Equal(t, "echo hello", ev.Command)
	assert.Equal(t, 0, ev.ExitCode)

	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello\n", payload["content"])
}

func TestLocalEngine_FailedCommandExitCode(t *testing.T) {
	eng, events := newLocalEngine(t)

	msg := json.RawMessage(`{"action":"run","args":{"command":"exit 3"}}`)
	require.NoError(t, eng.Dispatch(context.Background(), msg))

	ev := waitEvent(t, events)
	assert.Equal(t, EventCommandResult, ev.Kind)
	assert.Equal(t, 3, ev.ExitCode)
}

func TestLocalEngine_NonRunActionIsEchoedOpaque(t *testing.T) {
	eng, events := newLocalEngine(t)

	msg := json.RawMessage(`{"action":"message","args":{"content":"hi"}}`)
	require.NoError(t, eng.Dispatch(context.Background(), msg))

	ev := waitEvent(t, events)
	assert.Equal(t, EventOpaque, ev.Kind)
	raw, ok := ev.Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, string(msg), string(raw))
}

func TestLocalEngine_RunWithoutCommandRejected(t *testing.T) {
	eng, _ := newLocalEngine(t)

	err := eng.Dispatch(context.Background(), json.RawMessage(`{"action":"run","args":{}}`))
	assert.Error(t, err)
}

func TestLocalEngine_DispatchAfterStop(t *testing.T) {
	eng, _ := newLocalEngine(t)
	require.NoError(t, eng.Stop(context.Background()))

	err := eng.Dispatch(context.Background(), json.RawMessage(`{"action":"run","args":{"command":"true"}}`))
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestLocalEngine_WorkspaceBranch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	eng, events := newLocalEngine(t)

	setup := `git init -q -b main &&
git -c user.email=t@t -c user.name=t commit -q --allow-empty -m init &&
git checkout -q -b feature`
	require.NoError(t, eng.Dispatch(context.Background(), json.RawMessage(
		`{"action":"run","args":{"command":`+string(mustJSON(t, setup))+`}}`)))

	ev := waitEvent(t, events)
	require.Equal(t, 0, ev.ExitCode, "git setup failed: %v", ev.Payload)

	branch, err := eng.WorkspaceBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)
}

func TestLocalEngine_WorkspaceBranchOutsideGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	eng, _ := newLocalEngine(t)

	_, err := eng.WorkspaceBranch(context.Background())
	assert.Error(t, err)
}

func mustJSON(t *testing.T, s string) []byte {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return b
}
