// ABOUTME: Execution engine that runs agent commands in a local workspace directory
// ABOUTME: Shell commands run under sh -c; the workspace branch is probed with git

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrEngineStopped indicates a dispatch arrived after the engine shut down.
var ErrEngineStopped = errors.New("engine stopped")

// localInbound is the message shape the local engine understands. Actions
// other than "run" are echoed back to observers untouched.
type localInbound struct {
	Action string `json:"action"`
	Args   struct {
		Command string `json:"command"`
	} `json:"args"`
}

// LocalEngine executes commands directly in a per-conversation directory
// under a shared workspace root. It is the single-host engine: no remote
// runtime, no container, just the gateway's own filesystem.
type LocalEngine struct {
	conversationID string
	sink           EventSink
	dir            string
	logger         *slog.Logger

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewLocalEngineFactory returns an EngineFactory producing LocalEngines
// rooted at workspaceRoot. Each conversation gets its own subdirectory.
func NewLocalEngineFactory(workspaceRoot string, logger *slog.Logger) EngineFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(conversationID string, sink EventSink) Engine {
		return &LocalEngine{
			conversationID: conversationID,
			sink:           sink,
			dir:            filepath.Join(workspaceRoot, conversationID),
			logger:         logger.With("component", "local-engine", "conversation_id", conversationID),
		}
	}
}

// Start creates the workspace directory and, when a branch was requested on
// an existing git checkout, switches to it.
func (e *LocalEngine) Start(ctx context.Context, params InitParams, userID string) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.runCtx = runCtx
	e.cancel = cancel
	e.mu.Unlock()

	if params.SelectedBranch != "" && e.isGitWorkspace() {
		out, err := e.git(ctx, "checkout", params.SelectedBranch)
		if err != nil {
			e.logger.Warn("initial branch checkout failed",
				"branch", params.SelectedBranch,
				"output", out,
				"error", err)
		}
	}

	e.logger.Info("workspace ready", "dir", e.dir, "user_id", userID)
	return nil
}

// Dispatch accepts one inbound message. "run" actions execute asynchronously
// and produce a command result event when they finish; everything else is
// emitted verbatim for observers.
func (e *LocalEngine) Dispatch(ctx context.Context, message any) error {
	raw, err := toJSON(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	var in localInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}

	if in.Action != "run" {
		e.emit(Event{Kind: EventOpaque, Payload: json.RawMessage(raw)})
		return nil
	}
	if strings.TrimSpace(in.Args.Command) == "" {
		return errors.New("run action without command")
	}

	e.mu.Lock()
	if e.stopped || e.runCtx == nil {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	runCtx := e.runCtx
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.runCommand(runCtx, in.Args.Command)
	}()
	return nil
}

// runCommand executes one shell command and emits its result.
func (e *LocalEngine) runCommand(ctx context.Context, command string) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			e.logger.Warn("command failed to run", "command", command, "error", err)
		}
	}

	e.emit(Event{
		Kind:     EventCommandResult,
		Command:  command,
		ExitCode: exitCode,
		Payload: map[string]any{
			"observation": "run",
			"command":     command,
			"exit_code":   exitCode,
			"content":     out.String(),
		},
	})
}

// WorkspaceBranch asks git for the currently checked-out branch.
func (e *LocalEngine) WorkspaceBranch(ctx context.Context) (string, error) {
	out, err := e.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("probing branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Stop cancels in-flight commands and waits for them to finish.
func (e *LocalEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *LocalEngine) emit(event Event) {
	e.sink(e.conversationID, event)
}

func (e *LocalEngine) isGitWorkspace() bool {
	info, err := os.Stat(filepath.Join(e.dir, ".git"))
	return err == nil && info.IsDir()
}

func (e *LocalEngine) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = e.dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// toJSON normalizes a dispatch message to raw JSON bytes.
func toJSON(message any) ([]byte, error) {
	switch m := message.(type) {
	case json.RawMessage:
		return m, nil
	case []byte:
		return m, nil
	default:
		return json.Marshal(m)
	}
}
