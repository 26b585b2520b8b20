// ABOUTME: Detects branch-changing git commands and propagates the new branch
// ABOUTME: Classify, probe, compare, apply; every failure degrades to "no update"

package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/strand-gateway/internal/session"
	"github.com/2389/strand-gateway/internal/store"
	"github.com/2389/strand-gateway/internal/transport"
)

// EventName is the websocket event name every conversation event is
// delivered under.
const EventName = "oh_event"

// RoomName returns the broadcast room for a conversation.
func RoomName(conversationID string) string {
	return "room:" + conversationID
}

// BranchUpdateEvent is the ephemeral status message broadcast to a
// conversation's room when its working branch changes. It is never persisted.
type BranchUpdateEvent struct {
	StatusUpdate   bool    `json:"status_update"`
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	SelectedBranch *string `json:"selected_branch"`
}

// gitBranchVerbs are the git subcommands that can change the checked-out
// branch. Read-only verbs (status, log, diff) and content verbs (add,
// commit, push) are deliberately absent.
var gitBranchVerbs = map[string]struct{}{
	"checkout": {},
	"switch":   {},
	"merge":    {},
	"rebase":   {},
	"reset":    {},
	"branch":   {},
}

// SessionSource resolves the local session hosting a conversation, if any.
// Implemented by the session Registry.
type SessionSource interface {
	Get(conversationID string) (*session.Session, bool)
}

// Reconciler watches command results flowing out of local sessions and keeps
// each conversation's persisted branch in sync with the branch actually
// checked out in the agent's workspace.
type Reconciler struct {
	sessions  SessionSource
	store     store.Store
	transport transport.Transport
	logger    *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(sessions SessionSource, st store.Store, tr transport.Transport, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		sessions:  sessions,
		store:     st,
		transport: tr,
		logger:    logger.With("component", "reconciler"),
	}
}

// IsBranchChanging classifies an engine event: true iff it is a successful
// command result whose command text contains a branch-changing git verb.
// A failed command never counts, whatever its text.
func IsBranchChanging(event session.Event) bool {
	if event.Kind != session.EventCommandResult {
		return false
	}
	if event.ExitCode != 0 {
		return false
	}
	return containsBranchVerb(event.Command)
}

// containsBranchVerb splits the command on shell control operators and looks
// for a segment starting with "git <verb>" for a branch-changing verb,
// case-insensitively.
func containsBranchVerb(command string) bool {
	lower := strings.ToLower(command)
	segments := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ';' || r == '|' || r == '&' || r == '\n'
	})
	for _, seg := range segments {
		fields := strings.Fields(seg)
		if len(fields) < 2 {
			continue
		}
		if fields[0] != "git" {
			continue
		}
		if _, ok := gitBranchVerbs[fields[1]]; ok {
			return true
		}
	}
	return false
}

// ShouldUpdateBranch decides whether a probed branch warrants an update.
// An empty probe result never overwrites a known branch: a transiently
// unreadable branch must not erase state.
func ShouldUpdateBranch(old *string, probed string) bool {
	if probed == "" {
		return false
	}
	return old == nil || *old != probed
}

// Reconcile runs classify, probe, compare, apply for one engine event.
// Every failure path degrades to "no update this round"; nothing propagates
// to the caller, so the surrounding event broadcast is never disturbed.
func (r *Reconciler) Reconcile(ctx context.Context, conversationID string, event session.Event) {
	if !IsBranchChanging(event) {
		return
	}

	// Only the process hosting the session can observe its live branch
	sess, ok := r.sessions.Get(conversationID)
	if !ok {
		return
	}

	branch, err := sess.WorkspaceBranch(ctx)
	if err != nil {
		r.logger.Debug("branch probe failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		r.logger.Warn("loading conversation for branch update failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	if !ShouldUpdateBranch(conv.SelectedBranch, branch) {
		return
	}

	oldBranch := conv.SelectedBranch
	conv.SelectedBranch = &branch
	if err := r.store.SaveConversation(ctx, conv); err != nil {
		r.logger.Warn("persisting branch update failed",
			"conversation_id", conversationID,
			"error", err)
		// Still broadcast: observers should see the live branch
	}

	r.logger.Info("workspace branch changed",
		"conversation_id", conversationID,
		"old_branch", deref(oldBranch),
		"new_branch", branch,
	)

	update := BranchUpdateEvent{
		StatusUpdate:   true,
		Type:           "info",
		Message:        conversationID,
		SelectedBranch: &branch,
	}
	if err := r.transport.Broadcast(RoomName(conversationID), EventName, update); err != nil {
		r.logger.Warn("broadcasting branch update failed",
			"conversation_id", conversationID,
			"error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
