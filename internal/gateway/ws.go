// ABOUTME: Inbound websocket message handling: join envelopes and session traffic
// ABOUTME: Clients join a conversation first; every later message goes to its agent loop

package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/strand-gateway/internal/conversation"
	"github.com/2389/strand-gateway/internal/session"
)

// joinEnvelope is the first message a client sends on a fresh connection.
type joinEnvelope struct {
	Action             string         `json:"action"`
	ConversationID     string         `json:"conversation_id"`
	UserID             string         `json:"user_id"`
	SelectedRepository string         `json:"selected_repository,omitempty"`
	SelectedBranch     string         `json:"selected_branch,omitempty"`
	Extras             map[string]any `json:"extras,omitempty"`
}

// statusError is the error payload pushed back to a single client.
type statusError struct {
	StatusUpdate bool   `json:"status_update"`
	Type         string `json:"type"`
	Message      string `json:"message"`
}

// handleInbound routes one raw message from a websocket connection. A
// "join" action attaches the connection to a conversation; anything else is
// forwarded to the conversation's agent loop, wherever it runs.
func (g *Gateway) handleInbound(connectionID string, payload []byte) {
	ctx := context.Background()

	var probe struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		g.sendStatusError(connectionID, "malformed message")
		return
	}

	if probe.Action == "join" {
		g.handleJoin(ctx, connectionID, payload)
		return
	}

	if err := g.manager.SendToSession(ctx, connectionID, json.RawMessage(payload)); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			g.sendStatusError(connectionID, "not joined to a conversation")
		case errors.Is(err, conversation.ErrNoOwner):
			g.sendStatusError(connectionID, "conversation has no running session")
		default:
			g.logger.Warn("dispatch failed",
				"connection_id", connectionID,
				"error", err)
			g.sendStatusError(connectionID, "message could not be delivered")
		}
	}
}

func (g *Gateway) handleJoin(ctx context.Context, connectionID string, payload []byte) {
	var join joinEnvelope
	if err := json.Unmarshal(payload, &join); err != nil {
		g.sendStatusError(connectionID, "malformed join")
		return
	}
	if join.ConversationID == "" {
		g.sendStatusError(connectionID, "join requires conversation_id")
		return
	}

	// Joining an unknown conversation is refused up front; sessions are
	// only started for conversations the store knows about.
	if _, err := g.store.GetConversation(ctx, join.ConversationID); err != nil {
		g.sendStatusError(connectionID, "unknown conversation")
		return
	}

	params := session.InitParams{
		SelectedRepository: join.SelectedRepository,
		SelectedBranch:     join.SelectedBranch,
		Extras:             join.Extras,
	}
	if err := g.manager.Join(ctx, connectionID, join.ConversationID, params, join.UserID); err != nil {
		g.logger.Warn("join failed",
			"connection_id", connectionID,
			"conversation_id", join.ConversationID,
			"error", err)
		g.sendStatusError(connectionID, "could not join conversation")
	}
}

// sendStatusError pushes an error status to one connection. Send failures
// are logged and dropped: the connection is likely already gone.
func (g *Gateway) sendStatusError(connectionID, message string) {
	err := g.transport.Send(connectionID, conversation.EventName, statusError{
		StatusUpdate: true,
		Type:         "error",
		Message:      message,
	})
	if err != nil {
		g.logger.Debug("status error not delivered",
			"connection_id", connectionID,
			"error", err)
	}
}
