// ABOUTME: HTTP API for conversation lifecycle: create, list, inspect, delete, close
// ABOUTME: Clients create conversations here, then attach over the websocket endpoint

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/strand-gateway/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	UserID             string `json:"user_id"`
	Title              string `json:"title,omitempty"`
	SelectedRepository string `json:"selected_repository,omitempty"`
	SelectedBranch     string `json:"selected_branch,omitempty"`
}

// ConversationResponse is the JSON shape for a single conversation.
type ConversationResponse struct {
	ConversationID     string  `json:"conversation_id"`
	UserID             string  `json:"user_id"`
	Title              string  `json:"title,omitempty"`
	SelectedRepository string  `json:"selected_repository,omitempty"`
	SelectedBranch     *string `json:"selected_branch"`
	Running            bool    `json:"running"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/conversations", g.handleConversations)
	mux.HandleFunc("/api/conversations/", g.handleConversationRoutes)
}

func (g *Gateway) conversationResponse(conv *store.ConversationMetadata) ConversationResponse {
	return ConversationResponse{
		ConversationID:     conv.ConversationID,
		UserID:             conv.UserID,
		Title:              conv.Title,
		SelectedRepository: conv.SelectedRepository,
		SelectedBranch:     conv.SelectedBranch,
		Running:            g.registry.IsRunning(conv.ConversationID),
		CreatedAt:          conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          conv.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleConversations handles POST (create) and GET (list by user) on
// /api/conversations.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleCreateConversation(w, r)
	case http.MethodGet:
		g.handleListConversations(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conv := &store.ConversationMetadata{
		ConversationID:     uuid.New().String(),
		UserID:             req.UserID,
		Title:              req.Title,
		SelectedRepository: req.SelectedRepository,
	}
	if req.SelectedBranch != "" {
		conv.SelectedBranch = &req.SelectedBranch
	}

	if err := g.store.CreateConversation(r.Context(), conv); err != nil {
		g.logger.Error("creating conversation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	g.logger.Info("conversation created",
		"conversation_id", conv.ConversationID,
		"user_id", conv.UserID,
	)
	writeJSON(w, http.StatusCreated, g.conversationResponse(conv))
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	convs, err := g.store.ListConversationsByUser(r.Context(), userID)
	if err != nil {
		g.logger.Error("listing conversations failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := ListConversationsResponse{Conversations: make([]ConversationResponse, 0, len(convs))}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, g.conversationResponse(conv))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConversationRoutes handles /api/conversations/{id} and
// /api/conversations/{id}/close.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if rest == "" {
		http.Error(w, "conversation id required", http.StatusBadRequest)
		return
	}

	if id, found := strings.CutSuffix(rest, "/close"); found {
		g.handleCloseConversation(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.handleGetConversation(w, r, rest)
	case http.MethodDelete:
		g.handleDeleteConversation(w, r, rest)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		g.logger.Error("loading conversation failed", "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, g.conversationResponse(conv))
}

// handleDeleteConversation force-closes any live session, then removes the
// conversation's metadata.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	g.manager.CloseConversation(r.Context(), conversationID)

	if err := g.store.DeleteConversation(r.Context(), conversationID); err != nil {
		g.logger.Error("deleting conversation failed", "conversation_id", conversationID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCloseConversation evicts a conversation's session and connections
// without touching its metadata.
func (g *Gateway) handleCloseConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.manager.CloseConversation(r.Context(), conversationID)
	g.logger.Info("conversation closed", "conversation_id", conversationID)
	w.WriteHeader(http.StatusNoContent)
}
