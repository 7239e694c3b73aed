package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relaymsg/relay/pkg/api"
	"github.com/relaymsg/relay/pkg/auth"
	"github.com/relaymsg/relay/pkg/mapping"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Service is the conversation surface this handler needs. Satisfied by
// conversations.Service.
type Service interface {
	GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)
	Hide(ctx context.Context, conversationID, callerID string, hidden bool) (*models.Conversation, error)
}

// ConversationsHandler holds the dependencies for conversation-related
// handlers.
type ConversationsHandler struct {
	Service Service
	Log     *slog.Logger
}

// NewConversationsHandler creates a new ConversationsHandler.
func NewConversationsHandler(service Service, log *slog.Logger) *ConversationsHandler {
	return &ConversationsHandler{Service: service, Log: log}
}

// CreateConversation opens the conversation with a peer, or returns the
// existing one.
func (h *ConversationsHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req api.NewConversation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	callerID := auth.CallerID(r.Context())
	if req.PeerId == "" || req.PeerId == callerID {
		http.Error(w, "Peer must be another user", http.StatusBadRequest)
		return
	}

	conv, err := h.Service.GetOrCreate(r.Context(), callerID, req.PeerId)
	if err != nil {
		h.Log.Error("failed to create conversation", slog.String("error", err.Error()))
		http.Error(w, fmt.Sprintf("Failed to create conversation: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(mapping.ToApiConversation(conv, callerID)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// HideConversation toggles the caller's hidden flag on a conversation.
func (h *ConversationsHandler) HideConversation(w http.ResponseWriter, r *http.Request) {
	var req api.HideConversation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	conversationID := chi.URLParam(r, "conversationId")
	callerID := auth.CallerID(r.Context())

	conv, err := h.Service.Hide(r.Context(), conversationID, callerID, req.Hidden)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.Error(w, fmt.Sprintf("Failed to hide conversation: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(mapping.ToApiConversation(conv, callerID)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
