package messages

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
	"github.com/relaymsg/relay/pkg/conversations"
	"github.com/relaymsg/relay/pkg/mapping"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Sender is the message surface of the conversations service.
type Sender interface {
	Send(ctx context.Context, req conversations.SendRequest) (*models.Message, error)
	MarkRead(ctx context.Context, messageID, callerID string) (*models.Message, error)
	ListForCaller(ctx context.Context, conversationID, callerID string) ([]models.Message, error)
}

// Reconciler advances pending messages. Satisfied by settlement.Reconciler.
type Reconciler interface {
	ReconcileMessages(ctx context.Context) error
}

// MessagesHandler holds the dependencies for message-related handlers.
type MessagesHandler struct {
	Service    Sender
	Reconciler Reconciler
	Log        *slog.Logger
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(service Sender, r Reconciler, log *slog.Logger) *MessagesHandler {
	return &MessagesHandler{Service: service, Reconciler: r, Log: log}
}

// SendMessage handles the logic for sending a new message.
func (h *MessagesHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.NewMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.RecipientId == "" {
		http.Error(w, "Recipient is required", http.StatusBadRequest)
		return
	}
	if req.SystemCharge < 0 || req.RecipientCharge < 0 {
		http.Error(w, "Charges must not be negative", http.StatusBadRequest)
		return
	}

	msg, err := h.Service.Send(r.Context(), conversations.SendRequest{
		SenderID:         auth.CallerID(r.Context()),
		RecipientID:      req.RecipientId,
		SenderAddress:    req.SenderAddress,
		RecipientAddress: req.RecipientAddress,
		SenderText:       req.SenderText,
		RecipientText:    req.RecipientText,
		Hash:             req.Hash,
		Action:           req.Action,
		ActionParams:     req.ActionParams,
		SystemCharge:     req.SystemCharge,
		RecipientCharge:  req.RecipientCharge,
		SettlementRef:    req.SettlementRef,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			http.Error(w, "Insufficient funds", http.StatusUnprocessableEntity)
		} else {
			h.Log.Error("failed to send message", slog.String("error", err.Error()))
			http.Error(w, fmt.Sprintf("Failed to send message: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(mapping.ToApiMessage(msg)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// MarkRead handles the recipient's read receipt for a message.
func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")

	msg, err := h.Service.MarkRead(r.Context(), messageID, auth.CallerID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "Message not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.Error(w, fmt.Sprintf("Failed to mark message read: %v", err), http.StatusConflict)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(mapping.ToApiMessage(msg)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// ListMessages returns a conversation's messages, reconciling pending sends
// first so just-finalized statuses are visible in this same poll.
func (h *MessagesHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	callerID := auth.CallerID(r.Context())

	if err := h.Reconciler.ReconcileMessages(r.Context()); err != nil {
		h.Log.Warn("reconciliation failed during message poll", slog.String("error", err.Error()))
	}

	msgs, err := h.Service.ListForCaller(r.Context(), conversationID, callerID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.Error(w, fmt.Sprintf("Failed to list messages: %v", err), http.StatusInternalServerError)
		}
		return
	}

	out := make([]*api.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, mapping.ToApiMessage(&msgs[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
