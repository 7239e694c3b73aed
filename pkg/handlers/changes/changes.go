package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/relaymsg/relay/pkg/auth"
	"github.com/relaymsg/relay/pkg/feed"
	"github.com/relaymsg/relay/pkg/mapping"
)

// Feed computes change-feed deltas. Satisfied by feed.Feed.
type Feed interface {
	ChangesSince(ctx context.Context, callerID, token, peer string) (*feed.Changes, feed.Anchor, error)
}

// ChangesHandler holds the dependencies for the change-feed poll handler.
type ChangesHandler struct {
	Feed Feed
	Log  *slog.Logger
}

// NewChangesHandler creates a new ChangesHandler.
func NewChangesHandler(f Feed, log *slog.Logger) *ChangesHandler {
	return &ChangesHandler{Feed: f, Log: log}
}

// GetChanges handles the poll: given the caller's anchor token, return
// everything that changed since, plus the anchor for the next poll.
//
// Query parameters: anchor (opaque token, empty for a full sync), peer
// (optional counterparty filter).
func (h *ChangesHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r.Context())
	token := r.URL.Query().Get("anchor")
	peer := r.URL.Query().Get("peer")

	delta, next, err := h.Feed.ChangesSince(r.Context(), callerID, token, peer)
	if err != nil {
		if errors.Is(err, feed.ErrInvalidAnchor) {
			http.Error(w, "Invalid anchor", http.StatusBadRequest)
		} else {
			h.Log.Error("failed to compute changes", slog.String("error", err.Error()))
			http.Error(w, fmt.Sprintf("Failed to compute changes: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(mapping.ToApiChanges(delta, next, callerID)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
