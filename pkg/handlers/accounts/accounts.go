package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/relaymsg/relay/pkg/auth"
	"github.com/relaymsg/relay/pkg/ledger"
	"github.com/relaymsg/relay/pkg/mapping"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Summarizer produces the caller's account summary. Satisfied by
// ledger.Ledger.
type Summarizer interface {
	Summarize(ctx context.Context, ownerID string, page storage.TransactionPage, includeTotals bool) (*ledger.Summary, error)
}

// Reconciler advances pending transactions. Satisfied by
// settlement.Reconciler.
type Reconciler interface {
	ReconcileTransactions(ctx context.Context) error
}

// AccountsHandler holds the dependencies for account-related handlers.
type AccountsHandler struct {
	Ledger     Summarizer
	Reconciler Reconciler
	Log        *slog.Logger
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(l Summarizer, r Reconciler, log *slog.Logger) *AccountsHandler {
	return &AccountsHandler{Ledger: l, Reconciler: r, Log: log}
}

// GetSummary handles the account status poll: one reconciliation pass, then
// balance plus an optional page of transactions and per-kind totals.
//
// Query parameters: kinds (comma-separated), limit, offset, totals=true.
func (h *AccountsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r.Context())

	// Every poll is an opportunity to advance pending settlements.
	if err := h.Reconciler.ReconcileTransactions(r.Context()); err != nil {
		h.Log.Warn("reconciliation failed during summary poll", slog.String("error", err.Error()))
	}

	page := storage.TransactionPage{}
	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			page.Kinds = append(page.Kinds, models.TransactionKind(strings.ToUpper(strings.TrimSpace(k))))
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		page.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		page.Offset = n
	}
	includeTotals := r.URL.Query().Get("totals") == "true"

	summary, err := h.Ledger.Summarize(r.Context(), callerID, page, includeTotals)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to summarize account: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(mapping.ToApiSummary(summary.Balance, summary.Transactions, summary.Totals)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
