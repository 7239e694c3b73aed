package transactions

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
	"github.com/relaymsg/relay/pkg/ledger"
	"github.com/relaymsg/relay/pkg/mapping"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Transferer originates external transfers. Satisfied by ledger.Ledger.
type Transferer interface {
	SubmitExternalTransfer(ctx context.Context, req ledger.ExternalTransferRequest) (*models.Transaction, error)
}

// Reconciler runs a single-transaction reconciliation attempt. Satisfied by
// settlement.Reconciler.
type Reconciler interface {
	ReconcileTransaction(ctx context.Context, txID string) (*models.Transaction, error)
}

// TransactionsHandler holds the dependencies for transaction-related
// handlers.
type TransactionsHandler struct {
	Ledger     Transferer
	Accounts   storage.AccountStore
	Store      storage.TransactionReader
	Reconciler Reconciler
	Log        *slog.Logger
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(l Transferer, accounts storage.AccountStore, store storage.TransactionReader, r Reconciler, log *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{Ledger: l, Accounts: accounts, Store: store, Reconciler: r, Log: log}
}

// SubmitTransfer handles deposit and withdrawal requests.
func (h *TransactionsHandler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.NewTransfer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var direction ledger.TransferDirection
	switch req.Direction {
	case "deposit":
		direction = ledger.TransferDeposit
	case "withdrawal":
		direction = ledger.TransferWithdrawal
	default:
		http.Error(w, "Direction must be deposit or withdrawal", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, "Address is required", http.StatusBadRequest)
		return
	}

	tx, err := h.Ledger.SubmitExternalTransfer(r.Context(), ledger.ExternalTransferRequest{
		OwnerID:     auth.CallerID(r.Context()),
		Direction:   direction,
		Amount:      req.Amount,
		Description: req.Description,
		Address:     req.Address,
		Secret:      req.Secret,
	})
	if err != nil {
		h.Log.Error("failed to submit transfer", slog.String("error", err.Error()))
		http.Error(w, fmt.Sprintf("Failed to submit transfer: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(mapping.ToApiTransaction(tx)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// GetTransactionById returns a transaction's current status after one
// reconciliation attempt. Only the transaction's owner may query it.
func (h *TransactionsHandler) GetTransactionById(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionId")
	callerID := auth.CallerID(r.Context())

	tx, err := h.Store.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Failed to retrieve transaction: %v", err), http.StatusInternalServerError)
		}
		return
	}

	owner, err := h.Accounts.GetAccount(r.Context(), tx.CreatedBy)
	if err != nil || owner.OwnerId != callerID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	tx, err = h.Reconciler.ReconcileTransaction(r.Context(), txID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to reconcile transaction: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(mapping.ToApiTransaction(tx)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
