// Package ledger implements the double-entry account and transaction model:
// lazy account creation, internal charges, balance recomputation and
// origination of externally-settled transfers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/settlement"
	"github.com/relaymsg/relay/pkg/storage"
)

// Store is the slice of the data layer the ledger needs.
type Store interface {
	storage.AccountStore
	storage.TransactionStore
	storage.Region
}

// Config carries the platform's side of the settlement network.
type Config struct {
	// HoldingAddress is the settlement network address of the pool account
	// holding user funds.
	HoldingAddress string
	// HoldingSecret signs outbound (withdrawal) transfers from the pool.
	HoldingSecret string
}

// Ledger provides all balance-affecting operations.
type Ledger struct {
	store   Store
	gateway settlement.Gateway
	cfg     Config
	log     *slog.Logger
}

// New creates a Ledger.
func New(store Store, gateway settlement.Gateway, cfg Config, log *slog.Logger) *Ledger {
	return &Ledger{store: store, gateway: gateway, cfg: cfg, log: log}
}

// GetOrCreateAccount returns the account for (type, owner), creating it on
// first reference. Creation is idempotent under concurrency: the lookup and
// insert run inside the accounts region.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, accountType models.AccountType, ownerID string) (*models.Account, error) {
	var account *models.Account
	err := l.store.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts}, func(ctx context.Context) error {
		var err error
		account, err = l.getOrCreateAccount(ctx, accountType, ownerID)
		return err
	})
	return account, err
}

// getOrCreateAccount is the region-free body of GetOrCreateAccount, shared by
// operations that already hold the accounts region.
func (l *Ledger) getOrCreateAccount(ctx context.Context, accountType models.AccountType, ownerID string) (*models.Account, error) {
	account, err := l.store.FindAccount(ctx, accountType, ownerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	account = &models.Account{
		Id:        uuid.New().String(),
		Type:      accountType,
		OwnerId:   ownerID,
		Balance:   0,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ApplyCharge moves amount from payer to payee as an immediately-successful
// internal transaction. The funds check runs against a freshly recomputed
// payer balance inside the accounts+transactions region, so two concurrent
// charges can never both pass on the same funds.
//
// On ErrInsufficientFunds no transaction is created and no state changes.
func (l *Ledger) ApplyCharge(ctx context.Context, payerID, payeeID string, amount int64, kind models.TransactionKind, linkedMessageID string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("charge amount must be positive, got %d", amount)
	}
	if payerID == payeeID {
		return nil, fmt.Errorf("charge debit and credit accounts must differ")
	}

	var tx *models.Transaction
	err := l.store.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts, storage.CollectionTransactions}, func(ctx context.Context) error {
		balance, err := l.RecomputeBalance(ctx, payerID)
		if err != nil {
			return err
		}
		if balance < amount {
			return fmt.Errorf("charge of %d against balance %d: %w", amount, balance, storage.ErrInsufficientFunds)
		}

		now := time.Now().UTC()
		tx = &models.Transaction{
			Id:              uuid.New().String(),
			CreatedBy:       payerID,
			Status:          models.TX_SUCCESS,
			Kind:            kind,
			Amount:          amount,
			DebitAccountId:  payerID,
			CreditAccountId: payeeID,
			LinkedMessageId: linkedMessageID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := l.store.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		if _, err := l.RecomputeBalance(ctx, payerID); err != nil {
			return err
		}
		_, err = l.RecomputeBalance(ctx, payeeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("charge applied",
		slog.String("transaction_id", tx.Id),
		slog.String("kind", string(kind)),
		slog.Int64("amount", amount))
	return tx, nil
}

// RecomputeBalance derives the account balance from SUCCESS transactions and
// persists it. Deterministic and idempotent; the cached balance is never
// written by any other path.
//
// Callers must hold a region covering accounts and transactions.
func (l *Ledger) RecomputeBalance(ctx context.Context, accountID string) (int64, error) {
	credits, debits, err := l.store.SuccessTotals(ctx, accountID)
	if err != nil {
		return 0, err
	}
	balance := credits - debits
	if err := l.store.UpdateAccountBalance(ctx, accountID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}
