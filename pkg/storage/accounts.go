package storage

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
)

// AccountStore defines the interface for managing ledger accounts.
type AccountStore interface {
	// GetAccount retrieves an account by its id.
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)

	// FindAccount retrieves the account for a (type, owner) pair.
	// Owner is empty for system accounts. Returns ErrNotFound when absent.
	FindAccount(ctx context.Context, accountType models.AccountType, ownerID string) (*models.Account, error)

	// CreateAccount persists a new account. Returns ErrAlreadyExists when an
	// account for the same (type, owner) pair exists.
	CreateAccount(ctx context.Context, account *models.Account) error

	// UpdateAccountBalance overwrites the cached balance.
	// Only balance recomputation may call this.
	UpdateAccountBalance(ctx context.Context, accountID string, balance int64) error

	// SuccessTotals returns the sums of SUCCESS credits and SUCCESS debits
	// referencing the account. The account's true balance is credits-debits.
	SuccessTotals(ctx context.Context, accountID string) (credits int64, debits int64, err error)
}
