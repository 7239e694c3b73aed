package storage

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
)

// TransactionPage bounds a transaction listing.
type TransactionPage struct {
	Kinds  []models.TransactionKind // empty means all kinds
	Limit  int                      // <=0 means no limit
	Offset int
}

// TransactionReader defines the interface for reading transaction data.
type TransactionReader interface {
	// GetTransaction retrieves a transaction by its ID.
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)

	// ListPendingTransactions retrieves all transactions still in PENDING
	// state, oldest first. The reconciliation pass consumes this.
	ListPendingTransactions(ctx context.Context) ([]models.Transaction, error)

	// ListAccountTransactions retrieves transactions debiting or crediting
	// the account, newest first, filtered and bounded by the page.
	ListAccountTransactions(ctx context.Context, accountID string, page TransactionPage) ([]models.Transaction, error)

	// SumAccountTransactionsByKind returns, per kind, the net SUCCESS amount
	// for the account (credits positive, debits negative).
	SumAccountTransactionsByKind(ctx context.Context, accountID string) (map[models.TransactionKind]int64, error)
}

// TransactionManager defines the interface for creating transactions and
// driving their state machine.
type TransactionManager interface {
	// CreateTransaction persists a new transaction.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error

	// SetTransactionSettlementRef records the external reference returned by
	// the settlement network for a pending transaction.
	SetTransactionSettlementRef(ctx context.Context, txID, ref string) error

	// UpdateTransactionStatus transitions a transaction and records an error
	// message for FAILED transitions. PENDING is the only state this may be
	// called from; terminal states never revert.
	UpdateTransactionStatus(ctx context.Context, txID string, status models.TransactionStatus, errMsg string) error
}

// TransactionStore combines the reader and manager interfaces.
type TransactionStore interface {
	TransactionReader
	TransactionManager
}
