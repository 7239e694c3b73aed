package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

const accountColumns = `id, type, owner_id, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.Id, &a.Type, &a.OwnerId, &a.Balance, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves an account by its id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// FindAccount retrieves the account for a (type, owner) pair.
func (s *Store) FindAccount(ctx context.Context, accountType models.AccountType, ownerID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE type = ? AND owner_id = ?`,
		string(accountType), ownerID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s/%s: %w", accountType, ownerID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?)`,
		account.Id, string(account.Type), account.OwnerId, account.Balance, account.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("account %s/%s: %w", account.Type, account.OwnerId, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateAccountBalance overwrites the cached balance.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance, accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, storage.ErrNotFound)
	}
	return nil
}

// SuccessTotals sums SUCCESS credits and SUCCESS debits for the account.
func (s *Store) SuccessTotals(ctx context.Context, accountID string) (int64, int64, error) {
	var credits, debits int64
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(amount) FROM transactions
				WHERE credit_account_id = ? AND status = ?), 0),
			COALESCE((SELECT SUM(amount) FROM transactions
				WHERE debit_account_id = ? AND status = ?), 0)`,
		accountID, string(models.TX_SUCCESS), accountID, string(models.TX_SUCCESS))
	if err := row.Scan(&credits, &debits); err != nil {
		return 0, 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return credits, debits, nil
}
