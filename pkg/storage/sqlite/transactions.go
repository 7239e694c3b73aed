package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

const transactionColumns = `id, created_by, status, kind, amount, debit_account_id,
	credit_account_id, settlement_ref, linked_message_id, error, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.Id, &t.CreatedBy, &t.Status, &t.Kind, &t.Amount,
		&t.DebitAccountId, &t.CreditAccountId, &t.SettlementRef,
		&t.LinkedMessageId, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransaction retrieves a transaction by its ID.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, txID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// CreateTransaction persists a new transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Id, tx.CreatedBy, string(tx.Status), string(tx.Kind), tx.Amount,
		tx.DebitAccountId, tx.CreditAccountId, tx.SettlementRef,
		tx.LinkedMessageId, tx.Error, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// SetTransactionSettlementRef records the external reference for a pending
// transaction.
func (s *Store) SetTransactionSettlementRef(ctx context.Context, txID, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET settlement_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), txID)
	if err != nil {
		return fmt.Errorf("failed to set settlement ref: %w", err)
	}
	return requireRow(res, txID)
}

// UpdateTransactionStatus transitions a pending transaction to a new status.
// Terminal transactions are left untouched, which keeps replayed
// reconciliation passes idempotent.
func (s *Store) UpdateTransactionStatus(ctx context.Context, txID string, status models.TransactionStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), errMsg, time.Now().UTC(), txID, string(models.TX_PENDING))
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return requireRow(res, txID)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListPendingTransactions retrieves all PENDING transactions, oldest first.
func (s *Store) ListPendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? ORDER BY created_at ASC`,
		string(models.TX_PENDING))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListAccountTransactions retrieves the account's transactions, newest first.
func (s *Store) ListAccountTransactions(ctx context.Context, accountID string, page storage.TransactionPage) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?)`
	args := []any{accountID, accountID}

	if len(page.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(page.Kinds))
		query += ` AND kind IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, k := range page.Kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY created_at DESC`
	if page.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list account transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// SumAccountTransactionsByKind nets SUCCESS amounts per kind for the account.
func (s *Store) SumAccountTransactionsByKind(ctx context.Context, accountID string) (map[models.TransactionKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind,
			SUM(CASE WHEN credit_account_id = ? THEN amount ELSE -amount END)
		FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?) AND status = ?
		GROUP BY kind`,
		accountID, accountID, accountID, string(models.TX_SUCCESS))
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions by kind: %w", err)
	}
	defer rows.Close()

	totals := make(map[models.TransactionKind]int64)
	for rows.Next() {
		var kind string
		var sum int64
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, err
		}
		totals[models.TransactionKind(kind)] = sum
	}
	return totals, rows.Err()
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
