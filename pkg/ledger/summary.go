package ledger

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Summary is the account status view: current balance, an optional page of
// transactions and optional per-kind totals.
type Summary struct {
	AccountId    string
	Balance      int64
	Transactions []models.Transaction
	Totals       map[models.TransactionKind]int64
}

// Summarize returns the owner's account summary. The account is created
// lazily, so polling a fresh user yields a zero balance rather than an error.
// The balance is recomputed, not read from the cache, so a summary poll also
// self-heals the cached value.
func (l *Ledger) Summarize(ctx context.Context, ownerID string, page storage.TransactionPage, includeTotals bool) (*Summary, error) {
	var summary *Summary
	err := l.store.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts, storage.CollectionTransactions}, func(ctx context.Context) error {
		account, err := l.getOrCreateAccount(ctx, models.ACCOUNT_USER, ownerID)
		if err != nil {
			return err
		}
		balance, err := l.RecomputeBalance(ctx, account.Id)
		if err != nil {
			return err
		}
		summary = &Summary{AccountId: account.Id, Balance: balance}

		if page.Limit > 0 || len(page.Kinds) > 0 {
			summary.Transactions, err = l.store.ListAccountTransactions(ctx, account.Id, page)
			if err != nil {
				return err
			}
		}
		if includeTotals {
			summary.Totals, err = l.store.SumAccountTransactionsByKind(ctx, account.Id)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
