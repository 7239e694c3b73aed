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

// TransferDirection says which way an external transfer moves funds.
type TransferDirection string

const (
	// TransferDeposit moves coins from the user's network wallet into the
	// holding pool; on confirmation the user's internal balance rises.
	TransferDeposit TransferDirection = "DEPOSIT"
	// TransferWithdrawal moves coins from the holding pool to the user's
	// network wallet; the internal balance only drops once the network
	// confirms the transfer.
	TransferWithdrawal TransferDirection = "WITHDRAWAL"
)

// ExternalTransferRequest originates a deposit or withdrawal.
type ExternalTransferRequest struct {
	OwnerID     string
	Direction   TransferDirection
	Amount      int64
	Description string
	// Address is the user's settlement network address.
	Address string
	// Secret signs deposit transfers out of the user's network wallet.
	// Unused for withdrawals, which the platform signs.
	Secret string
}

// SubmitExternalTransfer creates a PENDING transaction and submits the
// matching transfer to the settlement network.
//
// A definitive gateway rejection marks the transaction FAILED with the
// gateway's error. No response (timeout) leaves it PENDING with no error
// recorded: the transfer's true outcome is unknown and the reconciler
// settles it on a later poll.
//
// Note that a withdrawal does not pre-debit the payer: the balance reflects
// only SUCCESS transactions, so funds leave the spendable balance when the
// reconciler confirms the transfer, not at submission time.
func (l *Ledger) SubmitExternalTransfer(ctx context.Context, req ExternalTransferRequest) (*models.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %d", req.Amount)
	}

	var tx *models.Transaction
	err := l.store.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts, storage.CollectionTransactions}, func(ctx context.Context) error {
		user, err := l.getOrCreateAccount(ctx, models.ACCOUNT_USER, req.OwnerID)
		if err != nil {
			return err
		}
		holding, err := l.getOrCreateAccount(ctx, models.ACCOUNT_EXTERNAL_HOLDING, "")
		if err != nil {
			return err
		}

		debit, credit := holding.Id, user.Id
		kind := models.KIND_DEPOSIT
		if req.Direction == TransferWithdrawal {
			debit, credit = user.Id, holding.Id
			kind = models.KIND_WITHDRAWAL
		}

		now := time.Now().UTC()
		tx = &models.Transaction{
			Id:              uuid.New().String(),
			CreatedBy:       user.Id,
			Status:          models.TX_PENDING,
			Kind:            kind,
			Amount:          req.Amount,
			DebitAccountId:  debit,
			CreditAccountId: credit,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return l.store.CreateTransaction(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	// The gateway blocks on network I/O; never hold the region across it.
	payload := settlement.TransferPayload{
		From:   req.Address,
		To:     l.cfg.HoldingAddress,
		Amount: req.Amount,
		Note:   req.Description,
	}
	secret := req.Secret
	if req.Direction == TransferWithdrawal {
		payload.From, payload.To = l.cfg.HoldingAddress, req.Address
		secret = l.cfg.HoldingSecret
	}

	blob, err := l.gateway.Sign(ctx, payload, secret)
	if err != nil {
		return l.resolveSubmitError(ctx, tx, "sign", err)
	}
	ref, err := l.gateway.Submit(ctx, blob)
	if err != nil {
		return l.resolveSubmitError(ctx, tx, "submit", err)
	}

	err = l.store.Exclusive(ctx, []storage.Collection{storage.CollectionTransactions}, func(ctx context.Context) error {
		return l.store.SetTransactionSettlementRef(ctx, tx.Id, ref)
	})
	if err != nil {
		return nil, err
	}
	tx.SettlementRef = ref

	l.log.Info("external transfer submitted",
		slog.String("transaction_id", tx.Id),
		slog.String("direction", string(req.Direction)),
		slog.String("settlement_ref", ref))
	return tx, nil
}

// resolveSubmitError maps a sign/submit failure onto the transaction. A
// transport-level non-answer leaves the transaction PENDING without a
// recorded error; anything definitive is terminal.
func (l *Ledger) resolveSubmitError(ctx context.Context, tx *models.Transaction, op string, cause error) (*models.Transaction, error) {
	if errors.Is(cause, settlement.ErrNoResponse) {
		l.log.Warn("settlement network gave no response, transfer stays pending",
			slog.String("transaction_id", tx.Id),
			slog.String("op", op))
		return tx, nil
	}

	errMsg := fmt.Sprintf("%s: %v", op, cause)
	err := l.store.Exclusive(ctx, []storage.Collection{storage.CollectionTransactions}, func(ctx context.Context) error {
		return l.store.UpdateTransactionStatus(ctx, tx.Id, models.TX_FAILED, errMsg)
	})
	if err != nil {
		return nil, err
	}
	tx.Status = models.TX_FAILED
	tx.Error = errMsg

	l.log.Warn("external transfer rejected at submission",
		slog.String("transaction_id", tx.Id),
		slog.String("error", errMsg))
	return tx, nil
}
