package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// DefaultGrace is how long a transfer may stay unknown to the network before
// the reconciler treats it as abandoned and fails it.
const DefaultGrace = 60 * time.Second

// Store is the slice of the data layer the reconciler needs.
type Store interface {
	storage.TransactionStore
	storage.MessageStore
	storage.ConversationStore
	storage.Region
	storage.VersionClock
}

// BalanceRecomputer recomputes and persists an account's balance. The caller
// holds the accounts+transactions region. Satisfied by ledger.Ledger.
type BalanceRecomputer interface {
	RecomputeBalance(ctx context.Context, accountID string) (int64, error)
}

// Projector rebuilds a conversation's denormalized summary. The caller holds
// the messages+conversations region. Satisfied by conversations.Service.
type Projector interface {
	Project(ctx context.Context, conversationID string) error
}

// Reconciler advances pending transactions and messages against the
// settlement network. It is triggered opportunistically by read endpoints:
// every poll is a chance to finalize pending state. Running it with no new
// external state is a no-op.
type Reconciler struct {
	store     Store
	gateway   Gateway
	balances  BalanceRecomputer
	projector Projector
	grace     time.Duration
	log       *slog.Logger
}

// NewReconciler creates a Reconciler. Pass grace <= 0 for DefaultGrace.
func NewReconciler(store Store, gateway Gateway, balances BalanceRecomputer, projector Projector, grace time.Duration, log *slog.Logger) *Reconciler {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reconciler{
		store:     store,
		gateway:   gateway,
		balances:  balances,
		projector: projector,
		grace:     grace,
		log:       log,
	}
}

// verdict is the decision for one pending entity after querying the network.
type verdict struct {
	advance   bool
	succeeded bool
	errMsg    string
}

// decide queries the network for one reference and maps the answer onto the
// pending entity's state machine. Transient errors produce no verdict; the
// entity stays PENDING for the next pass.
func (r *Reconciler) decide(ctx context.Context, ref string, createdAt time.Time) verdict {
	expired := time.Since(createdAt) > r.grace

	if ref == "" {
		// Submission never produced a reference. Past the grace period
		// there is nothing left to wait for.
		if expired {
			return verdict{advance: true, errMsg: "no settlement reference"}
		}
		return verdict{}
	}

	result, err := r.gateway.Query(ctx, ref)
	switch {
	case errors.Is(err, ErrRefNotFound):
		if expired {
			return verdict{advance: true, errMsg: err.Error()}
		}
		return verdict{}
	case err != nil:
		// No response or any other transient failure: leave PENDING.
		return verdict{}
	case !result.Validated:
		return verdict{}
	case result.Succeeded:
		return verdict{advance: true, succeeded: true}
	default:
		return verdict{advance: true, errMsg: result.Outcome}
	}
}

// ReconcileTransactions runs one pass over all PENDING transactions.
func (r *Reconciler) ReconcileTransactions(ctx context.Context) error {
	pending, err := r.store.ListPendingTransactions(ctx)
	if err != nil {
		return err
	}

	for i := range pending {
		if err := r.advanceTransaction(ctx, &pending[i]); err != nil {
			// One stuck transaction must not stall the whole pass.
			r.log.Error("failed to advance transaction",
				slog.String("transaction_id", pending[i].Id),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// ReconcileTransaction runs one reconciliation attempt for a single
// transaction and returns its resulting state.
func (r *Reconciler) ReconcileTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := r.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Terminal() {
		return tx, nil
	}
	if err := r.advanceTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return r.store.GetTransaction(ctx, txID)
}

func (r *Reconciler) advanceTransaction(ctx context.Context, tx *models.Transaction) error {
	// Query outside any region: gateway calls block on the network.
	v := r.decide(ctx, tx.SettlementRef, tx.CreatedAt)
	if !v.advance {
		return nil
	}

	status := models.TX_FAILED
	if v.succeeded {
		status = models.TX_SUCCESS
	}

	return r.store.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts, storage.CollectionTransactions}, func(ctx context.Context) error {
		current, err := r.store.GetTransaction(ctx, tx.Id)
		if err != nil {
			return err
		}
		// Another poll may have finalized it while we queried.
		if current.Terminal() {
			return nil
		}

		if err := r.store.UpdateTransactionStatus(ctx, tx.Id, status, v.errMsg); err != nil {
			return err
		}
		if _, err := r.balances.RecomputeBalance(ctx, current.DebitAccountId); err != nil {
			return err
		}
		if _, err := r.balances.RecomputeBalance(ctx, current.CreditAccountId); err != nil {
			return err
		}

		r.log.Info("transaction finalized",
			slog.String("transaction_id", tx.Id),
			slog.String("status", string(status)),
			slog.String("error", v.errMsg))
		return nil
	})
}

// ReconcileMessages runs one pass over all PENDING messages. A message that
// settles successfully becomes SENT and its conversation is re-projected; a
// rejected one becomes FAILED.
func (r *Reconciler) ReconcileMessages(ctx context.Context) error {
	pending, err := r.store.ListPendingMessages(ctx)
	if err != nil {
		return err
	}

	for i := range pending {
		if err := r.advanceMessage(ctx, &pending[i]); err != nil {
			r.log.Error("failed to advance message",
				slog.String("message_id", pending[i].Id),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Reconciler) advanceMessage(ctx context.Context, msg *models.Message) error {
	v := r.decide(ctx, msg.SettlementRef, msg.CreatedAt)
	if !v.advance {
		return nil
	}

	status := models.MSG_FAILED
	if v.succeeded {
		status = models.MSG_SENT
	}

	return r.store.Exclusive(ctx, []storage.Collection{storage.CollectionMessages, storage.CollectionConversations}, func(ctx context.Context) error {
		current, err := r.store.GetMessage(ctx, msg.Id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(status) {
			return nil
		}

		version, err := r.store.NextVersion(ctx, storage.CollectionMessages)
		if err != nil {
			return err
		}
		current.Status = status
		current.Error = v.errMsg
		current.Version = version
		current.UpdatedAt = time.Now().UTC()
		if current.Action != "" && status == models.MSG_SENT {
			current.ActionProcessed = true
		}
		if err := r.store.UpdateMessage(ctx, current); err != nil {
			return err
		}

		r.log.Info("message finalized",
			slog.String("message_id", msg.Id),
			slog.String("status", string(status)))
		return r.projector.Project(ctx, current.ConversationId)
	})
}
