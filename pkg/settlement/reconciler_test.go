package settlement_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaymsg/relay/pkg/conversations"
	"github.com/relaymsg/relay/pkg/ledger"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/settlement"
	"github.com/relaymsg/relay/pkg/settlement/mocks"
	"github.com/relaymsg/relay/pkg/storage/sqlite"
)

type fixture struct {
	store      *sqlite.Store
	gateway    *mocks.Gateway
	ledger     *ledger.Ledger
	service    *conversations.Service
	reconciler *settlement.Reconciler
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := new(mocks.Gateway)
	lg := ledger.New(store, gateway, ledger.Config{HoldingAddress: "pool", HoldingSecret: "secret"}, log)
	svc := conversations.New(store, lg, log)
	return &fixture{
		store:      store,
		gateway:    gateway,
		ledger:     lg,
		service:    svc,
		reconciler: settlement.NewReconciler(store, gateway, lg, svc, grace, log),
	}
}

// pendingDeposit seeds a PENDING deposit into the user's account.
func (f *fixture) pendingDeposit(t *testing.T, ownerID, ref string, amount int64, age time.Duration) *models.Transaction {
	t.Helper()
	ctx := context.Background()
	user, err := f.ledger.GetOrCreateAccount(ctx, models.ACCOUNT_USER, ownerID)
	require.NoError(t, err)
	holding, err := f.ledger.GetOrCreateAccount(ctx, models.ACCOUNT_EXTERNAL_HOLDING, "")
	require.NoError(t, err)

	created := time.Now().UTC().Add(-age)
	tx := &models.Transaction{
		Id:              uuid.New().String(),
		CreatedBy:       user.Id,
		Status:          models.TX_PENDING,
		Kind:            models.KIND_DEPOSIT,
		Amount:          amount,
		DebitAccountId:  holding.Id,
		CreditAccountId: user.Id,
		SettlementRef:   ref,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	require.NoError(t, f.store.CreateTransaction(ctx, tx))
	return tx
}

func TestReconcileTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("Confirmed deposit becomes spendable", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(&settlement.QueryResult{Validated: true, Succeeded: true}, nil)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_SUCCESS, got.Status)

		user, err := f.store.FindAccount(ctx, models.ACCOUNT_USER, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(100), user.Balance)

		holding, err := f.store.GetAccount(ctx, tx.DebitAccountId)
		require.NoError(t, err)
		assert.Equal(t, int64(-100), holding.Balance)
	})

	t.Run("Validated failure is terminal", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(&settlement.QueryResult{Validated: true, Succeeded: false, Outcome: "tecINSUFFICIENT"}, nil)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_FAILED, got.Status)
		assert.Equal(t, "tecINSUFFICIENT", got.Error)

		user, err := f.store.FindAccount(ctx, models.ACCOUNT_USER, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), user.Balance)
	})

	t.Run("Unvalidated transfer stays pending", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(&settlement.QueryResult{Validated: false}, nil)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_PENDING, got.Status)
	})

	t.Run("No response stays pending without error", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, time.Hour)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(nil, settlement.ErrNoResponse)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_PENDING, got.Status)
		assert.Empty(t, got.Error)
	})

	t.Run("Unknown ref inside grace stays pending", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(nil, settlement.ErrRefNotFound)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_PENDING, got.Status)
	})

	t.Run("Unknown ref past grace fails", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, time.Hour)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(nil, settlement.ErrRefNotFound)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_FAILED, got.Status)
	})

	t.Run("Missing ref past grace fails without query", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "", 100, time.Hour)

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_FAILED, got.Status)
		assert.Equal(t, "no settlement reference", got.Error)
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("Second pass is a no-op", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

		f.gateway.On("Query", mock.Anything, "ref-1").
			Return(&settlement.QueryResult{Validated: true, Succeeded: true}, nil).Once()

		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))
		require.NoError(t, f.reconciler.ReconcileTransactions(ctx))

		got, err := f.store.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.TX_SUCCESS, got.Status)

		user, err := f.store.FindAccount(ctx, models.ACCOUNT_USER, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(100), user.Balance)
	})
}

func TestReconcileTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	tx := f.pendingDeposit(t, "alice", "ref-1", 100, 0)

	f.gateway.On("Query", mock.Anything, "ref-1").
		Return(&settlement.QueryResult{Validated: true, Succeeded: true}, nil).Once()

	got, err := f.reconciler.ReconcileTransaction(ctx, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TX_SUCCESS, got.Status)

	// Terminal transactions are returned as-is, no further queries.
	got, err = f.reconciler.ReconcileTransaction(ctx, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TX_SUCCESS, got.Status)
	f.gateway.AssertExpectations(t)
}

func TestReconcileMessages(t *testing.T) {
	ctx := context.Background()

	send := func(t *testing.T, f *fixture, ref string) *models.Message {
		t.Helper()
		msg, err := f.service.Send(ctx, conversations.SendRequest{
			SenderID:      "alice",
			RecipientID:   "bob",
			SenderText:    "paid message",
			SettlementRef: ref,
			Action:        "unlock",
		})
		require.NoError(t, err)
		require.Equal(t, models.MSG_PENDING, msg.Status)
		return msg
	}

	t.Run("Confirmed message is delivered", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		msg := send(t, f, "ref-m1")

		f.gateway.On("Query", mock.Anything, "ref-m1").
			Return(&settlement.QueryResult{Validated: true, Succeeded: true}, nil)

		require.NoError(t, f.reconciler.ReconcileMessages(ctx))

		got, err := f.store.GetMessage(ctx, msg.Id)
		require.NoError(t, err)
		assert.Equal(t, models.MSG_SENT, got.Status)
		assert.True(t, got.ActionProcessed)
		assert.Greater(t, got.Version, msg.Version)

		// Delivery surfaces in the recipient's unread count.
		conv, err := f.store.GetConversation(ctx, msg.ConversationId)
		require.NoError(t, err)
		role, ok := conv.RoleOf("bob")
		require.True(t, ok)
		assert.Equal(t, int64(1), conv.NumUnread[role])
	})

	t.Run("Rejected message fails and stays invisible", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		msg := send(t, f, "ref-m1")

		f.gateway.On("Query", mock.Anything, "ref-m1").
			Return(&settlement.QueryResult{Validated: true, Succeeded: false, Outcome: "tecEXPIRED"}, nil)

		require.NoError(t, f.reconciler.ReconcileMessages(ctx))

		got, err := f.store.GetMessage(ctx, msg.Id)
		require.NoError(t, err)
		assert.Equal(t, models.MSG_FAILED, got.Status)
		assert.Equal(t, "tecEXPIRED", got.Error)
		assert.False(t, got.ActionProcessed)

		conv, err := f.store.GetConversation(ctx, msg.ConversationId)
		require.NoError(t, err)
		assert.Equal(t, [2]int64{0, 0}, conv.NumUnread)
	})

	t.Run("Unvalidated message stays pending", func(t *testing.T) {
		f := newFixture(t, time.Minute)
		msg := send(t, f, "ref-m1")

		f.gateway.On("Query", mock.Anything, "ref-m1").
			Return(&settlement.QueryResult{Validated: false}, nil)

		require.NoError(t, f.reconciler.ReconcileMessages(ctx))

		got, err := f.store.GetMessage(ctx, msg.Id)
		require.NoError(t, err)
		assert.Equal(t, models.MSG_PENDING, got.Status)
	})
}
