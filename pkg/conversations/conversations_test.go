package conversations_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymsg/relay/pkg/conversations"
	"github.com/relaymsg/relay/pkg/ledger"
	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/settlement/mocks"
	"github.com/relaymsg/relay/pkg/storage"
	"github.com/relaymsg/relay/pkg/storage/sqlite"
)

func newTestService(t *testing.T) (*conversations.Service, *ledger.Ledger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	lg := ledger.New(store, new(mocks.Gateway), ledger.Config{}, log)
	return conversations.New(store, lg, log), lg, store
}

func fundUser(t *testing.T, lg *ledger.Ledger, store *sqlite.Store, ownerID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	user, err := lg.GetOrCreateAccount(ctx, models.ACCOUNT_USER, ownerID)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, store.CreateTransaction(ctx, &models.Transaction{
		Id:              uuid.New().String(),
		CreatedBy:       user.Id,
		Status:          models.TX_SUCCESS,
		Kind:            models.KIND_DEPOSIT,
		Amount:          amount,
		DebitAccountId:  "external",
		CreditAccountId: user.Id,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	conv, err := svc.GetOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"alice", "bob"}, conv.Parties)
	assert.NotEmpty(t, conv.EncryptionKey)
	assert.Equal(t, int64(1), conv.Version)

	// Same pair in either order resolves to the same conversation.
	again, err := svc.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.Id, again.Id)
	assert.Equal(t, conv.EncryptionKey, again.EncryptionKey)

	_, err = svc.GetOrCreate(ctx, "alice", "alice")
	assert.Error(t, err)
}

func TestHide(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	conv, err := svc.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	t.Run("Hides only the caller's side", func(t *testing.T) {
		hidden, err := svc.Hide(ctx, conv.Id, "alice", true)
		require.NoError(t, err)
		assert.Equal(t, [2]bool{true, false}, hidden.Hidden)
		assert.Greater(t, hidden.Version, conv.Version)
	})

	t.Run("No-op keeps version", func(t *testing.T) {
		first, err := svc.Hide(ctx, conv.Id, "alice", true)
		require.NoError(t, err)
		second, err := svc.Hide(ctx, conv.Id, "alice", true)
		require.NoError(t, err)
		assert.Equal(t, first.Version, second.Version)
	})

	t.Run("Unhide", func(t *testing.T) {
		shown, err := svc.Hide(ctx, conv.Id, "alice", false)
		require.NoError(t, err)
		assert.Equal(t, [2]bool{false, false}, shown.Hidden)
	})

	t.Run("Non-party forbidden", func(t *testing.T) {
		_, err := svc.Hide(ctx, conv.Id, "carol", true)
		assert.ErrorIs(t, err, storage.ErrForbidden)
	})

	t.Run("Unknown conversation", func(t *testing.T) {
		_, err := svc.Hide(ctx, "nope", "alice", true)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("Free message is sent immediately", func(t *testing.T) {
		svc, _, store := newTestService(t)

		msg, err := svc.Send(ctx, conversations.SendRequest{
			SenderID:    "alice",
			RecipientID: "bob",
			SenderText:  "hello bob",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MSG_SENT, msg.Status)
		assert.NotZero(t, msg.Version)

		conv, err := store.GetConversation(ctx, msg.ConversationId)
		require.NoError(t, err)
		assert.Equal(t, "hello bob", conv.LastMessageText)
		role, _ := conv.RoleOf("bob")
		assert.Equal(t, int64(1), conv.NumUnread[role])
		role, _ = conv.RoleOf("alice")
		assert.Equal(t, int64(0), conv.NumUnread[role])
	})

	t.Run("Charges are applied before delivery", func(t *testing.T) {
		svc, lg, store := newTestService(t)
		fundUser(t, lg, store, "alice", 100)

		msg, err := svc.Send(ctx, conversations.SendRequest{
			SenderID:        "alice",
			RecipientID:     "bob",
			SenderText:      "paid",
			SystemCharge:    10,
			RecipientCharge: 25,
		})
		require.NoError(t, err)

		sender, err := store.FindAccount(ctx, models.ACCOUNT_USER, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(65), sender.Balance)

		recipient, err := store.FindAccount(ctx, models.ACCOUNT_USER, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(25), recipient.Balance)

		platform, err := store.FindAccount(ctx, models.ACCOUNT_PLATFORM, "")
		require.NoError(t, err)
		assert.Equal(t, int64(10), platform.Balance)

		// Charges are linked back to the message.
		txs, err := store.ListAccountTransactions(ctx, sender.Id, storage.TransactionPage{
			Kinds: []models.TransactionKind{models.KIND_SYSTEM_CHARGE, models.KIND_RECIPIENT_CHARGE},
		})
		require.NoError(t, err)
		require.Len(t, txs, 2)
		for _, tx := range txs {
			assert.Equal(t, msg.Id, tx.LinkedMessageId)
		}
	})

	t.Run("Insufficient funds aborts the send", func(t *testing.T) {
		svc, _, store := newTestService(t)

		_, err := svc.Send(ctx, conversations.SendRequest{
			SenderID:     "alice",
			RecipientID:  "bob",
			SenderText:   "paid",
			SystemCharge: 10,
		})
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

		conv, err := store.FindConversation(ctx, "alice", "bob")
		require.NoError(t, err)
		msgs, err := store.ListConversationMessages(ctx, conv.Id)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("External settlement keeps the message pending", func(t *testing.T) {
		svc, _, store := newTestService(t)

		msg, err := svc.Send(ctx, conversations.SendRequest{
			SenderID:      "alice",
			RecipientID:   "bob",
			SenderText:    "with transfer",
			SettlementRef: "ref-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MSG_PENDING, msg.Status)

		// A pending message is not unread yet.
		conv, err := store.GetConversation(ctx, msg.ConversationId)
		require.NoError(t, err)
		assert.Equal(t, [2]int64{0, 0}, conv.NumUnread)
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newTestService(t)

	msg, err := svc.Send(ctx, conversations.SendRequest{
		SenderID:    "alice",
		RecipientID: "bob",
		SenderText:  "hello",
	})
	require.NoError(t, err)

	t.Run("Only the recipient may read", func(t *testing.T) {
		_, err := svc.MarkRead(ctx, msg.Id, "alice")
		assert.ErrorIs(t, err, storage.ErrForbidden)
	})

	t.Run("Read clears the unread count", func(t *testing.T) {
		read, err := svc.MarkRead(ctx, msg.Id, "bob")
		require.NoError(t, err)
		assert.Equal(t, models.MSG_READ, read.Status)
		assert.Greater(t, read.Version, msg.Version)

		conv, err := store.GetConversation(ctx, msg.ConversationId)
		require.NoError(t, err)
		assert.Equal(t, [2]int64{0, 0}, conv.NumUnread)
	})

	t.Run("Reading twice is a no-op", func(t *testing.T) {
		again, err := svc.MarkRead(ctx, msg.Id, "bob")
		require.NoError(t, err)
		assert.Equal(t, models.MSG_READ, again.Status)
	})

	t.Run("Pending messages cannot be read", func(t *testing.T) {
		pending, err := svc.Send(ctx, conversations.SendRequest{
			SenderID:      "alice",
			RecipientID:   "bob",
			SenderText:    "later",
			SettlementRef: "ref-2",
		})
		require.NoError(t, err)

		_, err = svc.MarkRead(ctx, pending.Id, "bob")
		assert.Error(t, err)
	})
}

func TestListForCaller(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	msg, err := svc.Send(ctx, conversations.SendRequest{
		SenderID:    "alice",
		RecipientID: "bob",
		SenderText:  "hello",
	})
	require.NoError(t, err)

	msgs, err := svc.ListForCaller(ctx, msg.ConversationId, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.Id, msgs[0].Id)

	_, err = svc.ListForCaller(ctx, msg.ConversationId, "carol")
	assert.ErrorIs(t, err, storage.ErrForbidden)
}
