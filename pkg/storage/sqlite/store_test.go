package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	account := &models.Account{
		Id:        "acc-1",
		Type:      models.ACCOUNT_USER,
		OwnerId:   "alice",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAccount(ctx, account))

	t.Run("Get", func(t *testing.T) {
		got, err := s.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, models.ACCOUNT_USER, got.Type)
		assert.Equal(t, "alice", got.OwnerId)
		assert.Equal(t, int64(0), got.Balance)
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := s.GetAccount(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Find by type and owner", func(t *testing.T) {
		got, err := s.FindAccount(ctx, models.ACCOUNT_USER, "alice")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got.Id)

		_, err = s.FindAccount(ctx, models.ACCOUNT_USER, "bob")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Duplicate owner rejected", func(t *testing.T) {
		dup := &models.Account{
			Id:        "acc-2",
			Type:      models.ACCOUNT_USER,
			OwnerId:   "alice",
			CreatedAt: time.Now().UTC(),
		}
		err := s.CreateAccount(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("Update balance", func(t *testing.T) {
		require.NoError(t, s.UpdateAccountBalance(ctx, "acc-1", 500))
		got, err := s.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), got.Balance)
	})
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	tx := &models.Transaction{
		Id:              "tx-1",
		CreatedBy:       "acc-1",
		Status:          models.TX_PENDING,
		Kind:            models.KIND_DEPOSIT,
		Amount:          100,
		DebitAccountId:  "holding",
		CreditAccountId: "acc-1",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.CreateTransaction(ctx, tx))

	t.Run("Get", func(t *testing.T) {
		got, err := s.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, models.TX_PENDING, got.Status)
		assert.Equal(t, int64(100), got.Amount)
	})

	t.Run("List pending", func(t *testing.T) {
		pending, err := s.ListPendingTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "tx-1", pending[0].Id)
	})

	t.Run("Set settlement ref", func(t *testing.T) {
		require.NoError(t, s.SetTransactionSettlementRef(ctx, "tx-1", "ref-abc"))
		got, err := s.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, "ref-abc", got.SettlementRef)
	})

	t.Run("Finalize", func(t *testing.T) {
		require.NoError(t, s.UpdateTransactionStatus(ctx, "tx-1", models.TX_SUCCESS, ""))
		got, err := s.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, models.TX_SUCCESS, got.Status)

		pending, err := s.ListPendingTransactions(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("Finalized transactions stay finalized", func(t *testing.T) {
		err := s.UpdateTransactionStatus(ctx, "tx-1", models.TX_FAILED, "late rejection")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := s.GetTransaction(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, models.TX_SUCCESS, got.Status)
	})

	t.Run("Success totals", func(t *testing.T) {
		credits, debits, err := s.SuccessTotals(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), credits)
		assert.Equal(t, int64(0), debits)

		credits, debits, err = s.SuccessTotals(ctx, "holding")
		require.NoError(t, err)
		assert.Equal(t, int64(0), credits)
		assert.Equal(t, int64(100), debits)
	})

	t.Run("List by kind with paging", func(t *testing.T) {
		now := time.Now().UTC()
		charge := &models.Transaction{
			Id:              "tx-2",
			CreatedBy:       "acc-1",
			Status:          models.TX_SUCCESS,
			Kind:            models.KIND_SYSTEM_CHARGE,
			Amount:          10,
			DebitAccountId:  "acc-1",
			CreditAccountId: "platform",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		require.NoError(t, s.CreateTransaction(ctx, charge))

		all, err := s.ListAccountTransactions(ctx, "acc-1", storage.TransactionPage{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		deposits, err := s.ListAccountTransactions(ctx, "acc-1", storage.TransactionPage{
			Kinds: []models.TransactionKind{models.KIND_DEPOSIT},
		})
		require.NoError(t, err)
		require.Len(t, deposits, 1)
		assert.Equal(t, "tx-1", deposits[0].Id)

		page, err := s.ListAccountTransactions(ctx, "acc-1", storage.TransactionPage{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("Totals by kind", func(t *testing.T) {
		totals, err := s.SumAccountTransactionsByKind(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), totals[models.KIND_DEPOSIT])
		assert.Equal(t, int64(-10), totals[models.KIND_SYSTEM_CHARGE])
	})
}

func TestMessagesAndConversations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	conv := &models.Conversation{
		Id:            "conv-1",
		Parties:       [2]string{"alice", "bob"},
		EncryptionKey: "key",
		LastTimestamp: now,
		Version:       1,
		CreatedAt:     now,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	t.Run("Find uses canonical order", func(t *testing.T) {
		got, err := s.FindConversation(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", got.Id)
	})

	t.Run("Duplicate pair rejected", func(t *testing.T) {
		dup := &models.Conversation{
			Id:            "conv-2",
			Parties:       [2]string{"alice", "bob"},
			EncryptionKey: "key",
			LastTimestamp: now,
			Version:       2,
			CreatedAt:     now,
		}
		assert.ErrorIs(t, s.CreateConversation(ctx, dup), storage.ErrAlreadyExists)
	})

	msg := &models.Message{
		Id:             "msg-1",
		ConversationId: "conv-1",
		SenderId:       "alice",
		RecipientId:    "bob",
		SenderText:     "hello",
		Status:         models.MSG_PENDING,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	t.Run("Pending listing", func(t *testing.T) {
		pending, err := s.ListPendingMessages(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "msg-1", pending[0].Id)
	})

	t.Run("Update message", func(t *testing.T) {
		msg.Status = models.MSG_SENT
		msg.Version = 2
		require.NoError(t, s.UpdateMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, models.MSG_SENT, got.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("Version stamps are unique", func(t *testing.T) {
		clash := &models.Message{
			Id:             "msg-2",
			ConversationId: "conv-1",
			SenderId:       "bob",
			RecipientId:    "alice",
			Status:         models.MSG_SENT,
			Version:        2,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		assert.Error(t, s.CreateMessage(ctx, clash))
	})

	t.Run("List since version scoped to caller", func(t *testing.T) {
		got, err := s.ListMessagesSince(ctx, "alice", 1, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "msg-1", got[0].Id)

		got, err = s.ListMessagesSince(ctx, "alice", 2, "")
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.ListMessagesSince(ctx, "carol", -1, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("List conversations since version", func(t *testing.T) {
		got, err := s.ListConversationsSince(ctx, "alice", 0, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, [2]string{"alice", "bob"}, got[0].Parties)

		got, err = s.ListConversationsSince(ctx, "carol", -1, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFeedViews(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	conv := &models.Conversation{
		Id:            "conv-1",
		Parties:       [2]string{"alice", "bob"},
		EncryptionKey: "key",
		LastTimestamp: now,
		Version:       1,
		CreatedAt:     now,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{Id: "bob", Version: 1}))
	require.NoError(t, s.UpsertProfile(ctx, &models.Profile{Id: "carol", Version: 2}))

	t.Run("Profiles scoped to conversation partners", func(t *testing.T) {
		got, err := s.ListProfilesSince(ctx, "alice", -1, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0].Id)
	})

	t.Run("Profile upsert re-stamps", func(t *testing.T) {
		require.NoError(t, s.UpsertProfile(ctx, &models.Profile{Id: "bob", Version: 3, Deleted: true}))
		got, err := s.ListProfilesSince(ctx, "alice", 2, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Deleted)
	})

	t.Run("Pictures are global", func(t *testing.T) {
		require.NoError(t, s.UpsertPicture(ctx, &models.Picture{Id: "pic-1", Version: 1}))
		got, err := s.ListPicturesSince(ctx, -1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestVersionClock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.NextVersion(ctx, storage.CollectionMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	now := time.Now().UTC()
	msg := &models.Message{
		Id:             "msg-1",
		ConversationId: "conv-1",
		SenderId:       "alice",
		RecipientId:    "bob",
		Status:         models.MSG_SENT,
		Version:        v,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	v, err = s.NextVersion(ctx, storage.CollectionMessages)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Collections stamp independently.
	v, err = s.NextVersion(ctx, storage.CollectionConversations)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = s.NextVersion(ctx, storage.CollectionAccounts)
	assert.Error(t, err)
}

func TestExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("Serializes overlapping regions", func(t *testing.T) {
		var mu sync.Mutex
		var events []string

		var wg sync.WaitGroup
		wg.Add(2)
		started := make(chan struct{})
		for i := 0; i < 2; i++ {
			go func() {
				defer wg.Done()
				<-started
				_ = s.Exclusive(ctx, []storage.Collection{storage.CollectionAccounts, storage.CollectionTransactions}, func(ctx context.Context) error {
					mu.Lock()
					events = append(events, "enter")
					mu.Unlock()
					time.Sleep(10 * time.Millisecond)
					mu.Lock()
					events = append(events, "exit")
					mu.Unlock()
					return nil
				})
			}()
		}
		close(started)
		wg.Wait()

		require.Len(t, events, 4)
		assert.Equal(t, []string{"enter", "exit", "enter", "exit"}, events)
	})

	t.Run("Cancelled context aborts before running", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		ran := false
		err := s.Exclusive(cancelled, []storage.Collection{storage.CollectionAccounts}, func(ctx context.Context) error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran)
	})

	t.Run("Unknown collection rejected", func(t *testing.T) {
		err := s.Exclusive(ctx, []storage.Collection{"bogus"}, func(ctx context.Context) error { return nil })
		assert.Error(t, err)
	})
}
