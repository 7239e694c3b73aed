// Package conversations manages the conversation pair, message sending with
// fee charging, read receipts and the denormalized conversation projection.
package conversations

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

// Store is the slice of the data layer this service needs.
type Store interface {
	storage.MessageStore
	storage.ConversationStore
	storage.Region
	storage.VersionClock
}

// Charger applies message fees through the ledger. Satisfied by
// ledger.Ledger.
type Charger interface {
	GetOrCreateAccount(ctx context.Context, accountType models.AccountType, ownerID string) (*models.Account, error)
	ApplyCharge(ctx context.Context, payerID, payeeID string, amount int64, kind models.TransactionKind, linkedMessageID string) (*models.Transaction, error)
}

// Service implements conversation and message operations.
type Service struct {
	store   Store
	charger Charger
	log     *slog.Logger
}

// New creates a Service.
func New(store Store, charger Charger, log *slog.Logger) *Service {
	return &Service{store: store, charger: charger, log: log}
}

// GetOrCreate returns the conversation between two users, creating it on
// first contact. Creation generates the conversation's encryption key and
// stamps a version so the new conversation surfaces in both parties' feeds.
func (s *Service) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == userB {
		return nil, fmt.Errorf("conversation requires two distinct parties")
	}

	var conv *models.Conversation
	err := s.store.Exclusive(ctx, []storage.Collection{storage.CollectionConversations}, func(ctx context.Context) error {
		var err error
		conv, err = s.getOrCreate(ctx, userA, userB)
		return err
	})
	return conv, err
}

// getOrCreate is the region-free body of GetOrCreate, shared with Send.
func (s *Service) getOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	version, err := s.store.NextVersion(ctx, storage.CollectionConversations)
	if err != nil {
		return nil, err
	}

	p1, p2 := models.CanonicalPair(userA, userB)
	now := time.Now().UTC()
	conv = &models.Conversation{
		Id:            uuid.New().String(),
		Parties:       [2]string{p1, p2},
		EncryptionKey: base64.StdEncoding.EncodeToString(key),
		LastTimestamp: now,
		Version:       version,
		CreatedAt:     now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.log.Info("conversation created",
		slog.String("conversation_id", conv.Id),
		slog.Int64("version", version))
	return conv, nil
}

// Hide sets the caller's hidden flag on the conversation. The other party's
// view is unaffected. Re-stamps the version so the change reaches the feed.
func (s *Service) Hide(ctx context.Context, conversationID, callerID string, hidden bool) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.store.Exclusive(ctx, []storage.Collection{storage.CollectionConversations}, func(ctx context.Context) error {
		var err error
		conv, err = s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		role, ok := conv.RoleOf(callerID)
		if !ok {
			return fmt.Errorf("user %s in conversation %s: %w", callerID, conversationID, storage.ErrForbidden)
		}
		if conv.Hidden[role] == hidden {
			return nil
		}

		version, err := s.store.NextVersion(ctx, storage.CollectionConversations)
		if err != nil {
			return err
		}
		conv.Hidden[role] = hidden
		conv.Version = version
		return s.store.UpdateConversation(ctx, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Project recomputes the conversation's denormalized summary from scratch by
// rescanning all of its messages: the most recent message by timestamp
// becomes the preview, and each side's unread count is the number of SENT
// messages addressed to it. A fresh version is stamped and persisted.
//
// Callers must hold a region covering messages and conversations.
func (s *Service) Project(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	msgs, err := s.store.ListConversationMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	conv.NumUnread = [2]int64{}
	var last *models.Message
	for i := range msgs {
		m := &msgs[i]
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
		if m.Status != models.MSG_SENT {
			continue
		}
		if role, ok := conv.RoleOf(m.RecipientId); ok {
			conv.NumUnread[role]++
		}
	}
	if last != nil {
		text := last.SenderText
		if text == "" {
			text = last.RecipientText
		}
		conv.LastMessageText = text
		conv.LastTimestamp = last.CreatedAt
	}

	version, err := s.store.NextVersion(ctx, storage.CollectionConversations)
	if err != nil {
		return err
	}
	conv.Version = version
	return s.store.UpdateConversation(ctx, conv)
}
