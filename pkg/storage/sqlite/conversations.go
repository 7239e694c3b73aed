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

const conversationColumns = `id, party_1, party_2, hidden_1, hidden_2,
	num_unread_1, num_unread_2, last_message_text, last_timestamp,
	encryption_key, version, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.Id, &c.Parties[0], &c.Parties[1], &c.Hidden[0], &c.Hidden[1],
		&c.NumUnread[0], &c.NumUnread[1], &c.LastMessageText, &c.LastTimestamp,
		&c.EncryptionKey, &c.Version, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation retrieves a conversation by its ID.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, conversationID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// FindConversation retrieves the conversation between two users, regardless
// of argument order.
func (s *Store) FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	p1, p2 := models.CanonicalPair(userA, userB)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE party_1 = ? AND party_2 = ?`, p1, p2)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s/%s: %w", p1, p2, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return c, nil
}

// CreateConversation persists a new conversation. Parties must already be in
// canonical order.
func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.Id, conv.Parties[0], conv.Parties[1], conv.Hidden[0], conv.Hidden[1],
		conv.NumUnread[0], conv.NumUnread[1], conv.LastMessageText, conv.LastTimestamp,
		conv.EncryptionKey, conv.Version, conv.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: conversations.party_1") ||
			strings.Contains(err.Error(), "idx_conversations_pair") {
			return fmt.Errorf("conversation %s/%s: %w", conv.Parties[0], conv.Parties[1], storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// UpdateConversation overwrites a conversation row.
func (s *Store) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
			hidden_1 = ?, hidden_2 = ?, num_unread_1 = ?, num_unread_2 = ?,
			last_message_text = ?, last_timestamp = ?, version = ?
		 WHERE id = ?`,
		conv.Hidden[0], conv.Hidden[1], conv.NumUnread[0], conv.NumUnread[1],
		conv.LastMessageText, conv.LastTimestamp, conv.Version, conv.Id)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", conv.Id, storage.ErrNotFound)
	}
	return nil
}

// ListConversationsSince retrieves the caller's conversations newer than
// sinceVersion, ascending by version.
func (s *Store) ListConversationsSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE (party_1 = ? OR party_2 = ?) AND version > ?`
	args := []any{callerID, callerID, sinceVersion}
	if peer != "" {
		query += ` AND (party_1 = ? OR party_2 = ?)`
		args = append(args, peer, peer)
	}
	query += ` ORDER BY version ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations since version: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
