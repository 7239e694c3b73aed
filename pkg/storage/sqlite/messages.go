package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relaymsg/relay/pkg/models"
	"github.com/relaymsg/relay/pkg/storage"
)

const messageColumns = `id, conversation_id, hash, sender_id, recipient_id,
	sender_address, recipient_address, sender_text, recipient_text,
	action, action_params, action_processed, system_charge, recipient_charge,
	status, settlement_ref, error, version, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.Id, &m.ConversationId, &m.Hash, &m.SenderId, &m.RecipientId,
		&m.SenderAddress, &m.RecipientAddress, &m.SenderText, &m.RecipientText,
		&m.Action, &m.ActionParams, &m.ActionProcessed, &m.SystemCharge, &m.RecipientCharge,
		&m.Status, &m.SettlementRef, &m.Error, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage retrieves a message by its ID.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// CreateMessage persists a new message.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Id, msg.ConversationId, msg.Hash, msg.SenderId, msg.RecipientId,
		msg.SenderAddress, msg.RecipientAddress, msg.SenderText, msg.RecipientText,
		msg.Action, msg.ActionParams, msg.ActionProcessed, msg.SystemCharge, msg.RecipientCharge,
		string(msg.Status), msg.SettlementRef, msg.Error, msg.Version, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// UpdateMessage overwrites a message row.
func (s *Store) UpdateMessage(ctx context.Context, msg *models.Message) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET
			conversation_id = ?, hash = ?, sender_id = ?, recipient_id = ?,
			sender_address = ?, recipient_address = ?, sender_text = ?, recipient_text = ?,
			action = ?, action_params = ?, action_processed = ?,
			system_charge = ?, recipient_charge = ?,
			status = ?, settlement_ref = ?, error = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		msg.ConversationId, msg.Hash, msg.SenderId, msg.RecipientId,
		msg.SenderAddress, msg.RecipientAddress, msg.SenderText, msg.RecipientText,
		msg.Action, msg.ActionParams, msg.ActionProcessed,
		msg.SystemCharge, msg.RecipientCharge,
		string(msg.Status), msg.SettlementRef, msg.Error, msg.Version, msg.UpdatedAt,
		msg.Id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", msg.Id, storage.ErrNotFound)
	}
	return nil
}

// ListConversationMessages retrieves a conversation's messages, oldest first.
func (s *Store) ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListPendingMessages retrieves all PENDING messages, oldest first.
func (s *Store) ListPendingMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE status = ? ORDER BY created_at ASC`,
		string(models.MSG_PENDING))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListMessagesSince retrieves the caller's messages newer than sinceVersion,
// ascending by version.
func (s *Store) ListMessagesSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = ? OR recipient_id = ?) AND version > ?`
	args := []any{callerID, callerID, sinceVersion}
	if peer != "" {
		query += ` AND (sender_id = ? OR recipient_id = ?)`
		args = append(args, peer, peer)
	}
	query += ` ORDER BY version ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages since version: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
