package storage

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
)

// MessageStore defines the interface for managing messages.
type MessageStore interface {
	// GetMessage retrieves a message by its ID.
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)

	// CreateMessage persists a new message. The caller stamps Version first.
	CreateMessage(ctx context.Context, msg *models.Message) error

	// UpdateMessage overwrites a message row. The caller must have stamped a
	// fresh Version so the change surfaces in the feed.
	UpdateMessage(ctx context.Context, msg *models.Message) error

	// ListConversationMessages retrieves every message of a conversation,
	// oldest first. The conversation projector rescans with this.
	ListConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// ListPendingMessages retrieves all messages in PENDING state, oldest
	// first, for the reconciliation pass.
	ListPendingMessages(ctx context.Context) ([]models.Message, error)

	// ListMessagesSince retrieves messages sent or received by the caller
	// with version strictly greater than sinceVersion, ascending by version.
	// Pass sinceVersion < 0 to get every visible message. A non-empty peer
	// restricts to messages exchanged with that user.
	ListMessagesSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Message, error)
}
