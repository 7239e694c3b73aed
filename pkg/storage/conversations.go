package storage

import (
	"context"

	"github.com/relaymsg/relay/pkg/models"
)

// ConversationStore defines the interface for managing conversations.
type ConversationStore interface {
	// GetConversation retrieves a conversation by its ID.
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)

	// FindConversation retrieves the conversation between two users,
	// regardless of argument order. Returns ErrNotFound when absent.
	FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// CreateConversation persists a new conversation. Returns
	// ErrAlreadyExists when the unordered pair already has one.
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	// UpdateConversation overwrites a conversation row. The caller must have
	// stamped a fresh Version.
	UpdateConversation(ctx context.Context, conv *models.Conversation) error

	// ListConversationsSince retrieves conversations involving the caller
	// with version strictly greater than sinceVersion, ascending by version.
	// Pass sinceVersion < 0 for all. A non-empty peer restricts to the
	// conversation with that user.
	ListConversationsSince(ctx context.Context, callerID string, sinceVersion int64, peer string) ([]models.Conversation, error)
}
