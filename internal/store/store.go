// ABOUTME: Store interface and data types for strand-gateway persistence
// ABOUTME: Defines ConversationMetadata and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ConversationMetadata describes one conversation as persisted between
// gateway restarts. SelectedBranch is a pointer because a conversation may
// have no known working branch (nil) and the branch reconciler distinguishes
// "no branch" from any concrete branch name.
type ConversationMetadata struct {
	ConversationID     string
	UserID             string
	Title              string
	SelectedRepository string
	SelectedBranch     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Store persists conversation metadata.
type Store interface {
	// CreateConversation stores a new conversation.
	// Returns ErrDuplicateConversation if the ID already exists.
	CreateConversation(ctx context.Context, conv *ConversationMetadata) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, conversationID string) (*ConversationMetadata, error)

	// SaveConversation updates an existing conversation.
	// Returns ErrNotFound if it does not exist.
	SaveConversation(ctx context.Context, conv *ConversationMetadata) error

	// ListConversationsByUser returns all conversations owned by a user,
	// newest first.
	ListConversationsByUser(ctx context.Context, userID string) ([]*ConversationMetadata, error)

	// DeleteConversation removes a conversation. Deleting a missing
	// conversation is not an error.
	DeleteConversation(ctx context.Context, conversationID string) error

	// Close releases store resources.
	Close() error
}
