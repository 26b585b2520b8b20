// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation metadata persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id     TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			title               TEXT NOT NULL DEFAULT '',
			selected_repository TEXT NOT NULL DEFAULT '',
			selected_branch     TEXT,
			created_at          DATETIME NOT NULL,
			updated_at          DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateConversation stores a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *ConversationMetadata) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(conversation_id, user_id, title, selected_repository, selected_branch, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ConversationID, conv.UserID, conv.Title, conv.SelectedRepository,
		conv.SelectedBranch, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*ConversationMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, title, selected_repository, selected_branch, created_at, updated_at
		FROM conversations WHERE conversation_id = ?`, conversationID)

	conv := &ConversationMetadata{}
	err := row.Scan(
		&conv.ConversationID, &conv.UserID, &conv.Title,
		&conv.SelectedRepository, &conv.SelectedBranch,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return conv, nil
}

// SaveConversation updates an existing conversation.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *ConversationMetadata) error {
	conv.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET user_id = ?, title = ?, selected_repository = ?, selected_branch = ?, updated_at = ?
		WHERE conversation_id = ?`,
		conv.UserID, conv.Title, conv.SelectedRepository, conv.SelectedBranch,
		conv.UpdatedAt, conv.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsByUser returns all conversations owned by a user, newest first.
func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID string) ([]*ConversationMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, title, selected_repository, selected_branch, created_at, updated_at
		FROM conversations WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*ConversationMetadata
	for rows.Next() {
		conv := &ConversationMetadata{}
		err := rows.Scan(
			&conv.ConversationID, &conv.UserID, &conv.Title,
			&conv.SelectedRepository, &conv.SelectedBranch,
			&conv.CreatedAt, &conv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint failures in the error text
	return strings.Contains(err.Error(), "constraint failed")
}
