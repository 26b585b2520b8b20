// ABOUTME: Tests for SQLite and mock store implementations
// ABOUTME: Covers conversation CRUD, branch updates, and not-found semantics

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string {
	return &s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationMetadata{
		ConversationID:     "c1",
		UserID:             "user-1",
		Title:              "fix the tests",
		SelectedRepository: "org/repo",
		SelectedBranch:     strPtr("main"),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "org/repo", got.SelectedRepository)
	require.NotNil(t, got.SelectedBranch)
	assert.Equal(t, "main", *got.SelectedBranch)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationMetadata{ConversationID: "c1", UserID: "user-1"}
	require.NoError(t, s.CreateConversation(ctx, conv))

	err := s.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c1", UserID: "user-2"})
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SaveBranchUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &ConversationMetadata{
		ConversationID: "c1",
		UserID:         "user-1",
		SelectedBranch: nil,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	conv.SelectedBranch = strPtr("feature")
	require.NoError(t, s.SaveConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.SelectedBranch)
	assert.Equal(t, "feature", *got.SelectedBranch)
}

func TestSQLiteStore_SaveMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveConversation(context.Background(), &ConversationMetadata{ConversationID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c1", UserID: "alice"}))
	require.NoError(t, s.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c2", UserID: "alice"}))
	require.NoError(t, s.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c3", UserID: "bob"}))

	convs, err := s.ListConversationsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 2)
	for _, c := range convs {
		assert.Equal(t, "alice", c.UserID)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c1", UserID: "alice"}))
	require.NoError(t, s.DeleteConversation(ctx, "c1"))

	_, err := s.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error
	require.NoError(t, s.DeleteConversation(ctx, "c1"))
}

func TestMockStore_MatchesInterface(t *testing.T) {
	var _ Store = NewMockStore()
	var _ Store = (*SQLiteStore)(nil)
}

func TestMockStore_CopiesOnReadAndWrite(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	conv := &ConversationMetadata{ConversationID: "c1", UserID: "alice", SelectedBranch: strPtr("main")}
	require.NoError(t, m.CreateConversation(ctx, conv))

	// Mutating the caller's struct must not change the stored copy
	conv.UserID = "mallory"

	got, err := m.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}

func TestMockStore_SaveErrInjection(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateConversation(ctx, &ConversationMetadata{ConversationID: "c1"}))

	m.SaveErr = assert.AnError
	err := m.SaveConversation(ctx, &ConversationMetadata{ConversationID: "c1"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, m.SaveCalls)
}
