// ABOUTME: Tests for the connection index
// ABOUTME: Covers bind, unbind idempotency, rebind, and conversation-wide unbind

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_BindAndLookup(t *testing.T) {
	idx := NewIndex()

	idx.Bind("conn1", "c1")
	idx.Bind("conn2", "c1")

	conv, ok := idx.ConversationOf("conn1")
	assert.True(t, ok)
	assert.Equal(t, "c1", conv)
	assert.ElementsMatch(t, []string{"conn1", "conn2"}, idx.ConnectionsOf("c1"))
	assert.False(t, idx.IsRemote("conn1"))
}

func TestIndex_BindRemote(t *testing.T) {
	idx := NewIndex()

	idx.BindRemote("conn1", "c1")

	assert.True(t, idx.IsRemote("conn1"))
	conv, ok := idx.ConversationOf("conn1")
	assert.True(t, ok)
	assert.Equal(t, "c1", conv)
}

func TestIndex_RebindMovesConnection(t *testing.T) {
	idx := NewIndex()

	idx.Bind("conn1", "c1")
	idx.Bind("conn1", "c2")

	conv, ok := idx.ConversationOf("conn1")
	assert.True(t, ok)
	assert.Equal(t, "c2", conv)
	assert.Empty(t, idx.ConnectionsOf("c1"))
	assert.Equal(t, []string{"conn1"}, idx.ConnectionsOf("c2"))
}

func TestIndex_Unbind(t *testing.T) {
	idx := NewIndex()

	idx.Bind("conn1", "c1")

	conv, ok := idx.Unbind("conn1")
	assert.True(t, ok)
	assert.Equal(t, "c1", conv)

	_, ok = idx.ConversationOf("conn1")
	assert.False(t, ok)
	assert.Empty(t, idx.ConnectionsOf("c1"))

	// Unbinding again is a no-op
	_, ok = idx.Unbind("conn1")
	assert.False(t, ok)
}

func TestIndex_UnbindUnknownConnection(t *testing.T) {
	idx := NewIndex()

	_, ok := idx.Unbind("never-bound")
	assert.False(t, ok)
}

func TestIndex_UnbindConversation(t *testing.T) {
	idx := NewIndex()

	idx.Bind("conn1", "c1")
	idx.Bind("conn2", "c1")
	idx.Bind("conn3", "c2")

	removed := idx.UnbindConversation("c1")
	assert.ElementsMatch(t, []string{"conn1", "conn2"}, removed)

	_, ok := idx.ConversationOf("conn1")
	assert.False(t, ok)
	_, ok = idx.ConversationOf("conn2")
	assert.False(t, ok)

	// Other conversations are untouched
	conv, ok := idx.ConversationOf("conn3")
	assert.True(t, ok)
	assert.Equal(t, "c2", conv)
}
