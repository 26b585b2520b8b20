// ABOUTME: Bidirectional mapping between client connections and conversations
// ABOUTME: Used to fan out events and to garbage-collect state on disconnect

package conversation

import "sync"

// indexEntry records which conversation a connection observes and whether
// the session lives on another process (remote-backed).
type indexEntry struct {
	conversationID string
	remote         bool
}

// Index is the in-process table mapping connection ids to conversation ids
// and back. A connection maps to at most one conversation at a time; binding
// an already-bound connection moves it. All operations are local,
// synchronous, and safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	byConn map[string]indexEntry
	byConv map[string]map[string]struct{}
}

// NewIndex creates an empty connection index.
func NewIndex() *Index {
	return &Index{
		byConn: make(map[string]indexEntry),
		byConv: make(map[string]map[string]struct{}),
	}
}

// Bind maps a connection to a locally hosted conversation.
func (i *Index) Bind(connectionID, conversationID string) {
	i.bind(connectionID, conversationID, false)
}

// BindRemote maps a connection to a conversation whose session runs on
// another process.
func (i *Index) BindRemote(connectionID, conversationID string) {
	i.bind(connectionID, conversationID, true)
}

func (i *Index) bind(connectionID, conversationID string, remote bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.unbindLocked(connectionID)

	i.byConn[connectionID] = indexEntry{conversationID: conversationID, remote: remote}
	if _, ok := i.byConv[conversationID]; !ok {
		i.byConv[conversationID] = make(map[string]struct{})
	}
	i.byConv[conversationID][connectionID] = struct{}{}
}

// Unbind removes a connection's entry and returns the conversation it was
// bound to. Unbinding an unknown connection is a no-op.
func (i *Index) Unbind(connectionID string) (conversationID string, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.byConn[connectionID]
	i.unbindLocked(connectionID)
	return entry.conversationID, exists
}

func (i *Index) unbindLocked(connectionID string) {
	entry, ok := i.byConn[connectionID]
	if !ok {
		return
	}
	delete(i.byConn, connectionID)
	if conns, ok := i.byConv[entry.conversationID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(i.byConv, entry.conversationID)
		}
	}
}

// ConversationOf returns the conversation a connection is bound to.
func (i *Index) ConversationOf(connectionID string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	entry, ok := i.byConn[connectionID]
	return entry.conversationID, ok
}

// IsRemote reports whether a connection is bound to a remote-backed
// conversation.
func (i *Index) IsRemote(connectionID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.byConn[connectionID].remote
}

// ConnectionsOf returns the connections currently bound to a conversation.
func (i *Index) ConnectionsOf(conversationID string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	conns := make([]string, 0, len(i.byConv[conversationID]))
	for id := range i.byConv[conversationID] {
		conns = append(conns, id)
	}
	return conns
}

// UnbindConversation removes every connection bound to a conversation and
// returns their ids, so the caller can instruct the transport to disconnect
// them. Used when a session is force-closed.
func (i *Index) UnbindConversation(conversationID string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	conns := make([]string, 0, len(i.byConv[conversationID]))
	for id := range i.byConv[conversationID] {
		conns = append(conns, id)
		delete(i.byConn, id)
	}
	delete(i.byConv, conversationID)
	return conns
}
