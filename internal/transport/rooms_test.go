// ABOUTME: Tests for room membership bookkeeping
// ABOUTME: Covers join idempotency, leave, leave-all, and membership queries

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRooms_JoinAndMembers(t *testing.T) {
	r := NewRooms()

	r.Join("conn1", "room:c1")
	r.Join("conn2", "room:c1")
	r.Join("conn1", "room:c1") // idempotent

	members := r.Members("room:c1")
	assert.Len(t, members, 2)
	assert.True(t, r.Contains("conn1", "room:c1"))
	assert.True(t, r.Contains("conn2", "room:c1"))
}

func TestRooms_Leave(t *testing.T) {
	r := NewRooms()

	r.Join("conn1", "room:c1")
	r.Leave("conn1", "room:c1")

	assert.False(t, r.Contains("conn1", "room:c1"))
	assert.Empty(t, r.Members("room:c1"))

	// Leaving again is a no-op
	r.Leave("conn1", "room:c1")
}

func TestRooms_LeaveAll(t *testing.T) {
	r := NewRooms()

	r.Join("conn1", "room:c1")
	r.Join("conn1", "room:c2")
	r.Join("conn2", "room:c1")

	r.LeaveAll("conn1")

	assert.False(t, r.Contains("conn1", "room:c1"))
	assert.False(t, r.Contains("conn1", "room:c2"))
	assert.True(t, r.Contains("conn2", "room:c1"))
}

func TestRooms_MembersOfUnknownRoom(t *testing.T) {
	r := NewRooms()
	assert.Empty(t, r.Members("room:nope"))
}
