package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *ChatClient {
	return &ChatClient{
		Send:        make(chan []byte, 16),
		UserID:      uuid.New(),
		DisplayName: "tester",
	}
}

func TestRoomBroadcast(t *testing.T) {
	manager := NewChatManager(nil)
	groupID := uuid.New()

	a := newTestClient()
	b := newTestClient()
	room := manager.JoinRoom(groupID, a)
	manager.JoinRoom(groupID, b)

	room.Broadcast <- []byte(`{"action":"message_created"}`)

	for _, c := range []*ChatClient{a, b} {
		select {
		case msg := <-c.Send:
			assert.JSONEq(t, `{"action":"message_created"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestRoomReuseAndTeardown(t *testing.T) {
	manager := NewChatManager(nil)
	groupID := uuid.New()

	c := newTestClient()
	room := manager.JoinRoom(groupID, c)
	assert.Same(t, room, manager.GetOrCreateRoom(groupID), "same group gets the same room")

	room.Unregister <- c

	// Last client out tears the room down.
	require.Eventually(t, func() bool {
		manager.mu.RLock()
		defer manager.mu.RUnlock()
		_, ok := manager.rooms[groupID]
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok, "send channel closed on unregister")
}

func TestJoinRoomDuringTeardown(t *testing.T) {
	manager := NewChatManager(nil)
	groupID := uuid.New()

	// Repeatedly race a leaving client against a joining one. Without the
	// done-channel handshake a join that caught the dying room would block
	// on Register forever.
	for i := 0; i < 50; i++ {
		a := newTestClient()
		room := manager.JoinRoom(groupID, a)
		room.Unregister <- a

		b := newTestClient()
		joined := make(chan *Room, 1)
		go func() {
			joined <- manager.JoinRoom(groupID, b)
		}()

		var fresh *Room
		select {
		case fresh = <-joined:
		case <-time.After(2 * time.Second):
			t.Fatal("JoinRoom hung against room teardown")
		}

		fresh.Broadcast <- []byte("still alive")
		select {
		case msg := <-b.Send:
			assert.Equal(t, "still alive", string(msg))
		case <-time.After(time.Second):
			t.Fatal("client registered on a dead room")
		}

		fresh.Unregister <- b
		require.Eventually(t, func() bool {
			manager.mu.RLock()
			defer manager.mu.RUnlock()
			_, ok := manager.rooms[groupID]
			return !ok
		}, time.Second, time.Millisecond)
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	manager := NewChatManager(nil)

	a := newTestClient()
	b := newTestClient()
	roomA := manager.JoinRoom(uuid.New(), a)
	roomB := manager.JoinRoom(uuid.New(), b)
	require.NotSame(t, roomA, roomB)

	roomA.Broadcast <- []byte("only for A")

	select {
	case msg := <-a.Send:
		assert.Equal(t, "only for A", string(msg))
	case <-time.After(time.Second):
		t.Fatal("room A client did not receive broadcast")
	}

	select {
	case msg := <-b.Send:
		t.Fatalf("room B client leaked message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
