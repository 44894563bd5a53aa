// Room handles fan-out: clients register through a channel and the Run()
// loop owns the client map, so no lock is needed around it. Persistence
// happens before broadcast: a message that fails to broadcast is still in
// history, and a message that never persisted is never broadcast.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/chat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

type Room struct {
	GroupID    uuid.UUID
	Manager    *ChatManager
	Clients    map[*ChatClient]bool
	Broadcast  chan []byte
	Register   chan *ChatClient
	Unregister chan *ChatClient
	// closed when Run returns; a blocked Register select unblocks on it
	done chan struct{}
}

func NewRoom(groupID uuid.UUID, manager *ChatManager) *Room {
	return &Room{
		GroupID:    groupID,
		Manager:    manager,
		Clients:    make(map[*ChatClient]bool),
		Broadcast:  make(chan []byte),
		Register:   make(chan *ChatClient),
		Unregister: make(chan *ChatClient),
		done:       make(chan struct{}),
	}
}

func (r *Room) Run() {
	for {
		select {
		case client := <-r.Register:
			r.Clients[client] = true
			log.Printf("[Room %s] User %s connected. Count: %d", r.GroupID, client.UserID, len(r.Clients))

		case client := <-r.Unregister:
			if _, ok := r.Clients[client]; ok {
				delete(r.Clients, client)
				close(client.Send)

				if len(r.Clients) == 0 {
					log.Printf("[Room %s] Empty, destroying.", r.GroupID)
					r.Manager.retireRoom(r)
					return
				}
			}

		case message := <-r.Broadcast:
			for client := range r.Clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(r.Clients, client)
				}
			}
		}
	}
}

// ChatManager holds one Room per group with at least one open socket.
type ChatManager struct {
	db    *pgxpool.Pool
	rooms map[uuid.UUID]*Room
	mu    sync.RWMutex
}

func NewChatManager(db *pgxpool.Pool) *ChatManager {
	return &ChatManager{
		db:    db,
		rooms: make(map[uuid.UUID]*Room),
	}
}

func (m *ChatManager) GetOrCreateRoom(groupID uuid.UUID) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[groupID]; ok {
		return r
	}
	r := NewRoom(groupID, m)
	m.rooms[groupID] = r
	go r.Run()
	return r
}

// JoinRoom registers the client with the group's room. A room tears itself
// down when its last client leaves, so a plain lookup can hand back a room
// whose Run loop has already exited; registering on it would block forever.
// Selecting against done catches that window, and the loop retries with a
// fresh room.
func (m *ChatManager) JoinRoom(groupID uuid.UUID, client *ChatClient) *Room {
	for {
		r := m.GetOrCreateRoom(groupID)
		client.Room = r
		select {
		case r.Register <- client:
			return r
		case <-r.done:
			// lost the race against teardown, fetch a fresh room
		}
	}
}

// retireRoom removes the room from the map, unless a newer room already
// replaced it, then signals done so in-flight JoinRoom calls retry.
func (m *ChatManager) retireRoom(r *Room) {
	m.mu.Lock()
	if current, ok := m.rooms[r.GroupID]; ok && current == r {
		delete(m.rooms, r.GroupID)
	}
	m.mu.Unlock()
	close(r.done)
}

// SaveMessage persists a chat message and returns the stored row. Broadcast
// is the caller's next step, never part of the write.
func (m *ChatManager) SaveMessage(ctx context.Context, groupID, userID uuid.UUID, content string) (*chat.Message, error) {
	if content == "" {
		return nil, apperr.BadRequest("message content is required")
	}

	msg := &chat.Message{
		ID:      uuid.New(),
		GroupID: groupID,
		UserID:  userID,
		Content: content,
	}

	query := `
	INSERT INTO group_messages (id, group_id, user_id, content, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	RETURNING created_at
	`
	err := m.db.QueryRow(ctx, query, msg.ID, groupID, userID, content).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	err = m.db.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, userID).Scan(&msg.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender: %w", err)
	}
	return msg, nil
}

// DeleteMessage is author-only. Returns the deleted id so the room can
// broadcast a message_deleted event.
func (m *ChatManager) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	var authorID uuid.UUID
	err := m.db.QueryRow(ctx, `SELECT user_id FROM group_messages WHERE id = $1`, messageID).Scan(&authorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("message %s does not exist", messageID)
		}
		return fmt.Errorf("failed to look up message: %w", err)
	}
	if authorID != requesterID {
		return apperr.Forbidden("can only delete your own messages")
	}

	_, err = m.db.Exec(ctx, `DELETE FROM group_messages WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (m *ChatManager) History(ctx context.Context, groupID uuid.UUID, limit int) ([]*chat.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
	SELECT gm.id, gm.group_id, gm.user_id, u.display_name, gm.content, gm.created_at
	FROM group_messages gm
	INNER JOIN users u ON u.id = gm.user_id
	WHERE gm.group_id = $1
	ORDER BY gm.created_at DESC
	LIMIT $2
	`
	rows, err := m.db.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	messages := []*chat.Message{}
	for rows.Next() {
		msg := &chat.Message{}
		err := rows.Scan(&msg.ID, &msg.GroupID, &msg.UserID, &msg.DisplayName, &msg.Content, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return messages, nil
}

// ChatClient sits between one websocket connection and its room.
type ChatClient struct {
	Room        *Room
	Conn        *websocket.Conn
	Send        chan []byte
	UserID      uuid.UUID
	DisplayName string
}

func (c *ChatClient) ReadPump() {
	defer func() {
		c.Room.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Room %s] read error: %v", c.Room.GroupID, err)
			}
			break
		}

		var payload chat.InboundPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		switch payload.Action {
		case chat.ActionTyping:
			// Ephemeral, never persisted.
			event := chat.Event{
				Action:      chat.ActionTyping,
				UserID:      c.UserID,
				DisplayName: c.DisplayName,
			}
			if data, err := json.Marshal(event); err == nil {
				c.Room.Broadcast <- data
			}

		case chat.ActionMessageDeleted:
			messageID, err := uuid.Parse(payload.MessageID)
			if err != nil {
				cancel()
				continue
			}
			if err := c.Room.Manager.DeleteMessage(ctx, messageID, c.UserID); err != nil {
				log.Printf("[Room %s] delete failed: %v", c.Room.GroupID, err)
				cancel()
				continue
			}
			event := chat.Event{Action: chat.ActionMessageDeleted, MessageID: &messageID, UserID: c.UserID}
			if data, err := json.Marshal(event); err == nil {
				c.Room.Broadcast <- data
			}

		default:
			// Anything else is a chat message: persist first, then broadcast.
			msg, err := c.Room.Manager.SaveMessage(ctx, c.Room.GroupID, c.UserID, payload.Content)
			if err != nil {
				log.Printf("[Room %s] save failed: %v", c.Room.GroupID, err)
				cancel()
				continue
			}
			event := chat.Event{
				Action:      chat.ActionMessageCreated,
				MessageID:   &msg.ID,
				UserID:      msg.UserID,
				DisplayName: msg.DisplayName,
				Content:     msg.Content,
				CreatedAt:   &msg.CreatedAt,
			}
			if data, err := json.Marshal(event); err == nil {
				c.Room.Broadcast <- data
			}
		}
		cancel()
	}
}

// WritePump handles messages going to the peer, plus heartbeats.
func (c *ChatClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
