package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"runCrewAPI/middleware"
	"runCrewAPI/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens via the token, not the origin.
		return true
	},
}

type ChatHandler struct {
	chatManager  *services.ChatManager
	groupService *services.GroupService
	userService  *services.UserService
}

func NewChatHandler(chatManager *services.ChatManager, groupService *services.GroupService, userService *services.UserService) *ChatHandler {
	return &ChatHandler{
		chatManager:  chatManager,
		groupService: groupService,
		userService:  userService,
	}
}

// JoinChat upgrades the connection to a websocket and plugs the client into
// its group's room. Browsers can't set headers on websocket dials, so the
// token rides in a query parameter instead of the Authorization header.
func (h *ChatHandler) JoinChat(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(mux.Vars(r)["groupID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithError(w, http.StatusUnauthorized, "Token query parameter required")
		return
	}

	userID, err := middleware.VerifyToken(token)
	if err != nil {
		log.Printf("JoinChat: token verification failed: %v", err)
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	isMember, err := h.groupService.IsMember(ctx, groupID, userID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if !isMember {
		respondWithError(w, http.StatusForbidden, "must be a member to join group chat")
		return
	}

	u, err := h.userService.GetByID(ctx, userID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("JoinChat: upgrade failed: %v", err)
		return
	}

	client := &services.ChatClient{
		Conn:        conn,
		Send:        make(chan []byte, 256),
		UserID:      userID,
		DisplayName: u.DisplayName,
	}
	h.chatManager.JoinRoom(groupID, client)

	go client.WritePump()
	go client.ReadPump()
}

func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	groupID, err := uuid.Parse(mux.Vars(r)["groupID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	isMember, err := h.groupService.IsMember(ctx, groupID, userID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if !isMember {
		respondWithError(w, http.StatusForbidden, "must be a member to read group chat")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	messages, err := h.chatManager.History(ctx, groupID, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, messages)
}
