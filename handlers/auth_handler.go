package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"runCrewAPI/internal/types/user"
	"runCrewAPI/services"
)

type AuthHandler struct {
	userService *services.UserService
}

func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.userService.Register(ctx, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	// Log the fresh account straight in.
	auth, err := h.userService.Login(ctx, &user.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		respondWithJSON(w, http.StatusCreated, u)
		return
	}

	respondWithJSON(w, http.StatusCreated, auth)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	auth, err := h.userService.Login(ctx, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, auth)
}
