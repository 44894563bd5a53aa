package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"runCrewAPI/internal/types/run"
	"runCrewAPI/middleware"
	"runCrewAPI/services"
)

type RunHandler struct {
	runService *services.RunService
}

func NewRunHandler(runService *services.RunService) *RunHandler {
	return &RunHandler{
		runService: runService,
	}
}

func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
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

	var req run.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	scheduled, err := h.runService.CreateRun(ctx, groupID, userID, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, scheduled)
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	scheduled, err := h.runService.GetRun(ctx, runID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, scheduled)
}

func (h *RunHandler) ListGroupRuns(w http.ResponseWriter, r *http.Request) {
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

	runs, err := h.runService.ListGroupRuns(ctx, groupID, userID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, runs)
}

func (h *RunHandler) UpdateRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	var req run.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	scheduled, err := h.runService.UpdateRun(ctx, runID, userID, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, scheduled)
}

func (h *RunHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	if err := h.runService.DeleteRun(ctx, runID, userID); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Run deleted successfully"})
}

func (h *RunHandler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	var req struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	attendance, err := h.runService.SetAttendance(ctx, runID, userID, req.Status, req.Notes)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, attendance)
}

func (h *RunHandler) GetAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	summary, err := h.runService.SummarizeAttendance(ctx, runID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

func (h *RunHandler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	runID, err := uuid.Parse(mux.Vars(r)["runID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	attendances, err := h.runService.ListAttendance(ctx, runID, userID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, attendances)
}

func (h *RunHandler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	attendanceID, err := uuid.Parse(mux.Vars(r)["attendanceID"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid attendance ID")
		return
	}

	if err := h.runService.DeleteAttendance(ctx, attendanceID, userID); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Attendance removed"})
}
