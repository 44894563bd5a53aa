package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"runCrewAPI/middleware"
	"runCrewAPI/services"
)

type UploadHandler struct {
	uploadService *services.UploadService
}

func NewUploadHandler(uploadService *services.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

// Upload stores a multipart image and returns its public path. The kind path
// segment picks the target directory (avatars or groups).
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	kind := mux.Vars(r)["kind"]

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondWithError(w, http.StatusBadRequest, "Could not parse multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Form field 'image' is required")
		return
	}
	defer file.Close()

	url, err := h.uploadService.Save(kind, file, header)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"url": url})
}
