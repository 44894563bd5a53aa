package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"runCrewAPI/internal/apperr"
)

const maxUploadBytes = 5 << 20 // 5 MB

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

var allowedKinds = map[string]bool{
	"avatars": true,
	"groups":  true,
}

type UploadService struct {
	baseDir string
}

func NewUploadService(baseDir string) *UploadService {
	return &UploadService{baseDir: baseDir}
}

// Save validates and stores an uploaded image, returning the relative URL
// it will be served from.
func (s *UploadService) Save(kind string, file multipart.File, header *multipart.FileHeader) (string, error) {
	if !allowedKinds[kind] {
		return "", apperr.BadRequest("unknown upload kind %q", kind)
	}
	if header.Size > maxUploadBytes {
		return "", apperr.BadRequest("file exceeds the 5MB limit")
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return "", apperr.BadRequest("unsupported file extension %q", ext)
	}

	dir := filepath.Join(s.baseDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxUploadBytes+1)); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return "/assets/" + kind + "/" + name, nil
}
