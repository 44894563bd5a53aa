package notification

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindRunScheduled       Kind = "run_scheduled"
	KindChallengeComplete  Kind = "challenge_complete"
	KindGroupMemberJoined  Kind = "group_member_joined"
)

type Notification struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	UserID    uuid.UUID      `json:"user_id" db:"user_id"`
	Kind      Kind           `json:"kind" db:"kind"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Data      map[string]any `json:"data" db:"data"`
	IsRead    bool           `json:"is_read" db:"is_read"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type DeviceToken struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Token    string    `json:"token" db:"token"`
	Platform string    `json:"platform" db:"platform"`
}

type CreateRequest struct {
	UserID uuid.UUID
	Kind   Kind
	Title  string
	Body   string
	Data   map[string]any
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
