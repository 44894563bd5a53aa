package group

import (
	"time"

	"github.com/google/uuid"
)

type Group struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	Location    *string   `json:"location" db:"location"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"`
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	// Derived from membership rows (plus the implicit owner), never stored.
	MemberCount int `json:"member_count"`
}

type Membership struct {
	ID       uuid.UUID `json:"id" db:"id"`
	GroupID  uuid.UUID `json:"group_id" db:"group_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

type Member struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"`
	IsOwner     bool      `json:"is_owner"`
	JoinedAt    time.Time `json:"joined_at" db:"joined_at"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	AvatarURL   string `json:"avatar_url"`
}

type InviteResponse struct {
	GroupID      uuid.UUID `json:"group_id"`
	Token        string    `json:"token"`
	QrCodeBase64 string    `json:"qr_code_base64"`
	ExpiresAt    time.Time `json:"expires_at"`
}
