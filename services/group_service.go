package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skip2/go-qrcode"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/group"
)

type GroupService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
}

func NewGroupService(db *pgxpool.Pool, notificationService *NotificationService) *GroupService {
	return &GroupService{db: db, notificationService: notificationService}
}

func (s *GroupService) CreateGroup(ctx context.Context, ownerID uuid.UUID, req *group.CreateGroupRequest) (*group.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest("group name is required")
	}

	g := &group.Group{
		ID:      uuid.New(),
		Name:    name,
		OwnerID: ownerID,
	}

	query := `
	INSERT INTO groups (id, name, description, location, avatar_url, owner_id, created_at)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NOW())
	RETURNING description, location, avatar_url, created_at
	`
	err := s.db.QueryRow(ctx, query, g.ID, g.Name, req.Description, req.Location, req.AvatarURL, ownerID).
		Scan(&g.Description, &g.Location, &g.AvatarURL, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	// Owner is an implicit member; member_count still counts them.
	g.MemberCount = 1
	log.Printf("CreateGroup: %s created by %s", g.ID, ownerID)
	return g, nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID uuid.UUID) (*group.Group, error) {
	g := &group.Group{}
	// Member count is derived: membership rows plus the implicit owner,
	// minus any explicit owner row that should not exist.
	query := `
	SELECT
		g.id, g.name, g.description, g.location, g.avatar_url, g.owner_id, g.created_at,
		(SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id AND m.user_id != g.owner_id) + 1 AS member_count
	FROM groups g
	WHERE g.id = $1
	`
	err := s.db.QueryRow(ctx, query, groupID).Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.Location,
		&g.AvatarURL,
		&g.OwnerID,
		&g.CreatedAt,
		&g.MemberCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("group %s does not exist", groupID)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (s *GroupService) ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*group.Group, error) {
	query := `
	SELECT
		g.id, g.name, g.description, g.location, g.avatar_url, g.owner_id, g.created_at,
		(SELECT COUNT(*) FROM group_members m2 WHERE m2.group_id = g.id AND m2.user_id != g.owner_id) + 1 AS member_count
	FROM groups g
	WHERE g.owner_id = $1
		OR EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $1)
	ORDER BY g.created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []*group.Group{}
	for rows.Next() {
		g := &group.Group{}
		err := rows.Scan(
			&g.ID,
			&g.Name,
			&g.Description,
			&g.Location,
			&g.AvatarURL,
			&g.OwnerID,
			&g.CreatedAt,
			&g.MemberCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return groups, nil
}

func (s *GroupService) UpdateGroup(ctx context.Context, groupID, requesterID uuid.UUID, req *group.CreateGroupRequest) (*group.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != requesterID {
		return nil, apperr.Forbidden("only the group owner can update the group")
	}

	query := `
	UPDATE groups
	SET
		name = COALESCE(NULLIF($2, ''), name),
		description = COALESCE(NULLIF($3, ''), description),
		location = COALESCE(NULLIF($4, ''), location),
		avatar_url = COALESCE(NULLIF($5, ''), avatar_url)
	WHERE id = $1
	RETURNING name, description, location, avatar_url
	`
	err = s.db.QueryRow(ctx, query, groupID, req.Name, req.Description, req.Location, req.AvatarURL).
		Scan(&g.Name, &g.Description, &g.Location, &g.AvatarURL)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	return g, nil
}

// DeleteGroup cascades to memberships, scheduled runs and their attendance
// rows via the schema's FK constraints.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, requesterID uuid.UUID) error {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != requesterID {
		return apperr.Forbidden("only the group owner can delete the group")
	}

	_, err = s.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	log.Printf("DeleteGroup: %s deleted by owner %s", groupID, requesterID)
	return nil
}

// JoinGroup inserts the membership row. The unique constraint on
// (group_id, user_id) is the real duplicate guard; a concurrent duplicate
// request loses at the constraint, not at a check-then-insert.
func (s *GroupService) JoinGroup(ctx context.Context, groupID, userID uuid.UUID) (*group.Membership, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID == userID {
		return nil, apperr.Conflict("owner is already a member of their own group")
	}

	m := &group.Membership{
		ID:      uuid.New(),
		GroupID: groupID,
		UserID:  userID,
	}

	query := `
	INSERT INTO group_members (id, group_id, user_id, joined_at)
	VALUES ($1, $2, $3, NOW())
	RETURNING joined_at
	`
	err = s.db.QueryRow(ctx, query, m.ID, groupID, userID).Scan(&m.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Conflict("already a member of this group")
		}
		return nil, fmt.Errorf("failed to join group: %w", err)
	}

	if s.notificationService != nil {
		s.notificationService.NotifyMemberJoined(g, userID)
	}

	log.Printf("JoinGroup: user %s joined group %s", userID, groupID)
	return m, nil
}

func (s *GroupService) LeaveGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID == userID {
		return apperr.Forbidden("owner cannot leave own group")
	}

	result, err := s.db.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to leave group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("not a member of this group")
	}
	return nil
}

// IsMember is the predicate every membership-gated operation goes through.
// The owner never has a membership row but always counts as a member.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var isMember bool
	query := `
	SELECT EXISTS(
		SELECT 1 FROM groups g WHERE g.id = $1 AND g.owner_id = $2
		UNION
		SELECT 1 FROM group_members m WHERE m.group_id = $1 AND m.user_id = $2
	)
	`
	err := s.db.QueryRow(ctx, query, groupID, userID).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return isMember, nil
}

func (s *GroupService) GetMembers(ctx context.Context, groupID, requesterID uuid.UUID) ([]*group.Member, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT u.id, u.display_name, u.avatar_url, m.joined_at
	FROM users u
	INNER JOIN group_members m ON m.user_id = u.id
	WHERE m.group_id = $1 AND u.id != $2
	ORDER BY m.joined_at
	`
	rows, err := s.db.Query(ctx, query, groupID, g.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*group.Member{}

	// Implicit owner first.
	owner := &group.Member{UserID: g.OwnerID, IsOwner: true, JoinedAt: g.CreatedAt}
	err = s.db.QueryRow(ctx, `SELECT display_name, avatar_url FROM users WHERE id = $1`, g.OwnerID).
		Scan(&owner.DisplayName, &owner.AvatarURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	members = append(members, owner)

	for rows.Next() {
		m := &group.Member{}
		err := rows.Scan(&m.UserID, &m.DisplayName, &m.AvatarURL, &m.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return members, nil
}

// CreateInvite issues a join token plus a QR code the app can render.
func (s *GroupService) CreateInvite(ctx context.Context, groupID, requesterID uuid.UUID) (*group.InviteResponse, error) {
	isMember, err := s.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("must be a member to invite runners")
	}

	token := uuid.New().String()
	expiresAt := time.Now().Add(72 * time.Hour)

	query := `
	INSERT INTO group_invites (id, group_id, token, created_by, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err = s.db.Exec(ctx, query, uuid.New(), groupID, token, requesterID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	qrContent := fmt.Sprintf("runcrew://groups/join/%s", token)
	pngBytes, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return &group.InviteResponse{
		GroupID:      groupID,
		Token:        token,
		QrCodeBase64: base64.StdEncoding.EncodeToString(pngBytes),
		ExpiresAt:    expiresAt,
	}, nil
}

// JoinViaInvite resolves an invite token and joins the caller to its group.
func (s *GroupService) JoinViaInvite(ctx context.Context, userID uuid.UUID, token string) (*group.Membership, error) {
	var groupID uuid.UUID
	var expiresAt time.Time
	err := s.db.QueryRow(ctx, `SELECT group_id, expires_at FROM group_invites WHERE token = $1`, token).
		Scan(&groupID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("invite does not exist")
		}
		return nil, fmt.Errorf("failed to look up invite: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, apperr.BadRequest("invite has expired")
	}
	return s.JoinGroup(ctx, groupID, userID)
}
