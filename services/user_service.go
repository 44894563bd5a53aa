package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/user"
)

const uniqueViolation = "23505"

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Register(ctx context.Context, req *user.RegisterRequest) (*user.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.BadRequest("valid email is required")
	}
	if len(req.Password) < 8 {
		return nil, apperr.BadRequest("password must be at least 8 characters")
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &user.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
	}

	query := `
	INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	err = s.db.QueryRow(ctx, query, u.ID, u.Email, string(hash), u.DisplayName).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("Register: created user %s", u.ID)
	return u, nil
}

func (s *UserService) Login(ctx context.Context, req *user.LoginRequest) (*user.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	u := &user.User{}
	var passwordHash string
	query := `
	SELECT id, email, password_hash, display_name, avatar_url, created_at, updated_at
	FROM users
	WHERE email = $1
	`
	err := s.db.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&passwordHash,
		&u.DisplayName,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.BadRequest("invalid email or password")
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		return nil, apperr.BadRequest("invalid email or password")
	}

	token, err := issueToken(u.ID)
	if err != nil {
		return nil, err
	}

	return &user.AuthResponse{Token: token, User: u}, nil
}

func issueToken(userID uuid.UUID) (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}

	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(30 * 24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *UserService) GetByID(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u := &user.User{}
	query := `
	SELECT id, email, display_name, avatar_url, created_at, updated_at
	FROM users
	WHERE id = $1
	`
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user %s does not exist", userID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *user.UpdateProfileRequest) (*user.User, error) {
	query := `
	UPDATE users
	SET
		display_name = COALESCE(NULLIF($2, ''), display_name),
		avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
		updated_at = NOW()
	WHERE id = $1
	RETURNING id, email, display_name, avatar_url, created_at, updated_at
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, userID, req.DisplayName, req.AvatarURL).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user %s does not exist", userID)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, req *user.ChangePasswordRequest) error {
	if len(req.NewPassword) < 8 {
		return apperr.BadRequest("new password must be at least 8 characters")
	}

	var currentHash string
	err := s.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&currentHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user %s does not exist", userID)
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.CurrentPassword)) != nil {
		return apperr.Forbidden("current password is incorrect")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, string(newHash))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// DeleteAccount removes the user. Authored content (owned groups, created
// challenges, scheduled runs) restricts the delete at the FK level so history
// never orphans; memberships and attendance cascade away.
func (s *UserService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.Conflict("account still owns groups, runs or challenges; transfer or delete them first")
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("user %s does not exist", userID)
	}
	log.Printf("DeleteAccount: removed user %s", userID)
	return nil
}

func (s *UserService) SearchUsers(ctx context.Context, userID uuid.UUID, search string) ([]*user.User, error) {
	cleanQuery := strings.TrimSpace(search)
	if cleanQuery == "" {
		return []*user.User{}, nil
	}
	pattern := "%" + cleanQuery + "%"

	query := `
	SELECT id, email, display_name, avatar_url, created_at, updated_at
	FROM users
	WHERE (display_name ILIKE $1 OR email ILIKE $1)
		AND id != $2
	ORDER BY
		CASE WHEN LOWER(display_name) = LOWER($3) THEN 0 ELSE 1 END,
		display_name
	LIMIT 50
	`

	rows, err := s.db.Query(ctx, query, pattern, userID, cleanQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := []*user.User{}
	for rows.Next() {
		u := &user.User{}
		err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.DisplayName,
			&u.AvatarURL,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return users, nil
}
