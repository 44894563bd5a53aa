package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/challenge"
)

type ChallengeService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
}

func NewChallengeService(db *pgxpool.Pool, notificationService *NotificationService) *ChallengeService {
	return &ChallengeService{db: db, notificationService: notificationService}
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, creatorID uuid.UUID, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.BadRequest("title is required")
	}
	switch req.Type {
	case challenge.TypeDailyDistance, challenge.TypeTotalDistance, challenge.TypeRunStreak, challenge.TypeCustom:
	default:
		return nil, apperr.BadRequest("invalid challenge type %q", req.Type)
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, apperr.BadRequest("end date must be after start date")
	}
	if req.RequiredPerDay < 0 {
		return nil, apperr.BadRequest("required distance per day cannot be negative")
	}

	c := &challenge.Challenge{
		ID:             uuid.New(),
		Title:          strings.TrimSpace(req.Title),
		Type:           req.Type,
		RequiredPerDay: req.RequiredPerDay,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IsPublic:       req.IsPublic,
		IsActive:       true,
		CreatedBy:      creatorID,
	}

	query := `
	INSERT INTO challenges (id, title, description, challenge_type, required_per_day, start_date, end_date, is_public, is_active, created_by, created_at, updated_at)
	VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, TRUE, $9, NOW(), NOW())
	RETURNING description, created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		c.ID, c.Title, req.Description, c.Type, c.RequiredPerDay, c.StartDate, c.EndDate, c.IsPublic, creatorID,
	).Scan(&c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	log.Printf("CreateChallenge: %s (%s) created by %s", c.ID, c.Type, creatorID)
	return c, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	query := `
	SELECT id, title, description, challenge_type, required_per_day, start_date, end_date, is_public, is_active, created_by, created_at, updated_at
	FROM challenges
	WHERE id = $1
	`
	err := s.db.QueryRow(ctx, query, challengeID).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Type,
		&c.RequiredPerDay,
		&c.StartDate,
		&c.EndDate,
		&c.IsPublic,
		&c.IsActive,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("challenge %s does not exist", challengeID)
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

// ListChallenges returns public active challenges plus any the user created
// or joined.
func (s *ChallengeService) ListChallenges(ctx context.Context, userID uuid.UUID) ([]*challenge.Challenge, error) {
	query := `
	SELECT DISTINCT c.id, c.title, c.description, c.challenge_type, c.required_per_day, c.start_date, c.end_date, c.is_public, c.is_active, c.created_by, c.created_at, c.updated_at
	FROM challenges c
	LEFT JOIN challenge_progress p ON p.challenge_id = c.id AND p.user_id = $1
	WHERE (c.is_public AND c.is_active)
		OR c.created_by = $1
		OR p.id IS NOT NULL
	ORDER BY c.start_date DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []*challenge.Challenge{}
	for rows.Next() {
		c := &challenge.Challenge{}
		err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&c.Type,
			&c.RequiredPerDay,
			&c.StartDate,
			&c.EndDate,
			&c.IsPublic,
			&c.IsActive,
			&c.CreatedBy,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return challenges, nil
}

// JoinChallenge creates the caller's progress row with zeroed counters.
// Exactly one row per (challenge_id, user_id) is guaranteed by the unique
// constraint; joining twice fails on the second call.
func (s *ChallengeService) JoinChallenge(ctx context.Context, challengeID, userID uuid.UUID) (*challenge.Progress, error) {
	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, apperr.BadRequest("challenge is not active")
	}
	if c.Ended(time.Now()) {
		return nil, apperr.BadRequest("challenge has already ended")
	}

	p := &challenge.Progress{
		ID:          uuid.New(),
		ChallengeID: challengeID,
		UserID:      userID,
	}

	query := `
	INSERT INTO challenge_progress (id, challenge_id, user_id, joined_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	RETURNING joined_at, updated_at
	`
	err = s.db.QueryRow(ctx, query, p.ID, challengeID, userID).Scan(&p.JoinedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.BadRequest("already joined this challenge")
		}
		return nil, fmt.Errorf("failed to join challenge: %w", err)
	}

	log.Printf("JoinChallenge: user %s joined challenge %s", userID, challengeID)
	return p, nil
}

// LeaveChallenge removes the caller's own progress row. No one else can
// remove it; the row otherwise only disappears with the challenge itself.
func (s *ChallengeService) LeaveChallenge(ctx context.Context, challengeID, userID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM challenge_progress WHERE challenge_id = $1 AND user_id = $2`, challengeID, userID)
	if err != nil {
		return fmt.Errorf("failed to leave challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("not participating in this challenge")
	}
	return nil
}

func (s *ChallengeService) GetProgress(ctx context.Context, challengeID, userID uuid.UUID) (*challenge.Progress, error) {
	p := &challenge.Progress{}
	query := `
	SELECT id, challenge_id, user_id, days_completed, total_distance, current_streak, longest_streak, last_run_date, last_streak_date, is_complete, joined_at, updated_at
	FROM challenge_progress
	WHERE challenge_id = $1 AND user_id = $2
	`
	err := s.db.QueryRow(ctx, query, challengeID, userID).Scan(
		&p.ID,
		&p.ChallengeID,
		&p.UserID,
		&p.DaysCompleted,
		&p.TotalDistance,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.LastRunDate,
		&p.LastStreakDate,
		&p.IsComplete,
		&p.JoinedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("not participating in this challenge")
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return p, nil
}

// RecordRun folds a logged run into the user's progress for one challenge.
// Not exposed as an endpoint; the run-log service calls it for every active
// joined challenge whose window contains the run date. The row is locked for
// the duration of the transaction so concurrent logs serialize.
func (s *ChallengeService) RecordRun(ctx context.Context, challengeID, userID uuid.UUID, runDate time.Time, distanceKm float64) error {
	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if !c.Contains(runDate) {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &challenge.Progress{}
	query := `
	SELECT id, challenge_id, user_id, days_completed, total_distance, current_streak, longest_streak, last_run_date, last_streak_date, is_complete, joined_at, updated_at
	FROM challenge_progress
	WHERE challenge_id = $1 AND user_id = $2
	FOR UPDATE
	`
	err = tx.QueryRow(ctx, query, challengeID, userID).Scan(
		&p.ID,
		&p.ChallengeID,
		&p.UserID,
		&p.DaysCompleted,
		&p.TotalDistance,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.LastRunDate,
		&p.LastStreakDate,
		&p.IsComplete,
		&p.JoinedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("not participating in this challenge")
		}
		return fmt.Errorf("failed to lock progress: %w", err)
	}

	wasComplete := p.IsComplete
	challenge.ApplyRun(p, c, runDate, distanceKm, time.Now())

	update := `
	UPDATE challenge_progress
	SET days_completed = $2,
		total_distance = $3,
		current_streak = $4,
		longest_streak = $5,
		last_run_date = $6,
		last_streak_date = $7,
		is_complete = $8,
		updated_at = NOW()
	WHERE id = $1
	`
	_, err = tx.Exec(ctx, update,
		p.ID, p.DaysCompleted, p.TotalDistance, p.CurrentStreak, p.LongestStreak,
		p.LastRunDate, p.LastStreakDate, p.IsComplete,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit progress: %w", err)
	}

	if !wasComplete && p.IsComplete && s.notificationService != nil {
		s.notificationService.NotifyChallengeComplete(c, userID)
	}
	return nil
}

// Leaderboard orders participants by total distance desc, then current
// streak desc, then joined_at asc. The final tiebreak makes the ordering
// deterministic for identical scores.
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID uuid.UUID, topN int) (*challenge.Leaderboard, error) {
	if _, err := s.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = 50
	}

	var total int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM challenge_progress WHERE challenge_id = $1`, challengeID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}

	query := `
	SELECT u.id, u.display_name, u.avatar_url, p.total_distance, p.current_streak, p.is_complete
	FROM challenge_progress p
	INNER JOIN users u ON u.id = p.user_id
	WHERE p.challenge_id = $1
	ORDER BY p.total_distance DESC, p.current_streak DESC, p.joined_at ASC
	LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, challengeID, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*challenge.LeaderboardEntry{}
	for rows.Next() {
		entry := &challenge.LeaderboardEntry{}
		err := rows.Scan(
			&entry.UserID,
			&entry.DisplayName,
			&entry.AvatarURL,
			&entry.TotalDistance,
			&entry.CurrentStreak,
			&entry.IsComplete,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entry.Rank = len(entries) + 1
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &challenge.Leaderboard{
		ChallengeID: challengeID,
		Entries:     entries,
		TotalUsers:  total,
	}, nil
}

// ListJoinedActive returns the ids of active challenges the user has joined
// whose window contains runDate. Used by the run-log service fan-out.
func (s *ChallengeService) ListJoinedActive(ctx context.Context, userID uuid.UUID, runDate time.Time) ([]uuid.UUID, error) {
	query := `
	SELECT c.id
	FROM challenges c
	INNER JOIN challenge_progress p ON p.challenge_id = c.id
	WHERE p.user_id = $1
		AND c.is_active
		AND $2::date >= c.start_date
		AND $2::date <= c.end_date
	`
	rows, err := s.db.Query(ctx, query, userID, runDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined challenges: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan challenge id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}
