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
	"github.com/jackc/pgx/v5/pgxpool"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/runlog"
	"runCrewAPI/utils"
)

type RunLogService struct {
	db               *pgxpool.Pool
	challengeService *ChallengeService
}

func NewRunLogService(db *pgxpool.Pool, challengeService *ChallengeService) *RunLogService {
	return &RunLogService{db: db, challengeService: challengeService}
}

// LogRun records an individual run and fans it out to every active joined
// challenge whose window contains the run date. The fan-out happens after
// the log commits; a challenge update failure never unwinds the log.
func (s *RunLogService) LogRun(ctx context.Context, userID uuid.UUID, req *runlog.LogRunRequest) (*runlog.RunLog, error) {
	if req.DistanceKm <= 0 {
		return nil, apperr.BadRequest("distance must be positive")
	}
	if req.RunDate.IsZero() {
		return nil, apperr.BadRequest("run date is required")
	}
	if req.RunDate.After(time.Now().AddDate(0, 0, 1)) {
		return nil, apperr.BadRequest("run date cannot be in the future")
	}
	if req.ShoeID != nil {
		if _, err := s.GetShoe(ctx, *req.ShoeID, userID); err != nil {
			return nil, err
		}
	}

	entry := &runlog.RunLog{
		ID:          uuid.New(),
		UserID:      userID,
		ShoeID:      req.ShoeID,
		RunDate:     req.RunDate,
		DistanceKm:  req.DistanceKm,
		DurationSec: req.DurationSec,
	}

	query := `
	INSERT INTO run_logs (id, user_id, shoe_id, run_date, distance_km, duration_sec, notes, logged_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW())
	RETURNING notes, logged_at
	`
	err := s.db.QueryRow(ctx, query,
		entry.ID, userID, req.ShoeID, req.RunDate, req.DistanceKm, req.DurationSec, req.Notes,
	).Scan(&entry.Notes, &entry.LoggedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to log run: %w", err)
	}

	entry.Pace = utils.FormatPace(entry.DistanceKm, entry.DurationSec)

	challengeIDs, err := s.challengeService.ListJoinedActive(ctx, userID, req.RunDate)
	if err != nil {
		log.Printf("LogRun: failed to list challenges for %s: %v", userID, err)
		return entry, nil
	}
	for _, challengeID := range challengeIDs {
		if err := s.challengeService.RecordRun(ctx, challengeID, userID, req.RunDate, req.DistanceKm); err != nil {
			log.Printf("LogRun: failed to update challenge %s for %s: %v", challengeID, userID, err)
		}
	}

	return entry, nil
}

func (s *RunLogService) ListRuns(ctx context.Context, userID uuid.UUID, limit int) ([]*runlog.RunLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
	SELECT id, user_id, shoe_id, run_date, distance_km, duration_sec, notes, logged_at
	FROM run_logs
	WHERE user_id = $1
	ORDER BY run_date DESC, logged_at DESC
	LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	logs := []*runlog.RunLog{}
	for rows.Next() {
		entry := &runlog.RunLog{}
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.ShoeID,
			&entry.RunDate,
			&entry.DistanceKm,
			&entry.DurationSec,
			&entry.Notes,
			&entry.LoggedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		entry.Pace = utils.FormatPace(entry.DistanceKm, entry.DurationSec)
		logs = append(logs, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return logs, nil
}

func (s *RunLogService) DeleteRun(ctx context.Context, logID, requesterID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM run_logs WHERE id = $1 AND user_id = $2`, logID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to delete run log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("run log %s does not exist", logID)
	}
	return nil
}

// GetStats aggregates the user's run logs over a period ("week", "month",
// "year"). Always recomputed from rows.
func (s *RunLogService) GetStats(ctx context.Context, userID uuid.UUID, period string) (*runlog.DaysStat, error) {
	var trunc string
	var totalDays int
	switch strings.ToLower(period) {
	case "week":
		trunc, totalDays = "week", 7
	case "month":
		trunc, totalDays = "month", 31
	case "year":
		trunc, totalDays = "year", 365
	default:
		return nil, apperr.BadRequest("invalid period %q", period)
	}

	query := fmt.Sprintf(`
	SELECT COUNT(DISTINCT run_date), COALESCE(SUM(distance_km), 0)
	FROM run_logs
	WHERE user_id = $1
		AND run_date >= DATE_TRUNC('%s', CURRENT_DATE)
		AND run_date <= CURRENT_DATE
	`, trunc)

	stat := &runlog.DaysStat{Period: period, TotalDays: totalDays}
	err := s.db.QueryRow(ctx, query, userID).Scan(&stat.DaysRun, &stat.DistanceKm)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s stats: %w", period, err)
	}
	return stat, nil
}

func (s *RunLogService) CreateShoe(ctx context.Context, userID uuid.UUID, name, brand string) (*runlog.Shoe, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("shoe name is required")
	}

	shoe := &runlog.Shoe{
		ID:     uuid.New(),
		UserID: userID,
		Name:   name,
	}

	query := `
	INSERT INTO shoes (id, user_id, name, brand, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
	RETURNING brand, created_at
	`
	err := s.db.QueryRow(ctx, query, shoe.ID, userID, name, brand).Scan(&shoe.Brand, &shoe.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create shoe: %w", err)
	}
	return shoe, nil
}

// GetShoe returns the shoe with its mileage summed from run logs.
func (s *RunLogService) GetShoe(ctx context.Context, shoeID, requesterID uuid.UUID) (*runlog.Shoe, error) {
	shoe := &runlog.Shoe{}
	query := `
	SELECT s.id, s.user_id, s.name, s.brand, s.retired, s.created_at,
		COALESCE((SELECT SUM(r.distance_km) FROM run_logs r WHERE r.shoe_id = s.id), 0) AS mileage_km
	FROM shoes s
	WHERE s.id = $1
	`
	err := s.db.QueryRow(ctx, query, shoeID).Scan(
		&shoe.ID,
		&shoe.UserID,
		&shoe.Name,
		&shoe.Brand,
		&shoe.Retired,
		&shoe.CreatedAt,
		&shoe.MileageKm,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("shoe %s does not exist", shoeID)
		}
		return nil, fmt.Errorf("failed to get shoe: %w", err)
	}
	if shoe.UserID != requesterID {
		return nil, apperr.Forbidden("not your shoe")
	}
	return shoe, nil
}

func (s *RunLogService) ListShoes(ctx context.Context, userID uuid.UUID) ([]*runlog.Shoe, error) {
	query := `
	SELECT s.id, s.user_id, s.name, s.brand, s.retired, s.created_at,
		COALESCE((SELECT SUM(r.distance_km) FROM run_logs r WHERE r.shoe_id = s.id), 0) AS mileage_km
	FROM shoes s
	WHERE s.user_id = $1
	ORDER BY s.created_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shoes: %w", err)
	}
	defer rows.Close()

	shoes := []*runlog.Shoe{}
	for rows.Next() {
		shoe := &runlog.Shoe{}
		err := rows.Scan(
			&shoe.ID,
			&shoe.UserID,
			&shoe.Name,
			&shoe.Brand,
			&shoe.Retired,
			&shoe.CreatedAt,
			&shoe.MileageKm,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shoe: %w", err)
		}
		shoes = append(shoes, shoe)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return shoes, nil
}

func (s *RunLogService) RetireShoe(ctx context.Context, shoeID, requesterID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `UPDATE shoes SET retired = TRUE WHERE id = $1 AND user_id = $2`, shoeID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to retire shoe: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("shoe %s does not exist", shoeID)
	}
	return nil
}
