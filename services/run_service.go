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
	"runCrewAPI/internal/types/run"
)

type RunService struct {
	db                  *pgxpool.Pool
	groupService        *GroupService
	notificationService *NotificationService
}

func NewRunService(db *pgxpool.Pool, groupService *GroupService, notificationService *NotificationService) *RunService {
	return &RunService{db: db, groupService: groupService, notificationService: notificationService}
}

// CreateRun schedules a group run. Only the group owner can schedule;
// after creation, mutation is gated on authorship instead.
func (s *RunService) CreateRun(ctx context.Context, groupID, authorID uuid.UUID, req *run.CreateRunRequest) (*run.ScheduledRun, error) {
	g, err := s.groupService.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != authorID {
		return nil, apperr.Forbidden("only the group owner can schedule runs")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.BadRequest("title is required")
	}

	r := &run.ScheduledRun{
		ID:       uuid.New(),
		GroupID:  groupID,
		AuthorID: authorID,
		Title:    strings.TrimSpace(req.Title),
		RunAt:    req.RunAt,
	}

	query := `
	INSERT INTO scheduled_runs (id, group_id, author_id, title, description, run_at, location, pace, distance_km, created_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9, NOW())
	RETURNING description, location, pace, distance_km, created_at
	`
	err = s.db.QueryRow(ctx, query,
		r.ID, groupID, authorID, r.Title, req.Description, req.RunAt, req.Location, req.Pace, req.DistanceKm,
	).Scan(&r.Description, &r.Location, &r.Pace, &r.DistanceKm, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled run: %w", err)
	}

	r.ComputeDerived(time.Now())

	if s.notificationService != nil {
		s.notificationService.NotifyRunScheduled(ctx, g, r)
	}

	log.Printf("CreateRun: %s scheduled in group %s", r.ID, groupID)
	return r, nil
}

func (s *RunService) GetRun(ctx context.Context, runID uuid.UUID) (*run.ScheduledRun, error) {
	r := &run.ScheduledRun{}
	query := `
	SELECT id, group_id, author_id, title, description, run_at, location, pace, distance_km, created_at, updated_at
	FROM scheduled_runs
	WHERE id = $1
	`
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&r.ID,
		&r.GroupID,
		&r.AuthorID,
		&r.Title,
		&r.Description,
		&r.RunAt,
		&r.Location,
		&r.Pace,
		&r.DistanceKm,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("scheduled run %s does not exist", runID)
		}
		return nil, fmt.Errorf("failed to get scheduled run: %w", err)
	}
	r.ComputeDerived(time.Now())
	return r, nil
}

func (s *RunService) ListGroupRuns(ctx context.Context, groupID, requesterID uuid.UUID) ([]*run.ScheduledRun, error) {
	isMember, err := s.groupService.IsMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("must be a member to view group runs")
	}

	query := `
	SELECT id, group_id, author_id, title, description, run_at, location, pace, distance_km, created_at, updated_at
	FROM scheduled_runs
	WHERE group_id = $1
	ORDER BY run_at ASC NULLS LAST, created_at DESC
	`
	rows, err := s.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled runs: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	runs := []*run.ScheduledRun{}
	for rows.Next() {
		r := &run.ScheduledRun{}
		err := rows.Scan(
			&r.ID,
			&r.GroupID,
			&r.AuthorID,
			&r.Title,
			&r.Description,
			&r.RunAt,
			&r.Location,
			&r.Pace,
			&r.DistanceKm,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled run: %w", err)
		}
		r.ComputeDerived(now)
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

// UpdateRun: authorship gates mutation, not group ownership.
func (s *RunService) UpdateRun(ctx context.Context, runID, requesterID uuid.UUID, req *run.CreateRunRequest) (*run.ScheduledRun, error) {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.AuthorID != requesterID {
		return nil, apperr.Forbidden("only the run author can edit this run")
	}

	query := `
	UPDATE scheduled_runs
	SET
		title = COALESCE(NULLIF($2, ''), title),
		description = COALESCE(NULLIF($3, ''), description),
		run_at = COALESCE($4, run_at),
		location = COALESCE(NULLIF($5, ''), location),
		pace = COALESCE(NULLIF($6, ''), pace),
		distance_km = COALESCE($7, distance_km),
		updated_at = NOW()
	WHERE id = $1
	RETURNING title, description, run_at, location, pace, distance_km, updated_at
	`
	err = s.db.QueryRow(ctx, query, runID, req.Title, req.Description, req.RunAt, req.Location, req.Pace, req.DistanceKm).
		Scan(&r.Title, &r.Description, &r.RunAt, &r.Location, &r.Pace, &r.DistanceKm, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update scheduled run: %w", err)
	}
	r.ComputeDerived(time.Now())
	return r, nil
}

// DeleteRun cascades to the run's attendance rows.
func (s *RunService) DeleteRun(ctx context.Context, runID, requesterID uuid.UUID) error {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if r.AuthorID != requesterID {
		return apperr.Forbidden("only the run author can delete this run")
	}

	_, err = s.db.Exec(ctx, `DELETE FROM scheduled_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled run: %w", err)
	}
	return nil
}

// SetAttendance upserts the caller's RSVP for a run. One row per
// (run_id, user_id) is guaranteed by the unique constraint; re-submitting
// updates status/notes in place and bumps updated_at.
func (s *RunService) SetAttendance(ctx context.Context, runID, userID uuid.UUID, rawStatus, notes string) (*run.Attendance, error) {
	status, err := run.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.groupService.IsMember(ctx, r.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("must be a member to attend")
	}

	a := &run.Attendance{
		RunID:  runID,
		UserID: userID,
		Status: status,
	}

	query := `
	INSERT INTO run_attendance (id, run_id, user_id, status, notes, created_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
	ON CONFLICT (run_id, user_id)
	DO UPDATE SET
		status = $4,
		notes = NULLIF($5, ''),
		updated_at = NOW()
	RETURNING id, notes, created_at, updated_at
	`
	err = s.db.QueryRow(ctx, query, uuid.New(), runID, userID, status, notes).
		Scan(&a.ID, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set attendance: %w", err)
	}
	return a, nil
}

// SummarizeAttendance groups the run's attendance rows by status. The three
// counts always sum to the total row count for the run.
func (s *RunService) SummarizeAttendance(ctx context.Context, runID uuid.UUID) (*run.AttendanceSummary, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := `
	SELECT status, COUNT(*)
	FROM run_attendance
	WHERE run_id = $1
	GROUP BY status
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attendance: %w", err)
	}
	defer rows.Close()

	summary := &run.AttendanceSummary{}
	for rows.Next() {
		var status run.AttendanceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		switch status {
		case run.StatusGoing:
			summary.Going = count
		case run.StatusMaybe:
			summary.Maybe = count
		case run.StatusNotGoing:
			summary.NotGoing = count
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return summary, nil
}

func (s *RunService) ListAttendance(ctx context.Context, runID, requesterID uuid.UUID) ([]*run.Attendance, error) {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.groupService.IsMember(ctx, r.GroupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("must be a member to view attendance")
	}

	query := `
	SELECT id, run_id, user_id, status, notes, created_at, updated_at
	FROM run_attendance
	WHERE run_id = $1
	ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	attendance := []*run.Attendance{}
	for rows.Next() {
		a := &run.Attendance{}
		err := rows.Scan(&a.ID, &a.RunID, &a.UserID, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		attendance = append(attendance, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return attendance, nil
}

// DeleteAttendance is self-service only; there is no owner override.
func (s *RunService) DeleteAttendance(ctx context.Context, attendanceID, requesterID uuid.UUID) error {
	var ownerUserID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT user_id FROM run_attendance WHERE id = $1`, attendanceID).Scan(&ownerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("attendance %s does not exist", attendanceID)
		}
		return fmt.Errorf("failed to look up attendance: %w", err)
	}
	if ownerUserID != requesterID {
		return apperr.Forbidden("can only remove your own attendance")
	}

	_, err = s.db.Exec(ctx, `DELETE FROM run_attendance WHERE id = $1`, attendanceID)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	return nil
}
