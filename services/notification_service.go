package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/group"
	"runCrewAPI/internal/types/notification"
	"runCrewAPI/internal/types/run"

	challengetype "runCrewAPI/internal/types/challenge"
)

// PushProvider abstracts the push channel so tests and local runs work
// without FCM credentials.
type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushProvider
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{
		db:       db,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
	}
	s.startWorkers(5)
	return s
}

// SetPushProvider injects the real FCM provider from main.go.
func (s *NotificationService) SetPushProvider(provider PushProvider) {
	s.pushProvider = provider
}

func (s *NotificationService) startWorkers(n int) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case notif := <-s.jobQueue:
			s.dispatch(notif)
		case <-s.stopChan:
			return
		}
	}
}

func (s *NotificationService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *NotificationService) dispatch(notif *notification.Notification) {
	if s.pushProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := s.DeviceTokens(ctx, notif.UserID)
	if err != nil {
		log.Printf("dispatch: failed to load device tokens for %s: %v", notif.UserID, err)
		return
	}
	if err := s.pushProvider.SendPush(ctx, tokens, notif.Title, notif.Body, notif.Data); err != nil {
		log.Printf("dispatch: push failed for %s: %v", notif.UserID, err)
	}
}

// Create persists the notification row and queues the push. Push delivery is
// best-effort after commit; a full queue drops the push, never the row.
func (s *NotificationService) Create(ctx context.Context, req *notification.CreateRequest) (*notification.Notification, error) {
	notif := &notification.Notification{
		ID:     uuid.New(),
		UserID: req.UserID,
		Kind:   req.Kind,
		Title:  req.Title,
		Body:   req.Body,
		Data:   req.Data,
	}

	query := `
	INSERT INTO notifications (id, user_id, kind, title, body, data, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query, notif.ID, notif.UserID, notif.Kind, notif.Title, notif.Body, notif.Data).
		Scan(&notif.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	select {
	case s.jobQueue <- notif:
	default:
		log.Printf("Create: job queue full, skipping push for %s", notif.ID)
	}
	return notif, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
	SELECT id, user_id, kind, title, body, data, is_read, created_at
	FROM notifications
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*notification.Notification{}
	for rows.Next() {
		n := &notification.Notification{}
		err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.Data, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("notification %s does not exist", notificationID)
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID uuid.UUID, req *notification.RegisterDeviceRequest) error {
	if req.Token == "" {
		return apperr.BadRequest("device token is required")
	}
	platform := req.Platform
	if platform == "" {
		platform = "android"
	}

	query := `
	INSERT INTO device_tokens (id, user_id, token, platform, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (token)
	DO UPDATE SET user_id = $2, platform = $4
	`
	_, err := s.db.Exec(ctx, query, uuid.New(), userID, req.Token, platform)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("failed to register device (%s): %w", pgErr.Code, err)
		}
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) DeviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_id, token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device tokens: %w", err)
	}
	defer rows.Close()

	tokens := []notification.DeviceToken{}
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tokens, nil
}

// NotifyRunScheduled fans a run announcement out to every group member
// except the author. Failures are logged, never surfaced to the scheduler.
func (s *NotificationService) NotifyRunScheduled(ctx context.Context, g *group.Group, r *run.ScheduledRun) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM group_members WHERE group_id = $1 AND user_id != $2`, g.ID, r.AuthorID)
	if err != nil {
		log.Printf("NotifyRunScheduled: failed to list members: %v", err)
		return
	}
	defer rows.Close()

	memberIDs := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			log.Printf("NotifyRunScheduled: scan error: %v", err)
			return
		}
		memberIDs = append(memberIDs, id)
	}

	for _, memberID := range memberIDs {
		_, err := s.Create(ctx, &notification.CreateRequest{
			UserID: memberID,
			Kind:   notification.KindRunScheduled,
			Title:  g.Name,
			Body:   fmt.Sprintf("New group run: %s", r.Title),
			Data:   map[string]any{"group_id": g.ID.String(), "run_id": r.ID.String()},
		})
		if err != nil {
			log.Printf("NotifyRunScheduled: failed for %s: %v", memberID, err)
		}
	}
}

func (s *NotificationService) NotifyChallengeComplete(c *challengetype.Challenge, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.Create(ctx, &notification.CreateRequest{
		UserID: userID,
		Kind:   notification.KindChallengeComplete,
		Title:  "Challenge complete!",
		Body:   fmt.Sprintf("You finished %q", c.Title),
		Data:   map[string]any{"challenge_id": c.ID.String()},
	})
	if err != nil {
		log.Printf("NotifyChallengeComplete: failed for %s: %v", userID, err)
	}
}

func (s *NotificationService) NotifyMemberJoined(g *group.Group, joinedUserID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var displayName string
	if err := s.db.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, joinedUserID).Scan(&displayName); err != nil {
		log.Printf("NotifyMemberJoined: failed to load user: %v", err)
		return
	}

	_, err := s.Create(ctx, &notification.CreateRequest{
		UserID: g.OwnerID,
		Kind:   notification.KindGroupMemberJoined,
		Title:  g.Name,
		Body:   fmt.Sprintf("%s joined your group", displayName),
		Data:   map[string]any{"group_id": g.ID.String(), "user_id": joinedUserID.String()},
	})
	if err != nil {
		log.Printf("NotifyMemberJoined: failed for owner %s: %v", g.OwnerID, err)
	}
}
