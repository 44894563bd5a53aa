// Integration tests against a real database. They run only when
// TEST_DATABASE_URL points at a database with the schema from
// migrations/schema.sql applied; otherwise each test skips.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runCrewAPI/internal/apperr"
	"runCrewAPI/internal/types/challenge"
	"runCrewAPI/internal/types/group"
	"runCrewAPI/internal/types/run"
	"runCrewAPI/internal/types/user"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)
	return pool
}

func createTestUser(t *testing.T, svc *UserService) *user.User {
	t.Helper()

	u, err := svc.Register(context.Background(), &user.RegisterRequest{
		Email:       fmt.Sprintf("%s@test.local", uuid.NewString()),
		Password:    "correct-horse-battery",
		DisplayName: "Test Runner",
	})
	require.NoError(t, err)
	return u
}

func createTestGroup(t *testing.T, svc *GroupService, ownerID uuid.UUID) *group.Group {
	t.Helper()

	g, err := svc.CreateGroup(context.Background(), ownerID, &group.CreateGroupRequest{
		Name: "Morning Crew " + uuid.NewString()[:8],
	})
	require.NoError(t, err)
	return g
}

func TestGroupMembership(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	notifications := NewNotificationService(pool)
	defer notifications.Stop()
	users := NewUserService(pool)
	groups := NewGroupService(pool, notifications)

	owner := createTestUser(t, users)
	member := createTestUser(t, users)
	g := createTestGroup(t, groups, owner.ID)

	// Owner is a member without a membership row.
	isMember, err := groups.IsMember(ctx, g.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	_, err = groups.JoinGroup(ctx, g.ID, member.ID)
	require.NoError(t, err)

	// Second join is rejected by the unique constraint.
	_, err = groups.JoinGroup(ctx, g.ID, member.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// Owner joining their own group is a conflict as well.
	_, err = groups.JoinGroup(ctx, g.ID, owner.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	loaded, err := groups.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.MemberCount)

	// Owner cannot leave, everyone else can.
	err = groups.LeaveGroup(ctx, g.ID, owner.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	require.NoError(t, groups.LeaveGroup(ctx, g.ID, member.ID))
	err = groups.LeaveGroup(ctx, g.ID, member.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAttendanceUpsert(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	notifications := NewNotificationService(pool)
	defer notifications.Stop()
	users := NewUserService(pool)
	groups := NewGroupService(pool, notifications)
	runs := NewRunService(pool, groups, notifications)

	owner := createTestUser(t, users)
	member := createTestUser(t, users)
	outsider := createTestUser(t, users)
	g := createTestGroup(t, groups, owner.ID)

	_, err := groups.JoinGroup(ctx, g.ID, member.ID)
	require.NoError(t, err)

	runAt := time.Now().AddDate(0, 0, 7)
	scheduled, err := runs.CreateRun(ctx, g.ID, owner.ID, &run.CreateRunRequest{
		Title: "Sunday long run",
		RunAt: &runAt,
	})
	require.NoError(t, err)

	// Non-members cannot respond.
	_, err = runs.SetAttendance(ctx, scheduled.ID, outsider.ID, "going", "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	// Repeated responses overwrite, they never stack.
	_, err = runs.SetAttendance(ctx, scheduled.ID, member.ID, "going", "")
	require.NoError(t, err)
	a, err := runs.SetAttendance(ctx, scheduled.ID, member.ID, "maybe", "depends on weather")
	require.NoError(t, err)
	assert.Equal(t, run.StatusMaybe, a.Status)

	_, err = runs.SetAttendance(ctx, scheduled.ID, owner.ID, "going", "")
	require.NoError(t, err)

	summary, err := runs.SummarizeAttendance(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Going)
	assert.Equal(t, 1, summary.Maybe)
	assert.Equal(t, 0, summary.NotGoing)
	assert.Equal(t, 2, summary.Total())

	// Only the respondent can remove their own response.
	err = runs.DeleteAttendance(ctx, a.ID, owner.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	require.NoError(t, runs.DeleteAttendance(ctx, a.ID, member.ID))
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func TestCascadeDeletes(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	notifications := NewNotificationService(pool)
	defer notifications.Stop()
	users := NewUserService(pool)
	groups := NewGroupService(pool, notifications)
	runs := NewRunService(pool, groups, notifications)

	owner := createTestUser(t, users)
	member := createTestUser(t, users)
	g := createTestGroup(t, groups, owner.ID)

	_, err := groups.JoinGroup(ctx, g.ID, member.ID)
	require.NoError(t, err)

	runAt := time.Now().AddDate(0, 0, 5)
	first, err := runs.CreateRun(ctx, g.ID, owner.ID, &run.CreateRunRequest{Title: "Tempo Tuesday", RunAt: &runAt})
	require.NoError(t, err)

	_, err = runs.SetAttendance(ctx, first.ID, owner.ID, "going", "")
	require.NoError(t, err)
	_, err = runs.SetAttendance(ctx, first.ID, member.ID, "maybe", "")
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, pool, `SELECT COUNT(*) FROM run_attendance WHERE run_id = $1`, first.ID))

	// Deleting a run takes its attendance rows with it.
	require.NoError(t, runs.DeleteRun(ctx, first.ID, owner.ID))
	assert.Equal(t, 0, countRows(t, pool, `SELECT COUNT(*) FROM run_attendance WHERE run_id = $1`, first.ID))

	// Deleting the group takes memberships, remaining runs, and their
	// attendance rows with it.
	second, err := runs.CreateRun(ctx, g.ID, owner.ID, &run.CreateRunRequest{Title: "Sunday long run", RunAt: &runAt})
	require.NoError(t, err)
	_, err = runs.SetAttendance(ctx, second.ID, member.ID, "going", "")
	require.NoError(t, err)

	require.NoError(t, groups.DeleteGroup(ctx, g.ID, owner.ID))

	assert.Equal(t, 0, countRows(t, pool, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, g.ID))
	assert.Equal(t, 0, countRows(t, pool, `SELECT COUNT(*) FROM scheduled_runs WHERE group_id = $1`, g.ID))
	assert.Equal(t, 0, countRows(t, pool, `SELECT COUNT(*) FROM run_attendance WHERE run_id = $1`, second.ID))

	_, err = groups.GetGroup(ctx, g.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	// The responding users survive their rows.
	_, err = users.GetByID(ctx, member.ID)
	assert.NoError(t, err)
}

func TestChallengeJoinAndLeaderboard(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	notifications := NewNotificationService(pool)
	defer notifications.Stop()
	users := NewUserService(pool)
	challenges := NewChallengeService(pool, notifications)

	creator := createTestUser(t, users)
	second := createTestUser(t, users)
	third := createTestUser(t, users)

	start := time.Now().AddDate(0, 0, -3)
	end := time.Now().AddDate(0, 0, 7)
	c, err := challenges.CreateChallenge(ctx, creator.ID, &challenge.CreateChallengeRequest{
		Title:          "Spring 100k",
		Type:           challenge.TypeTotalDistance,
		RequiredPerDay: 10,
		StartDate:      start,
		EndDate:        end,
		IsPublic:       true,
	})
	require.NoError(t, err)

	for _, id := range []uuid.UUID{creator.ID, second.ID, third.ID} {
		_, err := challenges.JoinChallenge(ctx, c.ID, id)
		require.NoError(t, err)
	}

	// Double join is rejected.
	_, err = challenges.JoinChallenge(ctx, c.ID, creator.ID)
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)

	// creator: 10km with a 2-day streak; second: 10km in one day; third: 5km.
	require.NoError(t, challenges.RecordRun(ctx, c.ID, creator.ID, yesterday, 4))
	require.NoError(t, challenges.RecordRun(ctx, c.ID, creator.ID, today, 6))
	require.NoError(t, challenges.RecordRun(ctx, c.ID, second.ID, today, 10))
	require.NoError(t, challenges.RecordRun(ctx, c.ID, third.ID, today, 5))

	lb, err := challenges.Leaderboard(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 3)

	// Distance first, streak breaks the tie.
	assert.Equal(t, creator.ID, lb.Entries[0].UserID)
	assert.Equal(t, second.ID, lb.Entries[1].UserID)
	assert.Equal(t, third.ID, lb.Entries[2].UserID)
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, 3, lb.Entries[2].Rank)

	// Runs outside the window are ignored, not an error.
	require.NoError(t, challenges.RecordRun(ctx, c.ID, creator.ID, start.AddDate(0, 0, -2), 5))
	p, err := challenges.GetProgress(ctx, c.ID, creator.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, p.TotalDistance, 1e-9)

	require.NoError(t, challenges.LeaveChallenge(ctx, c.ID, third.ID))
	err = challenges.LeaveChallenge(ctx, c.ID, third.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUserAuth(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	t.Setenv("JWT_SECRET", "integration-test-secret")

	users := NewUserService(pool)

	email := fmt.Sprintf("%s@test.local", uuid.NewString())
	_, err := users.Register(ctx, &user.RegisterRequest{
		Email:       email,
		Password:    "first-password",
		DisplayName: "Auth Tester",
	})
	require.NoError(t, err)

	// Same email cannot register twice.
	_, err = users.Register(ctx, &user.RegisterRequest{
		Email:       email,
		Password:    "other-password",
		DisplayName: "Imposter",
	})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	auth, err := users.Login(ctx, &user.LoginRequest{Email: email, Password: "first-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, auth.Token)

	_, err = users.Login(ctx, &user.LoginRequest{Email: email, Password: "wrong"})
	assert.Error(t, err)

	// Change password requires the current one.
	err = users.ChangePassword(ctx, auth.User.ID, &user.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "second-password",
	})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	err = users.ChangePassword(ctx, auth.User.ID, &user.ChangePasswordRequest{
		CurrentPassword: "first-password",
		NewPassword:     "second-password",
	})
	require.NoError(t, err)

	_, err = users.Login(ctx, &user.LoginRequest{Email: email, Password: "second-password"})
	assert.NoError(t, err)
}
