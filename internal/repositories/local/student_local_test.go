package local

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

func testRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo, err := New(path, logger)
	require.NoError(t, err)
	return repo, path
}

func reopen(t *testing.T, path string) *Repository {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo, err := New(path, logger)
	require.NoError(t, err)
	return repo
}

func seededStudent(t *testing.T, repo *Repository) *models.Student {
	t.Helper()
	students, err := repo.Students().List(context.Background(), repositories.AccessScope{}, repositories.StudentFilters{})
	require.NoError(t, err)
	require.Len(t, students, 1)
	return students[0]
}

func TestStore_SeedsDemoRoster(t *testing.T) {
	repo, _ := testRepo(t)
	stu := seededStudent(t, repo)

	assert.Equal(t, "Aarav Sharma", stu.Name)
	assert.Equal(t, "UKG", stu.Grade)
	assert.Equal(t, models.StudentActive, stu.Status)
	assert.Equal(t, 70, stu.CurriculumMap()["SATPIN"])
	assert.Contains(t, stu.GamesMap(), "Balloon Pop")
	assert.Len(t, stu.Resources.Data().Stories, 1)
	assert.Len(t, stu.Resources.Data().Worksheets, 1)

	billing, err := repo.Billing().Get(context.Background(), stu.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRate, billing.Rate)
}

func TestStudentLocal_UpdateIsMergeWrite(t *testing.T) {
	repo, _ := testRepo(t)
	stu := seededStudent(t, repo)

	grade := "Grade 1"
	err := repo.Students().Update(context.Background(), stu.ID, repositories.StudentPatch{Grade: &grade})
	require.NoError(t, err)

	after, err := repo.Students().GetByID(context.Background(), stu.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grade 1", after.Grade)
	// Untouched fields survive the patch.
	assert.Equal(t, "Aarav Sharma", after.Name)
	assert.Equal(t, 70, after.CurriculumMap()["SATPIN"])
}

func TestStudentLocal_NilPresentDeletesAttendanceKey(t *testing.T) {
	repo, _ := testRepo(t)
	stu := seededStudent(t, repo)
	ctx := context.Background()

	present := true
	require.NoError(t, repo.Students().SetAttendance(ctx, stu.ID, "2026-08-03", &present))

	after, err := repo.Students().GetByID(ctx, stu.ID)
	require.NoError(t, err)
	assert.True(t, after.AttendanceMap()["2026-08-03"])

	require.NoError(t, repo.Students().SetAttendance(ctx, stu.ID, "2026-08-03", nil))

	after, err = repo.Students().GetByID(ctx, stu.ID)
	require.NoError(t, err)
	_, exists := after.AttendanceMap()["2026-08-03"]
	assert.False(t, exists, "key must be removed, not set to false")
}

func TestStudentLocal_DeletedTopicStaysGoneAfterReload(t *testing.T) {
	repo, path := testRepo(t)
	stu := seededStudent(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.Students().DeleteCurriculumTopic(ctx, stu.ID, "SATPIN"))

	reloaded := reopen(t, path)
	after, err := reloaded.Students().GetByID(ctx, stu.ID)
	require.NoError(t, err)
	_, exists := after.CurriculumMap()["SATPIN"]
	assert.False(t, exists, "deleted topic must not resurface after reload")
	assert.Equal(t, 55, after.CurriculumMap()["CVC (2–3 letters)"])
}

func TestStudentLocal_ClearMonthAttendance(t *testing.T) {
	repo, _ := testRepo(t)
	stu := seededStudent(t, repo)
	ctx := context.Background()

	present := true
	require.NoError(t, repo.Students().SetAttendance(ctx, stu.ID, "2026-08-03", &present))
	require.NoError(t, repo.Students().SetAttendance(ctx, stu.ID, "2026-08-10", &present))
	require.NoError(t, repo.Students().SetAttendance(ctx, stu.ID, "2026-07-01", &present))

	require.NoError(t, repo.Students().ClearMonthAttendance(ctx, stu.ID, "2026-08"))

	after, err := repo.Students().GetByID(ctx, stu.ID)
	require.NoError(t, err)
	m := after.AttendanceMap()
	assert.Len(t, m, 1)
	assert.True(t, m["2026-07-01"])
}

func TestStudentLocal_FiltersApply(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Students().Create(ctx, &models.Student{
		ID: "stu2", Name: "Zoya Khan", Grade: "LKG", Status: models.StudentPaused,
	}))

	out, err := repo.Students().List(ctx, repositories.AccessScope{}, repositories.StudentFilters{Grade: "LKG"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Zoya Khan", out[0].Name)

	out, err = repo.Students().List(ctx, repositories.AccessScope{}, repositories.StudentFilters{Search: "aarav"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Aarav Sharma", out[0].Name)

	out, err = repo.Students().List(ctx, repositories.AccessScope{}, repositories.StudentFilters{
		Status: []models.StudentStatus{models.StudentPaused},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "stu2", out[0].ID)
}

func TestStudentLocal_DeleteRemovesRecord(t *testing.T) {
	repo, path := testRepo(t)
	stu := seededStudent(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.Students().Delete(ctx, stu.ID))

	_, err := repo.Students().GetByID(ctx, stu.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	reloaded := reopen(t, path)
	_, err = reloaded.Students().GetByID(ctx, stu.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStudentLocal_SetUidsReplacesSet(t *testing.T) {
	repo, _ := testRepo(t)
	stu := seededStudent(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.Students().SetUids(ctx, stu.ID, models.RoleParent, []string{"p1", "p2"}))

	after, err := repo.Students().GetByID(ctx, stu.ID)
	require.NoError(t, err)
	uids, ok := after.UidsFor(models.RoleParent)
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p2"}, uids)
}
