package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

func newStudentService(t *testing.T) (StudentService, repositories.Repository, *memoryCache) {
	t.Helper()
	repo := testRepo(t)
	cacheSvc := newMemoryCache()
	svc := NewStudentService(repo, cacheSvc, testLogger(), utils.NewValidator())
	return svc, repo, cacheSvc
}

func TestStudentService_CreateAsTeacherJoinsAccessSet(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()
	teacher := repositories.AccessScope{UserID: "t9", Role: models.RoleTeacher}

	student, err := svc.Create(ctx, teacher, CreateStudentRequest{Name: "Zoya Khan", Grade: "LKG"})
	require.NoError(t, err)
	require.NotEmpty(t, student.ID)

	uids, _ := student.UidsFor(models.RoleTeacher)
	assert.Equal(t, []string{"t9"}, uids)
	assert.Equal(t, models.StudentActive, student.Status)

	// Enrollment creates the billing record at the default rate.
	billing, err := repo.Billing().Get(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRate, billing.Rate)
}

func TestStudentService_CreateAsParentIsSelfService(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()

	parent := repositories.AccessScope{UserID: "p7", Role: models.RoleParent}
	require.NoError(t, repo.Users().Upsert(ctx, &models.User{ID: "p7", Name: "Mrs. Khan", Role: models.RoleParent}))

	student, err := svc.Create(ctx, parent, CreateStudentRequest{Name: "Zoya Khan"})
	require.NoError(t, err)

	uids, _ := student.UidsFor(models.RoleParent)
	assert.Equal(t, []string{"p7"}, uids)

	user, err := repo.Users().GetByID(ctx, "p7")
	require.NoError(t, err)
	assert.Contains(t, []string(user.Children), student.ID)
}

func TestStudentService_CreateRejectsRegionalManager(t *testing.T) {
	svc, _, _ := newStudentService(t)

	rm := repositories.AccessScope{UserID: "rm1", Role: models.RoleRegionalManager}
	_, err := svc.Create(context.Background(), rm, CreateStudentRequest{Name: "Zoya Khan"})

	var perm *PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "create", perm.Action)
}

func TestStudentService_CreateValidatesName(t *testing.T) {
	svc, _, _ := newStudentService(t)

	_, err := svc.Create(context.Background(), adminScope(), CreateStudentRequest{Name: "Z"})
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)
}

func TestStudentService_MutationsRejectReadOnlyRoles(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	parent := repositories.AccessScope{UserID: "p1", Role: models.RoleParent}
	present := true
	err := svc.SetAttendance(ctx, parent, id, AttendanceRequest{Date: "2026-08-03", Present: &present})

	var perm *PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "mark attendance", perm.Action)

	rm := repositories.AccessScope{UserID: "rm1", Role: models.RoleRegionalManager}
	err = svc.SetCurriculum(ctx, rm, id, CurriculumRequest{Topic: "SATPIN", Progress: 80})
	assert.ErrorAs(t, err, &perm)
}

func TestStudentService_SetCurriculumClampsAndSetsFocus(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	focus := "Digraphs: sh, ch"
	err := svc.SetCurriculum(ctx, adminScope(), id, CurriculumRequest{Topic: "Digraphs", Progress: 100, Focus: &focus})
	require.NoError(t, err)

	student, err := repo.Students().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, student.CurriculumMap()["Digraphs"])
	assert.Equal(t, focus, student.Focus)
}

func TestStudentService_SetCurriculumRejectsOutOfRangeProgress(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	id := seededStudentID(t, repo)

	err := svc.SetCurriculum(context.Background(), adminScope(), id, CurriculumRequest{Topic: "SATPIN", Progress: 140})
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)
}

func TestStudentService_AttendanceValidatesDate(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	id := seededStudentID(t, repo)

	present := true
	err := svc.SetAttendance(context.Background(), adminScope(), id, AttendanceRequest{Date: "03/08/2026", Present: &present})
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)
}

func TestStudentService_AddResourceAssignsID(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	res, err := svc.AddResource(ctx, adminScope(), id, ResourceRequest{
		Kind:  models.ResourceWorksheet,
		Title: "CVC Blending Sheet",
		URL:   "https://tinystepslearning.com/resources/cvc-blending",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)

	student, err := repo.Students().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, student.Resources.Data().Worksheets, 2)
}

func TestStudentService_DeleteIsAdminOnly(t *testing.T) {
	svc, repo, _ := newStudentService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	teacher := repositories.AccessScope{UserID: "t9", Role: models.RoleTeacher}
	err := svc.Delete(ctx, teacher, id)
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)

	require.NoError(t, svc.Delete(ctx, adminScope(), id))
	_, err = repo.Students().GetByID(ctx, id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	// The billing record goes with the student.
	_, err = repo.Billing().Get(ctx, id)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStudentService_ListCachesUnfilteredResult(t *testing.T) {
	svc, _, cacheSvc := newStudentService(t)
	ctx := context.Background()

	first, err := svc.List(ctx, adminScope(), repositories.StudentFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, first)

	cacheSvc.mu.Lock()
	cached := len(cacheSvc.entries)
	cacheSvc.mu.Unlock()
	assert.Equal(t, 1, cached)

	second, err := svc.List(ctx, adminScope(), repositories.StudentFilters{})
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
}

func TestStudentService_WritesInvalidateListCache(t *testing.T) {
	svc, repo, cacheSvc := newStudentService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	_, err := svc.List(ctx, adminScope(), repositories.StudentFilters{})
	require.NoError(t, err)

	present := true
	require.NoError(t, svc.SetAttendance(ctx, adminScope(), id, AttendanceRequest{Date: "2026-08-03", Present: &present}))

	cacheSvc.mu.Lock()
	remaining := len(cacheSvc.entries)
	cacheSvc.mu.Unlock()
	assert.Zero(t, remaining)
}
