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

func newMappingService(t *testing.T) (MappingService, repositories.Repository) {
	t.Helper()
	repo := testRepo(t)
	return NewMappingService(repo, testLogger(), utils.NewValidator()), repo
}

func TestMappingService_AssignRequiresAdmin(t *testing.T) {
	svc, repo := newMappingService(t)
	id := seededStudentID(t, repo)

	teacher := repositories.AccessScope{UserID: "t_demo", Role: models.RoleTeacher}
	err := svc.Assign(context.Background(), teacher, id, MappingRequest{UserID: "p1", Role: models.RoleParent})

	var perm *PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "assign", perm.Action)
}

func TestMappingService_AssignIsIdempotent(t *testing.T) {
	svc, repo := newMappingService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	req := MappingRequest{UserID: "rm4", Role: models.RoleRegionalManager}
	require.NoError(t, svc.Assign(ctx, adminScope(), id, req))
	require.NoError(t, svc.Assign(ctx, adminScope(), id, req))

	student, err := repo.Students().GetByID(ctx, id)
	require.NoError(t, err)
	uids, _ := student.UidsFor(models.RoleRegionalManager)
	assert.Equal(t, []string{"rm4"}, uids)
}

func TestMappingService_AssignParentLinksChild(t *testing.T) {
	svc, repo := newMappingService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	require.NoError(t, repo.Users().Upsert(ctx, &models.User{ID: "p1", Role: models.RoleParent}))
	require.NoError(t, svc.Assign(ctx, adminScope(), id, MappingRequest{UserID: "p1", Role: models.RoleParent}))

	user, err := repo.Users().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, []string(user.Children), id)
}

func TestMappingService_AdminRoleIsNotMappable(t *testing.T) {
	svc, repo := newMappingService(t)
	id := seededStudentID(t, repo)

	err := svc.Assign(context.Background(), adminScope(), id, MappingRequest{UserID: "a1", Role: models.RoleAdmin})
	var rule *BusinessRuleError
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, "mapping_role", rule.Rule)
}

func TestMappingService_RemoveDropsOnlyTargetUID(t *testing.T) {
	svc, repo := newMappingService(t)
	ctx := context.Background()
	id := seededStudentID(t, repo)

	require.NoError(t, svc.Assign(ctx, adminScope(), id, MappingRequest{UserID: "t2", Role: models.RoleTeacher}))
	require.NoError(t, svc.Remove(ctx, adminScope(), id, MappingRequest{UserID: "t_demo", Role: models.RoleTeacher}))

	student, err := repo.Students().GetByID(ctx, id)
	require.NoError(t, err)
	uids, _ := student.UidsFor(models.RoleTeacher)
	assert.Equal(t, []string{"t2"}, uids)
}

func TestMappingService_UnknownStudent(t *testing.T) {
	svc, _ := newMappingService(t)

	err := svc.Assign(context.Background(), adminScope(), "missing", MappingRequest{UserID: "p1", Role: models.RoleParent})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}
