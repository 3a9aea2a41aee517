package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

func newUserService(t *testing.T) (UserService, repositories.Repository, *identity.StaticProvider, *events.MockEventPublisher) {
	t.Helper()
	repo := testRepo(t)
	provider := identity.NewStaticProvider("t_demo", "Teacher", string(models.RoleTeacher))
	publisher := events.NewMockEventPublisher(testLogger())
	svc := NewUserService(repo, provider, nil, publisher, testLogger(), utils.NewValidator())
	return svc, repo, provider, publisher
}

func TestUserService_SetUserRoleRequiresAdmin(t *testing.T) {
	svc, _, _, publisher := newUserService(t)

	teacher := repositories.AccessScope{UserID: "t_demo", Role: models.RoleTeacher}
	err := svc.SetUserRole(context.Background(), teacher, "u1", SetRoleRequest{Role: models.RoleAdmin})

	var perm *PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "set_role", perm.Action)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestUserService_SetUserRoleRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newUserService(t)

	err := svc.SetUserRole(context.Background(), adminScope(), "u1", SetRoleRequest{Role: "superuser"})
	var ve ValidationErrors
	assert.ErrorAs(t, err, &ve)
}

func TestUserService_SetUserRoleUpdatesClaimRecordAndPublishes(t *testing.T) {
	svc, repo, provider, publisher := newUserService(t)
	ctx := context.Background()

	require.NoError(t, repo.Users().Upsert(ctx, &models.User{ID: "u1", Name: "Neha", Role: models.RoleParent}))

	err := svc.SetUserRole(ctx, adminScope(), "u1", SetRoleRequest{Role: models.RoleRegionalManager})
	require.NoError(t, err)

	user, err := repo.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRegionalManager, user.Role)

	refreshed, err := provider.RefreshUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, string(models.RoleRegionalManager), refreshed.Claims[identity.ClaimRole])

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventRoleAssigned, published[0].Type)
	data, ok := published[0].Data.(events.RoleAssignedEvent)
	require.True(t, ok)
	assert.Equal(t, "u1", data.UserID)
	assert.Equal(t, models.RoleRegionalManager, data.Role)
	assert.Equal(t, models.RoleParent, data.PreviousRole)
	assert.Equal(t, adminScope().UserID, data.AssignedBy)
}

func TestUserService_SetUserRoleMirrorsUnknownAccount(t *testing.T) {
	svc, repo, _, _ := newUserService(t)
	ctx := context.Background()

	// The provider knows accounts before we do; a role change on an
	// unmirrored uid creates the local record.
	err := svc.SetUserRole(ctx, adminScope(), "fresh-uid", SetRoleRequest{Role: models.RoleTeacher})
	require.NoError(t, err)

	user, err := repo.Users().GetByID(ctx, "fresh-uid")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
}

func TestUserService_GetTranslatesNotFound(t *testing.T) {
	svc, _, _, _ := newUserService(t)

	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_ListFiltersByRole(t *testing.T) {
	svc, repo, _, _ := newUserService(t)
	ctx := context.Background()

	require.NoError(t, repo.Users().Upsert(ctx, &models.User{ID: "p1", Role: models.RoleParent}))
	role := models.RoleParent
	users, err := svc.List(ctx, &role)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "p1", users[0].ID)
}
