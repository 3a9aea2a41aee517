package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

func TestProvisioningService_StampsDefaultRoleAndMirrors(t *testing.T) {
	repo := testRepo(t)
	provider := identity.NewStaticProvider("u-new", "New Parent", "")
	svc := NewProvisioningService(repo, provider, testLogger())
	ctx := context.Background()

	err := svc.HandleUserCreated(ctx, events.UserCreatedEvent{
		UserID: "u-new",
		Name:   "New Parent",
		Email:  "parent@example.com",
	})
	require.NoError(t, err)

	user, err := repo.Users().GetByID(ctx, "u-new")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRole, user.Role)
	assert.Equal(t, "parent@example.com", user.Email)

	refreshed, err := provider.RefreshUser(ctx, "u-new")
	require.NoError(t, err)
	assert.Equal(t, string(models.DefaultRole), refreshed.Claims[identity.ClaimRole])
}

func TestProvisioningService_DropsEventsWithoutUID(t *testing.T) {
	repo := testRepo(t)
	svc := NewProvisioningService(repo, nil, testLogger())

	err := svc.HandleUserCreated(context.Background(), events.UserCreatedEvent{Name: "No UID"})
	require.NoError(t, err)

	users, err := repo.Users().List(context.Background(), nil)
	require.NoError(t, err)
	// Only the seeded demo teacher exists.
	assert.Len(t, users, 1)
}
