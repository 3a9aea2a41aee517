package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

// ProvisioningService reacts to new sign-ups: every fresh account gets the
// default parent role stamped on its claim and a mirrored user record, so
// the guard never sees a role-less identity.
type ProvisioningService interface {
	events.AccountHandler
}

type provisioningService struct {
	repo     repositories.Repository
	provider identity.Provider
	logger   *slog.Logger
	opLog    *ServiceLogger
}

func NewProvisioningService(repo repositories.Repository, provider identity.Provider, logger *slog.Logger) ProvisioningService {
	return &provisioningService{
		repo:     repo,
		provider: provider,
		logger:   logger,
		opLog:    NewServiceLogger(logger, LogConfig{Service: "dashboard", Component: "provisioning"}),
	}
}

func (s *provisioningService) HandleUserCreated(ctx context.Context, event events.UserCreatedEvent) error {
	start := time.Now()
	err := s.provision(ctx, event)
	s.opLog.LogOperation(ctx, "provision_user", event.UserID, "", time.Since(start), err)
	return err
}

func (s *provisioningService) provision(ctx context.Context, event events.UserCreatedEvent) error {
	if event.UserID == "" {
		s.logger.Warn("Dropping user.created event without a uid")
		return nil
	}

	if s.provider != nil {
		if err := s.provider.SetRoleClaim(ctx, event.UserID, string(models.DefaultRole)); err != nil {
			// Retryable: the record mirror below has not happened yet either.
			return fmt.Errorf("failed to stamp default role claim: %w", err)
		}
	}

	user := &models.User{
		ID:    event.UserID,
		Name:  event.Name,
		Email: event.Email,
		Role:  models.DefaultRole,
	}
	if err := s.repo.Users().Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to mirror user record: %w", err)
	}

	s.logger.Info("Provisioned new account", "uid", event.UserID, "role", models.DefaultRole)
	return nil
}
