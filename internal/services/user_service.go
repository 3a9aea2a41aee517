package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type SetRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,user_role"`
}

// UserService manages accounts and role assignment. Role changes flow through
// the identity provider first so the claim and the mirrored record never
// drift apart for longer than one token refresh.
type UserService interface {
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, role *models.UserRole) ([]*models.User, error)
	SetUserRole(ctx context.Context, scope repositories.AccessScope, targetUID string, req SetRoleRequest) error
}

type userService struct {
	repo      repositories.Repository
	provider  identity.Provider
	resolver  *identity.Resolver
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator
	opLog     *ServiceLogger
}

func NewUserService(
	repo repositories.Repository,
	provider identity.Provider,
	resolver *identity.Resolver,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
) UserService {
	return &userService{
		repo:      repo,
		provider:  provider,
		resolver:  resolver,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "dashboard", Component: "users"}),
	}
}

func (s *userService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.Users().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *userService) List(ctx context.Context, role *models.UserRole) ([]*models.User, error) {
	return s.repo.Users().List(ctx, role)
}

func (s *userService) SetUserRole(ctx context.Context, scope repositories.AccessScope, targetUID string, req SetRoleRequest) error {
	start := time.Now()
	err := s.setUserRole(ctx, scope, targetUID, req)
	s.opLog.LogOperation(ctx, "set_user_role", scope.UserID, targetUID, time.Since(start), err)
	return err
}

func (s *userService) setUserRole(ctx context.Context, scope repositories.AccessScope, targetUID string, req SetRoleRequest) error {
	if !scope.IsAdmin() {
		perm := NewPermissionError(scope.UserID, targetUID, "user", "set_role", "admin only")
		s.opLog.LogPermissionDenied(ctx, "set_user_role", perm)
		return perm
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		var ve ValidationErrors
		if errors.As(err, &ve) {
			s.opLog.LogValidationError(ctx, "set_user_role", scope.UserID, ve)
		}
		return err
	}
	if !req.Role.Valid() {
		return ErrInvalidRole
	}

	var previous models.UserRole
	if existing, err := s.repo.Users().GetByID(ctx, targetUID); err == nil {
		previous = existing.Role
	}

	// Claim first: if the provider rejects, nothing changed anywhere.
	if s.provider != nil {
		if err := s.provider.SetRoleClaim(ctx, targetUID, string(req.Role)); err != nil {
			return fmt.Errorf("failed to update role claim: %w", err)
		}
	}

	if err := s.repo.Users().SetRole(ctx, targetUID, req.Role); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Provider knew the account before we mirrored it.
			if err := s.repo.Users().Upsert(ctx, &models.User{ID: targetUID, Role: req.Role}); err != nil {
				return fmt.Errorf("failed to mirror user record: %w", err)
			}
		} else {
			return fmt.Errorf("failed to update user role: %w", err)
		}
	}

	if s.resolver != nil {
		s.resolver.Invalidate(ctx, targetUID)
	}

	event := events.NewRoleAssignedEvent(targetUID, req.Role, previous, scope.UserID)
	if err := s.publisher.PublishAccountEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish role.assigned event",
			"target_uid", targetUID, "role", req.Role, "error", err)
	}
	return nil
}
