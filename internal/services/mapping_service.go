package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type MappingRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Role   models.UserRole `json:"role" validate:"required,user_role"`
}

// MappingService edits the per-student access sets that drive dashboard
// visibility. Admin only: these sets are the authorization data itself.
type MappingService interface {
	Assign(ctx context.Context, scope repositories.AccessScope, studentID string, req MappingRequest) error
	Remove(ctx context.Context, scope repositories.AccessScope, studentID string, req MappingRequest) error
}

type mappingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *utils.Validator
	opLog     *ServiceLogger
}

func NewMappingService(repo repositories.Repository, logger *slog.Logger, validator *utils.Validator) MappingService {
	return &mappingService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "dashboard", Component: "mapping"}),
	}
}

func (s *mappingService) Assign(ctx context.Context, scope repositories.AccessScope, studentID string, req MappingRequest) error {
	start := time.Now()
	err := s.edit(ctx, scope, studentID, req, "assign", addUID)
	s.opLog.LogOperation(ctx, "assign_mapping", scope.UserID, studentID, time.Since(start), err)
	return err
}

func (s *mappingService) Remove(ctx context.Context, scope repositories.AccessScope, studentID string, req MappingRequest) error {
	start := time.Now()
	err := s.edit(ctx, scope, studentID, req, "remove", removeUID)
	s.opLog.LogOperation(ctx, "remove_mapping", scope.UserID, studentID, time.Since(start), err)
	return err
}

func (s *mappingService) edit(ctx context.Context, scope repositories.AccessScope, studentID string, req MappingRequest, action string, apply func([]string, string) []string) error {
	if !scope.IsAdmin() {
		perm := NewPermissionError(scope.UserID, studentID, "mapping", action, "admin only")
		s.opLog.LogPermissionDenied(ctx, action, perm)
		return perm
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if req.Role == models.RoleAdmin {
		return NewBusinessRuleError("mapping_role", "admins are not mapped to students", nil)
	}

	student, err := s.repo.Students().GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrStudentNotFound
		}
		return err
	}

	uids, _ := student.UidsFor(req.Role)
	next := apply(uids, req.UserID)
	if err := s.repo.Students().SetUids(ctx, studentID, req.Role, next); err != nil {
		return err
	}

	// Parents keep a children list on their own record for self-service views.
	if action == "assign" && req.Role == models.RoleParent {
		if err := s.repo.Users().AppendChild(ctx, req.UserID, studentID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("Failed to link child to parent record",
				"parent_id", req.UserID, "student_id", studentID, "error", err)
		}
	}
	return nil
}

func addUID(uids []string, uid string) []string {
	for _, existing := range uids {
		if existing == uid {
			return uids
		}
	}
	return append(uids, uid)
}

func removeUID(uids []string, uid string) []string {
	out := uids[:0]
	for _, existing := range uids {
		if existing != uid {
			out = append(out, existing)
		}
	}
	return out
}
