package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tinysteps-edu/dashboard-service/internal/cache"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

const (
	studentListTTL     = 2 * time.Minute
	studentListPattern = "students:list:*"
)

// StudentService owns the student roster and all nested progress documents.
// Every call carries the caller's scope; visibility and mutation rights are
// enforced here, not in the handlers.
type StudentService interface {
	List(ctx context.Context, scope repositories.AccessScope, filters repositories.StudentFilters) ([]*models.Student, error)
	Get(ctx context.Context, scope repositories.AccessScope, id string) (*models.Student, error)
	Create(ctx context.Context, scope repositories.AccessScope, req CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, scope repositories.AccessScope, id string, req UpdateStudentRequest) error
	Delete(ctx context.Context, scope repositories.AccessScope, id string) error

	SetAttendance(ctx context.Context, scope repositories.AccessScope, id string, req AttendanceRequest) error
	ClearMonthAttendance(ctx context.Context, scope repositories.AccessScope, id, month string) error
	SetAttendanceNote(ctx context.Context, scope repositories.AccessScope, id string, req AttendanceNoteRequest) error

	SetCurriculum(ctx context.Context, scope repositories.AccessScope, id string, req CurriculumRequest) error
	DeleteCurriculumTopic(ctx context.Context, scope repositories.AccessScope, id, topic string) error

	SetGameProgress(ctx context.Context, scope repositories.AccessScope, id string, req GameProgressRequest) error
	DeleteGame(ctx context.Context, scope repositories.AccessScope, id, game string) error

	AddResource(ctx context.Context, scope repositories.AccessScope, id string, req ResourceRequest) (*models.Resource, error)
}

type CreateStudentRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Age         int    `json:"age" validate:"omitempty,gte=1,lte=18"`
	Grade       string `json:"grade" validate:"omitempty,max=20"`
	Focus       string `json:"focus" validate:"omitempty,max=255"`
	ParentName  string `json:"parentName" validate:"omitempty,max=100"`
	ParentPhone string `json:"parentPhone" validate:"omitempty,max=30"`
}

type UpdateStudentRequest struct {
	Name        *string               `json:"name" validate:"omitempty,min=2,max=100"`
	Age         *int                  `json:"age" validate:"omitempty,gte=1,lte=18"`
	Grade       *string               `json:"grade" validate:"omitempty,max=20"`
	Status      *models.StudentStatus `json:"status" validate:"omitempty,student_status"`
	Focus       *string               `json:"focus" validate:"omitempty,max=255"`
	ParentName  *string               `json:"parentName" validate:"omitempty,max=100"`
	ParentPhone *string               `json:"parentPhone" validate:"omitempty,max=30"`
}

// AttendanceRequest marks one day. A nil Present clears the day back to
// "no data", which is different from an explicit absent.
type AttendanceRequest struct {
	Date    string `json:"date" validate:"required,iso_date"`
	Present *bool  `json:"present"`
}

type AttendanceNoteRequest struct {
	Month string `json:"month" validate:"required,month_key"`
	Note  string `json:"note" validate:"max=2000"`
}

type CurriculumRequest struct {
	Topic    string  `json:"topic" validate:"required,max=100"`
	Progress int     `json:"progress" validate:"progress"`
	Focus    *string `json:"focus" validate:"omitempty,max=255"`
}

type GameProgressRequest struct {
	Game       string `json:"game" validate:"required,max=100"`
	Level      int    `json:"level" validate:"gte=0"`
	Accuracy   int    `json:"accuracy" validate:"gte=0,lte=100"`
	Stars      int    `json:"stars" validate:"gte=0"`
	LastPlayed string `json:"lastPlayed" validate:"omitempty,iso_date"`
}

type ResourceRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=story worksheet"`
	Title string `json:"title" validate:"required,max=255"`
	URL   string `json:"url" validate:"required,url"`
}

type studentService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	logger    *slog.Logger
	validator *utils.Validator
	opLog     *ServiceLogger
}

func NewStudentService(
	repo repositories.Repository,
	cacheSvc cache.CacheService,
	logger *slog.Logger,
	validator *utils.Validator,
) StudentService {
	return &studentService{
		repo:      repo,
		cache:     cacheSvc,
		logger:    logger,
		validator: validator,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "dashboard", Component: "students"}),
	}
}

func (s *studentService) List(ctx context.Context, scope repositories.AccessScope, filters repositories.StudentFilters) ([]*models.Student, error) {
	// Only the unfiltered per-caller list is cached; filtered queries go
	// straight to the store.
	cacheable := filters.IsZero()
	key := listKey(scope)

	if cacheable {
		var cached []*models.Student
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Student list cache read failed", "key", key, "error", err)
		}
	}

	students, err := s.repo.Students().List(ctx, scope, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, students, studentListTTL); err != nil {
			s.logger.Warn("Student list cache write failed", "key", key, "error", err)
		}
	}
	return students, nil
}

func (s *studentService) Get(ctx context.Context, scope repositories.AccessScope, id string) (*models.Student, error) {
	student, err := s.repo.Students().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if !s.canRead(scope, student) {
		return nil, NewPermissionError(scope.UserID, id, "student", "read", "not in access set")
	}
	return student, nil
}

func (s *studentService) Create(ctx context.Context, scope repositories.AccessScope, req CreateStudentRequest) (*models.Student, error) {
	start := time.Now()
	student, err := s.create(ctx, scope, req)
	s.opLog.LogOperation(ctx, "create_student", scope.UserID, "", time.Since(start), err)
	return student, err
}

func (s *studentService) create(ctx context.Context, scope repositories.AccessScope, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		var ve ValidationErrors
		if errors.As(err, &ve) {
			s.opLog.LogValidationError(ctx, "create_student", scope.UserID, ve)
		}
		return nil, err
	}

	// RMs are read-only over their region; everyone else may enroll.
	if scope.Role == models.RoleRegionalManager {
		return nil, NewPermissionError(scope.UserID, "", "student", "create", "regional managers cannot enroll students")
	}

	student := &models.Student{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Age:         req.Age,
		Grade:       req.Grade,
		Focus:       req.Focus,
		ParentName:  req.ParentName,
		ParentPhone: req.ParentPhone,
		Status:      models.StudentActive,
	}

	switch scope.Role {
	case models.RoleTeacher:
		student.TeacherUids = datatypes.NewJSONSlice([]string{scope.UserID})
	case models.RoleParent:
		// Self-service enrollment: the parent immediately sees their child.
		student.ParentUids = datatypes.NewJSONSlice([]string{scope.UserID})
		student.ParentID = scope.UserID
	}

	if err := s.repo.Students().Create(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to create student: %w", err)
	}

	if err := s.repo.Billing().Create(ctx, &models.Billing{StudentID: student.ID, Rate: models.DefaultRate}); err != nil {
		s.logger.Error("Failed to create billing record for new student",
			"student_id", student.ID, "error", err)
	}

	if scope.Role == models.RoleParent {
		if err := s.repo.Users().AppendChild(ctx, scope.UserID, student.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("Failed to link child to parent record",
				"parent_id", scope.UserID, "student_id", student.ID, "error", err)
		}
	}

	s.invalidateLists(ctx)
	return student, nil
}

func (s *studentService) Update(ctx context.Context, scope repositories.AccessScope, id string, req UpdateStudentRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireMutate(ctx, scope, id, "update"); err != nil {
		return err
	}
	patch := repositories.StudentPatch{
		Name:        req.Name,
		Age:         req.Age,
		Grade:       req.Grade,
		Status:      req.Status,
		Focus:       req.Focus,
		ParentName:  req.ParentName,
		ParentPhone: req.ParentPhone,
	}
	if err := s.repo.Students().Update(ctx, id, patch); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) Delete(ctx context.Context, scope repositories.AccessScope, id string) error {
	if !scope.IsAdmin() {
		return NewPermissionError(scope.UserID, id, "student", "delete", "admin only")
	}
	if err := s.repo.Students().Delete(ctx, id); err != nil {
		return translateRepoErr(err)
	}
	if err := s.repo.Billing().Delete(ctx, id); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("Failed to delete billing record with student", "student_id", id, "error", err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) SetAttendance(ctx context.Context, scope repositories.AccessScope, id string, req AttendanceRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireMutate(ctx, scope, id, "mark attendance"); err != nil {
		return err
	}
	if err := s.repo.Students().SetAttendance(ctx, id, req.Date, req.Present); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) ClearMonthAttendance(ctx context.Context, scope repositories.AccessScope, id, month string) error {
	if err := s.requireMutate(ctx, scope, id, "clear attendance"); err != nil {
		return err
	}
	if err := s.repo.Students().ClearMonthAttendance(ctx, id, month); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) SetAttendanceNote(ctx context.Context, scope repositories.AccessScope, id string, req AttendanceNoteRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireMutate(ctx, scope, id, "annotate attendance"); err != nil {
		return err
	}
	if err := s.repo.Students().SetAttendanceNote(ctx, id, req.Month, req.Note); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) SetCurriculum(ctx context.Context, scope repositories.AccessScope, id string, req CurriculumRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireMutate(ctx, scope, id, "update curriculum"); err != nil {
		return err
	}
	if err := s.repo.Students().SetCurriculum(ctx, id, req.Topic, req.Progress, req.Focus); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) DeleteCurriculumTopic(ctx context.Context, scope repositories.AccessScope, id, topic string) error {
	if err := s.requireMutate(ctx, scope, id, "update curriculum"); err != nil {
		return err
	}
	if err := s.repo.Students().DeleteCurriculumTopic(ctx, id, topic); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) SetGameProgress(ctx context.Context, scope repositories.AccessScope, id string, req GameProgressRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireMutate(ctx, scope, id, "record game progress"); err != nil {
		return err
	}
	lastPlayed := req.LastPlayed
	if lastPlayed == "" {
		lastPlayed = time.Now().Format("2006-01-02")
	}
	progress := models.GameProgress{
		Level:      req.Level,
		Accuracy:   req.Accuracy,
		Stars:      req.Stars,
		LastPlayed: lastPlayed,
	}
	if err := s.repo.Students().SetGameProgress(ctx, id, req.Game, progress); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) DeleteGame(ctx context.Context, scope repositories.AccessScope, id, game string) error {
	if err := s.requireMutate(ctx, scope, id, "record game progress"); err != nil {
		return err
	}
	if err := s.repo.Students().DeleteGame(ctx, id, game); err != nil {
		return translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *studentService) AddResource(ctx context.Context, scope repositories.AccessScope, id string, req ResourceRequest) (*models.Resource, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := s.requireMutate(ctx, scope, id, "attach resource"); err != nil {
		return nil, err
	}
	res := models.Resource{
		ID:    uuid.NewString(),
		Title: req.Title,
		URL:   req.URL,
	}
	if err := s.repo.Students().AddResource(ctx, id, req.Kind, res); err != nil {
		return nil, translateRepoErr(err)
	}
	s.invalidateLists(ctx)
	return &res, nil
}

func (s *studentService) canRead(scope repositories.AccessScope, student *models.Student) bool {
	if s.repo.Backend() == repositories.BackendLocal {
		// Single-tenant demo store, no access sets to check.
		return true
	}
	return student.VisibleTo(scope.UserID, scope.Role)
}

// requireMutate loads the student and checks write rights: admins always,
// teachers only over students in their teacherUids set. Parents and RMs hold
// read access.
func (s *studentService) requireMutate(ctx context.Context, scope repositories.AccessScope, id, action string) error {
	if scope.IsAdmin() {
		return nil
	}
	if scope.Role != models.RoleTeacher {
		return NewPermissionError(scope.UserID, id, "student", action, "read-only role")
	}
	if s.repo.Backend() == repositories.BackendLocal {
		return nil
	}
	student, err := s.repo.Students().GetByID(ctx, id)
	if err != nil {
		return translateRepoErr(err)
	}
	uids, _ := student.UidsFor(models.RoleTeacher)
	for _, uid := range uids {
		if uid == scope.UserID {
			return nil
		}
	}
	perm := NewPermissionError(scope.UserID, id, "student", action, "not in teacher access set")
	s.opLog.LogPermissionDenied(ctx, action, perm)
	return perm
}

func (s *studentService) invalidateLists(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, studentListPattern); err != nil {
		s.logger.Warn("Failed to invalidate student list cache", "error", err)
	}
}

func listKey(scope repositories.AccessScope) string {
	return fmt.Sprintf("students:list:%s:%s", scope.Role, scope.UserID)
}

func translateRepoErr(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrStudentNotFound
	}
	return err
}
