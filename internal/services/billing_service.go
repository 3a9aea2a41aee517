package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

// Statement is one student's dues for a month: classes held times the
// per-class rate, plus the flat subscription add-ons.
type Statement struct {
	StudentID     string                `json:"studentId"`
	StudentName   string                `json:"studentName"`
	Month         string                `json:"month"`
	Rate          int                   `json:"rate"`
	ClassesHeld   int                   `json:"classesHeld"`
	ClassesAmount int                   `json:"classesAmount"`
	Subscriptions []models.Subscription `json:"subscriptions"`
	Due           int                   `json:"due"`
}

// Overview aggregates the month across every student the caller may see.
type Overview struct {
	Month      string      `json:"month"`
	Statements []Statement `json:"statements"`
	TotalDue   int         `json:"totalDue"`
}

type SetRateRequest struct {
	Rate int `json:"rate" validate:"required,gt=0"`
}

type SetSubscriptionsRequest struct {
	Subscriptions []SubscriptionEntry `json:"subscriptions" validate:"dive"`
}

type SubscriptionEntry struct {
	Name  string `json:"name" validate:"required,max=100"`
	Price int    `json:"price" validate:"gte=0"`
}

type BillingService interface {
	ComputeDue(ctx context.Context, scope repositories.AccessScope, studentID, month string) (*Statement, error)
	MonthOverview(ctx context.Context, scope repositories.AccessScope, month string) (*Overview, error)
	ExportOverview(ctx context.Context, scope repositories.AccessScope, month string) ([]byte, error)

	SetRate(ctx context.Context, scope repositories.AccessScope, studentID string, req SetRateRequest) error
	SetSubscriptions(ctx context.Context, scope repositories.AccessScope, studentID string, req SetSubscriptionsRequest) error
}

type billingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *utils.Validator
	opLog     *ServiceLogger
}

func NewBillingService(repo repositories.Repository, logger *slog.Logger, validator *utils.Validator) BillingService {
	return &billingService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		opLog:     NewServiceLogger(logger, LogConfig{Service: "dashboard", Component: "billing"}),
	}
}

func (s *billingService) ComputeDue(ctx context.Context, scope repositories.AccessScope, studentID, month string) (*Statement, error) {
	student, err := s.repo.Students().GetByID(ctx, studentID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if s.repo.Backend() == repositories.BackendRemote && !student.VisibleTo(scope.UserID, scope.Role) {
		return nil, NewPermissionError(scope.UserID, studentID, "billing", "read", "not in access set")
	}
	return s.statement(ctx, student, month)
}

func (s *billingService) statement(ctx context.Context, student *models.Student, month string) (*Statement, error) {
	billing, err := s.repo.Billing().Get(ctx, student.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		// Students enrolled before billing existed fall back to defaults.
		billing = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load billing record: %w", err)
	}
	return buildStatement(student, billing, month), nil
}

// buildStatement computes one student's dues. A nil billing record means the
// defaults: base rate, no subscriptions.
func buildStatement(student *models.Student, billing *models.Billing, month string) *Statement {
	if billing == nil {
		billing = &models.Billing{StudentID: student.ID, Rate: models.DefaultRate}
	}

	rate := billing.Rate
	if rate <= 0 {
		rate = models.DefaultRate
	}

	held := models.CountPresent(student.AttendanceMap(), month)
	classesAmount := held * rate

	return &Statement{
		StudentID:     student.ID,
		StudentName:   student.Name,
		Month:         month,
		Rate:          rate,
		ClassesHeld:   held,
		ClassesAmount: classesAmount,
		Subscriptions: billing.Subscriptions,
		Due:           classesAmount + billing.SubscriptionTotal(),
	}
}

func (s *billingService) MonthOverview(ctx context.Context, scope repositories.AccessScope, month string) (*Overview, error) {
	start := time.Now()
	overview, err := s.monthOverview(ctx, scope, month)
	s.opLog.LogOperation(ctx, "month_overview", scope.UserID, month, time.Since(start), err)
	return overview, err
}

func (s *billingService) monthOverview(ctx context.Context, scope repositories.AccessScope, month string) (*Overview, error) {
	students, err := s.repo.Students().List(ctx, scope, repositories.StudentFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	// One billing read for the whole overview instead of one per student.
	records, err := s.repo.Billing().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	byStudent := make(map[string]*models.Billing, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	overview := &Overview{Month: month, Statements: make([]Statement, 0, len(students))}
	for _, student := range students {
		stmt := buildStatement(student, byStudent[student.ID], month)
		overview.Statements = append(overview.Statements, *stmt)
		overview.TotalDue += stmt.Due
	}
	return overview, nil
}

// ExportOverview renders the month overview as an xlsx workbook, one row per
// student with a totals row at the bottom.
func (s *billingService) ExportOverview(ctx context.Context, scope repositories.AccessScope, month string) ([]byte, error) {
	overview, err := s.monthOverview(ctx, scope, month)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	sheet := "Billing " + month
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.logger.Debug("Default sheet removal failed", "error", err)
	}

	headers := []string{"Student", "Classes Held", "Rate", "Classes Amount", "Subscriptions", "Due"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, stmt := range overview.Statements {
		values := []interface{}{
			stmt.StudentName,
			stmt.ClassesHeld,
			stmt.Rate,
			stmt.ClassesAmount,
			subscriptionSummary(stmt.Subscriptions),
			stmt.Due,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	totalRow := len(overview.Statements) + 2
	labelCell, _ := excelize.CoordinatesToCellName(1, totalRow)
	dueCell, _ := excelize.CoordinatesToCellName(len(headers), totalRow)
	if err := f.SetCellValue(sheet, labelCell, "Total"); err != nil {
		return nil, fmt.Errorf("failed to write totals: %w", err)
	}
	if err := f.SetCellValue(sheet, dueCell, overview.TotalDue); err != nil {
		return nil, fmt.Errorf("failed to write totals: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func subscriptionSummary(subs []models.Subscription) string {
	if len(subs) == 0 {
		return ""
	}
	out := ""
	for i, sub := range subs {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s (%d)", sub.Name, sub.Price)
	}
	return out
}

func (s *billingService) SetRate(ctx context.Context, scope repositories.AccessScope, studentID string, req SetRateRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireBillingWrite(scope, studentID); err != nil {
		return err
	}
	if err := s.repo.Billing().SetRate(ctx, studentID, req.Rate); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// First rate write for a legacy student creates the record.
			return s.repo.Billing().Create(ctx, &models.Billing{StudentID: studentID, Rate: req.Rate})
		}
		return err
	}
	return nil
}

func (s *billingService) SetSubscriptions(ctx context.Context, scope repositories.AccessScope, studentID string, req SetSubscriptionsRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if err := s.requireBillingWrite(scope, studentID); err != nil {
		return err
	}
	subs := make([]models.Subscription, 0, len(req.Subscriptions))
	for _, entry := range req.Subscriptions {
		subs = append(subs, models.Subscription{Name: entry.Name, Price: entry.Price})
	}
	if err := s.repo.Billing().SetSubscriptions(ctx, studentID, subs); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrBillingNotFound
		}
		return err
	}
	return nil
}

// Billing edits are restricted to admins and teachers; teachers own the rate
// conversation with parents in practice.
func (s *billingService) requireBillingWrite(scope repositories.AccessScope, studentID string) error {
	if scope.IsAdmin() || scope.Role == models.RoleTeacher {
		return nil
	}
	return NewPermissionError(scope.UserID, studentID, "billing", "write", "read-only role")
}
