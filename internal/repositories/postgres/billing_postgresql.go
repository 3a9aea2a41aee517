package postgres

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type BillingPostgreSQL struct {
	db *gorm.DB
}

func NewBillingPostgreSQL(db *gorm.DB) repositories.BillingRepository {
	return &BillingPostgreSQL{db: db}
}

func (r *BillingPostgreSQL) Create(ctx context.Context, billing *models.Billing) error {
	if billing.Rate == 0 {
		billing.Rate = models.DefaultRate
	}
	if err := r.db.WithContext(ctx).Create(billing).Error; err != nil {
		return fmt.Errorf("failed to create billing record: %w", err)
	}
	return nil
}

func (r *BillingPostgreSQL) Get(ctx context.Context, studentID string) (*models.Billing, error) {
	var billing models.Billing
	err := r.db.WithContext(ctx).First(&billing, "student_id = ?", studentID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &billing, nil
}

func (r *BillingPostgreSQL) List(ctx context.Context) ([]*models.Billing, error) {
	var records []*models.Billing
	if err := r.db.WithContext(ctx).Order("student_id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	return records, nil
}

func (r *BillingPostgreSQL) SetRate(ctx context.Context, studentID string, rate int) error {
	res := r.db.WithContext(ctx).Model(&models.Billing{}).
		Where("student_id = ?", studentID).Update("rate", rate)
	if res.Error != nil {
		return fmt.Errorf("failed to set rate for %s: %w", studentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *BillingPostgreSQL) SetSubscriptions(ctx context.Context, studentID string, subs []models.Subscription) error {
	res := r.db.WithContext(ctx).Model(&models.Billing{}).
		Where("student_id = ?", studentID).
		Update("subscriptions", datatypes.NewJSONSlice(subs))
	if res.Error != nil {
		return fmt.Errorf("failed to set subscriptions for %s: %w", studentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *BillingPostgreSQL) Delete(ctx context.Context, studentID string) error {
	res := r.db.WithContext(ctx).Delete(&models.Billing{}, "student_id = ?", studentID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete billing record %s: %w", studentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
