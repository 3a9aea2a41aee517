package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

// Repository bundles the PostgreSQL-backed stores. This is the hosted
// backend: every mutation is a merge write against JSONB documents, mirroring
// the document-store contract the dashboards were written for.
type Repository struct {
	db       *gorm.DB
	users    repositories.UserRepository
	students repositories.StudentRepository
	billing  repositories.BillingRepository
}

func New(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&models.User{}, &models.Student{}, &models.Billing{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Repository{
		db:       db,
		users:    NewUserPostgreSQL(db),
		students: NewStudentPostgreSQL(db),
		billing:  NewBillingPostgreSQL(db),
	}, nil
}

func (r *Repository) Users() repositories.UserRepository       { return r.users }
func (r *Repository) Students() repositories.StudentRepository { return r.students }
func (r *Repository) Billing() repositories.BillingRepository  { return r.billing }
func (r *Repository) Backend() repositories.Backend            { return repositories.BackendRemote }

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateErr maps gorm misses onto the repository sentinel.
func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return err
}
