package local

import (
	"log/slog"

	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

// Repository bundles the file-backed stores behind the shared capability
// interface. All three entity repositories share one Store so a single file
// holds the whole dataset.
type Repository struct {
	store    *Store
	users    repositories.UserRepository
	students repositories.StudentRepository
	billing  repositories.BillingRepository
}

func New(path string, logger *slog.Logger) (*Repository, error) {
	store, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &Repository{
		store:    store,
		users:    NewUserLocal(store),
		students: NewStudentLocal(store),
		billing:  NewBillingLocal(store),
	}, nil
}

func (r *Repository) Users() repositories.UserRepository {
	return r.users
}

func (r *Repository) Students() repositories.StudentRepository {
	return r.students
}

func (r *Repository) Billing() repositories.BillingRepository {
	return r.billing
}

func (r *Repository) Backend() repositories.Backend {
	return repositories.BackendLocal
}

func (r *Repository) Close() error {
	return nil
}
