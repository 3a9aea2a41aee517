package repositories

import (
	"context"
	"errors"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

// ErrNotFound is returned when the addressed record does not exist. Both
// backends map their native miss onto it.
var ErrNotFound = errors.New("record not found")

// Backend names which store a Repository runs on. Selection happens once at
// startup and is never re-evaluated mid-session; later failures surface as
// operation errors instead of silent fallback.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// AccessScope identifies the caller for role-scoped reads.
type AccessScope struct {
	UserID string
	Role   models.UserRole
}

func (s AccessScope) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

type StudentFilters struct {
	Grade  string
	Status []models.StudentStatus
	Search string // matches name, case-insensitive
}

func (f StudentFilters) IsZero() bool {
	return f.Grade == "" && f.Search == "" && len(f.Status) == 0
}

// StudentPatch is a merge write: nil fields leave the stored value untouched.
type StudentPatch struct {
	Name        *string
	Age         *int
	Grade       *string
	Status      *models.StudentStatus
	Focus       *string
	ParentName  *string
	ParentPhone *string
}

// StudentRepository owns all reads and writes of student records. The nested
// mutations are narrow merge writes touching one map key; deletions remove
// the key outright in both backends (no tombstones), so a reload never
// re-surfaces deleted data.
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id string) (*models.Student, error)

	// List returns the students visible to scope: records whose uid set for
	// the scope's role contains the caller, restricted to active/paused. The
	// local backend ignores scope (single-tenant demo mode).
	List(ctx context.Context, scope AccessScope, filters StudentFilters) ([]*models.Student, error)

	Update(ctx context.Context, id string, patch StudentPatch) error
	Delete(ctx context.Context, id string) error

	// SetAttendance writes one date key; nil present deletes the key (no
	// data), which is distinct from an explicit false.
	SetAttendance(ctx context.Context, id, date string, present *bool) error
	ClearMonthAttendance(ctx context.Context, id, month string) error
	SetAttendanceNote(ctx context.Context, id, month, note string) error

	SetCurriculum(ctx context.Context, id, topic string, progress int, focus *string) error
	DeleteCurriculumTopic(ctx context.Context, id, topic string) error

	SetGameProgress(ctx context.Context, id, game string, progress models.GameProgress) error
	DeleteGame(ctx context.Context, id, game string) error

	AddResource(ctx context.Context, id, kind string, res models.Resource) error

	// SetUids replaces the uid access set matching role on the student.
	SetUids(ctx context.Context, id string, role models.UserRole, uids []string) error
}

// UserRepository mirrors identity accounts into queryable records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, role *models.UserRole) ([]*models.User, error)

	// Upsert merges the given record into the store: zero-valued fields of an
	// existing record are left untouched.
	Upsert(ctx context.Context, user *models.User) error

	SetRole(ctx context.Context, id string, role models.UserRole) error
	AppendChild(ctx context.Context, id, studentID string) error
	Delete(ctx context.Context, id string) error
}

// BillingRepository owns the per-student billing records, kept separate from
// students so billing edits never contend with teaching edits.
type BillingRepository interface {
	Create(ctx context.Context, billing *models.Billing) error
	Get(ctx context.Context, studentID string) (*models.Billing, error)
	List(ctx context.Context) ([]*models.Billing, error)
	SetRate(ctx context.Context, studentID string, rate int) error
	SetSubscriptions(ctx context.Context, studentID string, subs []models.Subscription) error
	Delete(ctx context.Context, studentID string) error
}

// Repository is the capability interface callers depend on; the concrete
// backend behind it is an explicit startup decision.
type Repository interface {
	Users() UserRepository
	Students() StudentRepository
	Billing() BillingRepository
	Backend() Backend
	Close() error
}
