// Package local is the file-backed fallback store used when the service runs
// without a database, e.g. on a laptop demo. It holds the whole dataset in
// memory, persists it as one JSON document, and seeds a demo roster on first
// run so the dashboards are never empty.
package local

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

type state struct {
	Users    map[string]*models.User    `json:"users"`
	Students map[string]*models.Student `json:"students"`
	Billing  map[string]*models.Billing `json:"billing"`
}

// Store owns the serialized state. Every mutation happens under the lock and
// rewrites the file in full; the dataset is small enough that partial writes
// are not worth their complexity.
type Store struct {
	mu     sync.Mutex
	path   string
	state  *state
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.state = seedState()
		if err := s.persist(); err != nil {
			return nil, fmt.Errorf("failed to write seed state: %w", err)
		}
		logger.Info("local store seeded", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read local store: %w", err)
	default:
		var st state
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("local store %s is corrupt: %w", path, err)
		}
		s.state = normalize(&st)
	}
	return s, nil
}

// update runs fn under the lock and persists the result. fn returning an
// error leaves the file untouched.
func (s *Store) update(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	return s.persist()
}

// view runs fn under the lock without persisting.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) persist() error {
	raw, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func normalize(st *state) *state {
	if st.Users == nil {
		st.Users = map[string]*models.User{}
	}
	if st.Students == nil {
		st.Students = map[string]*models.Student{}
	}
	if st.Billing == nil {
		st.Billing = map[string]*models.Billing{}
	}
	return st
}

// cloneStudent returns a deep copy so callers never alias the stored maps.
func cloneStudent(stu *models.Student) *models.Student {
	raw, _ := json.Marshal(stu)
	var out models.Student
	_ = json.Unmarshal(raw, &out)
	return &out
}

func cloneUser(u *models.User) *models.User {
	raw, _ := json.Marshal(u)
	var out models.User
	_ = json.Unmarshal(raw, &out)
	return &out
}

func cloneBilling(b *models.Billing) *models.Billing {
	raw, _ := json.Marshal(b)
	var out models.Billing
	_ = json.Unmarshal(raw, &out)
	return &out
}

func seedState() *state {
	now := time.Now()
	teacherID := "t_demo"
	studentID := uuid.NewString()

	student := &models.Student{
		ID:          studentID,
		Name:        "Aarav Sharma",
		Grade:       "UKG",
		ParentName:  "Mrs. Sharma",
		ParentPhone: "+91 9xxxx xxxxx",
		Status:      models.StudentActive,
		Focus:       "Blend endings: -nd, -nt, -st",
		TeacherUids: datatypes.NewJSONSlice([]string{teacherID}),
		Attendance:  datatypes.NewJSONType(map[string]bool{}),
		Curriculum: datatypes.NewJSONType(map[string]int{
			"SATPIN":              70,
			"CVC (2–3 letters)":   55,
			"Blends (st, pl, tr)": 30,
		}),
		Games: datatypes.NewJSONType(map[string]models.GameProgress{
			"Balloon Pop":   {Level: 3, Accuracy: 82, Stars: 12, LastPlayed: now.Format("2006-01-02")},
			"Treasure Hunt": {Level: 2, Accuracy: 75, Stars: 8, LastPlayed: now.Format("2006-01-02")},
		}),
		Resources: datatypes.NewJSONType(models.Resources{
			Stories: []models.Resource{
				{ID: uuid.NewString(), Title: "S: Sun & Snake — Picture Story", URL: "https://tinystepslearning.com/resources/s-story"},
			},
			Worksheets: []models.Resource{
				{ID: uuid.NewString(), Title: "SATPIN — Tracing Pack", URL: "https://tinystepslearning.com/resources/satpin-tracing"},
			},
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}

	return &state{
		Users: map[string]*models.User{
			teacherID: {
				ID:        teacherID,
				Name:      "Teacher",
				Role:      models.RoleTeacher,
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		Students: map[string]*models.Student{studentID: student},
		Billing: map[string]*models.Billing{
			studentID: {StudentID: studentID, Rate: models.DefaultRate, CreatedAt: now, UpdatedAt: now},
		},
	}
}
