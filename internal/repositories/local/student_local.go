package local

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type StudentLocal struct {
	store *Store
}

func NewStudentLocal(store *Store) repositories.StudentRepository {
	return &StudentLocal{store: store}
}

func (r *StudentLocal) Create(_ context.Context, student *models.Student) error {
	if student.Status == "" {
		student.Status = models.StudentActive
	}
	now := time.Now()
	student.CreatedAt = now
	student.UpdatedAt = now
	return r.store.update(func(st *state) error {
		st.Students[student.ID] = cloneStudent(student)
		return nil
	})
}

func (r *StudentLocal) GetByID(_ context.Context, id string) (*models.Student, error) {
	var out *models.Student
	err := r.store.view(func(st *state) error {
		stu, ok := st.Students[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneStudent(stu)
		return nil
	})
	return out, err
}

// List ignores the access scope: the local backend is a single-tenant demo
// store, so every caller sees the full roster. Filters still apply.
func (r *StudentLocal) List(_ context.Context, _ repositories.AccessScope, filters repositories.StudentFilters) ([]*models.Student, error) {
	var out []*models.Student
	err := r.store.view(func(st *state) error {
		for _, stu := range st.Students {
			if !matches(stu, filters) {
				continue
			}
			out = append(out, cloneStudent(stu))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []*models.Student{}
	}
	return out, nil
}

func matches(stu *models.Student, filters repositories.StudentFilters) bool {
	if filters.Grade != "" && stu.Grade != filters.Grade {
		return false
	}
	if len(filters.Status) > 0 {
		ok := false
		for _, status := range filters.Status {
			if stu.Status == status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if filters.Search != "" && !strings.Contains(strings.ToLower(stu.Name), strings.ToLower(filters.Search)) {
		return false
	}
	return true
}

func (r *StudentLocal) Update(_ context.Context, id string, patch repositories.StudentPatch) error {
	return r.mutate(id, func(stu *models.Student) {
		if patch.Name != nil {
			stu.Name = *patch.Name
		}
		if patch.Age != nil {
			stu.Age = *patch.Age
		}
		if patch.Grade != nil {
			stu.Grade = *patch.Grade
		}
		if patch.Status != nil {
			stu.Status = *patch.Status
		}
		if patch.Focus != nil {
			stu.Focus = *patch.Focus
		}
		if patch.ParentName != nil {
			stu.ParentName = *patch.ParentName
		}
		if patch.ParentPhone != nil {
			stu.ParentPhone = *patch.ParentPhone
		}
	})
}

func (r *StudentLocal) Delete(_ context.Context, id string) error {
	return r.store.update(func(st *state) error {
		if _, ok := st.Students[id]; !ok {
			return repositories.ErrNotFound
		}
		delete(st.Students, id)
		return nil
	})
}

func (r *StudentLocal) SetAttendance(_ context.Context, id, date string, present *bool) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.AttendanceMap()
		if present == nil {
			delete(m, date)
		} else {
			m[date] = *present
		}
		stu.Attendance = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) ClearMonthAttendance(_ context.Context, id, month string) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.AttendanceMap()
		for date := range m {
			if strings.HasPrefix(date, month) {
				delete(m, date)
			}
		}
		stu.Attendance = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) SetAttendanceNote(_ context.Context, id, month, note string) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.NotesMap()
		if note == "" {
			delete(m, month)
		} else {
			m[month] = note
		}
		stu.AttendanceNotes = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) SetCurriculum(_ context.Context, id, topic string, progress int, focus *string) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.CurriculumMap()
		m[topic] = models.ClampProgress(progress)
		stu.Curriculum = datatypes.NewJSONType(m)
		if focus != nil {
			stu.Focus = *focus
		}
	})
}

func (r *StudentLocal) DeleteCurriculumTopic(_ context.Context, id, topic string) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.CurriculumMap()
		delete(m, topic)
		stu.Curriculum = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) SetGameProgress(_ context.Context, id, game string, progress models.GameProgress) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.GamesMap()
		m[game] = progress
		stu.Games = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) DeleteGame(_ context.Context, id, game string) error {
	return r.mutate(id, func(stu *models.Student) {
		m := stu.GamesMap()
		delete(m, game)
		stu.Games = datatypes.NewJSONType(m)
	})
}

func (r *StudentLocal) AddResource(_ context.Context, id, kind string, res models.Resource) error {
	return r.mutate(id, func(stu *models.Student) {
		docs := stu.Resources.Data()
		if kind == models.ResourceStory {
			docs.Stories = append(docs.Stories, res)
		} else {
			docs.Worksheets = append(docs.Worksheets, res)
		}
		stu.Resources = datatypes.NewJSONType(docs)
	})
}

func (r *StudentLocal) SetUids(_ context.Context, id string, role models.UserRole, uids []string) error {
	return r.mutate(id, func(stu *models.Student) {
		set := datatypes.NewJSONSlice(uids)
		switch role {
		case models.RoleParent:
			stu.ParentUids = set
		case models.RoleTeacher:
			stu.TeacherUids = set
		case models.RoleRegionalManager:
			stu.RMUids = set
		}
	})
}

func (r *StudentLocal) mutate(id string, fn func(*models.Student)) error {
	return r.store.update(func(st *state) error {
		stu, ok := st.Students[id]
		if !ok {
			return repositories.ErrNotFound
		}
		fn(stu)
		stu.UpdatedAt = time.Now()
		return nil
	})
}
