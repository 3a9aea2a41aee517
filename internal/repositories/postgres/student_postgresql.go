package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type StudentPostgreSQL struct {
	db *gorm.DB
}

func NewStudentPostgreSQL(db *gorm.DB) repositories.StudentRepository {
	return &StudentPostgreSQL{db: db}
}

func (r *StudentPostgreSQL) Create(ctx context.Context, student *models.Student) error {
	if student.Status == "" {
		student.Status = models.StudentActive
	}
	if err := r.db.WithContext(ctx).Create(student).Error; err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (r *StudentPostgreSQL) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	err := r.db.WithContext(ctx).First(&student, "id = ?", id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &student, nil
}

func (r *StudentPostgreSQL) List(ctx context.Context, scope repositories.AccessScope, filters repositories.StudentFilters) ([]*models.Student, error) {
	q := r.db.WithContext(ctx).Model(&models.Student{})

	if !scope.IsAdmin() {
		column, ok := uidColumn(scope.Role)
		if !ok {
			return []*models.Student{}, nil
		}
		needle, err := json.Marshal([]string{scope.UserID})
		if err != nil {
			return nil, err
		}
		// jsonb containment: the caller's uid must be in the access set.
		q = q.Where(column+" @> ?", datatypes.JSON(needle)).
			Where("status IN ?", []models.StudentStatus{models.StudentActive, models.StudentPaused})
	}

	if filters.Grade != "" {
		q = q.Where("grade = ?", filters.Grade)
	}
	if len(filters.Status) > 0 {
		q = q.Where("status IN ?", filters.Status)
	}
	if filters.Search != "" {
		q = q.Where("name ILIKE ?", "%"+filters.Search+"%")
	}

	var students []*models.Student
	if err := q.Order("name ASC").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (r *StudentPostgreSQL) Update(ctx context.Context, id string, patch repositories.StudentPatch) error {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Age != nil {
		updates["age"] = *patch.Age
	}
	if patch.Grade != nil {
		updates["grade"] = *patch.Grade
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Focus != nil {
		updates["focus"] = *patch.Focus
	}
	if patch.ParentName != nil {
		updates["parent_name"] = *patch.ParentName
	}
	if patch.ParentPhone != nil {
		updates["parent_phone"] = *patch.ParentPhone
	}
	if len(updates) == 0 {
		return nil
	}

	res := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update student %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *StudentPostgreSQL) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Student{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete student %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *StudentPostgreSQL) SetAttendance(ctx context.Context, id, date string, present *bool) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.AttendanceMap()
		if present == nil {
			delete(m, date)
		} else {
			m[date] = *present
		}
		stu.Attendance = datatypes.NewJSONType(m)
	}, "attendance", func(stu *models.Student) interface{} { return stu.Attendance })
}

func (r *StudentPostgreSQL) ClearMonthAttendance(ctx context.Context, id, month string) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.AttendanceMap()
		for date := range m {
			if len(date) >= len(month) && date[:len(month)] == month {
				delete(m, date)
			}
		}
		stu.Attendance = datatypes.NewJSONType(m)
	}, "attendance", func(stu *models.Student) interface{} { return stu.Attendance })
}

func (r *StudentPostgreSQL) SetAttendanceNote(ctx context.Context, id, month, note string) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.NotesMap()
		if note == "" {
			delete(m, month)
		} else {
			m[month] = note
		}
		stu.AttendanceNotes = datatypes.NewJSONType(m)
	}, "attendance_notes", func(stu *models.Student) interface{} { return stu.AttendanceNotes })
}

func (r *StudentPostgreSQL) SetCurriculum(ctx context.Context, id, topic string, progress int, focus *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stu models.Student
		if err := tx.First(&stu, "id = ?", id).Error; err != nil {
			return translateErr(err)
		}
		m := stu.CurriculumMap()
		m[topic] = models.ClampProgress(progress)
		updates := map[string]interface{}{"curriculum": datatypes.NewJSONType(m)}
		if focus != nil {
			updates["focus"] = *focus
		}
		if err := tx.Model(&stu).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to set curriculum for %s: %w", id, err)
		}
		return nil
	})
}

func (r *StudentPostgreSQL) DeleteCurriculumTopic(ctx context.Context, id, topic string) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.CurriculumMap()
		delete(m, topic)
		stu.Curriculum = datatypes.NewJSONType(m)
	}, "curriculum", func(stu *models.Student) interface{} { return stu.Curriculum })
}

func (r *StudentPostgreSQL) SetGameProgress(ctx context.Context, id, game string, progress models.GameProgress) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.GamesMap()
		m[game] = progress
		stu.Games = datatypes.NewJSONType(m)
	}, "games", func(stu *models.Student) interface{} { return stu.Games })
}

func (r *StudentPostgreSQL) DeleteGame(ctx context.Context, id, game string) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		m := stu.GamesMap()
		delete(m, game)
		stu.Games = datatypes.NewJSONType(m)
	}, "games", func(stu *models.Student) interface{} { return stu.Games })
}

func (r *StudentPostgreSQL) AddResource(ctx context.Context, id, kind string, res models.Resource) error {
	return r.mutate(ctx, id, func(stu *models.Student) {
		docs := stu.Resources.Data()
		if kind == models.ResourceStory {
			docs.Stories = append(docs.Stories, res)
		} else {
			docs.Worksheets = append(docs.Worksheets, res)
		}
		stu.Resources = datatypes.NewJSONType(docs)
	}, "resources", func(stu *models.Student) interface{} { return stu.Resources })
}

func (r *StudentPostgreSQL) SetUids(ctx context.Context, id string, role models.UserRole, uids []string) error {
	column, ok := uidColumn(role)
	if !ok {
		return fmt.Errorf("role %s has no access set", role)
	}
	res := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).
		Update(column, datatypes.NewJSONSlice(uids))
	if res.Error != nil {
		return fmt.Errorf("failed to set %s for %s: %w", column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// mutate loads the student, applies fn to one JSON document and writes back
// only that column. The surrounding transaction keeps the read-modify-write a
// single merge against concurrent writers of other fields.
func (r *StudentPostgreSQL) mutate(ctx context.Context, id string, fn func(*models.Student), column string, value func(*models.Student) interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stu models.Student
		if err := tx.First(&stu, "id = ?", id).Error; err != nil {
			return translateErr(err)
		}
		fn(&stu)
		if err := tx.Model(&stu).Update(column, value(&stu)).Error; err != nil {
			return fmt.Errorf("failed to update %s for %s: %w", column, id, err)
		}
		return nil
	})
}

func uidColumn(role models.UserRole) (string, bool) {
	switch role {
	case models.RoleParent:
		return "parent_uids", true
	case models.RoleTeacher:
		return "teacher_uids", true
	case models.RoleRegionalManager:
		return "rm_uids", true
	}
	return "", false
}
