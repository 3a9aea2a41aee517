package models

import (
	"time"

	"gorm.io/datatypes"
)

type StudentStatus string

const (
	StudentActive StudentStatus = "active"
	StudentPaused StudentStatus = "paused"
	StudentLeft   StudentStatus = "left"
)

func (s StudentStatus) Valid() bool {
	switch s {
	case StudentActive, StudentPaused, StudentLeft:
		return true
	}
	return false
}

// GameProgress tracks one phonics game for one student.
type GameProgress struct {
	Level      int    `json:"level"`
	Accuracy   int    `json:"accuracy"`
	Stars      int    `json:"stars"`
	LastPlayed string `json:"lastPlayed"` // ISO date
}

type Resource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

const (
	ResourceStory     = "story"
	ResourceWorksheet = "worksheet"
)

// Resources holds the two ordered material lists shown on the dashboards.
type Resources struct {
	Stories    []Resource `json:"stories"`
	Worksheets []Resource `json:"worksheets"`
}

// Student is one child profile. Visibility is governed by the *Uids sets: an
// identity may read/write a student iff its id appears in the set matching its
// role. Nested progress data is stored as JSON documents so partial updates
// stay narrow merge writes.
type Student struct {
	ID     string        `json:"id" gorm:"primaryKey;size:64"`
	Name   string        `json:"name" gorm:"not null;size:100"`
	Age    int           `json:"age"`
	Grade  string        `json:"grade" gorm:"size:20"`
	Status StudentStatus `json:"status" gorm:"size:20;default:active"`
	Focus  string        `json:"focus" gorm:"size:255"`

	ParentID    string `json:"parentId" gorm:"index;size:255"`
	ParentName  string `json:"parentName" gorm:"size:100"`
	ParentEmail string `json:"parentEmail" gorm:"size:255"`
	ParentPhone string `json:"parentPhone" gorm:"size:30"`

	ParentUids  datatypes.JSONSlice[string] `json:"parentUids"`
	TeacherUids datatypes.JSONSlice[string] `json:"teacherUids"`
	RMUids      datatypes.JSONSlice[string] `json:"rmUids" gorm:"column:rm_uids"`

	// Attendance maps ISO date -> present. Absent key means no data for that
	// day, which is distinct from an explicit false.
	Attendance datatypes.JSONType[map[string]bool] `json:"attendance"`

	// AttendanceNotes maps month key (YYYY-MM) -> free-form teacher note.
	AttendanceNotes datatypes.JSONType[map[string]string] `json:"attnNotes"`

	// Curriculum maps topic -> progress percent, clamped to [0,100].
	Curriculum datatypes.JSONType[map[string]int] `json:"curriculum"`

	Games     datatypes.JSONType[map[string]GameProgress] `json:"games"`
	Resources datatypes.JSONType[Resources]               `json:"resources"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Student) TableName() string {
	return "students"
}

// AttendanceMap returns the attendance document, never nil.
func (s *Student) AttendanceMap() map[string]bool {
	m := s.Attendance.Data()
	if m == nil {
		m = make(map[string]bool)
	}
	return m
}

func (s *Student) CurriculumMap() map[string]int {
	m := s.Curriculum.Data()
	if m == nil {
		m = make(map[string]int)
	}
	return m
}

func (s *Student) GamesMap() map[string]GameProgress {
	m := s.Games.Data()
	if m == nil {
		m = make(map[string]GameProgress)
	}
	return m
}

func (s *Student) NotesMap() map[string]string {
	m := s.AttendanceNotes.Data()
	if m == nil {
		m = make(map[string]string)
	}
	return m
}

// UidsFor returns the access set governing visibility for the given role.
// Admins see everything, so they have no set; ok is false in that case.
func (s *Student) UidsFor(role UserRole) (uids []string, ok bool) {
	switch role {
	case RoleParent:
		return s.ParentUids, true
	case RoleTeacher:
		return s.TeacherUids, true
	case RoleRegionalManager:
		return s.RMUids, true
	}
	return nil, false
}

// VisibleTo reports whether the identity uid with the given role may see this
// student.
func (s *Student) VisibleTo(uid string, role UserRole) bool {
	if role == RoleAdmin {
		return true
	}
	uids, ok := s.UidsFor(role)
	if !ok {
		return false
	}
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}

// ClampProgress bounds a curriculum progress value to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
