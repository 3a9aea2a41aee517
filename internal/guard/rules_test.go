package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

func TestEvaluate_SectionTable(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		role     models.UserRole
		allow    bool
		redirect string
	}{
		// /teachers
		{"teacher on teachers", "/teachers/students", models.RoleTeacher, true, ""},
		{"admin on teachers", "/teachers/students", models.RoleAdmin, true, ""},
		{"rm on teachers", "/teachers/students", models.RoleRegionalManager, true, ""},
		{"parent on teachers", "/teachers/students", models.RoleParent, false, "/parents/"},

		// /rm
		{"rm on rm", "/rm/students", models.RoleRegionalManager, true, ""},
		{"admin on rm", "/rm/students", models.RoleAdmin, true, ""},
		{"teacher on rm", "/rm/students", models.RoleTeacher, false, "/parents/"},
		{"parent on rm", "/rm/students", models.RoleParent, false, "/parents/"},

		// /parents
		{"parent on parents", "/parents/children", models.RoleParent, true, ""},
		{"admin on parents", "/parents/children", models.RoleAdmin, true, ""},
		{"teacher on parents", "/parents/children", models.RoleTeacher, false, "/teachers/"},
		{"rm on parents", "/parents/children", models.RoleRegionalManager, false, "/rm/"},

		// /admin
		{"admin on admin", "/admin/users", models.RoleAdmin, true, ""},
		{"teacher on admin", "/admin/users", models.RoleTeacher, false, "/parents/"},
		{"rm on admin", "/admin/users", models.RoleRegionalManager, false, "/parents/"},
		{"parent on admin", "/admin/users", models.RoleParent, false, "/parents/"},

		// outside every section
		{"parent on unmatched path", "/about", models.RoleParent, true, ""},
		{"teacher on root", "/", models.RoleTeacher, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.path, tt.role)
			assert.Equal(t, tt.allow, d.Allow)
			if !tt.allow {
				assert.Equal(t, tt.redirect, d.Redirect)
			}
		})
	}
}

func TestEvaluate_SectionRootMatches(t *testing.T) {
	d := Evaluate("/teachers", models.RoleParent)
	assert.False(t, d.Allow)
	assert.Equal(t, "/parents/", d.Redirect)
}

func TestUnder(t *testing.T) {
	assert.True(t, Under("/teachers", "/teachers"))
	assert.True(t, Under("/teachers/students", "/teachers"))
	assert.False(t, Under("/teachersx", "/teachers"))
	assert.False(t, Under("/teach", "/teachers"))
}

func TestEvaluate_Pure(t *testing.T) {
	first := Evaluate("/admin/users", models.RoleTeacher)
	second := Evaluate("/admin/users", models.RoleTeacher)
	assert.Equal(t, first, second)
}
