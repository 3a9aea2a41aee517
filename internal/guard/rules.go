package guard

import (
	"strings"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

// Section path prefixes gated by the guard.
const (
	AuthSection    = "/auth"
	TeacherSection = "/teachers"
	RMSection      = "/rm"
	ParentSection  = "/parents"
	AdminSection   = "/admin"
)

// SignInPath is where unauthenticated visitors are sent, carrying the
// intended destination in the redirect query parameter.
const SignInPath = AuthSection + "/"

// Decision is the outcome of authorizing a path for a role.
type Decision struct {
	Allow    bool
	Redirect string // target when not allowed
}

// SectionRule gates one path section: the listed roles pass, everything else
// is redirected. Rules are evaluated in order and the first matching prefix
// wins, so new sections are rows in the table, not new branches.
type SectionRule struct {
	Prefix   string
	Allowed  []models.UserRole
	Redirect func(models.UserRole) string
}

func toParents(models.UserRole) string { return ParentSection + "/" }

// Rules is the authorization table. Order matters and mirrors the site's
// section precedence.
var Rules = []SectionRule{
	{
		Prefix:   TeacherSection,
		Allowed:  []models.UserRole{models.RoleTeacher, models.RoleAdmin, models.RoleRegionalManager},
		Redirect: toParents,
	},
	{
		Prefix:   RMSection,
		Allowed:  []models.UserRole{models.RoleRegionalManager, models.RoleAdmin},
		Redirect: toParents,
	},
	{
		Prefix:  ParentSection,
		Allowed: []models.UserRole{models.RoleParent, models.RoleAdmin},
		Redirect: func(role models.UserRole) string {
			switch role {
			case models.RoleTeacher:
				return TeacherSection + "/"
			case models.RoleRegionalManager:
				return RMSection + "/"
			}
			return "/"
		},
	},
	{
		Prefix:   AdminSection,
		Allowed:  []models.UserRole{models.RoleAdmin},
		Redirect: toParents,
	},
}

// Under reports whether path lies in the section rooted at prefix.
func Under(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Evaluate authorizes path for role against the rule table. It is a pure
// function: same (path, role) in, same decision out. Paths outside every
// section are allowed.
func Evaluate(path string, role models.UserRole) Decision {
	for _, rule := range Rules {
		if !Under(path, rule.Prefix) {
			continue
		}
		for _, allowed := range rule.Allowed {
			if role == allowed {
				return Decision{Allow: true}
			}
		}
		return Decision{Redirect: rule.Redirect(role)}
	}
	return Decision{Allow: true}
}
