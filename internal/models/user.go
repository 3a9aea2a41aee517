package models

import (
	"time"

	"gorm.io/datatypes"
)

type UserRole string

const (
	RoleParent          UserRole = "parent"
	RoleTeacher         UserRole = "teacher"
	RoleAdmin           UserRole = "admin"
	RoleRegionalManager UserRole = "rm"
)

// DefaultRole is assigned to every account that has no explicit role claim.
const DefaultRole = RoleParent

// AllRoles is the closed set of recognized roles.
var AllRoles = []UserRole{RoleParent, RoleTeacher, RoleAdmin, RoleRegionalManager}

func (r UserRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// User mirrors one identity-provider account. The service owns the record but
// not the account itself; the record is created by the user.created
// provisioning handler and mutated only through admin operations.
type User struct {
	ID    string   `json:"id" gorm:"primaryKey;size:255"`
	Name  string   `json:"name" gorm:"size:100"`
	Email string   `json:"email" gorm:"index;size:255"`
	Role  UserRole `json:"role" gorm:"size:20;default:parent"`

	// Children holds student ids added by this parent (self-service flow).
	Children datatypes.JSONSlice[string] `json:"children"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
