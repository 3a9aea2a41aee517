package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
)

// EventType represents different types of account events
type EventType string

const (
	// EventUserCreated fires when the identity provider reports a new
	// sign-up; the provisioning handler turns it into a user record with the
	// default role.
	EventUserCreated EventType = "user.created"

	// EventRoleAssigned fires after an admin changes a user's role.
	EventRoleAssigned EventType = "role.assigned"
)

// AccountEvent is the base event structure for all account events
type AccountEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Account event payloads

type UserCreatedEvent struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type RoleAssignedEvent struct {
	UserID       string          `json:"user_id"`
	Role         models.UserRole `json:"role"`
	PreviousRole models.UserRole `json:"previous_role,omitempty"`
	AssignedBy   string          `json:"assigned_by"`
}

const eventSource = "dashboard-service"

func newAccountEvent(eventType EventType, data interface{}) *AccountEvent {
	return &AccountEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   "1.0",
		Data:      data,
	}
}

// NewUserCreatedEvent builds a user.created event
func NewUserCreatedEvent(userID, name, email string) *AccountEvent {
	return newAccountEvent(EventUserCreated, UserCreatedEvent{
		UserID: userID,
		Name:   name,
		Email:  email,
	})
}

// NewRoleAssignedEvent builds a role.assigned event
func NewRoleAssignedEvent(userID string, role, previous models.UserRole, assignedBy string) *AccountEvent {
	return newAccountEvent(EventRoleAssigned, RoleAssignedEvent{
		UserID:       userID,
		Role:         role,
		PreviousRole: previous,
		AssignedBy:   assignedBy,
	})
}
