package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role names used by the backend
const (
	RoleAdmin    = "admin"
	RoleSysAdmin = "sys_admin"
	RoleTeacher  = "teacher"
	RoleStudent  = "student"
)

// ID is a backend identifier that may arrive as a JSON string or number
type ID string

// UnmarshalJSON accepts both "42" and 42
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string
func (id ID) String() string {
	return string(id)
}

// User represents a backend user as returned by the admin endpoints
type User struct {
	ID        ID     `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	UserRole  string `json:"user_role,omitempty"` // Some list endpoints name the role this way
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Status    string `json:"status,omitempty"`
}

// NewUser creates a user with a generated id
func NewUser(email, username, role string) *User {
	return &User{
		ID:       ID(uuid.NewString()),
		Email:    email,
		Username: username,
		Role:     role,
		Status:   "active",
	}
}

// GetDisplayName returns the username if set, otherwise the email
func (u *User) GetDisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// RoleName returns the user's role under either field name
func (u *User) RoleName() string {
	if u.Role != "" {
		return u.Role
	}
	return u.UserRole
}

// IsAdmin returns true for roles allowed into the admin console
func (u *User) IsAdmin() bool {
	return IsAdminRole(u.RoleName())
}

// IsAdminRole reports whether a role grants admin console access
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSysAdmin
}

// AddUserRequest is the payload of POST /admin/add_user
type AddUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=2,max=32"`
	Password  string `json:"password" validate:"required,min=8"`
	Role      string `json:"role" validate:"required,oneof=admin sys_admin teacher student"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserChannelInfo describes one user's membership in a channel
type UserChannelInfo struct {
	UserID      ID        `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	ChannelID   ID        `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at,omitempty"`
}
