package models

import "time"

// UserRole represents the available roles for the RBAC system. Boecie is
// the study association's administrative team.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleBoecie  UserRole = "BOECIE"
	RoleTeacher UserRole = "TEACHER"
)

// Side maps an authenticated role onto the workflow party it acts for.
// Admins and association members act on the Boecie side.
func (r UserRole) Side() ActorSide {
	if r == RoleTeacher {
		return SideTeacher
	}
	return SideBoecie
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	TeacherID    *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter constrains user listings.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
