package models

import "time"

// Teacher is a staff member who can supervise courses and material
// selection processes. The workflow core treats teacher ids as opaque
// references; this row backs the roster screens.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	Titles    *string   `db:"titles" json:"titles,omitempty"`
	FirstName string    `db:"first_name" json:"first_name"`
	Surname   string    `db:"surname" json:"surname"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName renders titles plus names for display.
func (t Teacher) FullName() string {
	name := t.FirstName + " " + t.Surname
	if t.Titles != nil && *t.Titles != "" {
		return *t.Titles + " " + name
	}
	return name
}

// TeacherFilter constrains roster listings.
type TeacherFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
