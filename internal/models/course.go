package models

import "time"

// Course mirrors one course occurrence in the school administration: a
// named course given in a calendar year during one period. Materials hang
// off it through MSPs.
type Course struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	CourseCode          string    `db:"course_code" json:"course_code"`
	Period              Period    `db:"period" json:"period"`
	CalendarYear        int       `db:"calendar_year" json:"calendar_year"`
	CoordinatorID       *string   `db:"coordinator_id" json:"coordinator_id,omitempty"`
	UpdatedTeacher      bool      `db:"updated_teacher" json:"updated_teacher"`
	UpdatedAssociations bool      `db:"updated_associations" json:"updated_associations"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`

	TeacherIDs []string `db:"-" json:"teacher_ids,omitempty"`
}

// FallsIn applies the period containment predicate to this course.
func (c Course) FallsIn(window ReportingWindow) bool {
	return window.Contains(c.CalendarYear, c.Period)
}

// CourseFilter constrains course listings. Window, when set, restricts the
// listing to courses falling in the reporting window.
type CourseFilter struct {
	Window    *ReportingWindow
	StudyID   string
	StudyType StudyType
	StudyYear *int
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
