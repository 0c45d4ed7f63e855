package models

// StudyType enumerates programme tiers.
type StudyType string

const (
	StudyBachelor  StudyType = "BACHELOR"
	StudyMaster    StudyType = "MASTER"
	StudyPremaster StudyType = "PREMASTER"
)

// Valid reports whether t is a known study type.
func (t StudyType) Valid() bool {
	switch t {
	case StudyBachelor, StudyMaster, StudyPremaster:
		return true
	}
	return false
}

// Study is a degree programme the association serves.
type Study struct {
	ID   string    `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
	Slug string    `db:"slug" json:"slug"`
	Type StudyType `db:"type" json:"type"`
}

// CourseStudy links a course to a study for a nominal study year; the same
// course may be given to different studies in different years.
type CourseStudy struct {
	StudyID   string `db:"study_id" json:"study_id"`
	CourseID  string `db:"course_id" json:"course_id"`
	StudyYear *int   `db:"study_year" json:"study_year,omitempty"`
}

// StudyProgress summarises how far a study's courses are along in the
// current window, backing the association's home screen progress bars.
type StudyProgress struct {
	StudyID             string    `db:"study_id" json:"study_id"`
	Name                string    `db:"name" json:"name"`
	Type                StudyType `db:"type" json:"type"`
	CoursesTotal        int       `db:"courses_total" json:"courses_total"`
	UpdatedTeacher      int       `db:"updated_teacher" json:"updated_teacher"`
	UpdatedAssociations int       `db:"updated_associations" json:"updated_associations"`
}
