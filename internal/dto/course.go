package dto

import "github.com/studver/matsel-api/internal/models"

// CreateCourseRequest registers a course occurrence.
type CreateCourseRequest struct {
	Name          string        `json:"name" validate:"required"`
	CourseCode    string        `json:"course_code" validate:"required"`
	Period        models.Period `json:"period" validate:"required"`
	CalendarYear  int           `json:"calendar_year" validate:"required"`
	CoordinatorID *string       `json:"coordinator_id"`
	TeacherIDs    []string      `json:"teacher_ids"`
	StudyID       string        `json:"study_id"`
	StudyYear     *int          `json:"study_year"`
}

// UpdateCourseRequest modifies course fields.
type UpdateCourseRequest struct {
	Name          string        `json:"name" validate:"required"`
	CourseCode    string        `json:"course_code" validate:"required"`
	Period        models.Period `json:"period" validate:"required"`
	CalendarYear  int           `json:"calendar_year" validate:"required"`
	CoordinatorID *string       `json:"coordinator_id"`
	TeacherIDs    []string      `json:"teacher_ids"`
}

// CourseItem pairs a course with the derived state of its processes.
type CourseItem struct {
	Course        models.Course `json:"course"`
	MSPTotal      int           `json:"msp_total"`
	MSPResolved   int           `json:"msp_resolved"`
	NeedsApproval int           `json:"needs_approval"`
}
