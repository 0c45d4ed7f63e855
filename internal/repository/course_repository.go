package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studver/matsel-api/internal/models"
)

// CourseRepository persists course occurrences and their study and teacher
// links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a course with its teacher links and optional study link.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course, studyID string, studyYear *int) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO courses
	(id, name, course_code, period, calendar_year, coordinator_id, updated_teacher, updated_associations, created_at, updated_at)
	VALUES (:id, :name, :course_code, :period, :calendar_year, :coordinator_id, :updated_teacher, :updated_associations, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}

	for _, teacherID := range course.TeacherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1, $2)`,
			course.ID, teacherID); err != nil {
			return fmt.Errorf("link course teacher: %w", err)
		}
	}
	if studyID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_studies (course_id, study_id, study_year) VALUES ($1, $2, $3)`,
			course.ID, studyID, studyYear); err != nil {
			return fmt.Errorf("link course study: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// GetByID fetches a course with its teacher links.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, course_code, period, calendar_year, coordinator_id,
	       updated_teacher, updated_associations, created_at, updated_at
	FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &course.TeacherIDs,
		`SELECT teacher_id FROM course_teachers WHERE course_id = $1 ORDER BY teacher_id`, id); err != nil {
		return nil, fmt.Errorf("load course teachers: %w", err)
	}
	return &course, nil
}

// List returns courses matching the filter with a total count. A reporting
// window restricts the listing to the window's calendar year and to every
// period in the closure of the window's period, so full-year courses show up
// in quartile reports and the other way round.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses c`
	var conditions []string
	var args []interface{}

	if filter.StudyID != "" || filter.StudyType != "" || filter.StudyYear != nil {
		baseQuery += ` JOIN course_studies cs ON cs.course_id = c.id JOIN studies s ON s.id = cs.study_id`
		if filter.StudyID != "" {
			conditions = append(conditions, fmt.Sprintf("cs.study_id = $%d", len(args)+1))
			args = append(args, filter.StudyID)
		}
		if filter.StudyType != "" {
			conditions = append(conditions, fmt.Sprintf("s.type = $%d", len(args)+1))
			args = append(args, filter.StudyType)
		}
		if filter.StudyYear != nil {
			conditions = append(conditions, fmt.Sprintf("cs.study_year = $%d", len(args)+1))
			args = append(args, *filter.StudyYear)
		}
	}
	if filter.Window != nil {
		conditions = append(conditions, fmt.Sprintf("c.calendar_year = $%d", len(args)+1))
		args = append(args, filter.Window.Year)
		closure := models.PeriodClosure(filter.Window.Period)
		periods := make([]string, len(closure))
		for i, p := range closure {
			periods[i] = string(p)
		}
		conditions = append(conditions, fmt.Sprintf("c.period = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(periods))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.course_code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":          "c.name",
		"course_code":   "c.course_code",
		"period":        "c.period",
		"calendar_year": "c.calendar_year",
		"created_at":    "c.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "c.name"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT DISTINCT c.id, c.name, c.course_code, c.period, c.calendar_year, c.coordinator_id,
	       c.updated_teacher, c.updated_associations, c.created_at, c.updated_at
	%s ORDER BY %s %s, c.id LIMIT %d OFFSET %d`, baseQuery, column, sortOrder, pageSize, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT c.id) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// Update updates mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, course_code = :course_code, period = :period,
	calendar_year = :calendar_year, coordinator_id = :coordinator_id, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// SetUpdatedFlag marks the course as checked by one of the two sides.
func (r *CourseRepository) SetUpdatedFlag(ctx context.Context, id string, side models.ActorSide) error {
	column := "updated_associations"
	if side == models.SideTeacher {
		column = "updated_teacher"
	}
	query := fmt.Sprintf(`UPDATE courses SET %s = TRUE, updated_at = $2 WHERE id = $1`, column)
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("set course updated flag: %w", err)
	}
	return nil
}

// ResetUpdatedFlags clears both checked flags on every course. Runs when a
// new reporting window opens.
func (r *CourseRepository) ResetUpdatedFlags(ctx context.Context) error {
	const query = `UPDATE courses SET updated_teacher = FALSE, updated_associations = FALSE, updated_at = $1`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC()); err != nil {
		return fmt.Errorf("reset course updated flags: %w", err)
	}
	return nil
}

// ReplaceTeachers rewrites the set of teachers giving a course.
func (r *CourseRepository) ReplaceTeachers(ctx context.Context, courseID string, teacherIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace course teachers: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_teachers WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear course teachers: %w", err)
	}
	for _, teacherID := range teacherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1, $2)`,
			courseID, teacherID); err != nil {
			return fmt.Errorf("link course teacher: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace course teachers: %w", err)
	}
	return nil
}

// ListStudies returns the study links of a course.
func (r *CourseRepository) ListStudies(ctx context.Context, courseID string) ([]models.CourseStudy, error) {
	const query = `SELECT study_id, course_id, study_year FROM course_studies WHERE course_id = $1 ORDER BY study_id`
	var links []models.CourseStudy
	if err := r.db.SelectContext(ctx, &links, query, courseID); err != nil {
		return nil, fmt.Errorf("list course studies: %w", err)
	}
	return links, nil
}
