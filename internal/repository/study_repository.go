package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studver/matsel-api/internal/models"
)

// StudyRepository persists degree programmes.
type StudyRepository struct {
	db *sqlx.DB
}

// NewStudyRepository constructs the repository.
func NewStudyRepository(db *sqlx.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

// List returns every study ordered by type then name.
func (r *StudyRepository) List(ctx context.Context) ([]models.Study, error) {
	const query = `SELECT id, name, slug, type FROM studies ORDER BY type, name`
	var studies []models.Study
	if err := r.db.SelectContext(ctx, &studies, query); err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	return studies, nil
}

// GetByID fetches a study by identifier.
func (r *StudyRepository) GetByID(ctx context.Context, id string) (*models.Study, error) {
	const query = `SELECT id, name, slug, type FROM studies WHERE id = $1`
	var study models.Study
	if err := r.db.GetContext(ctx, &study, query, id); err != nil {
		return nil, err
	}
	return &study, nil
}

// GetBySlug fetches a study by its URL slug.
func (r *StudyRepository) GetBySlug(ctx context.Context, slug string) (*models.Study, error) {
	const query = `SELECT id, name, slug, type FROM studies WHERE slug = $1`
	var study models.Study
	if err := r.db.GetContext(ctx, &study, query, slug); err != nil {
		return nil, err
	}
	return &study, nil
}

// Create inserts a study.
func (r *StudyRepository) Create(ctx context.Context, study *models.Study) error {
	if study.ID == "" {
		study.ID = uuid.NewString()
	}
	const query = `INSERT INTO studies (id, name, slug, type) VALUES (:id, :name, :slug, :type)`
	if _, err := r.db.NamedExecContext(ctx, query, study); err != nil {
		return fmt.Errorf("create study: %w", err)
	}
	return nil
}

// Progress aggregates per study how many courses in the reporting window
// exist and how many each side has checked off.
func (r *StudyRepository) Progress(ctx context.Context, window models.ReportingWindow) ([]models.StudyProgress, error) {
	closure := models.PeriodClosure(window.Period)
	periods := make([]string, len(closure))
	for i, p := range closure {
		periods[i] = string(p)
	}

	const query = `SELECT s.id AS study_id, s.name, s.type,
	       COUNT(c.id) AS courses_total,
	       COUNT(c.id) FILTER (WHERE c.updated_teacher) AS updated_teacher,
	       COUNT(c.id) FILTER (WHERE c.updated_associations) AS updated_associations
	FROM studies s
	LEFT JOIN course_studies cs ON cs.study_id = s.id
	LEFT JOIN courses c ON c.id = cs.course_id AND c.calendar_year = $1 AND c.period = ANY($2)
	GROUP BY s.id, s.name, s.type
	ORDER BY s.type, s.name`

	var progress []models.StudyProgress
	if err := r.db.SelectContext(ctx, &progress, query, window.Year, pq.Array(periods)); err != nil {
		return nil, fmt.Errorf("study progress: %w", err)
	}
	return progress, nil
}
