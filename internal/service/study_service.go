package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type studyRepository interface {
	List(ctx context.Context) ([]models.Study, error)
	GetByID(ctx context.Context, id string) (*models.Study, error)
	GetBySlug(ctx context.Context, slug string) (*models.Study, error)
	Create(ctx context.Context, study *models.Study) error
	Progress(ctx context.Context, window models.ReportingWindow) ([]models.StudyProgress, error)
}

// CreateStudyRequest describes payload for registering a study programme.
type CreateStudyRequest struct {
	Name string           `json:"name" validate:"required"`
	Slug string           `json:"slug" validate:"required"`
	Type models.StudyType `json:"type" validate:"required"`
}

// StudyService orchestrates study programmes and their progress summaries.
type StudyService struct {
	repo        studyRepository
	cache       *CacheService
	progressTTL time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudyService creates a new study service instance.
func NewStudyService(repo studyRepository, cache *CacheService, progressTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *StudyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if progressTTL <= 0 {
		progressTTL = 5 * time.Minute
	}
	return &StudyService{repo: repo, cache: cache, progressTTL: progressTTL, validator: validate, logger: logger}
}

// List returns every study programme.
func (s *StudyService) List(ctx context.Context) ([]models.Study, error) {
	studies, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list studies")
	}
	return studies, nil
}

// Get returns a study by identifier.
func (s *StudyService) Get(ctx context.Context, id string) (*models.Study, error) {
	study, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study")
	}
	return study, nil
}

// GetBySlug returns a study by its URL slug.
func (s *StudyService) GetBySlug(ctx context.Context, slug string) (*models.Study, error) {
	study, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study")
	}
	return study, nil
}

// Create registers a study programme.
func (s *StudyService) Create(ctx context.Context, req CreateStudyRequest) (*models.Study, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown study type")
	}

	study := &models.Study{Name: req.Name, Slug: req.Slug, Type: req.Type}
	if err := s.repo.Create(ctx, study); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create study")
	}
	return study, nil
}

// Progress returns per-study completion counts for the window, cached for a
// short period because it backs the most-hit screen.
func (s *StudyService) Progress(ctx context.Context, window models.ReportingWindow) ([]models.StudyProgress, error) {
	if !window.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown period")
	}

	key := fmt.Sprintf("progress:%d:%s", window.Year, window.Period)
	var cached []models.StudyProgress
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	progress, err := s.repo.Progress(ctx, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute study progress")
	}

	if err := s.cache.Set(ctx, key, progress, s.progressTTL); err != nil {
		s.logger.Warn("failed to cache study progress", zap.Error(err))
	}
	return progress, nil
}
