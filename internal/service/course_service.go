package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course, studyID string, studyYear *int) error
	GetByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Update(ctx context.Context, course *models.Course) error
	SetUpdatedFlag(ctx context.Context, id string, side models.ActorSide) error
	ResetUpdatedFlags(ctx context.Context) error
	ReplaceTeachers(ctx context.Context, courseID string, teacherIDs []string) error
	ListStudies(ctx context.Context, courseID string) ([]models.CourseStudy, error)
}

type courseMSPReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.MSP, error)
	ListLines(ctx context.Context, mspID string) ([]models.MSPLine, error)
}

type progressInvalidator interface {
	InvalidateProgress(ctx context.Context)
}

// CourseService orchestrates course occurrences and their reporting-window
// listings.
type CourseService struct {
	courses       courseRepository
	msps          courseMSPReader
	teachers      mspTeacherRepository
	cache         progressInvalidator
	defaultWindow models.ReportingWindow
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewCourseService creates a new course service instance. defaultWindow
// backs listings that do not pin a window explicitly.
func NewCourseService(courses courseRepository, msps courseMSPReader, teachers mspTeacherRepository, cache progressInvalidator, defaultWindow models.ReportingWindow, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		courses:       courses,
		msps:          msps,
		teachers:      teachers,
		cache:         cache,
		defaultWindow: defaultWindow,
		validator:     validate,
		logger:        logger,
	}
}

// ResolveWindow turns optional request parameters into a concrete reporting
// window, falling back to the configured defaults.
func (s *CourseService) ResolveWindow(year *int, period models.Period) (models.ReportingWindow, error) {
	window := s.defaultWindow
	if year != nil {
		window.Year = *year
	}
	if period != "" {
		if !period.Valid() {
			return models.ReportingWindow{}, appErrors.Clone(appErrors.ErrValidation, "unknown period")
		}
		window.Period = period
	}
	return window, nil
}

// Create registers a course with its teacher links and optional study link.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !req.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown period")
	}
	if err := s.checkTeachersExist(ctx, req.TeacherIDs); err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:          req.Name,
		CourseCode:    req.CourseCode,
		Period:        req.Period,
		CalendarYear:  req.CalendarYear,
		CoordinatorID: req.CoordinatorID,
		TeacherIDs:    req.TeacherIDs,
	}
	if err := s.courses.Create(ctx, course, req.StudyID, req.StudyYear); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateProgress(ctx)
	return course, nil
}

// Get returns a course by identifier.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns in-window courses with derived process counts.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]dto.CourseItem, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	items := make([]dto.CourseItem, 0, len(courses))
	for _, course := range courses {
		item := dto.CourseItem{Course: course}
		msps, err := s.msps.ListByCourse(ctx, course.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course msps")
		}
		for _, msp := range msps {
			lines, err := s.msps.ListLines(ctx, msp.ID)
			if err != nil {
				return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp lines")
			}
			item.MSPTotal++
			if models.MSPResolved(lines) {
				item.MSPResolved++
			}
			if models.MSPNeedsAttention(lines) {
				item.NeedsApproval++
			}
		}
		items = append(items, item)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return items, pagination, nil
}

// Update modifies course fields and teacher links.
func (s *CourseService) Update(ctx context.Context, id string, req dto.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !req.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown period")
	}

	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.checkTeachersExist(ctx, req.TeacherIDs); err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.CourseCode = req.CourseCode
	course.Period = req.Period
	course.CalendarYear = req.CalendarYear
	course.CoordinatorID = req.CoordinatorID

	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if err := s.courses.ReplaceTeachers(ctx, id, req.TeacherIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course teachers")
	}
	course.TeacherIDs = req.TeacherIDs

	s.invalidateProgress(ctx)
	return course, nil
}

// MarkChecked flags the course as reviewed by the actor's side.
func (s *CourseService) MarkChecked(ctx context.Context, id string, actor Actor) (*models.Course, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.courses.SetUpdatedFlag(ctx, id, actor.Side()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark course checked")
	}
	s.invalidateProgress(ctx)
	return s.Get(ctx, id)
}

// OpenNewWindow clears both checked flags on every course. Run by admins
// when a new reporting window starts.
func (s *CourseService) OpenNewWindow(ctx context.Context) error {
	if err := s.courses.ResetUpdatedFlags(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset course flags")
	}
	s.invalidateProgress(ctx)
	return nil
}

// ListStudies returns the study links of a course.
func (s *CourseService) ListStudies(ctx context.Context, courseID string) ([]models.CourseStudy, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	links, err := s.courses.ListStudies(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course studies")
	}
	return links, nil
}

func (s *CourseService) checkTeachersExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	unique := dedupe(ids)
	count, err := s.teachers.CountByIDs(ctx, unique)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teachers")
	}
	if count != len(unique) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown teacher referenced")
	}
	return nil
}

func (s *CourseService) invalidateProgress(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateProgress(ctx)
	}
}
