package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/repository"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type mspRepository interface {
	Create(ctx context.Context, msp *models.MSP) error
	GetByID(ctx context.Context, id string) (*models.MSP, error)
	List(ctx context.Context, filter models.MSPFilter) ([]models.MSP, int, error)
	ListLines(ctx context.Context, mspID string) ([]models.MSPLine, error)
	AppendLine(ctx context.Context, params repository.AppendLineParams) (*models.MSPLine, error)
	ReplaceTeachers(ctx context.Context, mspID string, teacherIDs []string) error
}

type mspCourseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
	SetUpdatedFlag(ctx context.Context, id string, side models.ActorSide) error
}

type mspMaterialRepository interface {
	CountByIDs(ctx context.Context, ids []string) (int, error)
}

type mspTeacherRepository interface {
	CountByIDs(ctx context.Context, ids []string) (int, error)
}

// Actor identifies the authenticated party performing a workflow action.
// Side follows from the role: association and admin users act for Boecie.
type Actor struct {
	UserID    string
	Role      models.UserRole
	TeacherID *string
}

// Side returns the workflow side the actor appends for.
func (a Actor) Side() models.ActorSide {
	return a.Role.Side()
}

// MSPService orchestrates material selection processes: the append-only
// ledger, its derived state and the fencing rules.
type MSPService struct {
	msps      mspRepository
	courses   mspCourseRepository
	materials mspMaterialRepository
	teachers  mspTeacherRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMSPService creates a new MSP service instance.
func NewMSPService(msps mspRepository, courses mspCourseRepository, materials mspMaterialRepository, teachers mspTeacherRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *MSPService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MSPService{
		msps:      msps,
		courses:   courses,
		materials: materials,
		teachers:  teachers,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Create opens a new process on a course and records the opening request
// line in the same call.
func (s *MSPService) Create(ctx context.Context, req dto.CreateMSPRequest, actor Actor) (*dto.MSPDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid msp payload")
	}

	if _, err := s.courses.GetByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.checkTeachersExist(ctx, req.TeacherIDs); err != nil {
		return nil, err
	}
	if err := s.checkMaterialsExist(ctx, req.Materials); err != nil {
		return nil, err
	}

	mandatory := true
	if req.Mandatory != nil {
		mandatory = *req.Mandatory
	}
	msp := &models.MSP{
		CourseID:   req.CourseID,
		Mandatory:  mandatory,
		TeacherIDs: req.TeacherIDs,
	}
	if err := s.msps.Create(ctx, msp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create msp")
	}

	params := repository.AppendLineParams{
		MSPID:         msp.ID,
		Type:          models.MSPLineRequestMaterial,
		Comment:       optionalString(req.Comment),
		CreatedBy:     optionalString(actor.UserID),
		CreatedBySide: actor.Side(),
		MaterialIDs:   req.Materials,
	}
	if _, err := s.msps.AppendLine(ctx, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record opening request")
	}

	return s.Get(ctx, msp.ID)
}

// Get returns the process with its ordered timeline and every derived state.
func (s *MSPService) Get(ctx context.Context, id string) (*dto.MSPDetail, error) {
	msp, err := s.msps.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "msp not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp")
	}
	lines, err := s.msps.ListLines(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp lines")
	}

	return &dto.MSPDetail{
		MSP:                    *msp,
		Lines:                  lines,
		Stage:                  models.MSPStageOf(lines),
		Resolved:               models.MSPResolved(lines),
		NeedsAttention:         models.MSPNeedsAttention(lines),
		Summary:                models.MSPSummary(lines),
		LastAvailableMaterials: models.LastAvailableMaterials(lines),
	}, nil
}

// List returns processes with their derived listing state.
func (s *MSPService) List(ctx context.Context, filter models.MSPFilter) ([]dto.MSPListItem, *models.Pagination, error) {
	msps, total, err := s.msps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list msps")
	}

	items := make([]dto.MSPListItem, 0, len(msps))
	for _, msp := range msps {
		lines, err := s.msps.ListLines(ctx, msp.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp lines")
		}
		items = append(items, dto.MSPListItem{
			MSP:      msp,
			Stage:    models.MSPStageOf(lines),
			Resolved: models.MSPResolved(lines),
			Summary:  models.MSPSummary(lines),
		})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return items, pagination, nil
}

// AppendLine appends one ledger entry. Offers and approvals must reference
// at least one material; the optional fence rejects appends racing another
// actor. The course's checked flag for the actor's side is set on success.
func (s *MSPService) AppendLine(ctx context.Context, mspID string, req dto.AppendLineRequest, actor Actor) (*dto.MSPDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid line payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown line type")
	}
	if req.Type.RequiresMaterials() && len(req.Materials) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "line type requires at least one material")
	}
	if err := s.checkMaterialsExist(ctx, req.Materials); err != nil {
		return nil, err
	}

	msp, err := s.msps.GetByID(ctx, mspID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "msp not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp")
	}

	params := repository.AppendLineParams{
		MSPID:              msp.ID,
		Type:               req.Type,
		Comment:            optionalString(req.Comment),
		Time:               time.Now().UTC(),
		CreatedBy:          optionalString(actor.UserID),
		CreatedBySide:      actor.Side(),
		MaterialIDs:        req.Materials,
		ExpectedLastLineID: req.ExpectedLastLineID,
	}
	if _, err := s.msps.AppendLine(ctx, params); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleHead):
			return nil, appErrors.Clone(appErrors.ErrConflict, "msp was modified by someone else")
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "msp not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append msp line")
		}
	}

	s.metrics.RecordLineAppend(string(req.Type))

	if err := s.courses.SetUpdatedFlag(ctx, msp.CourseID, actor.Side()); err != nil {
		s.logger.Warn("failed to flag course as updated", zap.String("course_id", msp.CourseID), zap.Error(err))
	}

	return s.Get(ctx, mspID)
}

// UpdateTeachers rewrites the supervising teachers of a process.
func (s *MSPService) UpdateTeachers(ctx context.Context, mspID string, teacherIDs []string) (*dto.MSPDetail, error) {
	if _, err := s.msps.GetByID(ctx, mspID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "msp not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp")
	}
	if err := s.checkTeachersExist(ctx, teacherIDs); err != nil {
		return nil, err
	}
	if err := s.msps.ReplaceTeachers(ctx, mspID, teacherIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update msp teachers")
	}
	return s.Get(ctx, mspID)
}

func (s *MSPService) checkMaterialsExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	count, err := s.materials.CountByIDs(ctx, dedupe(ids))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check materials")
	}
	if count != len(dedupe(ids)) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown material referenced")
	}
	return nil
}

func (s *MSPService) checkTeachersExist(ctx context.Context, ids []string) error {
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

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
