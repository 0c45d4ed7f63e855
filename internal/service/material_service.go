package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type materialRepository interface {
	Create(ctx context.Context, material *models.Material) error
	GetByID(ctx context.Context, id string) (*models.Material, error)
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error)
	Update(ctx context.Context, material *models.Material) error
}

// CreateMaterialRequest describes payload for registering a material.
type CreateMaterialRequest struct {
	Kind             models.MaterialKind `json:"kind" validate:"required"`
	Name             string              `json:"name" validate:"required"`
	ISBN             *string             `json:"isbn"`
	DOI              *string             `json:"doi"`
	Author           *string             `json:"author"`
	Edition          *string             `json:"edition"`
	YearOfPublishing *int                `json:"year_of_publishing"`
	ImageURL         *string             `json:"image_url"`
	URL              *string             `json:"url"`
}

// UpdateMaterialRequest updates mutable fields of a material. The kind is
// fixed at creation.
type UpdateMaterialRequest struct {
	Name             string  `json:"name" validate:"required"`
	ISBN             *string `json:"isbn"`
	DOI              *string `json:"doi"`
	Author           *string `json:"author"`
	Edition          *string `json:"edition"`
	YearOfPublishing *int    `json:"year_of_publishing"`
	ImageURL         *string `json:"image_url"`
	URL              *string `json:"url"`
}

// MaterialService orchestrates the material catalogue.
type MaterialService struct {
	repo      materialRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService creates a new material service instance.
func NewMaterialService(repo materialRepository, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repo: repo, validator: validate, logger: logger}
}

// Create registers a material after kind-specific validation.
func (s *MaterialService) Create(ctx context.Context, req CreateMaterialRequest) (*models.Material, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if !req.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown material kind")
	}
	if req.Kind == models.MaterialBook {
		if req.ISBN == nil || *req.ISBN == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "books require an isbn")
		}
		if !ValidISBN(*req.ISBN) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid isbn")
		}
	}

	material := &models.Material{
		Kind:             req.Kind,
		Name:             req.Name,
		ISBN:             req.ISBN,
		DOI:              req.DOI,
		Author:           req.Author,
		Edition:          req.Edition,
		YearOfPublishing: req.YearOfPublishing,
		ImageURL:         req.ImageURL,
		URL:              req.URL,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	return material, nil
}

// Get returns a material by identifier.
func (s *MaterialService) Get(ctx context.Context, id string) (*models.Material, error) {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return material, nil
}

// List returns paginated materials.
func (s *MaterialService) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, *models.Pagination, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown material kind")
	}
	materials, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
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
	return materials, pagination, nil
}

// Update modifies a material record.
func (s *MaterialService) Update(ctx context.Context, id string, req UpdateMaterialRequest) (*models.Material, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}

	material, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if material.Kind == models.MaterialBook {
		if req.ISBN == nil || *req.ISBN == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "books require an isbn")
		}
		if !ValidISBN(*req.ISBN) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid isbn")
		}
	}

	material.Name = req.Name
	material.ISBN = req.ISBN
	material.DOI = req.DOI
	material.Author = req.Author
	material.Edition = req.Edition
	material.YearOfPublishing = req.YearOfPublishing
	material.ImageURL = req.ImageURL
	material.URL = req.URL

	if err := s.repo.Update(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update material")
	}
	return material, nil
}

// ValidISBN checks an ISBN-10 or ISBN-13 checksum. Hyphens and spaces are
// ignored; no remote lookup happens.
func ValidISBN(raw string) bool {
	normalized := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, raw)

	switch len(normalized) {
	case 10:
		return validISBN10(normalized)
	case 13:
		return validISBN13(normalized)
	}
	return false
}

func validISBN10(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		var value int
		switch {
		case r >= '0' && r <= '9':
			value = int(r - '0')
		case (r == 'X' || r == 'x') && i == 9:
			value = 10
		default:
			return false
		}
		sum += (10 - i) * value
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		if r < '0' || r > '9' {
			return false
		}
		value := int(r - '0')
		if i%2 == 1 {
			value *= 3
		}
		sum += value
	}
	return sum%10 == 0
}
