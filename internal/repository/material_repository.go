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

// MaterialRepository persists the material catalogue.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

const materialColumns = `id, kind, name, isbn, doi, author, edition, year_of_publishing, image_url, url, created_at, updated_at`

// Create inserts a material.
func (r *MaterialRepository) Create(ctx context.Context, material *models.Material) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if material.CreatedAt.IsZero() {
		material.CreatedAt = now
	}
	material.UpdatedAt = now

	const query = `INSERT INTO materials
	(id, kind, name, isbn, doi, author, edition, year_of_publishing, image_url, url, created_at, updated_at)
	VALUES (:id, :kind, :name, :isbn, :doi, :author, :edition, :year_of_publishing, :image_url, :url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// GetByID fetches a material by identifier.
func (r *MaterialRepository) GetByID(ctx context.Context, id string) (*models.Material, error) {
	query := fmt.Sprintf(`SELECT %s FROM materials WHERE id = $1`, materialColumns)
	var material models.Material
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// List returns materials matching the filter with a total count.
func (r *MaterialRepository) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	baseQuery := `FROM materials WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR isbn LIKE $%d OR LOWER(author) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"kind":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
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
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, id LIMIT %d OFFSET %d", materialColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list materials: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count materials: %w", err)
	}

	return materials, total, nil
}

// Update updates mutable material fields.
func (r *MaterialRepository) Update(ctx context.Context, material *models.Material) error {
	material.UpdatedAt = time.Now().UTC()
	const query = `UPDATE materials SET name = :name, isbn = :isbn, doi = :doi, author = :author,
	edition = :edition, year_of_publishing = :year_of_publishing, image_url = :image_url, url = :url,
	updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	return nil
}

// CountByIDs returns how many of the given ids exist. Services use it to
// reject ledger entries referencing unknown materials in one round trip.
func (r *MaterialRepository) CountByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `SELECT COUNT(DISTINCT id) FROM materials WHERE id = ANY($1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("count materials by ids: %w", err)
	}
	return count, nil
}
