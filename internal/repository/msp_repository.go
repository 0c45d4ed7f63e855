package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studver/matsel-api/internal/models"
)

// ErrStaleHead signals that an append was fenced against a last line that is
// no longer the head of the ledger.
var ErrStaleHead = errors.New("msp ledger head moved")

// MSPRepository persists material selection processes and their append-only
// line ledgers.
type MSPRepository struct {
	db *sqlx.DB
}

// NewMSPRepository constructs the repository.
func NewMSPRepository(db *sqlx.DB) *MSPRepository {
	return &MSPRepository{db: db}
}

// Create inserts a new process row and its teacher links.
func (r *MSPRepository) Create(ctx context.Context, msp *models.MSP) error {
	if msp.ID == "" {
		msp.ID = uuid.NewString()
	}
	if msp.CreatedAt.IsZero() {
		msp.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create msp: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO msps (id, course_id, mandatory, created_at)
	VALUES (:id, :course_id, :mandatory, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, msp); err != nil {
		return fmt.Errorf("create msp: %w", err)
	}

	for _, teacherID := range msp.TeacherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO msp_teachers (msp_id, teacher_id) VALUES ($1, $2)`,
			msp.ID, teacherID); err != nil {
			return fmt.Errorf("link msp teacher: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create msp: %w", err)
	}
	return nil
}

// GetByID fetches a process by identifier, teacher links included.
func (r *MSPRepository) GetByID(ctx context.Context, id string) (*models.MSP, error) {
	const query = `SELECT id, course_id, mandatory, created_at FROM msps WHERE id = $1`
	var msp models.MSP
	if err := r.db.GetContext(ctx, &msp, query, id); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &msp.TeacherIDs,
		`SELECT teacher_id FROM msp_teachers WHERE msp_id = $1 ORDER BY teacher_id`, id); err != nil {
		return nil, fmt.Errorf("load msp teachers: %w", err)
	}
	return &msp, nil
}

// List returns processes matching the filter with a total count, newest first.
func (r *MSPRepository) List(ctx context.Context, filter models.MSPFilter) ([]models.MSP, int, error) {
	baseQuery := `FROM msps WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Mandatory != nil {
		conditions = append(conditions, fmt.Sprintf("mandatory = $%d", len(args)+1))
		args = append(args, *filter.Mandatory)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf("SELECT id, course_id, mandatory, created_at %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var msps []models.MSP
	if err := r.db.SelectContext(ctx, &msps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list msps: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count msps: %w", err)
	}

	return msps, total, nil
}

// ListByCourse returns every process attached to a course, oldest first.
func (r *MSPRepository) ListByCourse(ctx context.Context, courseID string) ([]models.MSP, error) {
	const query = `SELECT id, course_id, mandatory, created_at FROM msps WHERE course_id = $1 ORDER BY created_at, id`
	var msps []models.MSP
	if err := r.db.SelectContext(ctx, &msps, query, courseID); err != nil {
		return nil, fmt.Errorf("list msps by course: %w", err)
	}
	return msps, nil
}

// ListLines returns the full ledger of a process in ledger order, with each
// line's materials attached.
func (r *MSPRepository) ListLines(ctx context.Context, mspID string) ([]models.MSPLine, error) {
	const query = `SELECT id, msp_id, seq, type, comment, time, created_by, created_by_side
	FROM msp_lines WHERE msp_id = $1 ORDER BY time, seq`
	var lines []models.MSPLine
	if err := r.db.SelectContext(ctx, &lines, query, mspID); err != nil {
		return nil, fmt.Errorf("list msp lines: %w", err)
	}
	if err := r.loadLineMaterials(ctx, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

type lineMaterialRow struct {
	LineID string `db:"line_id"`
	models.Material
}

func (r *MSPRepository) loadLineMaterials(ctx context.Context, lines []models.MSPLine) error {
	for i := range lines {
		lines[i].Materials = []models.Material{}
	}
	if len(lines) == 0 {
		return nil
	}

	lineIDs := make([]string, len(lines))
	byID := make(map[string]*models.MSPLine, len(lines))
	for i := range lines {
		lineIDs[i] = lines[i].ID
		byID[lines[i].ID] = &lines[i]
	}

	const query = `SELECT lm.line_id, m.id, m.kind, m.name, m.isbn, m.doi, m.author, m.edition,
	       m.year_of_publishing, m.image_url, m.url, m.created_at, m.updated_at
	FROM msp_line_materials lm
	JOIN materials m ON m.id = lm.material_id
	WHERE lm.line_id = ANY($1)
	ORDER BY lm.line_id, lm.position`

	var rows []lineMaterialRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(lineIDs)); err != nil {
		return fmt.Errorf("load line materials: %w", err)
	}
	for _, row := range rows {
		if line, ok := byID[row.LineID]; ok {
			line.Materials = append(line.Materials, row.Material)
		}
	}
	return nil
}

// AppendLineParams groups everything needed to append one ledger entry.
// ExpectedLastLineID, when non-nil, must match the current head line id; an
// empty string fences on the ledger still being empty.
type AppendLineParams struct {
	MSPID              string
	Type               models.MSPLineType
	Comment            *string
	Time               time.Time
	CreatedBy          *string
	CreatedBySide      models.ActorSide
	MaterialIDs        []string
	ExpectedLastLineID *string
}

// AppendLine appends one entry to a process ledger. The msps row is locked
// for the duration of the transaction so the sequence number and the fencing
// check are race free. Returns sql.ErrNoRows when the process does not exist
// and ErrStaleHead when the fence fails.
func (r *MSPRepository) AppendLine(ctx context.Context, params AppendLineParams) (*models.MSPLine, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append line: %w", err)
	}
	defer tx.Rollback()

	var mspID string
	if err := tx.GetContext(ctx, &mspID, `SELECT id FROM msps WHERE id = $1 FOR UPDATE`, params.MSPID); err != nil {
		return nil, err
	}

	var head struct {
		ID  string `db:"id"`
		Seq int    `db:"seq"`
	}
	err = tx.GetContext(ctx, &head,
		`SELECT id, seq FROM msp_lines WHERE msp_id = $1 ORDER BY time DESC, seq DESC LIMIT 1`,
		params.MSPID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}
	hasHead := err == nil

	if params.ExpectedLastLineID != nil {
		expected := *params.ExpectedLastLineID
		switch {
		case !hasHead && expected != "":
			return nil, ErrStaleHead
		case hasHead && expected != head.ID:
			return nil, ErrStaleHead
		}
	}

	when := params.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}
	line := models.MSPLine{
		ID:            uuid.NewString(),
		MSPID:         params.MSPID,
		Seq:           head.Seq + 1,
		Type:          params.Type,
		Comment:       params.Comment,
		Time:          when,
		CreatedBy:     params.CreatedBy,
		CreatedBySide: params.CreatedBySide,
		Materials:     []models.Material{},
	}

	const insertLine = `INSERT INTO msp_lines (id, msp_id, seq, type, comment, time, created_by, created_by_side)
	VALUES (:id, :msp_id, :seq, :type, :comment, :time, :created_by, :created_by_side)`
	if _, err := tx.NamedExecContext(ctx, insertLine, line); err != nil {
		return nil, fmt.Errorf("insert msp line: %w", err)
	}

	for position, materialID := range params.MaterialIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO msp_line_materials (line_id, material_id, position) VALUES ($1, $2, $3)`,
			line.ID, materialID, position); err != nil {
			return nil, fmt.Errorf("link line material: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append line: %w", err)
	}
	return &line, nil
}

// ReplaceTeachers rewrites the set of teachers supervising a process.
func (r *MSPRepository) ReplaceTeachers(ctx context.Context, mspID string, teacherIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace msp teachers: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM msp_teachers WHERE msp_id = $1`, mspID); err != nil {
		return fmt.Errorf("clear msp teachers: %w", err)
	}
	for _, teacherID := range teacherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO msp_teachers (msp_id, teacher_id) VALUES ($1, $2)`,
			mspID, teacherID); err != nil {
			return fmt.Errorf("link msp teacher: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace msp teachers: %w", err)
	}
	return nil
}
