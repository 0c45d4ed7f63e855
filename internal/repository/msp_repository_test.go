package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studver/matsel-api/internal/models"
)

func newMSPRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func headRows(id string, seq int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "seq"}).AddRow(id, seq)
}

func expectLock(mock sqlmock.Sqlmock, mspID string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM msps WHERE id = $1 FOR UPDATE")).
		WithArgs(mspID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(mspID))
}

func TestAppendLineAssignsNextSeq(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	expectLock(mock, "msp-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM msp_lines WHERE msp_id = $1 ORDER BY time DESC, seq DESC LIMIT 1")).
		WithArgs("msp-1").
		WillReturnRows(headRows("line-3", 3))
	mock.ExpectExec("INSERT INTO msp_lines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO msp_line_materials").
		WithArgs(sqlmock.AnyArg(), "mat-1", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	line, err := repo.AppendLine(context.Background(), AppendLineParams{
		MSPID:         "msp-1",
		Type:          models.MSPLineSetAvailableMaterials,
		CreatedBySide: models.SideTeacher,
		MaterialIDs:   []string{"mat-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, line.Seq)
	assert.Equal(t, "msp-1", line.MSPID)
	assert.False(t, line.Time.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLineEmptyLedgerStartsAtOne(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	expectLock(mock, "msp-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM msp_lines")).
		WithArgs("msp-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO msp_lines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	line, err := repo.AppendLine(context.Background(), AppendLineParams{
		MSPID:         "msp-1",
		Type:          models.MSPLineRequestMaterial,
		CreatedBySide: models.SideBoecie,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, line.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLineFenceMismatch(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	expectLock(mock, "msp-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM msp_lines")).
		WithArgs("msp-1").
		WillReturnRows(headRows("line-9", 9))
	mock.ExpectRollback()

	expected := "line-2"
	_, err := repo.AppendLine(context.Background(), AppendLineParams{
		MSPID:              "msp-1",
		Type:               models.MSPLineApproveMaterial,
		CreatedBySide:      models.SideBoecie,
		MaterialIDs:        []string{"mat-1"},
		ExpectedLastLineID: &expected,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleHead))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLineFenceExpectsEmptyLedger(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	expectLock(mock, "msp-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM msp_lines")).
		WithArgs("msp-1").
		WillReturnRows(headRows("line-1", 1))
	mock.ExpectRollback()

	expected := ""
	_, err := repo.AppendLine(context.Background(), AppendLineParams{
		MSPID:              "msp-1",
		Type:               models.MSPLineRequestMaterial,
		CreatedBySide:      models.SideBoecie,
		ExpectedLastLineID: &expected,
	})
	assert.True(t, errors.Is(err, ErrStaleHead))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendLineUnknownMSP(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM msps WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.AppendLine(context.Background(), AppendLineParams{
		MSPID:         "missing",
		Type:          models.MSPLineRequestMaterial,
		CreatedBySide: models.SideBoecie,
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLinesOrdersAndAttachesMaterials(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	now := time.Now()
	lineRows := sqlmock.NewRows([]string{"id", "msp_id", "seq", "type", "comment", "time", "created_by", "created_by_side"}).
		AddRow("l1", "msp-1", 1, string(models.MSPLineRequestMaterial), nil, now, nil, string(models.SideBoecie)).
		AddRow("l2", "msp-1", 2, string(models.MSPLineSetAvailableMaterials), nil, now.Add(time.Minute), nil, string(models.SideTeacher))
	mock.ExpectQuery(regexp.QuoteMeta("FROM msp_lines WHERE msp_id = $1 ORDER BY time, seq")).
		WithArgs("msp-1").
		WillReturnRows(lineRows)

	materialRows := sqlmock.NewRows([]string{"line_id", "id", "kind", "name", "isbn", "doi", "author", "edition", "year_of_publishing", "image_url", "url", "created_at", "updated_at"}).
		AddRow("l2", "mat-1", string(models.MaterialBook), "Operating Systems", "9780136006633", nil, nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM msp_line_materials lm")).
		WillReturnRows(materialRows)

	lines, err := repo.ListLines(context.Background(), "msp-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Empty(t, lines[0].Materials)
	require.Len(t, lines[1].Materials, 1)
	assert.Equal(t, "Operating Systems", lines[1].Materials[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMSPCreateLinksTeachers(t *testing.T) {
	db, mock, cleanup := newMSPRepoMock(t)
	defer cleanup()
	repo := NewMSPRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO msps").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO msp_teachers").
		WithArgs(sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO msp_teachers").
		WithArgs(sqlmock.AnyArg(), "t2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msp := &models.MSP{CourseID: "c1", Mandatory: true, TeacherIDs: []string{"t1", "t2"}}
	require.NoError(t, repo.Create(context.Background(), msp))
	assert.NotEmpty(t, msp.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
