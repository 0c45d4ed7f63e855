package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
	"github.com/studver/matsel-api/pkg/export"
)

type stubExportCourses struct {
	courses    []models.Course
	lastFilter models.CourseFilter
}

func (s *stubExportCourses) List(_ context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	s.lastFilter = filter
	if filter.Page > 1 {
		return nil, len(s.courses), nil
	}
	return s.courses, len(s.courses), nil
}

type stubExportMSPs struct {
	byCourse map[string][]models.MSP
	lines    map[string][]models.MSPLine
}

func (s *stubExportMSPs) ListByCourse(_ context.Context, courseID string) ([]models.MSP, error) {
	return s.byCourse[courseID], nil
}

func (s *stubExportMSPs) ListLines(_ context.Context, mspID string) ([]models.MSPLine, error) {
	return s.lines[mspID], nil
}

type capturingCSV struct {
	dataset export.Dataset
}

func (c *capturingCSV) Render(data export.Dataset) ([]byte, error) {
	c.dataset = data
	return []byte("csv"), nil
}

type capturingPDF struct {
	dataset export.Dataset
	title   string
}

func (c *capturingPDF) Render(data export.Dataset, title string) ([]byte, error) {
	c.dataset = data
	c.title = title
	return []byte("%PDF"), nil
}

func isbnPtr(v string) *string { return &v }

func resolvedLedger(book models.Material) []models.MSPLine {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return []models.MSPLine{
		{ID: "l1", Seq: 1, Type: models.MSPLineRequestMaterial, Time: at},
		{ID: "l2", Seq: 2, Type: models.MSPLineSetAvailableMaterials, Time: at.Add(time.Minute), Materials: []models.Material{book}},
		{ID: "l3", Seq: 3, Type: models.MSPLineApproveMaterial, Time: at.Add(2 * time.Minute), Materials: []models.Material{book}},
	}
}

func TestGenerateLMLEmitsOnlyResolvedBooks(t *testing.T) {
	book := models.Material{ID: "m1", Kind: models.MaterialBook, Name: "Discrete Mathematics", ISBN: isbnPtr("9780131593183")}
	article := models.Material{ID: "m2", Kind: models.MaterialArticle, Name: "Some paper"}

	courses := &stubExportCourses{courses: []models.Course{
		{ID: "c1", Name: "Wiskunde", Period: models.PeriodQ1, CalendarYear: 2026},
	}}
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	msps := &stubExportMSPs{
		byCourse: map[string][]models.MSP{"c1": {
			{ID: "msp-1", CourseID: "c1", Mandatory: true},
			{ID: "msp-2", CourseID: "c1", Mandatory: false},
			{ID: "msp-3", CourseID: "c1", Mandatory: true},
		}},
		lines: map[string][]models.MSPLine{
			"msp-1": resolvedLedger(book),
			// Resolved but the approval covers an article, not a book.
			"msp-2": resolvedLedger(article),
			// Still awaiting approval.
			"msp-3": {
				{ID: "l1", Seq: 1, Type: models.MSPLineSetAvailableMaterials, Time: at, Materials: []models.Material{book}},
			},
		},
	}

	csv := &capturingCSV{}
	svc := NewExportService(courses, msps, ExportConfig{LMLGroupPrefix: "TN"}, nil, nil, csv, &capturingPDF{})

	file, err := svc.GenerateLML(context.Background(), dto.LMLExportQuery{
		Tier:   dto.ExportTierBachelorY1,
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodQ1},
	})
	require.NoError(t, err)

	assert.Equal(t, "lml_bachelor_y1_2026_q1.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	require.Len(t, csv.dataset.Rows, 1)
	row := csv.dataset.Rows[0]
	assert.Equal(t, "TN1", row["groep"])
	assert.Equal(t, "Module 1.1 - Wiskunde", row["vak"])
	assert.Equal(t, "9780131593183", row["isbn"])
	assert.Equal(t, "verplicht", row["verplicht"])
	assert.Equal(t, "koop", row["huurkoop"])
	assert.Equal(t, "n", row["schoolBetaalt"])

	require.NotNil(t, courses.lastFilter.StudyYear)
	assert.Equal(t, 1, *courses.lastFilter.StudyYear)
	assert.Equal(t, models.StudyBachelor, courses.lastFilter.StudyType)
}

func TestGenerateLMLMasterSubjectAndGroup(t *testing.T) {
	book := models.Material{ID: "m1", Kind: models.MaterialBook, Name: "Quantum Mechanics", ISBN: isbnPtr("9781107189638")}
	courses := &stubExportCourses{courses: []models.Course{
		{ID: "c1", Name: "Advanced Quantum", Period: models.PeriodQ3, CalendarYear: 2026},
	}}
	msps := &stubExportMSPs{
		byCourse: map[string][]models.MSP{"c1": {{ID: "msp-1", CourseID: "c1", Mandatory: false}}},
		lines:    map[string][]models.MSPLine{"msp-1": resolvedLedger(book)},
	}

	csv := &capturingCSV{}
	svc := NewExportService(courses, msps, ExportConfig{LMLGroupPrefix: "TN"}, nil, nil, csv, &capturingPDF{})

	_, err := svc.GenerateLML(context.Background(), dto.LMLExportQuery{
		Tier:   dto.ExportTierMaster,
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodQ3},
	})
	require.NoError(t, err)

	require.Len(t, csv.dataset.Rows, 1)
	row := csv.dataset.Rows[0]
	assert.Equal(t, "TNM", row["groep"])
	// Master courses never use the module notation.
	assert.Equal(t, "Advanced Quantum", row["vak"])
	assert.Equal(t, "aanbevolen", row["verplicht"])
	assert.Equal(t, models.StudyMaster, courses.lastFilter.StudyType)
	assert.Nil(t, courses.lastFilter.StudyYear)
}

func TestGenerateLMLRejectsUnknownTier(t *testing.T) {
	svc := NewExportService(&stubExportCourses{}, &stubExportMSPs{}, ExportConfig{}, nil, nil, &capturingCSV{}, &capturingPDF{})

	_, err := svc.GenerateLML(context.Background(), dto.LMLExportQuery{
		Tier:   "DOCTORATE",
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodQ1},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateLMLHeaderOrder(t *testing.T) {
	csv := &capturingCSV{}
	svc := NewExportService(&stubExportCourses{}, &stubExportMSPs{}, ExportConfig{}, nil, nil, csv, &capturingPDF{})

	_, err := svc.GenerateLML(context.Background(), dto.LMLExportQuery{
		Tier:   dto.ExportTierPremaster,
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodFullYear},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"groep;vak;standaardvak;isbn;prognose;schoolBetaalt;verplicht;huurkoop;vanprijs;korting;opmerking",
		strings.Join(csv.dataset.Headers, ";"))
}

func TestGenerateLMLArchivesCopy(t *testing.T) {
	dir := t.TempDir()
	svc := NewExportService(&stubExportCourses{}, &stubExportMSPs{}, ExportConfig{ArchiveDir: dir}, nil, nil, &capturingCSV{}, &capturingPDF{})

	file, err := svc.GenerateLML(context.Background(), dto.LMLExportQuery{
		Tier:   dto.ExportTierMaster,
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodQ1},
	})
	require.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(dir, file.Filename))
	require.NoError(t, err)
	assert.Equal(t, file.Payload, archived)
}

func TestGenerateBooklist(t *testing.T) {
	book := models.Material{ID: "m1", Kind: models.MaterialBook, Name: "Mechanics", ISBN: isbnPtr("9780071086547")}
	courses := &stubExportCourses{courses: []models.Course{
		{ID: "c1", Name: "Klassieke Mechanica", CourseCode: "KM1", Period: models.PeriodQ2, CalendarYear: 2026},
	}}
	msps := &stubExportMSPs{
		byCourse: map[string][]models.MSP{"c1": {{ID: "msp-1", CourseID: "c1", Mandatory: true}}},
		lines:    map[string][]models.MSPLine{"msp-1": resolvedLedger(book)},
	}

	pdf := &capturingPDF{}
	svc := NewExportService(courses, msps, ExportConfig{BooklistTitle: "Boekenlijst"}, nil, nil, &capturingCSV{}, pdf)

	file, err := svc.GenerateBooklist(context.Background(), dto.BooklistQuery{
		Window: models.ReportingWindow{Year: 2026, Period: models.PeriodQ2},
	})
	require.NoError(t, err)

	assert.Equal(t, "booklist_2026_q2.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "Boekenlijst 2026 Q2", pdf.title)
	require.Len(t, pdf.dataset.Rows, 1)
	assert.Equal(t, "Klassieke Mechanica", pdf.dataset.Rows[0]["Course"])
	assert.Equal(t, "mandatory", pdf.dataset.Rows[0]["Obligation"])
}
