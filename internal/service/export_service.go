package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
	"github.com/studver/matsel-api/pkg/export"
	"github.com/studver/matsel-api/pkg/storage"
)

type exportCourseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export rendering. ArchiveDir, when set, keeps a copy
// of every generated file on disk next to what is returned to the caller.
type ExportConfig struct {
	LMLGroupPrefix string
	BooklistTitle  string
	ArchiveDir     string
}

// ExportService renders the school-administration CSV (LML format) and the
// booklist PDF from resolved material selection processes.
type ExportService struct {
	courses exportCourseRepository
	msps    courseMSPReader
	csv     csvRenderer
	pdf     pdfRenderer
	metrics *MetricsService
	cfg     ExportConfig
	archive *storage.LocalStorage
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(courses exportCourseRepository, msps courseMSPReader, cfg ExportConfig, metrics *MetricsService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewDelimitedCSVExporter(';')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.BooklistTitle == "" {
		cfg.BooklistTitle = "Booklist"
	}
	var archive *storage.LocalStorage
	if cfg.ArchiveDir != "" {
		var err error
		archive, err = storage.NewLocalStorage(cfg.ArchiveDir)
		if err != nil {
			logger.Warn("export archive unavailable", zap.String("dir", cfg.ArchiveDir), zap.Error(err))
			archive = nil
		}
	}
	return &ExportService{
		courses: courses,
		msps:    msps,
		csv:     csv,
		pdf:     pdf,
		metrics: metrics,
		cfg:     cfg,
		archive: archive,
		logger:  logger,
	}
}

// archiveCopy keeps a copy of the generated file when an archive directory
// is configured. Failures never block the export itself.
func (s *ExportService) archiveCopy(file *dto.ExportFile) {
	if s.archive == nil || file == nil {
		return
	}
	if _, err := s.archive.Save(file.Filename, file.Payload); err != nil {
		s.logger.Warn("failed to archive export", zap.String("filename", file.Filename), zap.Error(err))
	}
}

var lmlHeaders = []string{
	"groep", "vak", "standaardvak", "isbn", "prognose", "schoolBetaalt",
	"verplicht", "huurkoop", "vanprijs", "korting", "opmerking",
}

// GenerateLML renders the LML CSV for one programme tier in the given
// window. Only books of resolved processes make it into the file.
func (s *ExportService) GenerateLML(ctx context.Context, query dto.LMLExportQuery) (*dto.ExportFile, error) {
	if !query.Tier.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown export tier")
	}
	if !query.Window.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown period")
	}
	start := time.Now()

	filter := models.CourseFilter{
		Window:   &query.Window,
		PageSize: 200,
	}
	studyYear := query.Tier.BachelorYear()
	switch {
	case studyYear > 0:
		filter.StudyType = models.StudyBachelor
		filter.StudyYear = &studyYear
	case query.Tier == dto.ExportTierMaster:
		filter.StudyType = models.StudyMaster
	default:
		filter.StudyType = models.StudyPremaster
	}

	rows := make([]map[string]string, 0, 64)
	page := 1
	for {
		filter.Page = page
		courses, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses for export")
		}
		for _, course := range courses {
			courseRows, err := s.lmlRowsForCourse(ctx, course, query.Tier, studyYear)
			if err != nil {
				return nil, err
			}
			rows = append(rows, courseRows...)
		}
		if page*filter.PageSize >= total || len(courses) == 0 {
			break
		}
		page++
	}

	payload, err := s.csv.Render(export.Dataset{Headers: lmlHeaders, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render LML csv")
	}

	if s.metrics != nil {
		s.metrics.ObserveExport("lml", time.Since(start))
	}
	filename := fmt.Sprintf("lml_%s_%d_%s.csv", strings.ToLower(string(query.Tier)), query.Window.Year, strings.ToLower(string(query.Window.Period)))
	file := &dto.ExportFile{
		Filename:    filename,
		ContentType: "text/csv",
		Payload:     payload,
	}
	s.archiveCopy(file)
	return file, nil
}

func (s *ExportService) lmlRowsForCourse(ctx context.Context, course models.Course, tier dto.ExportTier, studyYear int) ([]map[string]string, error) {
	msps, err := s.msps.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course msps")
	}

	var rows []map[string]string
	for _, msp := range msps {
		lines, err := s.msps.ListLines(ctx, msp.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp lines")
		}
		for _, material := range models.ApprovedMaterials(lines) {
			if material.Kind != models.MaterialBook {
				continue
			}
			verplicht := "aanbevolen"
			if msp.Mandatory {
				verplicht = "verplicht"
			}
			isbn := ""
			if material.ISBN != nil {
				isbn = *material.ISBN
			}
			rows = append(rows, map[string]string{
				"groep":         s.lmlGroup(tier, studyYear),
				"vak":           lmlSubject(course, studyYear),
				"standaardvak":  "",
				"isbn":          isbn,
				"prognose":      "",
				"schoolBetaalt": "n",
				"verplicht":     verplicht,
				"huurkoop":      "koop",
				"vanprijs":      "",
				"korting":       "",
				"opmerking":     material.Name,
			})
		}
	}
	return rows, nil
}

func (s *ExportService) lmlGroup(tier dto.ExportTier, studyYear int) string {
	prefix := s.cfg.LMLGroupPrefix
	switch {
	case studyYear > 0:
		return fmt.Sprintf("%s%d", prefix, studyYear)
	case tier == dto.ExportTierMaster:
		return prefix + "M"
	default:
		return prefix + "PM"
	}
}

// lmlSubject renders the subject column. Bachelor courses given in a single
// quartile get the module notation the administration expects; everything
// else goes out under its plain name.
func lmlSubject(course models.Course, studyYear int) string {
	if studyYear > 0 && course.Period.IsQuartile() {
		quartile := strings.TrimPrefix(string(course.Period), "Q")
		return fmt.Sprintf("Module %d.%s - %s", studyYear, quartile, course.Name)
	}
	return course.Name
}

// GenerateBooklist renders the per-window booklist PDF handed out to
// teachers: every approved material of every in-window course.
func (s *ExportService) GenerateBooklist(ctx context.Context, query dto.BooklistQuery) (*dto.ExportFile, error) {
	if !query.Window.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown period")
	}
	start := time.Now()

	filter := models.CourseFilter{
		Window:   &query.Window,
		PageSize: 200,
	}
	rows := make([]map[string]string, 0, 64)
	page := 1
	for {
		filter.Page = page
		courses, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses for booklist")
		}
		for _, course := range courses {
			msps, err := s.msps.ListByCourse(ctx, course.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course msps")
			}
			for _, msp := range msps {
				lines, err := s.msps.ListLines(ctx, msp.ID)
				if err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load msp lines")
				}
				for _, material := range models.ApprovedMaterials(lines) {
					mandatory := "recommended"
					if msp.Mandatory {
						mandatory = "mandatory"
					}
					rows = append(rows, map[string]string{
						"Course":     course.Name,
						"Code":       course.CourseCode,
						"Material":   material.Label(),
						"Kind":       string(material.Kind),
						"Obligation": mandatory,
					})
				}
			}
		}
		if page*filter.PageSize >= total || len(courses) == 0 {
			break
		}
		page++
	}

	dataset := export.Dataset{
		Headers: []string{"Course", "Code", "Material", "Kind", "Obligation"},
		Rows:    rows,
	}
	title := fmt.Sprintf("%s %d %s", s.cfg.BooklistTitle, query.Window.Year, query.Window.Period)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render booklist pdf")
	}

	if s.metrics != nil {
		s.metrics.ObserveExport("booklist", time.Since(start))
	}
	filename := fmt.Sprintf("booklist_%d_%s.pdf", query.Window.Year, strings.ToLower(string(query.Window.Period)))
	file := &dto.ExportFile{
		Filename:    filename,
		ContentType: "application/pdf",
		Payload:     payload,
	}
	s.archiveCopy(file)
	return file, nil
}
