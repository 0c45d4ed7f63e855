package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/service"
	"github.com/studver/matsel-api/pkg/response"
)

// ExportHandler exposes the LML and booklist export endpoints.
type ExportHandler struct {
	service *service.ExportService
	courses *service.CourseService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService, courses *service.CourseService) *ExportHandler {
	return &ExportHandler{service: svc, courses: courses}
}

func (h *ExportHandler) windowFromQuery(c *gin.Context) (models.ReportingWindow, error) {
	var year *int
	if raw := c.Query("year"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			year = &val
		}
	}
	return h.courses.ResolveWindow(year, models.Period(c.Query("period")))
}

// LML godoc
// @Summary Download the LML CSV for a programme tier
// @Description Renders the school-administration CSV for resolved processes in the window
// @Tags Exports
// @Produce text/csv
// @Param tier query string true "Tier (BACHELOR_Y1..BACHELOR_Y3, MASTER, PREMASTER)"
// @Param year query int false "Calendar year (defaults from configuration)"
// @Param period query string false "Period (defaults from configuration)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/lml [get]
func (h *ExportHandler) LML(c *gin.Context) {
	window, err := h.windowFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	query := dto.LMLExportQuery{
		Tier:   dto.ExportTier(c.Query("tier")),
		Window: window,
	}
	file, err := h.service.GenerateLML(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

// Booklist godoc
// @Summary Download the booklist PDF for a reporting window
// @Tags Exports
// @Produce application/pdf
// @Param year query int false "Calendar year (defaults from configuration)"
// @Param period query string false "Period (defaults from configuration)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/booklist [get]
func (h *ExportHandler) Booklist(c *gin.Context) {
	window, err := h.windowFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.service.GenerateBooklist(c.Request.Context(), dto.BooklistQuery{Window: window})
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

func serveFile(c *gin.Context, file *dto.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(200, file.ContentType, file.Payload)
}
