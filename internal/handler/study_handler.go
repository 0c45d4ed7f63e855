package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/service"
	appErrors "github.com/studver/matsel-api/pkg/errors"
	"github.com/studver/matsel-api/pkg/response"
)

// StudyHandler exposes study programme endpoints.
type StudyHandler struct {
	service *service.StudyService
	courses *service.CourseService
}

// NewStudyHandler constructs a study handler.
func NewStudyHandler(svc *service.StudyService, courses *service.CourseService) *StudyHandler {
	return &StudyHandler{service: svc, courses: courses}
}

// List godoc
// @Summary List studies
// @Tags Studies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /studies [get]
func (h *StudyHandler) List(c *gin.Context) {
	studies, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, studies, nil)
}

// Get godoc
// @Summary Get study
// @Tags Studies
// @Produce json
// @Param id path string true "Study ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /studies/{id} [get]
func (h *StudyHandler) Get(c *gin.Context) {
	study, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, study, nil)
}

// Create godoc
// @Summary Create study
// @Tags Studies
// @Accept json
// @Produce json
// @Param payload body service.CreateStudyRequest true "Study payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /studies [post]
func (h *StudyHandler) Create(c *gin.Context) {
	var req service.CreateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	study, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, study)
}

// Progress godoc
// @Summary Study progress in a reporting window
// @Description Per-study counts of courses reviewed by each side
// @Tags Studies
// @Produce json
// @Param year query int false "Calendar year (defaults from configuration)"
// @Param period query string false "Period (defaults from configuration)"
// @Success 200 {object} response.Envelope
// @Router /studies/progress [get]
func (h *StudyHandler) Progress(c *gin.Context) {
	var year *int
	if raw := c.Query("year"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			year = &val
		}
	}
	window, err := h.courses.ResolveWindow(year, models.Period(c.Query("period")))
	if err != nil {
		response.Error(c, err)
		return
	}

	progress, err := h.service.Progress(c.Request.Context(), window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
