package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studver/matsel-api/internal/dto"
	"github.com/studver/matsel-api/internal/models"
	"github.com/studver/matsel-api/internal/service"
	appErrors "github.com/studver/matsel-api/pkg/errors"
	"github.com/studver/matsel-api/pkg/response"
)

// CourseHandler exposes course endpoints.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// windowFromQuery resolves the optional year/period query parameters against
// the configured default window.
func (h *CourseHandler) windowFromQuery(c *gin.Context) (models.ReportingWindow, error) {
	var year *int
	if raw := c.Query("year"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			year = &val
		}
	}
	return h.service.ResolveWindow(year, models.Period(c.Query("period")))
}

// List godoc
// @Summary List courses in a reporting window
// @Description Lists courses whose period falls in the window, with process counts
// @Tags Courses
// @Produce json
// @Param year query int false "Calendar year (defaults from configuration)"
// @Param period query string false "Period (defaults from configuration)"
// @Param study query string false "Filter by study id"
// @Param studyYear query int false "Filter by nominal study year"
// @Param search query string false "Search by name or code"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	window, err := h.windowFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.CourseFilter{
		Window:  &window,
		StudyID: c.Query("study"),
		Search:  c.Query("search"),
	}
	if raw := c.Query("studyYear"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			filter.StudyYear = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req dto.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// MarkChecked godoc
// @Summary Mark course as reviewed
// @Description Flags the course as checked by the caller's side
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/checked [post]
func (h *CourseHandler) MarkChecked(c *gin.Context) {
	course, err := h.service.MarkChecked(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// OpenNewWindow godoc
// @Summary Open a new reporting window
// @Description Clears the checked flags on every course
// @Tags Courses
// @Produce json
// @Success 204
// @Router /courses/open-window [post]
func (h *CourseHandler) OpenNewWindow(c *gin.Context) {
	if err := h.service.OpenNewWindow(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudies godoc
// @Summary List study links of a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/studies [get]
func (h *CourseHandler) ListStudies(c *gin.Context) {
	links, err := h.service.ListStudies(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}
