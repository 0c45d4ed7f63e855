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

// MSPHandler exposes material selection process endpoints.
type MSPHandler struct {
	service *service.MSPService
}

// NewMSPHandler constructs an MSP handler.
func NewMSPHandler(svc *service.MSPService) *MSPHandler {
	return &MSPHandler{service: svc}
}

// List godoc
// @Summary List material selection processes
// @Description List processes with derived workflow state
// @Tags MSPs
// @Produce json
// @Param course query string false "Filter by course id"
// @Param mandatory query bool false "Filter by mandatory flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /msps [get]
func (h *MSPHandler) List(c *gin.Context) {
	var filter models.MSPFilter
	filter.CourseID = c.Query("course")
	if mandatory := c.Query("mandatory"); mandatory != "" {
		if val, err := strconv.ParseBool(mandatory); err == nil {
			filter.Mandatory = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get process detail
// @Description Returns the process, its ordered timeline and derived state
// @Tags MSPs
// @Produce json
// @Param id path string true "MSP ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /msps/{id} [get]
func (h *MSPHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Open a material selection process
// @Description Creates the process and records the opening request line
// @Tags MSPs
// @Accept json
// @Produce json
// @Param payload body dto.CreateMSPRequest true "MSP payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /msps [post]
func (h *MSPHandler) Create(c *gin.Context) {
	var req dto.CreateMSPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	detail, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// AppendLine godoc
// @Summary Append a ledger entry
// @Description Appends one line to the process ledger; entries are never edited or removed
// @Tags MSPs
// @Accept json
// @Produce json
// @Param id path string true "MSP ID"
// @Param payload body dto.AppendLineRequest true "Line payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /msps/{id}/lines [post]
func (h *MSPHandler) AppendLine(c *gin.Context) {
	var req dto.AppendLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	detail, err := h.service.AppendLine(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdateTeachers godoc
// @Summary Replace supervising teachers
// @Tags MSPs
// @Accept json
// @Produce json
// @Param id path string true "MSP ID"
// @Param payload body handler.UpdateMSPTeachersRequest true "Teacher ids"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /msps/{id}/teachers [put]
func (h *MSPHandler) UpdateTeachers(c *gin.Context) {
	var req UpdateMSPTeachersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	detail, err := h.service.UpdateTeachers(c.Request.Context(), c.Param("id"), req.TeacherIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// UpdateMSPTeachersRequest carries the replacement teacher set.
type UpdateMSPTeachersRequest struct {
	TeacherIDs []string `json:"teacher_ids"`
}
