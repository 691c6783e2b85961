package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edacademy/attendance-api/internal/models"
	"github.com/edacademy/attendance-api/internal/service"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
	"github.com/edacademy/attendance-api/pkg/response"
)

// ClassHandler handles class CRUD endpoints.
type ClassHandler struct {
	service *service.ClassService
}

// NewClassHandler creates a new class handler.
func NewClassHandler(svc *service.ClassService) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List classes
// @Description List classes with enrollment counts
// @Tags Classes
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param teacher_id query string false "Teacher filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	var filter models.ClassFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.TeacherID = c.Query("teacher_id")
	filter.Search = c.Query("search")

	classes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, "", pagination)
}

// Get godoc
// @Summary Get class
// @Description Get a class with its teacher and student roster
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class, "")
}

// Create godoc
// @Summary Create class
// @Description Open a new class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	class, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class, "class created")
}

// Update godoc
// @Summary Update class
// @Description Update class fields
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.UpdateClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req service.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	class, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class, "class updated")
}

// AssignTeacher godoc
// @Summary Assign teacher
// @Description Set the main teacher of a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/teacher [put]
func (h *ClassHandler) AssignTeacher(c *gin.Context) {
	var req struct {
		TeacherID string `json:"teacher_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required"))
		return
	}

	class, err := h.service.AssignTeacher(c.Request.Context(), c.Param("id"), req.TeacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class, "teacher assigned")
}

// Delete godoc
// @Summary Delete class
// @Description Remove a class without enrolled students
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
