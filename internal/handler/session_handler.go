package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edacademy/attendance-api/internal/models"
	"github.com/edacademy/attendance-api/internal/service"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
	"github.com/edacademy/attendance-api/pkg/response"
)

// SessionHandler handles session scheduling endpoints.
type SessionHandler struct {
	service *service.SessionService
	metrics *service.MetricsService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, metrics *service.MetricsService) *SessionHandler {
	return &SessionHandler{service: svc, metrics: metrics}
}

// List godoc
// @Summary List sessions
// @Description List sessions filtered by class, teacher, subject or date
// @Tags Sessions
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param class_id query string false "Class filter"
// @Param teacher_id query string false "Teacher filter"
// @Param subject_id query string false "Subject filter"
// @Param date query string false "Date filter (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var filter models.SessionFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.ClassID = c.Query("class_id")
	filter.TeacherID = c.Query("teacher_id")
	filter.SubjectID = c.Query("subject_id")
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}

	sessions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, "", pagination)
}

// Get godoc
// @Summary Get session
// @Description Get a session with resolved names
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session, "")
}

// Create godoc
// @Summary Book session
// @Description Book a session, rejecting class or teacher collisions
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	session, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		h.metrics.RecordSessionBooking("rejected")
		h.writeError(c, err)
		return
	}
	h.metrics.RecordSessionBooking("booked")
	response.Created(c, session, "session booked")
}

// Update godoc
// @Summary Update session
// @Description Rewrite a session owned by the caller
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	session, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, session, "session updated")
}

// Delete godoc
// @Summary Delete session
// @Description Remove a session owned by the caller
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// writeError surfaces scheduling conflicts with the colliding slot attached.
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	var conflict *models.SessionConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithData(c, err, conflict.Conflict)
		return
	}
	response.Error(c, err)
}
