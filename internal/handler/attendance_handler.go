package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edacademy/attendance-api/internal/models"
	"github.com/edacademy/attendance-api/internal/service"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
	"github.com/edacademy/attendance-api/pkg/response"
)

// AttendanceHandler handles attendance endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
	metrics *service.MetricsService
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, metrics: metrics}
}

// sessionIDParam reads the session id whether the route binds it as
// :sessionId (/attendance/session/:sessionId) or :id (/sessions/:id/attendance).
func sessionIDParam(c *gin.Context) string {
	if id := c.Param("sessionId"); id != "" {
		return id
	}
	return c.Param("id")
}

// Mark godoc
// @Summary Mark attendance
// @Description Record a batch of attendance for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body service.MarkAttendanceRequest true "Attendance batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/session/{sessionId} [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	records, err := h.service.Mark(c.Request.Context(), claims, sessionIDParam(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordAttendanceMarks(len(records))
	response.OK(c, records, "attendance recorded")
}

// GetSession godoc
// @Summary Session attendance
// @Description Get a session with its marked records
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/session/{sessionId} [get]
func (h *AttendanceHandler) GetSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, records, err := h.service.GetSessionAttendance(c.Request.Context(), claims, sessionIDParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session, "records": records}, "")
}

// UpdateJustification godoc
// @Summary Update justification
// @Description Annotate an ABSENT or LATE record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance record ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{id}/justification [patch]
func (h *AttendanceHandler) UpdateJustification(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		Justification string `json:"justification" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "justification is required"))
		return
	}

	record, err := h.service.UpdateJustification(c.Request.Context(), claims, c.Param("id"), models.Justification(req.Justification))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, record, "justification updated")
}

// TeacherSessions godoc
// @Summary Teacher sessions
// @Description List the caller's sessions with marked counts
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/teacher/sessions [get]
func (h *AttendanceHandler) TeacherSessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.TeacherSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions, "")
}

// StudentHistory godoc
// @Summary Student history
// @Description List a student's class sessions with their records
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/student/{id} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	rows, err := h.service.StudentHistory(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows, "")
}

// StudentWeekly godoc
// @Summary Student weekly sessions
// @Description List a student's sessions for the week starting at week_start
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param week_start query string false "Week start (YYYY-MM-DD), defaults to the current week's Monday"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{id}/week [get]
func (h *AttendanceHandler) StudentWeekly(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	weekStart := mondayOf(time.Now().UTC())
	if raw := c.Query("week_start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "week_start must be formatted as YYYY-MM-DD"))
			return
		}
		weekStart = parsed
	}

	rows, err := h.service.StudentWeeklySessions(c.Request.Context(), claims, c.Param("id"), weekStart)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows, "")
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}
