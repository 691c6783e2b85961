package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/edacademy/attendance-api/internal/service"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
	"github.com/edacademy/attendance-api/pkg/response"
)

// StatsHandler handles attendance statistics and dashboard endpoints.
type StatsHandler struct {
	service *service.StatsService
	exports *service.ExportService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(svc *service.StatsService, exports *service.ExportService) *StatsHandler {
	return &StatsHandler{service: svc, exports: exports}
}

// Student godoc
// @Summary Student stats
// @Description Attendance rate rollup for one student
// @Tags Stats
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /stats/student/{studentId} [get]
func (h *StatsHandler) Student(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	stats, err := h.service.StudentStats(c.Request.Context(), claims, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats, "")
}

// Class godoc
// @Summary Class stats
// @Description Per-student rates and the class average
// @Tags Stats
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /stats/class/{classId} [get]
func (h *StatsHandler) Class(c *gin.Context) {
	stats, err := h.service.ClassStats(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats, "")
}

// TeacherDashboard godoc
// @Summary Teacher dashboard
// @Description Class and student counts plus today's and pending sessions
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/teacher/dashboard [get]
func (h *StatsHandler) TeacherDashboard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, err := h.service.TeacherDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dashboard, "")
}

// StudentDashboard godoc
// @Summary Student dashboard
// @Description Status counters, monthly absences and today's schedule
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/student/dashboard [get]
func (h *StatsHandler) StudentDashboard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, err := h.service.StudentDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dashboard, "")
}

// Global godoc
// @Summary Global stats
// @Description Flat entity counts for the admin dashboard
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/global [get]
func (h *StatsHandler) Global(c *gin.Context) {
	stats, err := h.service.Global(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats, "")
}

// ExportClass godoc
// @Summary Export class report
// @Description Download the class attendance rollup as CSV or PDF
// @Tags Stats
// @Produce octet-stream
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /stats/class/{classId}/export [get]
func (h *StatsHandler) ExportClass(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, err := h.exports.ClassReport(c.Request.Context(), claims, c.Param("classId"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(200, file.ContentType, file.Data)
}
