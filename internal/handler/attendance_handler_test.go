package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edacademy/attendance-api/internal/middleware"
	"github.com/edacademy/attendance-api/internal/models"
	"github.com/edacademy/attendance-api/internal/service"
)

type stubAttendanceRepo struct {
	records []models.Attendance
}

func (s *stubAttendanceRepo) UpsertBatch(ctx context.Context, records []models.Attendance) ([]models.Attendance, error) {
	for i := range records {
		records[i].ID = records[i].StudentID + "-rec"
	}
	s.records = append(s.records, records...)
	return records, nil
}

func (s *stubAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	for _, record := range s.records {
		if record.ID == id {
			copy := record
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	return nil, nil
}

func (s *stubAttendanceRepo) UpdateJustification(ctx context.Context, id string, justification models.Justification) (*models.Attendance, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Justification = &justification
			copy := s.records[i]
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubAttendanceRepo) TeacherSessionsOverview(ctx context.Context, teacherID string) ([]models.SessionAttendanceOverview, error) {
	return nil, nil
}

func (s *stubAttendanceRepo) StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

func (s *stubAttendanceRepo) StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

type stubSessionLookup struct{ session *models.SessionDetail }

func (s *stubSessionLookup) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s.session != nil && s.session.ID == id {
		return s.session, nil
	}
	return nil, sql.ErrNoRows
}

type stubRosterLookup struct {
	users  map[string]*models.User
	roster []string
}

func (s *stubRosterLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubRosterLookup) ListStudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	return s.roster, nil
}

func newAttendanceHandlerFixture(repo *stubAttendanceRepo) *AttendanceHandler {
	sessions := &stubSessionLookup{session: &models.SessionDetail{
		Session: models.Session{ID: "sess-1", ClassID: "class-1", TeacherID: "teacher-1"},
	}}
	users := &stubRosterLookup{
		users:  map[string]*models.User{},
		roster: []string{"student-1", "student-2"},
	}
	svc := service.NewAttendanceService(repo, sessions, users, nil, nil)
	return NewAttendanceHandler(svc, nil)
}

func markRequest(t *testing.T, handler *AttendanceHandler, claims *models.JWTClaims, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/session/sess-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "sessionId", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, claims)
	handler.Mark(c)
	return w
}

func TestAttendanceHandlerMarkBatch(t *testing.T) {
	repo := &stubAttendanceRepo{}
	handler := newAttendanceHandlerFixture(repo)

	payload, err := json.Marshal(service.MarkAttendanceRequest{Records: []service.MarkAttendanceRecord{
		{StudentID: "student-1", Status: "PRESENT"},
		{StudentID: "student-2", Status: "ABSENT"},
	}})
	require.NoError(t, err)

	w := markRequest(t, handler, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, repo.records, 2)
}

func TestAttendanceHandlerMarkForeignStudentRejected(t *testing.T) {
	repo := &stubAttendanceRepo{}
	handler := newAttendanceHandlerFixture(repo)

	payload, err := json.Marshal(service.MarkAttendanceRequest{Records: []service.MarkAttendanceRecord{
		{StudentID: "student-1", Status: "PRESENT"},
		{StudentID: "outsider", Status: "PRESENT"},
	}})
	require.NoError(t, err)

	w := markRequest(t, handler, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "Student with ID outsider does not belong to the class of this session.", envelope.Error.Message)
	assert.Empty(t, repo.records, "a bad record must reject the whole batch")
}

func TestAttendanceHandlerMarkViaSessionRoute(t *testing.T) {
	repo := &stubAttendanceRepo{}
	handler := newAttendanceHandlerFixture(repo)

	payload, err := json.Marshal(service.MarkAttendanceRequest{Records: []service.MarkAttendanceRecord{
		{StudentID: "student-1", Status: "PRESENT"},
	}})
	require.NoError(t, err)

	// The /sessions/:id/attendance route binds the session under "id".
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/attendance", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, repo.records, 1)
}

func TestAttendanceHandlerMarkForeignSessionForbidden(t *testing.T) {
	repo := &stubAttendanceRepo{}
	handler := newAttendanceHandlerFixture(repo)

	payload, err := json.Marshal(service.MarkAttendanceRequest{Records: []service.MarkAttendanceRecord{
		{StudentID: "student-1", Status: "PRESENT"},
	}})
	require.NoError(t, err)

	w := markRequest(t, handler, &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, repo.records)
}

func TestAttendanceHandlerJustificationRequiresBody(t *testing.T) {
	handler := newAttendanceHandlerFixture(&stubAttendanceRepo{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/attendance/a1/justification", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.UpdateJustification(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerWeeklyRejectsBadDate(t *testing.T) {
	handler := newAttendanceHandlerFixture(&stubAttendanceRepo{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/attendance/student/student-1/week?week_start=tomorrow", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})

	handler.StudentWeekly(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMondayOf(t *testing.T) {
	// 2026-03-11 is a Wednesday.
	got := mondayOf(time.Date(2026, 3, 11, 14, 5, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)

	// Mondays map to themselves.
	got = mondayOf(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)

	// Sundays roll back six days.
	got = mondayOf(time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)
}
