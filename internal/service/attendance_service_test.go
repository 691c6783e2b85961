package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records map[string]*models.Attendance
	nextID  int
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]*models.Attendance)}
}

func (m *mockAttendanceRepo) key(sessionID, studentID string) string {
	return sessionID + "/" + studentID
}

func (m *mockAttendanceRepo) UpsertBatch(ctx context.Context, records []models.Attendance) ([]models.Attendance, error) {
	saved := make([]models.Attendance, 0, len(records))
	for _, record := range records {
		key := m.key(record.SessionID, record.StudentID)
		if existing, ok := m.records[key]; ok {
			record.ID = existing.ID
		} else {
			m.nextID++
			record.ID = fmt.Sprintf("att-%d", m.nextID)
		}
		copy := record
		m.records[key] = &copy
		saved = append(saved, record)
	}
	return saved, nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	for _, record := range m.records {
		if record.ID == id {
			copy := *record
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	var out []models.AttendanceDetail
	for _, record := range m.records {
		if record.SessionID == sessionID {
			out = append(out, models.AttendanceDetail{Attendance: *record})
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) UpdateJustification(ctx context.Context, id string, justification models.Justification) (*models.Attendance, error) {
	for _, record := range m.records {
		if record.ID == id {
			record.Justification = &justification
			copy := *record
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) TeacherSessionsOverview(ctx context.Context, teacherID string) ([]models.SessionAttendanceOverview, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error) {
	return nil, nil
}

type mockSessionLookup struct {
	sessions map[string]*models.SessionDetail
}

func (m *mockSessionLookup) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if session, ok := m.sessions[id]; ok {
		copy := *session
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type mockRosterRepo struct {
	users   map[string]*models.User
	rosters map[string][]string
}

func (m *mockRosterRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterRepo) ListStudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	return m.rosters[classID], nil
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo) {
	repo := newMockAttendanceRepo()
	classID := "class-1"
	sessions := &mockSessionLookup{sessions: map[string]*models.SessionDetail{
		"sess-1": {Session: models.Session{
			ID:        "sess-1",
			Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			StartTime: "09:00",
			EndTime:   "10:00",
			ClassID:   "class-1",
			TeacherID: "teacher-1",
		}},
	}}
	users := &mockRosterRepo{
		users: map[string]*models.User{
			"student-1": {ID: "student-1", FullName: "Cara Diaz", Role: models.RoleStudent, ClassID: &classID},
			"student-2": {ID: "student-2", FullName: "Dev Patel", Role: models.RoleStudent, ClassID: &classID},
			"student-3": {ID: "student-3", FullName: "Elsa Novak", Role: models.RoleStudent, ClassID: &classID},
		},
		rosters: map[string][]string{
			"class-1": {"student-1", "student-2", "student-3"},
		},
	}
	svc := NewAttendanceService(repo, sessions, users, validator.New(), zap.NewNop())
	return svc, repo
}

func TestMarkRecordsBatch(t *testing.T) {
	svc, repo := newAttendanceFixture()

	saved, err := svc.Mark(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{
			{StudentID: "student-1", Status: "PRESENT"},
			{StudentID: "student-2", Status: "LATE"},
			{StudentID: "student-3", Status: "ABSENT"},
		},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Len(t, repo.records, 3)

	assert.Nil(t, saved[0].Justification)
	require.NotNil(t, saved[1].Justification)
	assert.Equal(t, models.JustificationNotJustified, *saved[1].Justification)
	require.NotNil(t, saved[2].Justification)
	assert.Equal(t, models.JustificationNotJustified, *saved[2].Justification)
}

func TestMarkRejectsWholeBatchOnForeignStudent(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{
			{StudentID: "student-1", Status: "PRESENT"},
			{StudentID: "student-2", Status: "PRESENT"},
			{StudentID: "intruder", Status: "PRESENT"},
		},
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, "Student with ID intruder does not belong to the class of this session.", appErr.Message)
	assert.Empty(t, repo.records, "a failed batch must not write anything")
}

func TestMarkRejectsUnknownStatus(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "SLEEPING"}},
	})
	require.Error(t, err)
	assert.Empty(t, repo.records)
}

func TestMarkRequiresSessionOwnership(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), teacherClaims("teacher-2", "Bob Reyes"), "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "PRESENT"}},
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.Status)
}

func TestMarkAllowsAdmin(t *testing.T) {
	svc, repo := newAttendanceFixture()

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.Mark(context.Background(), admin, "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "PRESENT"}},
	})
	require.NoError(t, err)
	assert.Len(t, repo.records, 1)
}

func TestMarkOverwritesExistingRecord(t *testing.T) {
	svc, repo := newAttendanceFixture()
	actor := teacherClaims("teacher-1", "Alice Carter")

	first, err := svc.Mark(context.Background(), actor, "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "ABSENT"}},
	})
	require.NoError(t, err)

	second, err := svc.Mark(context.Background(), actor, "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "PRESENT"}},
	})
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID, "remarking must update the same row")
	assert.Len(t, repo.records, 1)
	assert.Equal(t, models.AttendanceStatusPresent, repo.records["sess-1/student-1"].Status)
}

func TestUpdateJustificationRejectsPresent(t *testing.T) {
	svc, _ := newAttendanceFixture()
	actor := teacherClaims("teacher-1", "Alice Carter")

	saved, err := svc.Mark(context.Background(), actor, "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "PRESENT"}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateJustification(context.Background(), actor, saved[0].ID, models.JustificationJustified)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)
}

func TestUpdateJustificationAnnotatesAbsence(t *testing.T) {
	svc, _ := newAttendanceFixture()
	actor := teacherClaims("teacher-1", "Alice Carter")

	saved, err := svc.Mark(context.Background(), actor, "sess-1", MarkAttendanceRequest{
		Records: []MarkAttendanceRecord{{StudentID: "student-1", Status: "ABSENT"}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateJustification(context.Background(), actor, saved[0].ID, models.JustificationJustified)
	require.NoError(t, err)
	require.NotNil(t, updated.Justification)
	assert.Equal(t, models.JustificationJustified, *updated.Justification)
}

func TestUpdateJustificationRejectsUnknownValue(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.UpdateJustification(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "att-1", models.Justification("MAYBE"))
	require.Error(t, err)
}
