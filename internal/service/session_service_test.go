package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions map[string]*models.SessionDetail
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*models.SessionDetail)}
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if detail, ok := m.sessions[id]; ok {
		copy := detail.Session
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if detail, ok := m.sessions[id]; ok {
		copy := *detail
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	var out []models.SessionDetail
	for _, detail := range m.sessions {
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (m *mockSessionRepo) sameDay(session *models.Session) []models.SessionDetail {
	var out []models.SessionDetail
	for _, existing := range m.sessions {
		if existing.ID == session.ID {
			continue
		}
		if !existing.Date.Equal(session.Date) {
			continue
		}
		if existing.ClassID == session.ClassID || existing.TeacherID == session.TeacherID {
			out = append(out, *existing)
		}
	}
	return out
}

func (m *mockSessionRepo) CreateGuarded(ctx context.Context, session *models.Session, guard func([]models.SessionDetail) error) error {
	if session.ID == "" {
		session.ID = "generated"
	}
	if guard != nil {
		if err := guard(m.sameDay(session)); err != nil {
			return err
		}
	}
	m.sessions[session.ID] = &models.SessionDetail{Session: *session}
	return nil
}

func (m *mockSessionRepo) UpdateGuarded(ctx context.Context, session *models.Session, guard func([]models.SessionDetail) error) error {
	if guard != nil {
		if err := guard(m.sameDay(session)); err != nil {
			return err
		}
	}
	m.sessions[session.ID] = &models.SessionDetail{Session: *session}
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

type mockClassRepo struct {
	classes map[string]*models.Class
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		copy := *class
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type mockSubjectLookup struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectLookup) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if subject, ok := m.subjects[id]; ok {
		copy := *subject
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserLookup struct {
	users map[string]*models.User
}

func (m *mockUserLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func newSessionFixture() (*SessionService, *mockSessionRepo) {
	repo := newMockSessionRepo()
	classes := &mockClassRepo{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "10A"},
		"class-2": {ID: "class-2", Name: "10B"},
	}}
	subjects := &mockSubjectLookup{subjects: map[string]*models.Subject{
		"subj-1": {ID: "subj-1", Name: "Mathematics"},
	}}
	users := &mockUserLookup{users: map[string]*models.User{
		"teacher-1": {ID: "teacher-1", FullName: "Alice Carter", Role: models.RoleTeacher},
		"teacher-2": {ID: "teacher-2", FullName: "Bob Reyes", Role: models.RoleTeacher},
	}}
	svc := NewSessionService(repo, classes, subjects, users, validator.New(), zap.NewNop())
	return svc, repo
}

func teacherClaims(id, name string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, FullName: name, Role: models.RoleTeacher}
}

func TestSessionCreateBooksFreeSlot(t *testing.T) {
	svc, repo := newSessionFixture()

	session, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-02",
		StartTime: "09:00",
		EndTime:   "10:30",
		Room:      "B104",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "teacher-1", session.TeacherID)
	assert.Len(t, repo.sessions, 1)
}

func TestSessionCreateRejectsClassOverlap(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["existing"] = &models.SessionDetail{Session: models.Session{
		ID:        "existing",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:30",
		ClassID:   "class-1",
		TeacherID: "teacher-2",
	}}

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-02",
		StartTime: "10:00",
		EndTime:   "11:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, SessionConflictCode, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "Class 10A already has a session from 09:00 to 10:30 on this day", appErr.Message)

	var conflict *models.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ConflictEntityClass, conflict.Conflict.Entity)
	assert.Equal(t, "existing", conflict.Conflict.SessionID)
	assert.Len(t, repo.sessions, 1)
}

func TestSessionCreateRejectsBusyTeacher(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["existing"] = &models.SessionDetail{Session: models.Session{
		ID:        "existing",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "08:00",
		EndTime:   "09:30",
		ClassID:   "class-2",
		TeacherID: "teacher-1",
	}}

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-02",
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.Error(t, err)

	var conflict *models.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ConflictEntityTeacher, conflict.Conflict.Entity)
	assert.Equal(t, "Teacher Alice Carter is already busy from 08:00 to 09:30 on this day", conflict.Message)
}

func TestSessionCreateAllowsBackToBack(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["existing"] = &models.SessionDetail{Session: models.Session{
		ID:        "existing",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "08:00",
		EndTime:   "09:00",
		ClassID:   "class-1",
		TeacherID: "teacher-1",
	}}

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-02",
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.NoError(t, err)
	assert.Len(t, repo.sessions, 2)
}

func TestSessionCreateAllowsSameSlotOnOtherDay(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["existing"] = &models.SessionDetail{Session: models.Session{
		ID:        "existing",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		TeacherID: "teacher-1",
	}}

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-03",
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.NoError(t, err)
}

func TestSessionCreateRejectsInvertedRange(t *testing.T) {
	svc, _ := newSessionFixture()

	_, err := svc.Create(context.Background(), teacherClaims("teacher-1", "Alice Carter"), CreateSessionRequest{
		Date:      "2026-03-02",
		StartTime: "11:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Start time must be before end time", appErr.Message)
}

func TestSessionUpdateExcludesItselfFromScan(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["sess-1"] = &models.SessionDetail{Session: models.Session{
		ID:        "sess-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
		TeacherID: "teacher-1",
	}}

	room := "B201"
	updated, err := svc.Update(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "sess-1", UpdateSessionRequest{Room: &room})
	require.NoError(t, err)
	assert.Equal(t, "B201", updated.Room)
}

func TestSessionUpdateRequiresOwnership(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["sess-1"] = &models.SessionDetail{Session: models.Session{
		ID:        "sess-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		SubjectID: "subj-1",
		TeacherID: "teacher-1",
	}}

	room := "B201"
	_, err := svc.Update(context.Background(), teacherClaims("teacher-2", "Bob Reyes"), "sess-1", UpdateSessionRequest{Room: &room})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "You can only manage your own sessions", appErr.Message)
	assert.Equal(t, 403, appErr.Status)
}

func TestSessionDeleteRequiresOwnership(t *testing.T) {
	svc, repo := newSessionFixture()
	repo.sessions["sess-1"] = &models.SessionDetail{Session: models.Session{
		ID:        "sess-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
		ClassID:   "class-1",
		TeacherID: "teacher-1",
	}}

	err := svc.Delete(context.Background(), teacherClaims("teacher-2", "Bob Reyes"), "sess-1")
	require.Error(t, err)
	assert.Len(t, repo.sessions, 1)

	require.NoError(t, svc.Delete(context.Background(), teacherClaims("teacher-1", "Alice Carter"), "sess-1"))
	assert.Empty(t, repo.sessions)
}

func TestToMinutes(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"09:05": 545,
		"23:59": 1439,
	}
	for input, want := range cases {
		got, err := toMinutes(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "9", "24:00", "09:60", "ab:cd"} {
		_, err := toMinutes(bad)
		assert.Error(t, err, bad)
	}
}

func TestRangesOverlap(t *testing.T) {
	assert.True(t, rangesOverlap(540, 630, 600, 660))
	assert.True(t, rangesOverlap(600, 660, 540, 630))
	assert.True(t, rangesOverlap(540, 660, 570, 600))
	assert.False(t, rangesOverlap(480, 540, 540, 600))
	assert.False(t, rangesOverlap(540, 600, 480, 540))
}
