package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type mockStatsRepo struct {
	sessionsByClass map[string]int
	statusCounts    map[string]map[models.AttendanceStatus]int
	classCount      int
	studentCount    int
	todaySessions   []models.SessionDetail
	unmarked        []models.SessionDetail
	global          *models.GlobalStats
}

func (m *mockStatsRepo) CountSessionsByClass(ctx context.Context, classID string) (int, error) {
	return m.sessionsByClass[classID], nil
}

func (m *mockStatsRepo) StudentStatusCounts(ctx context.Context, studentID, classID string) (map[models.AttendanceStatus]int, error) {
	return m.statusCounts[studentID], nil
}

func (m *mockStatsRepo) CountClassesByTeacher(ctx context.Context, teacherID string) (int, error) {
	return m.classCount, nil
}

func (m *mockStatsRepo) CountStudentsByTeacher(ctx context.Context, teacherID string) (int, error) {
	return m.studentCount, nil
}

func (m *mockStatsRepo) ListTeacherSessionsOnDay(ctx context.Context, teacherID string, day time.Time) ([]models.SessionDetail, error) {
	return m.todaySessions, nil
}

func (m *mockStatsRepo) ListUnmarkedSessions(ctx context.Context, teacherID string, until time.Time) ([]models.SessionDetail, error) {
	return m.unmarked, nil
}

func (m *mockStatsRepo) Global(ctx context.Context) (*models.GlobalStats, error) {
	return m.global, nil
}

type mockStatsUsers struct {
	users    map[string]*models.User
	students map[string][]models.UserSummary
}

func (m *mockStatsUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStatsUsers) ListStudentsByClass(ctx context.Context, classID string) ([]models.UserSummary, error) {
	return m.students[classID], nil
}

type mockStatsClasses struct {
	classes map[string]*models.Class
}

func (m *mockStatsClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func knownClasses(ids ...string) *mockStatsClasses {
	m := &mockStatsClasses{classes: make(map[string]*models.Class)}
	for _, id := range ids {
		m.classes[id] = &models.Class{ID: id}
	}
	return m
}

type mockStatsAttendance struct {
	history []models.StudentAttendanceRow
	today   []models.StudentAttendanceRow
}

func (m *mockStatsAttendance) StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error) {
	return m.history, nil
}

func (m *mockStatsAttendance) StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error) {
	return m.today, nil
}

type mockStatsCache struct {
	store map[string]interface{}
	hits  int
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	if _, ok := m.store[key]; ok {
		m.hits++
		return nil
	}
	return appErrors.ErrCacheMiss
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string]interface{})
	}
	m.store[key] = value
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func statusRow(id string, date time.Time, subject string, status models.AttendanceStatus, justification *models.Justification) models.StudentAttendanceRow {
	return models.StudentAttendanceRow{
		SessionDetail: models.SessionDetail{
			Session:     models.Session{ID: id, Date: date, StartTime: "09:00", EndTime: "10:00"},
			SubjectName: subject,
		},
		Status:        &status,
		Justification: justification,
	}
}

func TestStudentStatsCountsUnmarkedAsAbsent(t *testing.T) {
	classID := "class-1"
	repo := &mockStatsRepo{
		sessionsByClass: map[string]int{"class-1": 10},
		statusCounts: map[string]map[models.AttendanceStatus]int{
			"student-1": {
				models.AttendanceStatusPresent: 6,
				models.AttendanceStatusLate:    1,
				models.AttendanceStatusAbsent:  1,
			},
		},
	}
	users := &mockStatsUsers{users: map[string]*models.User{
		"student-1": {ID: "student-1", Role: models.RoleStudent, ClassID: &classID},
	}}
	svc := NewStatsService(repo, users, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	stats, err := svc.StudentStats(context.Background(), adminClaims(), "student-1")
	require.NoError(t, err)

	assert.Equal(t, 70.00, stats.Rate)
	assert.Equal(t, 7, stats.Present)
	assert.Equal(t, 3, stats.Absent, "1 recorded + 2 unmarked")
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 6, stats.Details.PresentStrict)
	assert.Equal(t, 1, stats.Details.Late)
	assert.Equal(t, 1, stats.Details.AbsentRecorded)
}

func TestStudentStatsRoundsToTwoDecimals(t *testing.T) {
	classID := "class-1"
	repo := &mockStatsRepo{
		sessionsByClass: map[string]int{"class-1": 3},
		statusCounts: map[string]map[models.AttendanceStatus]int{
			"student-1": {models.AttendanceStatusPresent: 1},
		},
	}
	users := &mockStatsUsers{users: map[string]*models.User{
		"student-1": {ID: "student-1", Role: models.RoleStudent, ClassID: &classID},
	}}
	svc := NewStatsService(repo, users, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	stats, err := svc.StudentStats(context.Background(), adminClaims(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 33.33, stats.Rate)
}

func TestStudentStatsZeroSessions(t *testing.T) {
	classID := "class-1"
	repo := &mockStatsRepo{sessionsByClass: map[string]int{}, statusCounts: map[string]map[models.AttendanceStatus]int{}}
	users := &mockStatsUsers{users: map[string]*models.User{
		"student-1": {ID: "student-1", Role: models.RoleStudent, ClassID: &classID},
	}}
	svc := NewStatsService(repo, users, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	stats, err := svc.StudentStats(context.Background(), adminClaims(), "student-1")
	require.NoError(t, err)
	assert.Zero(t, stats.Rate)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Absent)
}

func TestStudentStatsForbidsReadingOthers(t *testing.T) {
	svc := NewStatsService(&mockStatsRepo{}, &mockStatsUsers{}, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	other := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	_, err := svc.StudentStats(context.Background(), other, "student-1")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.Status)
}

func TestClassStatsAveragesStudentRates(t *testing.T) {
	classID := "class-1"
	repo := &mockStatsRepo{
		sessionsByClass: map[string]int{"class-1": 10},
		statusCounts: map[string]map[models.AttendanceStatus]int{
			"student-1": {models.AttendanceStatusPresent: 7},
			"student-2": {models.AttendanceStatusPresent: 5},
		},
	}
	users := &mockStatsUsers{
		users: map[string]*models.User{
			"student-1": {ID: "student-1", Role: models.RoleStudent, ClassID: &classID},
			"student-2": {ID: "student-2", Role: models.RoleStudent, ClassID: &classID},
		},
		students: map[string][]models.UserSummary{
			"class-1": {
				{ID: "student-1", FullName: "Cara Diaz"},
				{ID: "student-2", FullName: "Dev Patel"},
			},
		},
	}
	svc := NewStatsService(repo, users, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	stats, err := svc.ClassStats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 60.00, stats.AverageRate)
	require.Len(t, stats.Students, 2)
	assert.Equal(t, 70.00, stats.Students[0].Rate)
	assert.Equal(t, 50.00, stats.Students[1].Rate)
}

func TestClassStatsEmptyClass(t *testing.T) {
	svc := NewStatsService(&mockStatsRepo{}, &mockStatsUsers{}, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	stats, err := svc.ClassStats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Zero(t, stats.AverageRate)
	assert.Empty(t, stats.Students)
}

func TestClassStatsUnknownClass(t *testing.T) {
	svc := NewStatsService(&mockStatsRepo{}, &mockStatsUsers{}, &mockStatsAttendance{}, &mockStatsClasses{}, nil, StatsConfig{}, zap.NewNop())

	_, err := svc.ClassStats(context.Background(), "class-missing")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestTeacherDashboard(t *testing.T) {
	repo := &mockStatsRepo{
		classCount:    2,
		studentCount:  48,
		todaySessions: []models.SessionDetail{{Session: models.Session{ID: "sess-1"}}},
		unmarked:      []models.SessionDetail{{Session: models.Session{ID: "sess-0"}}},
	}
	svc := NewStatsService(repo, &mockStatsUsers{}, &mockStatsAttendance{}, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())

	dashboard, err := svc.TeacherDashboard(context.Background(), "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 2, dashboard.ClassCount)
	assert.Equal(t, 48, dashboard.StudentCount)
	assert.Len(t, dashboard.TodaySessions, 1)
	assert.Len(t, dashboard.PendingAttendance, 1)
}

func TestStudentDashboard(t *testing.T) {
	classID := "class-1"
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	justified := models.JustificationJustified
	present := models.AttendanceStatusPresent

	users := &mockStatsUsers{users: map[string]*models.User{
		"student-1": {ID: "student-1", Role: models.RoleStudent, ClassID: &classID},
	}}
	attendance := &mockStatsAttendance{
		history: []models.StudentAttendanceRow{
			statusRow("s1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "Mathematics", models.AttendanceStatusPresent, nil),
			statusRow("s2", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "Physics", models.AttendanceStatusAbsent, &justified),
			statusRow("s3", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "History", models.AttendanceStatusAbsent, nil),
			statusRow("s4", time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), "Chemistry", models.AttendanceStatusAbsent, nil),
			statusRow("s5", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), "Mathematics", models.AttendanceStatusLate, nil),
		},
		today: []models.StudentAttendanceRow{
			{SessionDetail: models.SessionDetail{Session: models.Session{ID: "t1", StartTime: "08:00", EndTime: "09:00"}}},
			{SessionDetail: models.SessionDetail{Session: models.Session{ID: "t2", StartTime: "09:00", EndTime: "10:00"}}},
			{SessionDetail: models.SessionDetail{Session: models.Session{ID: "t3", StartTime: "11:00", EndTime: "12:00"}}},
			{SessionDetail: models.SessionDetail{Session: models.Session{ID: "t4", StartTime: "13:00", EndTime: "14:00"}}, Status: &present},
		},
	}
	svc := NewStatsService(&mockStatsRepo{}, users, attendance, knownClasses("class-1"), nil, StatsConfig{}, zap.NewNop())
	svc.now = func() time.Time { return now }

	dashboard, err := svc.StudentDashboard(context.Background(), "student-1")
	require.NoError(t, err)

	assert.Equal(t, 1, dashboard.Present)
	assert.Equal(t, 1, dashboard.Late)
	assert.Equal(t, 3, dashboard.Absent)

	require.Len(t, dashboard.AbsencesByDay, 1, "February absence stays out of this month's map")
	day3 := dashboard.AbsencesByDay[3]
	require.Len(t, day3, 2)
	assert.True(t, day3[0].Justified)
	assert.False(t, day3[1].Justified)

	require.Len(t, dashboard.TodaySchedule, 4)
	assert.Equal(t, models.ScheduleStatusCompleted, dashboard.TodaySchedule[0].Status)
	assert.Equal(t, models.ScheduleStatusInProgress, dashboard.TodaySchedule[1].Status)
	assert.Equal(t, models.ScheduleStatusUpcoming, dashboard.TodaySchedule[2].Status)
	assert.Equal(t, models.ScheduleStatusCompleted, dashboard.TodaySchedule[3].Status, "a marked session is done even before its start time")
}

func TestGlobalStatsUsesCache(t *testing.T) {
	repo := &mockStatsRepo{global: &models.GlobalStats{TotalStudents: 100, TotalTeachers: 10, TotalClasses: 5, TotalSessions: 200}}
	cache := &mockStatsCache{}
	svc := NewStatsService(repo, &mockStatsUsers{}, &mockStatsAttendance{}, knownClasses("class-1"), cache, StatsConfig{CacheEnabled: true, CacheTTL: time.Minute}, zap.NewNop())

	_, err := svc.Global(context.Background())
	require.NoError(t, err)
	assert.Contains(t, cache.store, "stats:global")

	_, err = svc.Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, round2(100.0/3))
	assert.Equal(t, 66.67, round2(200.0/3))
	assert.Equal(t, 70.0, round2(70))
}
