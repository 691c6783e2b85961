package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type statsRepository interface {
	CountSessionsByClass(ctx context.Context, classID string) (int, error)
	StudentStatusCounts(ctx context.Context, studentID, classID string) (map[models.AttendanceStatus]int, error)
	CountClassesByTeacher(ctx context.Context, teacherID string) (int, error)
	CountStudentsByTeacher(ctx context.Context, teacherID string) (int, error)
	ListTeacherSessionsOnDay(ctx context.Context, teacherID string, day time.Time) ([]models.SessionDetail, error)
	ListUnmarkedSessions(ctx context.Context, teacherID string, until time.Time) ([]models.SessionDetail, error)
	Global(ctx context.Context) (*models.GlobalStats, error)
}

type statsUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStudentsByClass(ctx context.Context, classID string) ([]models.UserSummary, error)
}

type statsClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type statsAttendanceRepository interface {
	StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error)
	StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// StatsConfig tunes the cached stats reads.
type StatsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// StatsService computes attendance rollups and dashboards.
type StatsService struct {
	repo       statsRepository
	users      statsUserRepository
	attendance statsAttendanceRepository
	classes    statsClassRepository
	cache      statsCache
	config     StatsConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewStatsService constructs a StatsService instance. cache may be nil.
func NewStatsService(repo statsRepository, users statsUserRepository, attendance statsAttendanceRepository, classes statsClassRepository, cache statsCache, config StatsConfig, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		repo:       repo,
		users:      users,
		attendance: attendance,
		classes:    classes,
		cache:      cache,
		config:     config,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StudentStats rolls up one student's attendance against every session held
// for their class. Sessions without a record count as absences.
func (s *StatsService) StudentStats(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.StudentAttendanceStats, error) {
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only read their own stats")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if student.ClassID == nil {
		return &models.StudentAttendanceStats{}, nil
	}

	key := fmt.Sprintf("stats:student:%s", studentID)
	var cached models.StudentAttendanceStats
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := s.computeStudentStats(ctx, studentID, *student.ClassID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, stats)
	return stats, nil
}

// ClassStats averages the individual student rates of a class.
func (s *StatsService) ClassStats(ctx context.Context, classID string) (*models.ClassAttendanceStats, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}

	key := fmt.Sprintf("stats:class:%s", classID)
	var cached models.ClassAttendanceStats
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	students, err := s.users.ListStudentsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch students")
	}

	stats := &models.ClassAttendanceStats{Students: make([]models.ClassStudentRate, 0, len(students))}
	var sum float64
	for _, student := range students {
		studentStats, err := s.computeStudentStats(ctx, student.ID, classID)
		if err != nil {
			return nil, err
		}
		stats.Students = append(stats.Students, models.ClassStudentRate{
			StudentID: student.ID,
			FullName:  student.FullName,
			Rate:      studentStats.Rate,
		})
		sum += studentStats.Rate
	}
	if len(students) > 0 {
		stats.AverageRate = round2(sum / float64(len(students)))
	}

	s.cacheSet(ctx, key, stats)
	return stats, nil
}

// TeacherDashboard summarises a teacher's classes, students, today's
// sessions and the sessions still waiting for attendance.
func (s *StatsService) TeacherDashboard(ctx context.Context, teacherID string) (*models.TeacherDashboard, error) {
	today := s.now()

	classCount, err := s.repo.CountClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
	}
	studentCount, err := s.repo.CountStudentsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	todaySessions, err := s.repo.ListTeacherSessionsOnDay(ctx, teacherID, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch today's sessions")
	}
	pending, err := s.repo.ListUnmarkedSessions(ctx, teacherID, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch pending sessions")
	}

	return &models.TeacherDashboard{
		ClassCount:        classCount,
		StudentCount:      studentCount,
		TodaySessions:     todaySessions,
		PendingAttendance: pending,
	}, nil
}

// StudentDashboard classifies the student's records, groups this month's
// absences by day and derives the status of today's schedule.
func (s *StatsService) StudentDashboard(ctx context.Context, studentID string) (*models.StudentDashboard, error) {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	dashboard := &models.StudentDashboard{
		AbsencesByDay: map[int][]models.AbsenceEntry{},
		TodaySchedule: []models.ScheduleEntry{},
	}
	if student.ClassID == nil {
		return dashboard, nil
	}

	now := s.now()
	rows, err := s.attendance.StudentHistory(ctx, studentID, *student.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance history")
	}
	for _, row := range rows {
		if row.Status == nil {
			continue
		}
		switch *row.Status {
		case models.AttendanceStatusPresent:
			dashboard.Present++
		case models.AttendanceStatusLate:
			dashboard.Late++
		case models.AttendanceStatusAbsent:
			dashboard.Absent++
			if row.Date.Year() == now.Year() && row.Date.Month() == now.Month() {
				day := row.Date.Day()
				dashboard.AbsencesByDay[day] = append(dashboard.AbsencesByDay[day], models.AbsenceEntry{
					SessionID:   row.ID,
					Date:        row.Date,
					SubjectName: row.SubjectName,
					Status:      string(*row.Status),
					Justified:   row.Justification != nil && *row.Justification == models.JustificationJustified,
				})
			}
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayRows, err := s.attendance.StudentSessionsBetween(ctx, studentID, *student.ClassID, today, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch today's schedule")
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	for _, row := range todayRows {
		status := scheduleStatus(row.StartTime, row.EndTime, nowMinutes)
		if row.Status != nil {
			// A recorded mark settles the session regardless of the clock.
			status = models.ScheduleStatusCompleted
		}
		dashboard.TodaySchedule = append(dashboard.TodaySchedule, models.ScheduleEntry{
			SessionDetail: row.SessionDetail,
			Status:        status,
		})
	}
	return dashboard, nil
}

// Global returns the flat entity counts for the admin dashboard.
func (s *StatsService) Global(ctx context.Context) (*models.GlobalStats, error) {
	key := "stats:global"
	var cached models.GlobalStats
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	stats, err := s.repo.Global(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch global stats")
	}
	s.cacheSet(ctx, key, stats)
	return stats, nil
}

func (s *StatsService) computeStudentStats(ctx context.Context, studentID, classID string) (*models.StudentAttendanceStats, error) {
	total, err := s.repo.CountSessionsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	counts, err := s.repo.StudentStatusCounts(ctx, studentID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count records")
	}

	present := counts[models.AttendanceStatusPresent]
	late := counts[models.AttendanceStatusLate]
	absentRecorded := counts[models.AttendanceStatusAbsent]
	recorded := present + late + absentRecorded

	stats := &models.StudentAttendanceStats{
		Present: present + late,
		Absent:  absentRecorded + (total - recorded),
		Total:   total,
		Details: models.StudentAttendanceBreakdown{
			PresentStrict:  present,
			Late:           late,
			AbsentRecorded: absentRecorded,
		},
	}
	if total > 0 {
		stats.Rate = round2(float64(present+late) / float64(total) * 100)
	}
	return stats, nil
}

func (s *StatsService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if !s.config.CacheEnabled || s.cache == nil {
		return false
	}
	if err := s.cache.Get(ctx, key, dest); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

func (s *StatsService) cacheSet(ctx context.Context, key string, value interface{}) {
	if !s.config.CacheEnabled || s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.config.CacheTTL); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func scheduleStatus(startTime, endTime string, nowMinutes int) string {
	start, err := toMinutes(startTime)
	if err != nil {
		return models.ScheduleStatusUpcoming
	}
	end, err := toMinutes(endTime)
	if err != nil {
		return models.ScheduleStatusUpcoming
	}
	switch {
	case nowMinutes >= end:
		return models.ScheduleStatusCompleted
	case nowMinutes >= start:
		return models.ScheduleStatusInProgress
	default:
		return models.ScheduleStatusUpcoming
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
