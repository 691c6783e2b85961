package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type attendanceRepository interface {
	UpsertBatch(ctx context.Context, records []models.Attendance) ([]models.Attendance, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
	UpdateJustification(ctx context.Context, id string, justification models.Justification) (*models.Attendance, error)
	TeacherSessionsOverview(ctx context.Context, teacherID string) ([]models.SessionAttendanceOverview, error)
	StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error)
	StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error)
}

type attendanceSessionRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
}

type attendanceUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStudentIDsByClass(ctx context.Context, classID string) ([]string, error)
}

// MarkAttendanceRecord is one student's entry in a marking batch.
type MarkAttendanceRecord struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// MarkAttendanceRequest is the batch payload for recording a session.
type MarkAttendanceRequest struct {
	Records []MarkAttendanceRecord `json:"records" validate:"required,min=1,dive"`
}

// AttendanceService records and reads attendance.
type AttendanceService struct {
	repo      attendanceRepository
	sessions  attendanceSessionRepository
	users     attendanceUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService instance.
func NewAttendanceService(repo attendanceRepository, sessions attendanceSessionRepository, users attendanceUserRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{repo: repo, sessions: sessions, users: users, validator: validate, logger: logger}
}

// Mark validates the whole batch against the session's class roster before
// writing anything; one bad record rejects the batch. Remarking a student
// overwrites the earlier record.
func (s *AttendanceService) Mark(ctx context.Context, actor *models.JWTClaims, sessionID string, req MarkAttendanceRequest) ([]models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSession(actor, &session.Session); err != nil {
		return nil, err
	}

	roster, err := s.users.ListStudentIDsByClass(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class roster")
	}
	enrolled := make(map[string]bool, len(roster))
	for _, id := range roster {
		enrolled[id] = true
	}

	seen := make(map[string]bool, len(req.Records))
	records := make([]models.Attendance, 0, len(req.Records))
	for _, entry := range req.Records {
		status := models.AttendanceStatus(entry.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid attendance status %q", entry.Status))
		}
		if !enrolled[entry.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Student with ID %s does not belong to the class of this session.", entry.StudentID))
		}
		if seen[entry.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate record for student %s", entry.StudentID))
		}
		seen[entry.StudentID] = true

		record := models.Attendance{
			SessionID: sessionID,
			StudentID: entry.StudentID,
			Status:    status,
		}
		if status != models.AttendanceStatusPresent {
			justification := models.JustificationNotJustified
			record.Justification = &justification
		}
		records = append(records, record)
	}

	saved, err := s.repo.UpsertBatch(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}

	s.logger.Info("attendance marked",
		zap.String("session_id", sessionID),
		zap.Int("records", len(saved)),
		zap.String("marked_by", actor.UserID))
	return saved, nil
}

// GetSessionAttendance returns the session with its marked records.
func (s *AttendanceService) GetSessionAttendance(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.SessionDetail, []models.AttendanceDetail, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorizeSession(actor, &session.Session); err != nil {
		return nil, nil, err
	}

	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance")
	}
	return session, records, nil
}

// UpdateJustification annotates an ABSENT or LATE record.
func (s *AttendanceService) UpdateJustification(ctx context.Context, actor *models.JWTClaims, recordID string, justification models.Justification) (*models.Attendance, error) {
	if !justification.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid justification value")
	}

	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance record")
	}

	session, err := s.loadSession(ctx, record.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSession(actor, &session.Session); err != nil {
		return nil, err
	}

	if record.Status == models.AttendanceStatusPresent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Justification can only be set on ABSENT or LATE records")
	}

	updated, err := s.repo.UpdateJustification(ctx, recordID, justification)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update justification")
	}
	return updated, nil
}

// TeacherSessions lists the acting teacher's sessions with marked counts.
func (s *AttendanceService) TeacherSessions(ctx context.Context, teacherID string) ([]models.SessionAttendanceOverview, error) {
	sessions, err := s.repo.TeacherSessionsOverview(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher sessions")
	}
	return sessions, nil
}

// StudentHistory lists a student's class sessions with their own record.
// Students can only read their own history.
func (s *AttendanceService) StudentHistory(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.StudentAttendanceRow, error) {
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only read their own attendance")
	}

	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.ClassID == nil {
		return []models.StudentAttendanceRow{}, nil
	}

	rows, err := s.repo.StudentHistory(ctx, studentID, *student.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance history")
	}
	return rows, nil
}

// StudentWeeklySessions lists a student's sessions within the week starting
// at weekStart, annotated with their records.
func (s *AttendanceService) StudentWeeklySessions(ctx context.Context, actor *models.JWTClaims, studentID string, weekStart time.Time) ([]models.StudentAttendanceRow, error) {
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only read their own attendance")
	}

	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.ClassID == nil {
		return []models.StudentAttendanceRow{}, nil
	}

	from := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.repo.StudentSessionsBetween(ctx, studentID, *student.ClassID, from, from.AddDate(0, 0, 7))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch weekly sessions")
	}
	return rows, nil
}

func (s *AttendanceService) loadSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindDetailByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	return session, nil
}

func (s *AttendanceService) loadStudent(ctx context.Context, studentID string) (*models.User, error) {
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
	return student, nil
}

// authorizeSession allows the owning teacher and admins.
func (s *AttendanceService) authorizeSession(actor *models.JWTClaims, session *models.Session) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleTeacher && session.TeacherID == actor.UserID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "You can only manage your own sessions")
}
