package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

// SessionConflictCode marks scheduling collisions in error envelopes.
const SessionConflictCode = "SESSION_CONFLICT"

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error)
	CreateGuarded(ctx context.Context, session *models.Session, guard func([]models.SessionDetail) error) error
	UpdateGuarded(ctx context.Context, session *models.Session, guard func([]models.SessionDetail) error) error
	Delete(ctx context.Context, id string) error
}

type sessionClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type sessionSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type sessionUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateSessionRequest is the payload for booking a session.
type CreateSessionRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Room      string `json:"room"`
	ClassID   string `json:"class_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	TeacherID string `json:"teacher_id"`
}

// UpdateSessionRequest carries the mutable session fields.
type UpdateSessionRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Room      *string `json:"room"`
	ClassID   *string `json:"class_id"`
	SubjectID *string `json:"subject_id"`
}

// SessionService schedules sessions and enforces collision rules.
type SessionService struct {
	repo      sessionRepository
	classes   sessionClassRepository
	subjects  sessionSubjectRepository
	users     sessionUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(repo sessionRepository, classes sessionClassRepository, subjects sessionSubjectRepository, users sessionUserRepository, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{repo: repo, classes: classes, subjects: subjects, users: users, validator: validate, logger: logger}
}

// List returns sessions matching the filter with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one session with resolved names.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	return session, nil
}

// Create books a session. Teachers always book for themselves; admins may
// book on behalf of any teacher. The class and the teacher must both be free
// for the whole time range on that day.
func (s *SessionService) Create(ctx context.Context, actor *models.JWTClaims, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	teacherID := req.TeacherID
	if actor.Role == models.RoleTeacher || teacherID == "" {
		teacherID = actor.UserID
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	start, end, err := parseTimeRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch subject")
	}
	teacher, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not a teacher")
	}

	session := &models.Session{
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Room:      req.Room,
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		TeacherID: teacherID,
	}

	guard := s.conflictGuard(session, start, end, class.Name, teacher.FullName)
	if err := s.repo.CreateGuarded(ctx, session, guard); err != nil {
		return nil, sessionWriteError(err, "failed to create session")
	}

	s.logger.Info("session booked",
		zap.String("session_id", session.ID),
		zap.String("class_id", session.ClassID),
		zap.String("teacher_id", session.TeacherID))
	return session, nil
}

// Update rewrites a session. Only the owning teacher may change it.
func (s *SessionService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateSessionRequest) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if session.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only manage your own sessions")
	}

	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
		}
		session.Date = date
	}
	if req.StartTime != nil {
		session.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		session.EndTime = *req.EndTime
	}
	if req.Room != nil {
		session.Room = *req.Room
	}
	if req.ClassID != nil {
		if _, err := s.classes.FindByID(ctx, *req.ClassID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
		}
		session.ClassID = *req.ClassID
	}
	if req.SubjectID != nil {
		if _, err := s.subjects.FindByID(ctx, *req.SubjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch subject")
		}
		session.SubjectID = *req.SubjectID
	}

	start, end, err := parseTimeRange(session.StartTime, session.EndTime)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}
	guard := s.conflictGuard(session, start, end, class.Name, actor.FullName)
	if err := s.repo.UpdateGuarded(ctx, session, guard); err != nil {
		return nil, sessionWriteError(err, "failed to update session")
	}
	return session, nil
}

// Delete removes a session. Only the owning teacher may delete it.
func (s *SessionService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if session.TeacherID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "You can only manage your own sessions")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// conflictGuard returns the closure the repository runs against the same-day
// sessions of the proposed class or teacher, inside the write transaction.
func (s *SessionService) conflictGuard(proposed *models.Session, start, end int, className, teacherName string) func([]models.SessionDetail) error {
	return func(sameDay []models.SessionDetail) error {
		for _, existing := range sameDay {
			exStart, exEnd, err := parseTimeRange(existing.StartTime, existing.EndTime)
			if err != nil {
				continue
			}
			if !rangesOverlap(start, end, exStart, exEnd) {
				continue
			}
			if existing.ClassID == proposed.ClassID {
				return &models.SessionConflictError{
					Message: fmt.Sprintf("Class %s already has a session from %s to %s on this day", className, existing.StartTime, existing.EndTime),
					Conflict: models.SessionConflict{
						SessionID:  existing.ID,
						Entity:     models.ConflictEntityClass,
						EntityName: className,
						StartTime:  existing.StartTime,
						EndTime:    existing.EndTime,
					},
				}
			}
			return &models.SessionConflictError{
				Message: fmt.Sprintf("Teacher %s is already busy from %s to %s on this day", teacherName, existing.StartTime, existing.EndTime),
				Conflict: models.SessionConflict{
					SessionID:  existing.ID,
					Entity:     models.ConflictEntityTeacher,
					EntityName: teacherName,
					StartTime:  existing.StartTime,
					EndTime:    existing.EndTime,
				},
			}
		}
		return nil
	}
}

func sessionWriteError(err error, fallback string) error {
	var conflict *models.SessionConflictError
	if errors.As(err, &conflict) {
		return appErrors.Wrap(conflict, SessionConflictCode, appErrors.ErrConflict.Status, conflict.Message)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}

// parseTimeRange converts a wall-clock range into minutes since midnight and
// rejects empty or inverted ranges.
func parseTimeRange(startTime, endTime string) (int, int, error) {
	start, err := toMinutes(startTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "times must be formatted as HH:MM")
	}
	end, err := toMinutes(endTime)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "times must be formatted as HH:MM")
	}
	if start >= end {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "Start time must be before end time")
	}
	return start, end, nil
}

func toMinutes(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return hours*60 + minutes, nil
}

// rangesOverlap treats ranges as half-open so back-to-back sessions never
// collide.
func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
