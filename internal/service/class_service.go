package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edacademy/attendance-api/internal/models"
	appErrors "github.com/edacademy/attendance-api/pkg/errors"
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error)
	Update(ctx context.Context, class *models.Class) error
	AssignTeacher(ctx context.Context, classID, teacherID string) error
	CountStudents(ctx context.Context, classID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type classUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStudentsByClass(ctx context.Context, classID string) ([]models.UserSummary, error)
}

// CreateClassRequest is the payload for opening a class.
type CreateClassRequest struct {
	Name         string  `json:"name" validate:"required"`
	Level        *string `json:"level"`
	AcademicYear *string `json:"academic_year"`
	TeacherID    *string `json:"teacher_id"`
}

// UpdateClassRequest carries the mutable class fields.
type UpdateClassRequest struct {
	Name         *string `json:"name"`
	Level        *string `json:"level"`
	AcademicYear *string `json:"academic_year"`
	TeacherID    *string `json:"teacher_id"`
}

// ClassService provides class management use cases.
type ClassService struct {
	repo      classRepository
	users     classUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(repo classRepository, users classUserRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns classes matching the filter with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a class with its teacher and student roster.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}

	detail := &models.ClassDetail{Class: *class}

	if class.TeacherID != nil {
		teacher, err := s.users.FindByID(ctx, *class.TeacherID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
		}
		if teacher != nil {
			detail.Teacher = &models.UserSummary{ID: teacher.ID, FullName: teacher.FullName, Email: teacher.Email}
		}
	}

	students, err := s.users.ListStudentsByClass(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch students")
	}
	detail.Students = students
	return detail, nil
}

// Create opens a class. Class names are unique.
func (s *ClassService) Create(ctx context.Context, actorID string, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	exists, err := s.repo.NameExists(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a class with this name already exists")
	}

	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	class := &models.Class{
		Name:         req.Name,
		Level:        req.Level,
		AcademicYear: req.AcademicYear,
		TeacherID:    req.TeacherID,
		CreatedByID:  actorID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("name", class.Name))
	return class, nil
}

// Update applies the provided fields to an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}

	if req.Name != nil && *req.Name != class.Name {
		exists, err := s.repo.NameExists(ctx, *req.Name, class.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a class with this name already exists")
		}
		class.Name = *req.Name
	}
	if req.Level != nil {
		class.Level = req.Level
	}
	if req.AcademicYear != nil {
		class.AcademicYear = req.AcademicYear
	}
	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
		class.TeacherID = req.TeacherID
	}

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// AssignTeacher sets the main teacher of a class.
func (s *ClassService) AssignTeacher(ctx context.Context, classID, teacherID string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}
	if err := s.requireTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	if err := s.repo.AssignTeacher(ctx, classID, teacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign teacher")
	}
	class.TeacherID = &teacherID
	return class, nil
}

// Delete removes a class without enrolled students.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
	}

	count, err := s.repo.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "Cannot delete class with enrolled students")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.logger.Info("class deleted", zap.String("class_id", id))
	return nil
}

func (s *ClassService) requireTeacher(ctx context.Context, teacherID string) error {
	teacher, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrValidation, "assigned user is not a teacher")
	}
	return nil
}
