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

type subjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	NameExistsInClass(ctx context.Context, name, classID, excludeID string) (bool, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

type subjectClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type subjectUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateSubjectRequest is the payload for registering a subject.
type CreateSubjectRequest struct {
	Name      string  `json:"name" validate:"required"`
	ClassID   *string `json:"class_id"`
	TeacherID *string `json:"teacher_id"`
}

// UpdateSubjectRequest carries the mutable subject fields.
type UpdateSubjectRequest struct {
	Name      *string `json:"name"`
	ClassID   *string `json:"class_id"`
	TeacherID *string `json:"teacher_id"`
}

// SubjectService provides subject management use cases.
type SubjectService struct {
	repo      subjectRepository
	classes   subjectClassRepository
	users     subjectUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService instance.
func NewSubjectService(repo subjectRepository, classes subjectClassRepository, users subjectUserRepository, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{repo: repo, classes: classes, users: users, validator: validate, logger: logger}
}

// List returns subjects matching the filter with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return subjects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one subject with resolved names.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch subject")
	}
	return subject, nil
}

// Create registers a subject. Names are unique within a class.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if req.ClassID != nil {
		if _, err := s.classes.FindByID(ctx, *req.ClassID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
		}
		exists, err := s.repo.NameExistsInClass(ctx, req.Name, *req.ClassID, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a subject with this name already exists in the class")
		}
	}
	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	subject := &models.Subject{
		Name:      req.Name,
		ClassID:   req.ClassID,
		TeacherID: req.TeacherID,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}

	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("name", subject.Name))
	return subject, nil
}

// Update applies the provided fields. Teachers may only touch their own
// subjects; admins may touch any.
func (s *SubjectService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch subject")
	}
	if err := s.authorize(actor, subject); err != nil {
		return nil, err
	}

	if req.ClassID != nil {
		if _, err := s.classes.FindByID(ctx, *req.ClassID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class")
		}
		subject.ClassID = req.ClassID
	}
	if req.Name != nil && *req.Name != subject.Name {
		if subject.ClassID != nil {
			exists, err := s.repo.NameExistsInClass(ctx, *req.Name, *subject.ClassID, subject.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject name")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, "a subject with this name already exists in the class")
			}
		}
		subject.Name = *req.Name
	}
	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
		subject.TeacherID = req.TeacherID
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// Delete removes a subject under the same ownership rule as Update.
func (s *SubjectService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch subject")
	}
	if err := s.authorize(actor, subject); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.logger.Info("subject deleted", zap.String("subject_id", id))
	return nil
}

func (s *SubjectService) authorize(actor *models.JWTClaims, subject *models.Subject) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if subject.TeacherID != nil && *subject.TeacherID == actor.UserID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "You can only manage your own subjects")
}

func (s *SubjectService) requireTeacher(ctx context.Context, teacherID string) error {
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
