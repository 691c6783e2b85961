package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edacademy/attendance-api/internal/models"
)

// SubjectRepository provides persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	now := time.Now().UTC()
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, name, class_id, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, subject.ID, subject.Name, subject.ClassID, subject.TeacherID, subject.CreatedAt, subject.UpdatedAt); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// FindByID loads a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, name, class_id, teacher_id, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindDetailByID loads a subject with resolved class and teacher names.
func (r *SubjectRepository) FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	const query = `SELECT s.id, s.name, s.class_id, s.teacher_id, s.created_at, s.updated_at,
        c.name AS class_name, t.full_name AS teacher_name
        FROM subjects s
        LEFT JOIN classes c ON c.id = s.class_id
        LEFT JOIN users t ON t.id = s.teacher_id
        WHERE s.id = $1`
	var subject models.SubjectDetail
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// NameExistsInClass reports whether the class already has a subject with the name.
func (r *SubjectRepository) NameExistsInClass(ctx context.Context, name, classID, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM subjects WHERE name = $1 AND class_id = $2 AND id <> $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, name, classID, excludeID); err != nil {
		return false, fmt.Errorf("check subject name: %w", err)
	}
	return count > 0, nil
}

// List returns subjects with resolved names.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := `FROM subjects s LEFT JOIN classes c ON c.id = s.class_id LEFT JOIN users t ON t.id = s.teacher_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.name, s.class_id, s.teacher_id, s.created_at, s.updated_at,
        c.name AS class_name, t.full_name AS teacher_name
        %s WHERE %s ORDER BY s.name ASC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var subjects []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// Update persists mutable subject fields.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = $1, teacher_id = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, subject.Name, subject.TeacherID, subject.UpdatedAt, subject.ID); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
