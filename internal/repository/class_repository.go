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

// ClassRepository provides persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	now := time.Now().UTC()
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, academic_year, teacher_id, created_by_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Level, class.AcademicYear, class.TeacherID, class.CreatedByID, class.CreatedAt, class.UpdatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, level, academic_year, teacher_id, created_by_id, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// NameExists reports whether another class already uses the given name.
func (r *ClassRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM classes WHERE name = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, name, excludeID); err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return count > 0, nil
}

// List returns classes with teacher names and enrollment counts.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	base := `FROM classes c LEFT JOIN users t ON t.id = c.teacher_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("c.name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT c.id, c.name, c.level, c.academic_year, c.teacher_id, c.created_by_id, c.created_at, c.updated_at,
        t.full_name AS teacher_name,
        (SELECT COUNT(*) FROM users s WHERE s.role = 'STUDENT' AND s.class_id = c.id) AS student_count
        %s WHERE %s ORDER BY c.created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Update persists mutable class fields.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = $1, level = $2, academic_year = $3, teacher_id = $4, updated_at = $5 WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query, class.Name, class.Level, class.AcademicYear, class.TeacherID, class.UpdatedAt, class.ID); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// AssignTeacher sets the main teacher for a class.
func (r *ClassRepository) AssignTeacher(ctx context.Context, classID, teacherID string) error {
	const query = `UPDATE classes SET teacher_id = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, teacherID, time.Now().UTC(), classID); err != nil {
		return fmt.Errorf("assign teacher: %w", err)
	}
	return nil
}

// CountStudents returns the number of students enrolled in a class.
func (r *ClassRepository) CountStudents(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE role = 'STUDENT' AND class_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
