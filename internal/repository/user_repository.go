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

// UserRepository provides persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, full_name, email, password_hash, role, class_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.FullName, user.Email, user.PasswordHash, user.Role, user.ClassID, user.CreatedAt, user.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByID loads a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, full_name, email, password_hash, role, class_id, created_at, updated_at FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail loads a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, full_name, email, password_hash, role, class_id, created_at, updated_at FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns users matching the provided filter with their class names.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.UserDetail, int, error) {
	base := `FROM users u LEFT JOIN classes c ON c.id = u.class_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Role != nil {
		where = append(where, fmt.Sprintf("u.role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("u.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(u.full_name ILIKE $%d OR u.email ILIKE $%d)", len(args)+1, len(args)+1))
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

	query := fmt.Sprintf(`SELECT u.id, u.full_name, u.email, u.password_hash, u.role, u.class_id, u.created_at, u.updated_at, c.name AS class_name
        %s WHERE %s ORDER BY u.created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var users []models.UserDetail
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Update persists mutable user fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET full_name = $1, email = $2, password_hash = $3, class_id = $4, updated_at = $5 WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query, user.FullName, user.Email, user.PasswordHash, user.ClassID, user.UpdatedAt, user.ID); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// AssignClass sets the class for a student.
func (r *UserRepository) AssignClass(ctx context.Context, studentID, classID string) error {
	const query = `UPDATE users SET class_id = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, classID, time.Now().UTC(), studentID); err != nil {
		return fmt.Errorf("assign class: %w", err)
	}
	return nil
}

// Delete removes a user. Teachers are first detached from their classes and
// subjects so the rows survive the deletion.
func (r *UserRepository) Delete(ctx context.Context, id string, detachTeacher bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if detachTeacher {
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET teacher_id = NULL WHERE teacher_id = $1`, id); err != nil {
			return fmt.Errorf("unassign classes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE subjects SET teacher_id = NULL WHERE teacher_id = $1`, id); err != nil {
			return fmt.Errorf("unassign subjects: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	committed = true
	return nil
}

// ListStudentIDsByClass returns the ids of students enrolled in a class.
func (r *UserRepository) ListStudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT id FROM users WHERE role = $1 AND class_id = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.RoleStudent, classID); err != nil {
		return nil, fmt.Errorf("list class student ids: %w", err)
	}
	return ids, nil
}

// ListStudentsByClass returns the minimal identity of enrolled students.
func (r *UserRepository) ListStudentsByClass(ctx context.Context, classID string) ([]models.UserSummary, error) {
	const query = `SELECT id, full_name, email FROM users WHERE role = $1 AND class_id = $2 ORDER BY full_name ASC`
	var students []models.UserSummary
	if err := r.db.SelectContext(ctx, &students, query, models.RoleStudent, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}
