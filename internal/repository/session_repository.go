package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edacademy/attendance-api/internal/models"
)

// ConflictGuard inspects the same-day sessions sharing the proposed class or
// teacher and returns an error to abort the write.
type ConflictGuard = func(sameDay []models.SessionDetail) error

// SessionRepository provides persistence for sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionDetailColumns = `s.id, s.date, s.start_time, s.end_time, s.room, s.class_id, s.subject_id, s.teacher_id, s.created_at, s.updated_at,
        c.name AS class_name, sub.name AS subject_name, t.full_name AS teacher_name`

const sessionDetailJoins = `FROM sessions s
        JOIN classes c ON c.id = s.class_id
        JOIN subjects sub ON sub.id = s.subject_id
        JOIN users t ON t.id = s.teacher_id`

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, date, start_time, end_time, room, class_id, subject_id, teacher_id, created_at, updated_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindDetailByID loads a session with resolved names.
func (r *SessionRepository) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.id = $1`, sessionDetailColumns, sessionDetailJoins)
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the provided filter.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
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
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("s.date = $%d", len(args)+1))
		args = append(args, dateOnly(*filter.Date))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY s.date ASC, s.start_time ASC LIMIT %d OFFSET %d`,
		sessionDetailColumns, sessionDetailJoins, whereClause, size, offset)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", sessionDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// CreateGuarded inserts a session after running the guard against the
// same-day sessions of the proposed class or teacher. Advisory transaction
// locks on the class and teacher serialize concurrent bookings so the
// check-then-insert sequence cannot race.
func (r *SessionRepository) CreateGuarded(ctx context.Context, session *models.Session, guard ConflictGuard) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Date = dateOnly(session.Date)
	session.CreatedAt = now
	session.UpdatedAt = now

	return r.withSlotLocks(ctx, session.ClassID, session.TeacherID, func(tx *sqlx.Tx) error {
		sameDay, err := listSameDayTx(ctx, tx, session.Date, session.ClassID, session.TeacherID, session.ID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(sameDay); err != nil {
				return err
			}
		}
		const query = `INSERT INTO sessions (id, date, start_time, end_time, room, class_id, subject_id, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.ExecContext(ctx, query, session.ID, session.Date, session.StartTime, session.EndTime, session.Room, session.ClassID, session.SubjectID, session.TeacherID, session.CreatedAt, session.UpdatedAt); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// UpdateGuarded rewrites a session under the same locking discipline as
// CreateGuarded, excluding the session itself from the same-day scan.
func (r *SessionRepository) UpdateGuarded(ctx context.Context, session *models.Session, guard ConflictGuard) error {
	session.Date = dateOnly(session.Date)
	session.UpdatedAt = time.Now().UTC()

	return r.withSlotLocks(ctx, session.ClassID, session.TeacherID, func(tx *sqlx.Tx) error {
		sameDay, err := listSameDayTx(ctx, tx, session.Date, session.ClassID, session.TeacherID, session.ID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(sameDay); err != nil {
				return err
			}
		}
		const query = `UPDATE sessions SET date = $1, start_time = $2, end_time = $3, room = $4, class_id = $5, subject_id = $6, teacher_id = $7, updated_at = $8 WHERE id = $9`
		if _, err := tx.ExecContext(ctx, query, session.Date, session.StartTime, session.EndTime, session.Room, session.ClassID, session.SubjectID, session.TeacherID, session.UpdatedAt, session.ID); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
}

// Delete removes a session. Attendance rows cascade at the schema level.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CountByTeacher returns the number of sessions owned by a teacher.
func (r *SessionRepository) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE teacher_id = $1`, teacherID); err != nil {
		return 0, fmt.Errorf("count teacher sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) withSlotLocks(ctx context.Context, classID, teacherID string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session write: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Deterministic lock order avoids deadlocks between concurrent writers
	// touching the same class/teacher pair in opposite order.
	keys := []string{classID, teacherID}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session write: %w", err)
	}
	committed = true
	return nil
}

func listSameDayTx(ctx context.Context, tx *sqlx.Tx, date time.Time, classID, teacherID, excludeID string) ([]models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.date = $1 AND s.id <> $2 AND (s.class_id = $3 OR s.teacher_id = $4)
        ORDER BY s.start_time ASC`, sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionDetail
	if err := tx.SelectContext(ctx, &sessions, query, date, excludeID, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list same-day sessions: %w", err)
	}
	return sessions, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
