package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edacademy/attendance-api/internal/models"
)

// AttendanceRepository provides persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// UpsertBatch writes all records in one transaction, updating rows that
// already exist for the (session, student) pair. Either every record lands or
// none does.
func (r *AttendanceRepository) UpsertBatch(ctx context.Context, records []models.Attendance) ([]models.Attendance, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendance (id, session_id, student_id, status, justification, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, justification = EXCLUDED.justification, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, student_id, status, justification, created_at, updated_at`

	now := time.Now().UTC()
	saved := make([]models.Attendance, 0, len(records))
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		var out models.Attendance
		if err := tx.GetContext(ctx, &out, query, record.ID, record.SessionID, record.StudentID, record.Status, record.Justification, now, now); err != nil {
			return nil, fmt.Errorf("upsert attendance for student %s: %w", record.StudentID, err)
		}
		saved = append(saved, out)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance batch: %w", err)
	}
	committed = true
	return saved, nil
}

// FindByID loads an attendance record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	const query = `SELECT id, session_id, student_id, status, justification, created_at, updated_at FROM attendance WHERE id = $1`
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySession returns the marked records of a session with student identity.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	const query = `SELECT a.id, a.session_id, a.student_id, a.status, a.justification, a.created_at, a.updated_at,
        u.full_name AS student_name, u.email AS student_email
FROM attendance a
JOIN users u ON u.id = a.student_id
WHERE a.session_id = $1
ORDER BY u.full_name ASC`
	var records []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}

// UpdateJustification sets the justification flag on a record.
func (r *AttendanceRepository) UpdateJustification(ctx context.Context, id string, justification models.Justification) (*models.Attendance, error) {
	const query = `UPDATE attendance SET justification = $1, updated_at = $2 WHERE id = $3
RETURNING id, session_id, student_id, status, justification, created_at, updated_at`
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, justification, time.Now().UTC(), id); err != nil {
		return nil, err
	}
	return &record, nil
}

// TeacherSessionsOverview lists a teacher's sessions with how many records
// each has, most recent first.
func (r *AttendanceRepository) TeacherSessionsOverview(ctx context.Context, teacherID string) ([]models.SessionAttendanceOverview, error) {
	query := fmt.Sprintf(`SELECT %s,
        (SELECT COUNT(*) FROM attendance a WHERE a.session_id = s.id) AS marked_count
%s WHERE s.teacher_id = $1
ORDER BY s.date DESC, s.start_time DESC`, sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionAttendanceOverview
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher sessions: %w", err)
	}
	return sessions, nil
}

// StudentHistory lists a student's class sessions joined with whatever record
// exists for the student, most recent first. Sessions without a record carry
// NULL status.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID, classID string) ([]models.StudentAttendanceRow, error) {
	query := fmt.Sprintf(`SELECT %s, a.status AS status, a.justification AS justification
%s
LEFT JOIN attendance a ON a.session_id = s.id AND a.student_id = $1
WHERE s.class_id = $2
ORDER BY s.date DESC, s.start_time DESC`, sessionDetailColumns, sessionDetailJoins)
	var rows []models.StudentAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("list student attendance history: %w", err)
	}
	return rows, nil
}

// StudentSessionsBetween lists a student's class sessions in [from, to) with
// the student's record, ordered chronologically.
func (r *AttendanceRepository) StudentSessionsBetween(ctx context.Context, studentID, classID string, from, to time.Time) ([]models.StudentAttendanceRow, error) {
	query := fmt.Sprintf(`SELECT %s, a.status AS status, a.justification AS justification
%s
LEFT JOIN attendance a ON a.session_id = s.id AND a.student_id = $1
WHERE s.class_id = $2 AND s.date >= $3 AND s.date < $4
ORDER BY s.date ASC, s.start_time ASC`, sessionDetailColumns, sessionDetailJoins)
	var rows []models.StudentAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, classID, dateOnly(from), dateOnly(to)); err != nil {
		return nil, fmt.Errorf("list student weekly sessions: %w", err)
	}
	return rows, nil
}
