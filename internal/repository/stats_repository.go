package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edacademy/attendance-api/internal/models"
)

// StatsRepository runs the aggregate queries backing the stats endpoints.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountSessionsByClass returns the total number of sessions held for a class.
func (r *StatsRepository) CountSessionsByClass(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("count class sessions: %w", err)
	}
	return count, nil
}

// StudentStatusCounts groups a student's records within a class by status.
func (r *StatsRepository) StudentStatusCounts(ctx context.Context, studentID, classID string) (map[models.AttendanceStatus]int, error) {
	const query = `SELECT a.status, COUNT(*) AS count
FROM attendance a
JOIN sessions s ON s.id = a.session_id
WHERE a.student_id = $1 AND s.class_id = $2
GROUP BY a.status`
	rows := []struct {
		Status models.AttendanceStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("count student statuses: %w", err)
	}
	counts := make(map[models.AttendanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountClassesByTeacher returns the number of distinct classes a teacher
// holds sessions in or leads.
func (r *StatsRepository) CountClassesByTeacher(ctx context.Context, teacherID string) (int, error) {
	const query = `SELECT COUNT(*) FROM (
        SELECT class_id AS id FROM sessions WHERE teacher_id = $1
        UNION
        SELECT id FROM classes WHERE teacher_id = $1
) AS classes`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID); err != nil {
		return 0, fmt.Errorf("count teacher classes: %w", err)
	}
	return count, nil
}

// CountStudentsByTeacher counts students enrolled in the teacher's classes.
func (r *StatsRepository) CountStudentsByTeacher(ctx context.Context, teacherID string) (int, error) {
	const query = `SELECT COUNT(*) FROM users u
WHERE u.role = 'STUDENT' AND u.class_id IN (
        SELECT class_id FROM sessions WHERE teacher_id = $1
        UNION
        SELECT id FROM classes WHERE teacher_id = $1
)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID); err != nil {
		return 0, fmt.Errorf("count teacher students: %w", err)
	}
	return count, nil
}

// ListTeacherSessionsOnDay returns the teacher's sessions on one calendar day.
func (r *StatsRepository) ListTeacherSessionsOnDay(ctx context.Context, teacherID string, day time.Time) ([]models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE s.teacher_id = $1 AND s.date = $2 ORDER BY s.start_time ASC`,
		sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, dateOnly(day)); err != nil {
		return nil, fmt.Errorf("list teacher day sessions: %w", err)
	}
	return sessions, nil
}

// ListUnmarkedSessions returns the teacher's sessions up to the given day
// that have no attendance records yet.
func (r *StatsRepository) ListUnmarkedSessions(ctx context.Context, teacherID string, until time.Time) ([]models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s
WHERE s.teacher_id = $1 AND s.date <= $2
  AND NOT EXISTS (SELECT 1 FROM attendance a WHERE a.session_id = s.id)
ORDER BY s.date DESC, s.start_time DESC`, sessionDetailColumns, sessionDetailJoins)
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, dateOnly(until)); err != nil {
		return nil, fmt.Errorf("list unmarked sessions: %w", err)
	}
	return sessions, nil
}

// Global returns the flat entity counts for the admin dashboard.
func (r *StatsRepository) Global(ctx context.Context) (*models.GlobalStats, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM users WHERE role = 'STUDENT') AS total_students,
        (SELECT COUNT(*) FROM users WHERE role = 'TEACHER') AS total_teachers,
        (SELECT COUNT(*) FROM classes) AS total_classes,
        (SELECT COUNT(*) FROM sessions) AS total_sessions`
	var stats models.GlobalStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("load global stats: %w", err)
	}
	return &stats, nil
}
