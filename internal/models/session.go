package models

import "time"

// Session is a single scheduled class meeting.
// StartTime and EndTime are wall-clock "HH:MM" strings on the session's date.
type Session struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Room      string    `db:"room" json:"room"`
	ClassID   string    `db:"class_id" json:"class_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SessionDetail extends Session with resolved names for responses
// and conflict messages.
type SessionDetail struct {
	Session
	ClassName   string `db:"class_name" json:"class_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	ClassID   string
	TeacherID string
	SubjectID string
	Date      *time.Time
	Page      int
	PageSize  int
}

// Conflict dimensions for session collisions.
const (
	ConflictEntityClass   = "CLASS"
	ConflictEntityTeacher = "TEACHER"
)

// SessionConflict describes an existing session that causes a collision.
type SessionConflict struct {
	SessionID  string `json:"session_id"`
	Entity     string `json:"entity"`
	EntityName string `json:"entity_name"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// SessionConflictError is returned when a proposed session overlaps an
// existing one for the same class or teacher on the same day.
type SessionConflictError struct {
	Message  string          `json:"message"`
	Conflict SessionConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
