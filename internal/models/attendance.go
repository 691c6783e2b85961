package models

import "time"

// AttendanceStatus represents the per-student presence outcome for a session.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Justification is an administrative annotation on non-present records.
type Justification string

const (
	JustificationJustified    Justification = "JUSTIFIED"
	JustificationNotJustified Justification = "NOT_JUSTIFIED"
)

// Valid returns true when the justification is a supported value.
func (j Justification) Valid() bool {
	return j == JustificationJustified || j == JustificationNotJustified
}

// Attendance is the per-student presence record for one session.
// Rows are unique on (session_id, student_id) and written via upsert.
type Attendance struct {
	ID            string           `db:"id" json:"id"`
	SessionID     string           `db:"session_id" json:"session_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Status        AttendanceStatus `db:"status" json:"status"`
	Justification *Justification   `db:"justification" json:"justification,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail extends Attendance with minimal student identity.
type AttendanceDetail struct {
	Attendance
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// SessionAttendanceOverview is a teacher-facing session row annotated with
// how many attendance records have been written for it.
type SessionAttendanceOverview struct {
	SessionDetail
	MarkedCount int `db:"marked_count" json:"marked_count"`
}

// StudentAttendanceRow is a session row annotated with the student's own
// record when one exists.
type StudentAttendanceRow struct {
	SessionDetail
	Status        *AttendanceStatus `db:"status" json:"status,omitempty"`
	Justification *Justification    `db:"justification" json:"justification,omitempty"`
}
