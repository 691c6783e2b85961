package models

import "time"

// Class represents a cohort of enrolled students taught by an optional main teacher.
type Class struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Level        *string   `db:"level" json:"level,omitempty"`
	AcademicYear *string   `db:"academic_year" json:"academic_year,omitempty"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedByID  string    `db:"created_by_id" json:"created_by_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSummary extends Class with teacher identity and enrollment count.
type ClassSummary struct {
	Class
	TeacherName  *string `db:"teacher_name" json:"teacher_name,omitempty"`
	StudentCount int     `db:"student_count" json:"student_count"`
}

// ClassDetail is the full class view with its student roster.
type ClassDetail struct {
	Class
	Teacher  *UserSummary  `json:"teacher,omitempty"`
	Students []UserSummary `json:"students"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TeacherID string
	Search    string
	Page      int
	PageSize  int
}
