package models

import "time"

// Subject represents a teachable topic, optionally scoped to a class and teacher.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail extends Subject with resolved class and teacher names.
type SubjectDetail struct {
	Subject
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ClassID   string
	TeacherID string
	Page      int
	PageSize  int
}
