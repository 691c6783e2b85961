package models

import "time"

// StudentAttendanceStats is the rate rollup for one student.
// Unmarked sessions count toward the absent bucket.
type StudentAttendanceStats struct {
	Rate    float64                    `json:"rate"`
	Present int                        `json:"present"`
	Absent  int                        `json:"absent"`
	Total   int                        `json:"total"`
	Details StudentAttendanceBreakdown `json:"details"`
}

// StudentAttendanceBreakdown splits the raw recorded counters.
type StudentAttendanceBreakdown struct {
	PresentStrict  int `json:"present_strict"`
	Late           int `json:"late"`
	AbsentRecorded int `json:"absent_recorded"`
}

// ClassStudentRate is one student's rate inside a class rollup.
type ClassStudentRate struct {
	StudentID string  `json:"student_id"`
	FullName  string  `json:"full_name"`
	Rate      float64 `json:"rate"`
}

// ClassAttendanceStats averages the individual student rates of a class.
type ClassAttendanceStats struct {
	AverageRate float64            `json:"average_rate"`
	Students    []ClassStudentRate `json:"students"`
}

// TeacherDashboard summarises a teacher's day.
type TeacherDashboard struct {
	ClassCount        int             `json:"class_count"`
	StudentCount      int             `json:"student_count"`
	TodaySessions     []SessionDetail `json:"today_sessions"`
	PendingAttendance []SessionDetail `json:"pending_attendance"`
}

// Derived schedule statuses for the student dashboard.
const (
	ScheduleStatusCompleted  = "Completed"
	ScheduleStatusInProgress = "In Progress"
	ScheduleStatusUpcoming   = "Upcoming"
)

// ScheduleEntry is a session of today's schedule with a derived status.
type ScheduleEntry struct {
	SessionDetail
	Status string `json:"status"`
}

// AbsenceEntry records one absence for the day-of-month map.
type AbsenceEntry struct {
	SessionID   string    `json:"session_id"`
	Date        time.Time `json:"date"`
	SubjectName string    `json:"subject_name"`
	Status      string    `json:"status"`
	Justified   bool      `json:"justified"`
}

// StudentDashboard classifies the student's sessions and absences.
type StudentDashboard struct {
	Present       int                    `json:"present"`
	Absent        int                    `json:"absent"`
	Late          int                    `json:"late"`
	AbsencesByDay map[int][]AbsenceEntry `json:"absences_by_day"`
	TodaySchedule []ScheduleEntry        `json:"today_schedule"`
}

// GlobalStats holds flat entity counts for the admin dashboard.
type GlobalStats struct {
	TotalStudents int `json:"total_students" db:"total_students"`
	TotalTeachers int `json:"total_teachers" db:"total_teachers"`
	TotalClasses  int `json:"total_classes" db:"total_classes"`
	TotalSessions int `json:"total_sessions" db:"total_sessions"`
}
