package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edacademy/attendance-api/internal/models"
)

var attendanceCols = []string{"id", "session_id", "student_id", "status", "justification", "created_at", "updated_at"}

func TestAttendanceUpsertBatchCommitsAllRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	notJustified := models.JustificationNotJustified

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("a1", "sess-1", "student-1", string(models.AttendanceStatusPresent), nil, now, now))
	mock.ExpectQuery("INSERT INTO attendance").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("a2", "sess-1", "student-2", string(models.AttendanceStatusAbsent), string(notJustified), now, now))
	mock.ExpectCommit()

	saved, err := repo.UpsertBatch(context.Background(), []models.Attendance{
		{SessionID: "sess-1", StudentID: "student-1", Status: models.AttendanceStatusPresent},
		{SessionID: "sess-1", StudentID: "student-2", Status: models.AttendanceStatusAbsent, Justification: &notJustified},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "a1", saved[0].ID)
	require.NotNil(t, saved[1].Justification)
	assert.Equal(t, models.JustificationNotJustified, *saved[1].Justification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceUpsertBatchRollsBackMidBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	boom := errors.New("constraint violation")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("a1", "sess-1", "student-1", string(models.AttendanceStatusPresent), nil, now, now))
	mock.ExpectQuery("INSERT INTO attendance").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := repo.UpsertBatch(context.Background(), []models.Attendance{
		{SessionID: "sess-1", StudentID: "student-1", Status: models.AttendanceStatusPresent},
		{SessionID: "sess-1", StudentID: "student-2", Status: models.AttendanceStatusLate},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "student-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceUpsertBatchEmptyInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	saved, err := repo.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceListBySession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(append(attendanceCols, "student_name", "student_email")).
		AddRow("a1", "sess-1", "student-1", string(models.AttendanceStatusLate), string(models.JustificationNotJustified), now, now, "Sara Kim", "sara@edacademy.io")
	mock.ExpectQuery("SELECT a.id, a.session_id").WithArgs("sess-1").WillReturnRows(rows)

	records, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Sara Kim", records[0].StudentName)
	assert.Equal(t, models.AttendanceStatusLate, records[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceUpdateJustification(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	mock.ExpectQuery("UPDATE attendance SET justification").
		WillReturnRows(sqlmock.NewRows(attendanceCols).
			AddRow("a1", "sess-1", "student-1", string(models.AttendanceStatusAbsent), string(models.JustificationJustified), now, now))

	record, err := repo.UpdateJustification(context.Background(), "a1", models.JustificationJustified)
	require.NoError(t, err)
	require.NotNil(t, record.Justification)
	assert.Equal(t, models.JustificationJustified, *record.Justification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceStudentSessionsBetweenTruncatesBounds(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2026, 3, 9, 13, 30, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery("LEFT JOIN attendance").
		WithArgs("student-1", "class-1",
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows(append(sessionDetailCols, "status", "justification")))

	rows, err := repo.StudentSessionsBetween(context.Background(), "student-1", "class-1", from, to)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
