package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

func TestEnrollmentRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_id", "student_id", "created_at", "student_name", "student_email"}).
		AddRow("e1", "c1", "stu-1", time.Now(), "Student", "s@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_enrollments e JOIN users u ON u.id = e.student_id WHERE e.class_id = $1")).
		WithArgs("c1").
		WillReturnRows(rows)

	list, err := repo.ListByClass(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Student", list[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO student_enrollments").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.StudentEnrollment{ClassID: "c1", StudentID: "stu-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestEnrollmentRepositoryDeleteReportsMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_enrollments WHERE class_id = $1 AND student_id = $2")).
		WithArgs("c1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.Delete(context.Background(), "c1", "stu-1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
