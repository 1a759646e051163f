package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

func TestClassRepositoryListScopesToTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "teacher_id", "created_at", "updated_at"}).
		AddRow("c1", "M1 MIAGE", nil, "t1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, teacher_id, created_at, updated_at FROM classes WHERE 1=1 AND teacher_id = $1 AND LOWER(name) LIKE $2 ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs("t1", "%miage%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes WHERE 1=1 AND teacher_id = $1 AND LOWER(name) LIKE $2")).
		WithArgs("t1", "%miage%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{TeacherID: "t1", Search: "MIAGE", SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, classes, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").WillReturnResult(sqlmock.NewResult(1, 1))

	class := &models.Class{Name: "L3", TeacherID: "t1"}
	require.NoError(t, repo.Create(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.False(t, class.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
