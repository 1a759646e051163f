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

var formRowColumns = []string{"id", "title", "type", "class_id", "is_active", "public_link", "created_at", "updated_at"}

func TestFormRepositoryFindActiveGlobal(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(formRowColumns).
		AddRow("f2", "Newer", "AFTER_CLASS", nil, true, "link-2", now, now).
		AddRow("f1", "Older", "AFTER_CLASS", nil, true, "link-1", now.Add(-time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_forms WHERE type = $1 AND is_active = TRUE AND class_id IS NULL ORDER BY created_at DESC, id DESC")).
		WithArgs(models.FormTypeAfterClass).
		WillReturnRows(rows)

	forms, err := repo.FindActive(context.Background(), models.GlobalScope(), models.FormTypeAfterClass)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "f2", forms[0].ID)
	assert.Nil(t, forms[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryFindActiveClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE type = $1 AND is_active = TRUE AND class_id = $2")).
		WithArgs(models.FormTypeDuringClass, "class-1").
		WillReturnRows(sqlmock.NewRows(formRowColumns))

	forms, err := repo.FindActive(context.Background(), models.ClassScope("class-1"), models.FormTypeDuringClass)
	require.NoError(t, err)
	assert.Empty(t, forms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	rows := sqlmock.NewRows([]string{"id", "form_id", "label", "type", "required", "options", "position"}).
		AddRow("fld-1", "f1", "Note", "STARS", true, nil, 0).
		AddRow("fld-2", "f1", "Rythme", "RADIO", false, "{lent,bon,rapide}", 1)
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_fields WHERE form_id = $1 ORDER BY position, id")).
		WithArgs("f1").
		WillReturnRows(rows)

	fields, err := repo.ListFields(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, []string{"lent", "bon", "rapide"}, []string(fields[1].Options))
	assert.Equal(t, 1, fields[1].Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreateWithFieldsDeactivatesSiblings(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	classID := "class-1"
	form := &models.ReviewForm{Title: "Pendant le cours", Type: models.FormTypeDuringClass, ClassID: &classID, IsActive: true}
	fields := []models.ReviewField{
		{Label: "Note", Type: models.FieldTypeStars, Required: true, Order: 0},
		{Label: "Commentaire", Type: models.FieldTypeTextarea, Order: 1},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("forms:DURING_CLASS:class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_forms SET is_active = FALSE")).
		WithArgs(sqlmock.AnyArg(), models.FormTypeDuringClass, "class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO review_forms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithFields(context.Background(), form, fields))
	assert.NotEmpty(t, form.ID)
	assert.NotEmpty(t, form.PublicLink)
	assert.Equal(t, form.ID, fields[0].FormID)
	assert.NotEmpty(t, fields[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreateRollsBackOnFieldFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	form := &models.ReviewForm{Title: "Inactive", Type: models.FormTypeAfterClass}
	fields := []models.ReviewField{{Label: "Note", Type: models.FieldTypeStars, Required: true}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_forms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateWithFields(context.Background(), form, fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreateDuplicateFieldPosition(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	form := &models.ReviewForm{Title: "Inactive", Type: models.FormTypeAfterClass}
	fields := []models.ReviewField{
		{Label: "Note", Type: models.FieldTypeStars, Order: 0},
		{Label: "Commentaire", Type: models.FieldTypeTextarea, Order: 0},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_forms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateWithFields(context.Background(), form, fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryUpdateWithoutFieldReplacement(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	form := &models.ReviewForm{ID: "f1", Title: "Renamed", Type: models.FormTypeAfterClass, IsActive: false}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_forms SET title = ?, is_active = ?, updated_at = ? WHERE id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateWithFields(context.Background(), form, nil, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryUpdateReplacesFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	form := &models.ReviewForm{ID: "f1", Title: "Global", Type: models.FormTypeAfterClass, IsActive: true}
	fields := []models.ReviewField{{Label: "Note", Type: models.FieldTypeStars, Required: true}}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("forms:AFTER_CLASS:").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE review_forms SET is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE review_forms SET title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_fields WHERE form_id = $1")).WithArgs("f1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO review_fields").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateWithFields(context.Background(), form, fields, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCountReviews(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reviews WHERE form_id = $1")).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountReviews(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListFiltersByScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	scope := models.ClassScope("class-1")
	active := true
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_forms WHERE 1=1 AND class_id = $1 AND is_active = $2 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0")).
		WithArgs("class-1", true).
		WillReturnRows(sqlmock.NewRows(formRowColumns).AddRow("f1", "Cours", "DURING_CLASS", "class-1", true, "l1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM review_forms WHERE 1=1 AND class_id = $1 AND is_active = $2")).
		WithArgs("class-1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	forms, total, err := repo.List(context.Background(), models.FormFilter{Scope: &scope, Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, forms, 1)
	require.NotNil(t, forms[0].ClassID)
	assert.Equal(t, "class-1", *forms[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
