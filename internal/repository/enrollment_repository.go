package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// EnrollmentRepository persists student enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByClass returns the students enrolled in a class.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.class_id, e.student_id, e.created_at, u.full_name AS student_name, u.email AS student_email
	FROM student_enrollments e JOIN users u ON u.id = e.student_id WHERE e.class_id = $1 ORDER BY u.full_name`
	var list []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &list, query, classID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return list, nil
}

// Create enrolls a student. An existing (class, student) pair yields ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.StudentEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_enrollments (id, class_id, student_id, created_at) VALUES (:id, :class_id, :student_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment and reports whether a row existed.
func (r *EnrollmentRepository) Delete(ctx context.Context, classID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM student_enrollments WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment rows: %w", err)
	}
	return n > 0, nil
}
