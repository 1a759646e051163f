package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

type enrollmentRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.StudentEnrollment) error
	Delete(ctx context.Context, classID, studentID string) (bool, error)
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     userReader
	access    *AccessPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, users userReader, access *AccessPolicy, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, users: users, access: access, validator: validate, logger: logger}
}

// List returns the students enrolled in a class.
func (s *EnrollmentService) List(ctx context.Context, classID string, claims *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	if _, err := s.access.Class(ctx, claims, classID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, nil
}

// Enroll adds a student to a class. Enrolling twice is a conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, classID string, req dto.EnrollRequest, claims *models.JWTClaims) (*models.StudentEnrollment, error) {
	if _, err := s.access.Class(ctx, claims, classID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id must reference a student account")
	}

	enrollment := &models.StudentEnrollment{ClassID: classID, StudentID: student.ID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	return enrollment, nil
}

// Unenroll removes a student from a class.
func (s *EnrollmentService) Unenroll(ctx context.Context, classID, studentID string, claims *models.JWTClaims) error {
	if _, err := s.access.Class(ctx, claims, classID); err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, classID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollment")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return nil
}
