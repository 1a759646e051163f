package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

type subjectRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

// SubjectService manages the subjects of a class.
type SubjectService struct {
	repo      subjectRepository
	access    *AccessPolicy
	forms     formCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, access *AccessPolicy, forms formCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, access: access, forms: forms, validator: validate, logger: logger}
}

// ListByClass returns the subjects of a class the caller manages.
func (s *SubjectService) ListByClass(ctx context.Context, classID string, claims *models.JWTClaims) ([]models.Subject, error) {
	if _, err := s.access.Class(ctx, claims, classID); err != nil {
		return nil, err
	}
	subjects, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Get returns a subject with its class context.
func (s *SubjectService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubjectContext, error) {
	return s.access.Subject(ctx, claims, id)
}

// Create adds a subject to a class.
func (s *SubjectService) Create(ctx context.Context, classID string, req dto.SubjectRequest, claims *models.JWTClaims) (*models.Subject, error) {
	if _, err := s.access.Class(ctx, claims, classID); err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	subject := &models.Subject{ClassID: classID}
	applySubjectRequest(subject, req)
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update modifies a subject.
func (s *SubjectService) Update(ctx context.Context, id string, req dto.SubjectRequest, claims *models.JWTClaims) (*models.Subject, error) {
	current, err := s.access.Subject(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	subject := current.Subject
	applySubjectRequest(&subject, req)
	if err := s.repo.Update(ctx, &subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return &subject, nil
}

// Delete removes a subject and its reviews.
func (s *SubjectService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if _, err := s.access.Subject(ctx, claims, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	if s.forms != nil {
		s.forms.InvalidateResolved(ctx)
	}
	return nil
}

func (s *SubjectService) validate(req dto.SubjectRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if req.FirstLessonDate != nil && req.LastLessonDate != nil && req.LastLessonDate.Before(*req.FirstLessonDate) {
		return appErrors.Validation("invalid subject payload", []appErrors.FieldError{
			{Field: "last_lesson_date", Reason: "must not be before first_lesson_date"},
		})
	}
	return nil
}

func applySubjectRequest(subject *models.Subject, req dto.SubjectRequest) {
	subject.Name = strings.TrimSpace(req.Name)
	subject.InstructorName = req.InstructorName
	subject.InstructorEmail = req.InstructorEmail
	subject.FirstLessonDate = req.FirstLessonDate
	subject.LastLessonDate = req.LastLessonDate
}
