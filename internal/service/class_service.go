package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
}

// ClassService coordinates class operations.
type ClassService struct {
	repo      classRepository
	users     userReader
	access    *AccessPolicy
	forms     formCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

type formCacheInvalidator interface {
	InvalidateResolved(ctx context.Context)
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, users userReader, access *AccessPolicy, forms formCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, users: users, access: access, forms: forms, validator: validate, logger: logger}
}

// List returns the classes visible to the caller.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter, claims *models.JWTClaims) ([]models.Class, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.Role.IsStaff() {
		if claims.Role != models.RoleTeacher {
			return nil, nil, appErrors.ErrForbidden
		}
		filter.TeacherID = claims.UserID
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns class details.
func (s *ClassService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ClassDetail, error) {
	if _, err := s.access.Class(ctx, claims, id); err != nil {
		return nil, err
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return detail, nil
}

// Create adds a class owned by the caller, or by teacher_id when staff sets it.
func (s *ClassService) Create(ctx context.Context, req dto.ClassRequest, claims *models.JWTClaims) (*models.Class, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	ownerID, err := s.resolveOwner(ctx, req.TeacherID, claims, claims.UserID)
	if err != nil {
		return nil, err
	}

	class := &models.Class{Name: strings.TrimSpace(req.Name), Description: req.Description, TeacherID: ownerID}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies a class the caller manages.
func (s *ClassService) Update(ctx context.Context, id string, req dto.ClassRequest, claims *models.JWTClaims) (*models.Class, error) {
	class, err := s.access.Class(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	ownerID, err := s.resolveOwner(ctx, req.TeacherID, claims, class.TeacherID)
	if err != nil {
		return nil, err
	}

	class.Name = strings.TrimSpace(req.Name)
	class.Description = req.Description
	class.TeacherID = ownerID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class with its subjects, enrollments and class forms.
func (s *ClassService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	if _, err := s.access.Class(ctx, claims, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	if s.forms != nil {
		s.forms.InvalidateResolved(ctx)
	}
	s.logger.Info("class deleted", zap.String("class_id", id), zap.String("actor", claims.UserID))
	return nil
}

func (s *ClassService) resolveOwner(ctx context.Context, requested *string, claims *models.JWTClaims, current string) (string, error) {
	if requested == nil || *requested == "" || *requested == current {
		return current, nil
	}
	if !claims.Role.IsStaff() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only administrators can assign another teacher")
	}
	teacher, err := s.users.FindByID(ctx, *requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher || !teacher.Active {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id must reference an active teacher")
	}
	return teacher.ID, nil
}
