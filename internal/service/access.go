package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type subjectContextReader interface {
	FindContext(ctx context.Context, id string) (*models.SubjectContext, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AccessPolicy resolves classes and subjects on behalf of a caller. Staff
// reach everything; teachers reach the classes they own and the subjects of
// those classes.
type AccessPolicy struct {
	classes  classReader
	subjects subjectContextReader
}

// NewAccessPolicy builds the policy.
func NewAccessPolicy(classes classReader, subjects subjectContextReader) *AccessPolicy {
	return &AccessPolicy{classes: classes, subjects: subjects}
}

func canManage(claims *models.JWTClaims, ownerID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role.IsStaff() {
		return true
	}
	return claims.Role == models.RoleTeacher && claims.UserID == ownerID
}

// Class loads a class the caller may manage.
func (p *AccessPolicy) Class(ctx context.Context, claims *models.JWTClaims, classID string) (*models.Class, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	class, err := p.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !canManage(claims, class.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another teacher")
	}
	return class, nil
}

// Subject loads a subject, with its class context, that the caller may manage.
func (p *AccessPolicy) Subject(ctx context.Context, claims *models.JWTClaims, subjectID string) (*models.SubjectContext, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	subject, err := loadSubject(ctx, p.subjects, subjectID)
	if err != nil {
		return nil, err
	}
	if !canManage(claims, subject.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "subject belongs to another teacher")
	}
	return subject, nil
}

func loadSubject(ctx context.Context, subjects subjectContextReader, subjectID string) (*models.SubjectContext, error) {
	subject, err := subjects.FindContext(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
