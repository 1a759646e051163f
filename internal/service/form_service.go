package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

const (
	formResource        = "review_form"
	resolvedFormPattern = "forms:resolved:*"
)

type formRepository interface {
	FindActive(ctx context.Context, scope models.FormScope, formType models.FormType) ([]models.ReviewForm, error)
	FindByID(ctx context.Context, id string) (*models.ReviewForm, error)
	FindByPublicLink(ctx context.Context, link string) (*models.ReviewForm, error)
	ListFields(ctx context.Context, formID string) ([]models.ReviewField, error)
	List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, int, error)
	CreateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField) error
	UpdateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField, replaceFields bool) error
	CountReviews(ctx context.Context, formID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// FormService resolves and administers review forms.
type FormService struct {
	repo      formRepository
	subjects  subjectContextReader
	access    *AccessPolicy
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormService constructs FormService. cache may be nil.
func NewFormService(repo formRepository, subjects subjectContextReader, access *AccessPolicy, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{repo: repo, subjects: subjects, access: access, cache: cache, audit: audit, validator: validate, logger: logger}
}

func resolvedFormKey(subjectID string, formType models.FormType) string {
	return fmt.Sprintf("forms:resolved:%s:%s", subjectID, formType)
}

// Resolve returns the form a subject uses for formType: the active class
// override when there is one, the active global template otherwise.
func (s *FormService) Resolve(ctx context.Context, subjectID string, formType models.FormType) (*dto.FormDefinition, error) {
	subject, err := loadSubject(ctx, s.subjects, subjectID)
	if err != nil {
		return nil, err
	}

	key := resolvedFormKey(subjectID, formType)
	var cached dto.FormDefinition
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	form, err := s.activeForm(ctx, models.ClassScope(subject.ClassID), formType)
	if err != nil {
		return nil, err
	}
	if form == nil {
		form, err = s.activeForm(ctx, models.GlobalScope(), formType)
		if err != nil {
			return nil, err
		}
	}
	if form == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no active %s form for subject", formType))
	}

	def, err := s.definition(ctx, *form)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, def, 0)
	return def, nil
}

func (s *FormService) activeForm(ctx context.Context, scope models.FormScope, formType models.FormType) (*models.ReviewForm, error) {
	forms, err := s.repo.FindActive(ctx, scope, formType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve form")
	}
	if len(forms) == 0 {
		return nil, nil
	}
	if len(forms) > 1 {
		ids := make([]string, 0, len(forms))
		for _, f := range forms {
			ids = append(ids, f.ID)
		}
		s.logger.Warn("several active forms share a scope and type",
			zap.String("scope", string(scope.Kind)),
			zap.String("class_id", scope.ClassID),
			zap.String("type", string(formType)),
			zap.Strings("form_ids", ids),
			zap.String("selected", forms[0].ID))
	}
	return &forms[0], nil
}

// GetByPublicLink returns an active form for rendering its public page.
func (s *FormService) GetByPublicLink(ctx context.Context, link string) (*dto.FormDefinition, error) {
	form, err := s.loadPublic(ctx, link)
	if err != nil {
		return nil, err
	}
	return s.definition(ctx, *form)
}

func (s *FormService) loadPublic(ctx context.Context, link string) (*models.ReviewForm, error) {
	form, err := s.repo.FindByPublicLink(ctx, link)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if !form.IsActive {
		return nil, appErrors.ErrInactiveForm
	}
	return form, nil
}

func (s *FormService) definition(ctx context.Context, form models.ReviewForm) (*dto.FormDefinition, error) {
	fields, err := s.repo.ListFields(ctx, form.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form fields")
	}
	return dto.NewFormDefinition(form, fields), nil
}

// Get returns a form definition for administration.
func (s *FormService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*dto.FormDefinition, error) {
	form, err := s.loadManaged(ctx, id, claims, false)
	if err != nil {
		return nil, err
	}
	return s.definition(ctx, *form)
}

// List returns forms visible to the caller. Teachers must scope the listing
// to one of their classes or to global templates.
func (s *FormService) List(ctx context.Context, filter models.FormFilter, claims *models.JWTClaims) ([]models.ReviewForm, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.Role.IsStaff() {
		if filter.Scope == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "scope is required")
		}
		if !filter.Scope.IsGlobal() {
			if _, err := s.access.Class(ctx, claims, filter.Scope.ClassID); err != nil {
				return nil, nil, err
			}
		}
	}
	forms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
	}
	return forms, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Create stores a new form. Global templates are reserved to staff.
func (s *FormService) Create(ctx context.Context, req dto.CreateFormRequest, claims *models.JWTClaims) (*dto.FormDefinition, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}
	scope := models.ScopeFromColumn(req.ClassID)
	if err := s.authorizeScope(ctx, scope, claims); err != nil {
		return nil, err
	}
	fields, err := buildFields(req.Fields)
	if err != nil {
		return nil, err
	}

	form := &models.ReviewForm{
		Title:    strings.TrimSpace(req.Title),
		Type:     req.Type,
		ClassID:  scope.Column(),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := s.repo.CreateWithFields(ctx, form, fields); err != nil {
		return nil, s.writeError(err, "failed to create form")
	}

	s.InvalidateResolved(ctx)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionFormWrite, formResource, form.ID, map[string]interface{}{
		"type": form.Type, "scope": scope, "active": form.IsActive,
	})
	return dto.NewFormDefinition(*form, fields), nil
}

// Update patches title and activation. Replacing fields is refused once the
// form has collected reviews, since answers reference the old fields.
func (s *FormService) Update(ctx context.Context, id string, req dto.UpdateFormRequest, claims *models.JWTClaims) (*dto.FormDefinition, error) {
	form, err := s.loadManaged(ctx, id, claims, true)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	if req.Title != nil {
		form.Title = strings.TrimSpace(*req.Title)
	}
	if req.IsActive != nil {
		form.IsActive = *req.IsActive
	}

	var fields []models.ReviewField
	replace := req.Fields != nil
	if replace {
		count, err := s.repo.CountReviews(ctx, form.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count form reviews")
		}
		if count > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "form already has reviews; create a new form instead of changing its fields")
		}
		if fields, err = buildFields(*req.Fields); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateWithFields(ctx, form, fields, replace); err != nil {
		return nil, s.writeError(err, "failed to update form")
	}
	s.InvalidateResolved(ctx)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionFormWrite, formResource, form.ID, map[string]interface{}{
		"active": form.IsActive, "fields_replaced": replace,
	})

	if !replace {
		return s.definition(ctx, *form)
	}
	return dto.NewFormDefinition(*form, fields), nil
}

// Delete removes a form that never collected reviews.
func (s *FormService) Delete(ctx context.Context, id string, claims *models.JWTClaims) error {
	form, err := s.loadManaged(ctx, id, claims, true)
	if err != nil {
		return err
	}
	count, err := s.repo.CountReviews(ctx, form.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count form reviews")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "form has reviews; deactivate it instead")
	}
	if err := s.repo.Delete(ctx, form.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete form")
	}
	s.InvalidateResolved(ctx)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionFormDelete, formResource, form.ID, nil)
	return nil
}

// CustomizeForClass copies the active global template of a type into an
// independent, active class form.
func (s *FormService) CustomizeForClass(ctx context.Context, req dto.CustomizeFormRequest, claims *models.JWTClaims) (*dto.FormDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid customize payload")
	}
	class, err := s.access.Class(ctx, claims, req.ClassID)
	if err != nil {
		return nil, err
	}
	template, err := s.activeForm(ctx, models.GlobalScope(), req.Type)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no active global %s template", req.Type))
	}
	source, err := s.repo.ListFields(ctx, template.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template fields")
	}

	fields := make([]models.ReviewField, 0, len(source))
	for _, f := range source {
		fields = append(fields, models.ReviewField{
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
			Options:  append([]string(nil), f.Options...),
			Order:    f.Order,
		})
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("%s - %s", template.Title, class.Name)
	}
	classID := class.ID
	form := &models.ReviewForm{Title: title, Type: req.Type, ClassID: &classID, IsActive: true}
	if err := s.repo.CreateWithFields(ctx, form, fields); err != nil {
		return nil, s.writeError(err, "failed to customize form")
	}

	s.InvalidateResolved(ctx)
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionFormWrite, formResource, form.ID, map[string]interface{}{
		"cloned_from": template.ID, "class_id": class.ID,
	})
	return dto.NewFormDefinition(*form, fields), nil
}

// InvalidateResolved drops every cached resolution.
func (s *FormService) InvalidateResolved(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, resolvedFormPattern); err != nil {
		s.logger.Warn("failed to invalidate resolved forms", zap.Error(err))
	}
}

func (s *FormService) loadManaged(ctx context.Context, id string, claims *models.JWTClaims, write bool) (*models.ReviewForm, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	scope := form.Scope()
	if scope.IsGlobal() {
		if write && !claims.Role.IsStaff() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "global templates are managed by administrators")
		}
		return form, nil
	}
	if _, err := s.access.Class(ctx, claims, scope.ClassID); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *FormService) authorizeScope(ctx context.Context, scope models.FormScope, claims *models.JWTClaims) error {
	if scope.IsGlobal() {
		if !claims.Role.IsStaff() {
			return appErrors.Clone(appErrors.ErrForbidden, "global templates are managed by administrators")
		}
		return nil
	}
	_, err := s.access.Class(ctx, claims, scope.ClassID)
	return err
}

func (s *FormService) writeError(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "field order must be unique within a form")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// buildFields checks field definitions and assigns display order. Explicit
// orders win; fields without one follow in input order.
func buildFields(inputs []dto.FieldInput) ([]models.ReviewField, error) {
	var problems []appErrors.FieldError
	fields := make([]models.ReviewField, 0, len(inputs))
	seenOrder := make(map[int]bool, len(inputs))
	next := 0

	for i, in := range inputs {
		name := fmt.Sprintf("fields[%d]", i)
		field := models.ReviewField{
			Label:    strings.TrimSpace(in.Label),
			Type:     in.Type,
			Required: in.Required,
		}
		if field.Label == "" {
			problems = append(problems, appErrors.FieldError{Field: name + ".label", Reason: "is required"})
		}
		switch in.Type {
		case models.FieldTypeRadio:
			options := uniqueOptions(in.Options)
			if len(options) < 2 {
				problems = append(problems, appErrors.FieldError{Field: name + ".options", Reason: "RADIO fields need at least two distinct options"})
			}
			field.Options = options
		case models.FieldTypeStars, models.FieldTypeTextarea:
			if len(in.Options) > 0 {
				problems = append(problems, appErrors.FieldError{Field: name + ".options", Reason: "only RADIO fields take options"})
			}
		default:
			problems = append(problems, appErrors.FieldError{Field: name + ".type", Reason: "must be STARS, RADIO or TEXTAREA"})
		}
		if in.Order != nil {
			field.Order = *in.Order
		} else {
			for seenOrder[next] {
				next++
			}
			field.Order = next
		}
		if seenOrder[field.Order] {
			problems = append(problems, appErrors.FieldError{Field: name + ".order", Reason: "duplicates another field"})
		}
		seenOrder[field.Order] = true
		fields = append(fields, field)
	}

	if len(problems) > 0 {
		return nil, appErrors.Validation("invalid form fields", problems)
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })
	return fields, nil
}

func uniqueOptions(options []string) []string {
	seen := make(map[string]bool, len(options))
	out := make([]string, 0, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" || seen[opt] {
			continue
		}
		seen[opt] = true
		out = append(out, opt)
	}
	return out
}
