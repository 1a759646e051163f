package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

const (
	formColumns  = "id, title, type, class_id, is_active, public_link, created_at, updated_at"
	fieldColumns = "id, form_id, label, type, required, options, position"
)

// FormRepository persists review forms and their fields.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

func scopeCondition(scope models.FormScope, args []interface{}) (string, []interface{}) {
	if scope.IsGlobal() {
		return "class_id IS NULL", args
	}
	args = append(args, scope.ClassID)
	return fmt.Sprintf("class_id = $%d", len(args)), args
}

// FindActive returns the active forms of a scope and type, newest first.
// More than one row means the at-most-one-active rule was broken upstream.
func (r *FormRepository) FindActive(ctx context.Context, scope models.FormScope, formType models.FormType) ([]models.ReviewForm, error) {
	cond, args := scopeCondition(scope, []interface{}{formType})
	query := fmt.Sprintf("SELECT %s FROM review_forms WHERE type = $1 AND is_active = TRUE AND %s ORDER BY created_at DESC, id DESC", formColumns, cond)
	var forms []models.ReviewForm
	if err := r.db.SelectContext(ctx, &forms, query, args...); err != nil {
		return nil, fmt.Errorf("find active forms: %w", err)
	}
	return forms, nil
}

// FindByID returns a form by ID.
func (r *FormRepository) FindByID(ctx context.Context, id string) (*models.ReviewForm, error) {
	var form models.ReviewForm
	if err := r.db.GetContext(ctx, &form, "SELECT "+formColumns+" FROM review_forms WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find form: %w", err)
	}
	return &form, nil
}

// FindByPublicLink returns the form published under link.
func (r *FormRepository) FindByPublicLink(ctx context.Context, link string) (*models.ReviewForm, error) {
	var form models.ReviewForm
	if err := r.db.GetContext(ctx, &form, "SELECT "+formColumns+" FROM review_forms WHERE public_link = $1", link); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find form by link: %w", err)
	}
	return &form, nil
}

// ListFields returns the fields of a form in display order.
func (r *FormRepository) ListFields(ctx context.Context, formID string) ([]models.ReviewField, error) {
	var fields []models.ReviewField
	if err := r.db.SelectContext(ctx, &fields, "SELECT "+fieldColumns+" FROM review_fields WHERE form_id = $1 ORDER BY position, id", formID); err != nil {
		return nil, fmt.Errorf("list form fields: %w", err)
	}
	return fields, nil
}

// List returns forms matching filter.
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, int, error) {
	base := "FROM review_forms WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Scope != nil {
		var cond string
		cond, args = scopeCondition(*filter.Scope, args)
		conditions = append(conditions, cond)
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", formColumns, base, limit, offset)
	var forms []models.ReviewForm
	if err := r.db.SelectContext(ctx, &forms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}
	return forms, total, nil
}

// CreateWithFields inserts a form and its fields atomically. An active form
// deactivates every other active form of the same scope and type.
func (r *FormRepository) CreateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField) (err error) {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.PublicLink == "" {
		form.PublicLink = uuid.NewString()
	}
	now := time.Now().UTC()
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
	}
	form.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create form: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if form.IsActive {
		if err = deactivateOthers(ctx, tx, form, now); err != nil {
			return err
		}
	}

	const insertForm = `INSERT INTO review_forms (id, title, type, class_id, is_active, public_link, created_at, updated_at) VALUES (:id, :title, :type, :class_id, :is_active, :public_link, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertForm, form); err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	if err = insertFields(ctx, tx, form.ID, fields); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create form: %w", err)
	}
	return nil
}

// UpdateWithFields saves title and activation. When replaceFields is set the
// previous fields are dropped and fields inserted in their place.
func (r *FormRepository) UpdateWithFields(ctx context.Context, form *models.ReviewForm, fields []models.ReviewField, replaceFields bool) (err error) {
	now := time.Now().UTC()
	form.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update form: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if form.IsActive {
		if err = deactivateOthers(ctx, tx, form, now); err != nil {
			return err
		}
	}

	const updateForm = `UPDATE review_forms SET title = :title, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateForm, form); err != nil {
		return fmt.Errorf("update form: %w", err)
	}

	if replaceFields {
		if _, err = tx.ExecContext(ctx, `DELETE FROM review_fields WHERE form_id = $1`, form.ID); err != nil {
			return fmt.Errorf("clear form fields: %w", err)
		}
		if err = insertFields(ctx, tx, form.ID, fields); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update form: %w", err)
	}
	return nil
}

// deactivateOthers serialises writers of one (scope, type) slot with an
// advisory lock, then switches every other active form of that slot off.
func deactivateOthers(ctx context.Context, tx *sqlx.Tx, form *models.ReviewForm, now time.Time) error {
	slot := "forms:" + string(form.Type) + ":"
	if form.ClassID != nil {
		slot += *form.ClassID
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot); err != nil {
		return fmt.Errorf("lock form slot: %w", err)
	}
	const query = `UPDATE review_forms SET is_active = FALSE, updated_at = $1 WHERE type = $2 AND class_id IS NOT DISTINCT FROM $3 AND id <> $4 AND is_active = TRUE`
	if _, err := tx.ExecContext(ctx, query, now, form.Type, form.ClassID, form.ID); err != nil {
		return fmt.Errorf("deactivate sibling forms: %w", err)
	}
	return nil
}

func insertFields(ctx context.Context, tx *sqlx.Tx, formID string, fields []models.ReviewField) error {
	const query = `INSERT INTO review_fields (id, form_id, label, type, required, options, position) VALUES (:id, :form_id, :label, :type, :required, :options, :position)`
	for i := range fields {
		field := &fields[i]
		if field.ID == "" {
			field.ID = uuid.NewString()
		}
		field.FormID = formID
		if _, err := tx.NamedExecContext(ctx, query, field); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert form field %q: %w", field.Label, ErrDuplicate)
			}
			return fmt.Errorf("insert form field: %w", err)
		}
	}
	return nil
}

// CountReviews returns how many reviews were submitted through a form.
func (r *FormRepository) CountReviews(ctx context.Context, formID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM reviews WHERE form_id = $1`, formID); err != nil {
		return 0, fmt.Errorf("count form reviews: %w", err)
	}
	return count, nil
}

// Delete removes a form and its fields.
func (r *FormRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM review_forms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return nil
}
