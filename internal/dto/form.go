package dto

import (
	"time"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// FieldDefinition is the public shape of one form question.
type FieldDefinition struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Type     models.FieldType `json:"type"`
	Required bool             `json:"required"`
	Options  []string         `json:"options,omitempty"`
	Order    int              `json:"order"`
}

// FormDefinition is a form with its ordered fields.
type FormDefinition struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Type       models.FormType   `json:"type"`
	Scope      models.FormScope  `json:"scope"`
	IsActive   bool              `json:"is_active"`
	PublicLink string            `json:"public_link"`
	Fields     []FieldDefinition `json:"fields"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewFormDefinition assembles a definition from persisted rows.
func NewFormDefinition(form models.ReviewForm, fields []models.ReviewField) *FormDefinition {
	def := &FormDefinition{
		ID:         form.ID,
		Title:      form.Title,
		Type:       form.Type,
		Scope:      form.Scope(),
		IsActive:   form.IsActive,
		PublicLink: form.PublicLink,
		Fields:     make([]FieldDefinition, 0, len(fields)),
		CreatedAt:  form.CreatedAt,
		UpdatedAt:  form.UpdatedAt,
	}
	for _, f := range fields {
		def.Fields = append(def.Fields, FieldDefinition{
			ID:       f.ID,
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
			Options:  []string(f.Options),
			Order:    f.Order,
		})
	}
	return def
}

// FieldInput describes a field when creating or replacing form fields.
type FieldInput struct {
	Label    string           `json:"label" validate:"required,max=255"`
	Type     models.FieldType `json:"type" validate:"required,oneof=STARS RADIO TEXTAREA"`
	Required bool             `json:"required"`
	Options  []string         `json:"options" validate:"omitempty,dive,required,max=255"`
	Order    *int             `json:"order" validate:"omitempty,min=0"`
}

// CreateFormRequest creates a global template or a class override.
type CreateFormRequest struct {
	Title    string          `json:"title" validate:"required,max=255"`
	Type     models.FormType `json:"type" validate:"required,oneof=DURING_CLASS AFTER_CLASS"`
	ClassID  *string         `json:"class_id" validate:"omitempty,uuid"`
	IsActive *bool           `json:"is_active"`
	Fields   []FieldInput    `json:"fields" validate:"required,min=1,dive"`
}

// UpdateFormRequest patches a form. Fields, when present, replace every field.
type UpdateFormRequest struct {
	Title    *string       `json:"title" validate:"omitempty,min=1,max=255"`
	IsActive *bool         `json:"is_active"`
	Fields   *[]FieldInput `json:"fields" validate:"omitempty,min=1,dive"`
}

// CustomizeFormRequest clones the active global template into a class.
type CustomizeFormRequest struct {
	ClassID string          `json:"class_id" validate:"required,uuid"`
	Type    models.FormType `json:"type" validate:"required,oneof=DURING_CLASS AFTER_CLASS"`
	Title   string          `json:"title" validate:"omitempty,max=255"`
}
