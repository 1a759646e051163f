package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// FormType tells when a form is meant to be answered.
type FormType string

const (
	FormTypeDuringClass FormType = "DURING_CLASS"
	FormTypeAfterClass  FormType = "AFTER_CLASS"
)

// ParseFormType accepts DURING_CLASS/AFTER_CLASS in any case, with dashes or underscores.
func ParseFormType(raw string) (FormType, error) {
	normalized := FormType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	switch normalized {
	case FormTypeDuringClass, FormTypeAfterClass:
		return normalized, nil
	default:
		return "", fmt.Errorf("unknown form type %q", raw)
	}
}

// FieldType is the kind of input a review field collects.
type FieldType string

const (
	FieldTypeStars    FieldType = "STARS"
	FieldTypeRadio    FieldType = "RADIO"
	FieldTypeTextarea FieldType = "TEXTAREA"
)

const (
	MinStars = 1
	MaxStars = 5
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeStars, FieldTypeRadio, FieldTypeTextarea:
		return true
	}
	return false
}

// ScopeKind discriminates global templates from class overrides.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "GLOBAL"
	ScopeClass  ScopeKind = "CLASS"
)

// FormScope is the domain view of the nullable review_forms.class_id column.
type FormScope struct {
	Kind    ScopeKind `json:"kind"`
	ClassID string    `json:"class_id,omitempty"`
}

// GlobalScope returns the scope of a global template.
func GlobalScope() FormScope { return FormScope{Kind: ScopeGlobal} }

// ClassScope returns the scope of a class override.
func ClassScope(classID string) FormScope { return FormScope{Kind: ScopeClass, ClassID: classID} }

// ScopeFromColumn maps a nullable class_id to a scope.
func ScopeFromColumn(classID *string) FormScope {
	if classID == nil || *classID == "" {
		return GlobalScope()
	}
	return ClassScope(*classID)
}

// Column maps the scope back to the nullable class_id column.
func (s FormScope) Column() *string {
	if s.Kind != ScopeClass || s.ClassID == "" {
		return nil
	}
	id := s.ClassID
	return &id
}

// IsGlobal reports whether the scope is the global template scope.
func (s FormScope) IsGlobal() bool { return s.Kind != ScopeClass }

// ReviewForm is a form template, global or overriding one class.
type ReviewForm struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Type       FormType  `db:"type" json:"type"`
	ClassID    *string   `db:"class_id" json:"class_id,omitempty"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	PublicLink string    `db:"public_link" json:"public_link"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Scope returns the tagged scope of the form.
func (f ReviewForm) Scope() FormScope { return ScopeFromColumn(f.ClassID) }

// ReviewField is one question of a form.
type ReviewField struct {
	ID       string         `db:"id" json:"id"`
	FormID   string         `db:"form_id" json:"form_id"`
	Label    string         `db:"label" json:"label"`
	Type     FieldType      `db:"type" json:"type"`
	Required bool           `db:"required" json:"required"`
	Options  pq.StringArray `db:"options" json:"options,omitempty"`
	Order    int            `db:"position" json:"order"`
}

// HasOption reports whether value is one of the declared RADIO options.
func (f ReviewField) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// FormFilter narrows form listings.
type FormFilter struct {
	Scope    *FormScope
	Type     FormType
	Active   *bool
	Page     int
	PageSize int
}
