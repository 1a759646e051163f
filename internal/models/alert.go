package models

import "time"

// AlertType is the polarity of an alert.
type AlertType string

const (
	AlertTypeNegative AlertType = "negative"
	AlertTypePositive AlertType = "positive"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	return t == AlertTypeNegative || t == AlertTypePositive
}

// AlertSeverity grades how urgent an alert is.
type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// Valid reports whether s is a known severity.
func (s AlertSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Alert flags a notable trend in the recent reviews of a subject.
type Alert struct {
	ID          string        `db:"id" json:"id"`
	SubjectID   string        `db:"subject_id" json:"subject_id"`
	Type        AlertType     `db:"type" json:"type"`
	Severity    AlertSeverity `db:"severity" json:"severity"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	WindowStart time.Time     `db:"window_start" json:"window_start"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	IsProcessed bool          `db:"is_processed" json:"is_processed"`
}
