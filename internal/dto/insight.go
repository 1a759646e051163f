package dto

import "time"

// SubjectSummary is a generated synthesis of recent reviews.
type SubjectSummary struct {
	SubjectID   string     `json:"subject_id"`
	Available   bool       `json:"available"`
	Summary     string     `json:"summary,omitempty"`
	ReviewCount int        `json:"review_count"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// DraftMessage is a proposed message to students about an alert.
type DraftMessage struct {
	AlertID   string `json:"alert_id"`
	Available bool   `json:"available"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message,omitempty"`
}
