package dto

import (
	"time"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
)

// AlertDecision is the classification returned by the text-generation model.
type AlertDecision struct {
	HasAlert    bool                 `json:"hasAlert"`
	Type        models.AlertType     `json:"type,omitempty"`
	Severity    models.AlertSeverity `json:"severity,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// EvaluationOutcome names how an evaluation ended.
type EvaluationOutcome string

const (
	OutcomeCreated          EvaluationOutcome = "created"
	OutcomeNoAlert          EvaluationOutcome = "no_alert"
	OutcomeInsufficient     EvaluationOutcome = "insufficient_reviews"
	OutcomeNoSignal         EvaluationOutcome = "no_signal"
	OutcomeSuppressed       EvaluationOutcome = "suppressed"
	OutcomeBusy             EvaluationOutcome = "busy"
	OutcomeModelFailed      EvaluationOutcome = "model_failed"
	OutcomeModelInvalid     EvaluationOutcome = "model_invalid"
	OutcomeModelUnavailable EvaluationOutcome = "model_unavailable"
)

// ReviewSignals are the locally computed statistics of a review window.
type ReviewSignals struct {
	ReviewCount      int      `json:"review_count"`
	AverageRating    float64  `json:"average_rating"`
	LowRatings       int      `json:"low_ratings"`
	PerfectRatings   int      `json:"perfect_ratings"`
	NegativeKeywords []string `json:"negative_keywords,omitempty"`
	PositiveKeywords []string `json:"positive_keywords,omitempty"`
}

// HasSignal reports whether anything in the window warrants asking the model.
func (s ReviewSignals) HasSignal() bool {
	return s.LowRatings > 0 || s.PerfectRatings > 0 || len(s.NegativeKeywords) > 0 || len(s.PositiveKeywords) > 0
}

// EvaluationResult reports one subject evaluation.
type EvaluationResult struct {
	SubjectID   string            `json:"subject_id"`
	WindowStart time.Time         `json:"window_start"`
	Outcome     EvaluationOutcome `json:"outcome"`
	Signals     ReviewSignals     `json:"signals"`
	Decision    *AlertDecision    `json:"decision,omitempty"`
	Alert       *models.Alert     `json:"alert,omitempty"`
}

// RunSummary aggregates a scan over every recently reviewed subject.
type RunSummary struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Subjects   int                       `json:"subjects"`
	Failed     int                       `json:"failed"`
	Outcomes   map[EvaluationOutcome]int `json:"outcomes"`
}
