package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/llm"
)

type alertFinder interface {
	FindByID(ctx context.Context, id string) (*models.Alert, error)
}

type subjectReviewReader interface {
	ListBySubjectSince(ctx context.Context, subjectID string, since time.Time) ([]models.Review, error)
}

// InsightService produces optional generated texts for teachers. Every
// failure degrades to an unavailable result instead of an error.
type InsightService struct {
	reviews    subjectReviewReader
	alerts     alertFinder
	access     *AccessPolicy
	ai         textGenerator
	metrics    *MetricsService
	windowDays int
	maxReviews int
	logger     *zap.Logger
	now        func() time.Time
}

// NewInsightService constructs InsightService.
func NewInsightService(reviews subjectReviewReader, alerts alertFinder, access *AccessPolicy, ai textGenerator, metrics *MetricsService, windowDays, maxReviews int, logger *zap.Logger) *InsightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &InsightService{
		reviews:    reviews,
		alerts:     alerts,
		access:     access,
		ai:         ai,
		metrics:    metrics,
		windowDays: windowDays,
		maxReviews: maxReviews,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Summarize synthesises the reviews of the current window.
func (s *InsightService) Summarize(ctx context.Context, subjectID string, claims *models.JWTClaims) (*dto.SubjectSummary, error) {
	subject, err := s.access.Subject(ctx, claims, subjectID)
	if err != nil {
		return nil, err
	}
	result := &dto.SubjectSummary{SubjectID: subject.ID}
	since := windowStart(s.now(), s.windowDays)
	reviews, err := s.reviews.ListBySubjectSince(ctx, subject.ID, since)
	if err != nil {
		s.logger.Warn("summary reviews unavailable", zap.String("subject_id", subject.ID), zap.Error(err))
		return result, nil
	}
	result.ReviewCount = len(reviews)
	if len(reviews) == 0 || !s.enabled() {
		return result, nil
	}

	text, ok := s.complete(ctx, purposeSummary, llm.Request{
		SystemPrompt:   summarySystemPrompt,
		UserPrompt:     buildSummaryPrompt(subject, since, reviews, s.maxReviews),
		ResponseFormat: llm.FormatText,
	})
	if !ok {
		return result, nil
	}
	generated := s.now()
	result.Available = true
	result.Summary = strings.TrimSpace(text)
	result.GeneratedAt = &generated
	return result, nil
}

// DraftMessage proposes a note to the students about an alert.
func (s *InsightService) DraftMessage(ctx context.Context, alertID string, claims *models.JWTClaims) (*dto.DraftMessage, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	alert, err := s.alerts.FindByID(ctx, alertID)
	if err != nil {
		return nil, notFoundOrInternal(err, "alert not found", "failed to load alert")
	}
	subject, err := s.access.Subject(ctx, claims, alert.SubjectID)
	if err != nil {
		return nil, err
	}
	result := &dto.DraftMessage{AlertID: alert.ID}
	if !s.enabled() {
		return result, nil
	}

	raw, ok := s.complete(ctx, purposeDraft, llm.Request{
		SystemPrompt:   draftSystemPrompt,
		UserPrompt:     buildDraftPrompt(subject, alert),
		ResponseFormat: llm.FormatJSON,
	})
	if !ok {
		return result, nil
	}
	subjectLine, message, err := parseDraft(raw)
	if err != nil {
		s.logger.Warn("draft message unusable", zap.String("alert_id", alert.ID), zap.Error(err))
		return result, nil
	}
	result.Available = true
	result.Subject = subjectLine
	result.Message = message
	return result, nil
}

func (s *InsightService) enabled() bool {
	return s.ai != nil && s.ai.Enabled()
}

func (s *InsightService) complete(ctx context.Context, purpose string, req llm.Request) (string, bool) {
	started := time.Now()
	text, err := s.ai.Complete(ctx, req)
	if err != nil {
		s.metrics.ObserveAIRequest(purpose, "error", time.Since(started))
		s.logger.Warn("text generation failed", zap.String("purpose", purpose), zap.Error(err))
		return "", false
	}
	s.metrics.ObserveAIRequest(purpose, "ok", time.Since(started))
	return text, true
}
