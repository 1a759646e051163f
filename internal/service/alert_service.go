package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/cache"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/llm"
)

const (
	alertResource   = "alert"
	purposeAlert    = "alert"
	purposeSummary  = "summary"
	purposeDraft    = "draft_message"
	subjectLockKey  = "alerts:subject:"
	defaultLockTTL  = 2 * time.Minute
	defaultMinCount = 3
)

type alertRepository interface {
	HasOpen(ctx context.Context, subjectID string, windowStart time.Time) (bool, error)
	InsertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Alert, error)
	FindByID(ctx context.Context, id string) (*models.Alert, error)
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

type windowReviewReader interface {
	ListBySubjectSince(ctx context.Context, subjectID string, since time.Time) ([]models.Review, error)
	SubjectIDsWithReviewsSince(ctx context.Context, since time.Time) ([]string, error)
}

type textGenerator interface {
	Enabled() bool
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// AlertNotifier delivers a freshly created alert.
type AlertNotifier interface {
	FanOut(ctx context.Context, alert *models.Alert, subject *models.SubjectContext) error
}

// AlertEngineConfig tunes the evaluation window and thresholds.
type AlertEngineConfig struct {
	WindowDays   int
	MinReviews   int
	LowRatingMax int
	MaxReviews   int
	Concurrency  int
	LockTTL      time.Duration
}

// AlertService evaluates recent reviews per subject and raises alerts.
type AlertService struct {
	alerts   alertRepository
	reviews  windowReviewReader
	subjects subjectContextReader
	access   *AccessPolicy
	ai       textGenerator
	notifier AlertNotifier
	locker   cache.Locker
	audit    auditLogger
	metrics  *MetricsService
	config   AlertEngineConfig
	logger   *zap.Logger
	now      func() time.Time
}

// AlertServiceDeps groups AlertService collaborators.
type AlertServiceDeps struct {
	Alerts   alertRepository
	Reviews  windowReviewReader
	Subjects subjectContextReader
	Access   *AccessPolicy
	AI       textGenerator
	Notifier AlertNotifier
	Locker   cache.Locker
	Audit    auditLogger
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// NewAlertService constructs the engine.
func NewAlertService(deps AlertServiceDeps, cfg AlertEngineConfig) *AlertService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalLocker()
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.MinReviews <= 0 {
		cfg.MinReviews = defaultMinCount
	}
	if cfg.LowRatingMax <= 0 {
		cfg.LowRatingMax = 2
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &AlertService{
		alerts:   deps.Alerts,
		reviews:  deps.Reviews,
		subjects: deps.Subjects,
		access:   deps.Access,
		ai:       deps.AI,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		config:   cfg,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WindowStart returns the first instant of the evaluation window ending at
// now: midnight UTC of the oldest of the last WindowDays calendar days, today
// included. Every run of a day shares it and the window never spans more
// than WindowDays days.
func (s *AlertService) WindowStart(now time.Time) time.Time {
	return windowStart(now, s.config.WindowDays)
}

func windowStart(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(days - 1))
}

// Evaluate inspects the review window of one subject and persists at most
// one alert for it. Model failures end the evaluation without an alert.
func (s *AlertService) Evaluate(ctx context.Context, subjectID string) (*dto.EvaluationResult, error) {
	subject, err := loadSubject(ctx, s.subjects, subjectID)
	if err != nil {
		return nil, err
	}
	result, err := s.evaluate(ctx, subject)
	if err != nil {
		s.metrics.RecordAlertEvaluation("error")
		return nil, err
	}
	s.metrics.RecordAlertEvaluation(string(result.Outcome))
	return result, nil
}

// EvaluateFor runs Evaluate on behalf of a user who manages the subject.
func (s *AlertService) EvaluateFor(ctx context.Context, subjectID string, claims *models.JWTClaims) (*dto.EvaluationResult, error) {
	if _, err := s.access.Subject(ctx, claims, subjectID); err != nil {
		return nil, err
	}
	result, err := s.Evaluate(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionAlertEvaluate, alertResource, subjectID, map[string]interface{}{
		"outcome": result.Outcome,
	})
	return result, nil
}

func (s *AlertService) evaluate(ctx context.Context, subject *models.SubjectContext) (*dto.EvaluationResult, error) {
	now := s.now()
	windowStart := s.WindowStart(now)
	result := &dto.EvaluationResult{SubjectID: subject.ID, WindowStart: windowStart}
	log := s.logger.With(zap.String("subject_id", subject.ID), zap.Time("window_start", windowStart))

	release, acquired, err := s.locker.TryLock(ctx, subjectLockKey+subject.ID, s.config.LockTTL)
	if err != nil {
		log.Warn("subject lock unavailable, relying on database lock", zap.Error(err))
	} else if !acquired {
		result.Outcome = dto.OutcomeBusy
		return result, nil
	} else {
		defer release()
	}

	open, err := s.alerts.HasOpen(ctx, subject.ID, windowStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open alerts")
	}
	if open {
		result.Outcome = dto.OutcomeSuppressed
		return result, nil
	}

	reviews, err := s.reviews.ListBySubjectSince(ctx, subject.ID, windowStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}
	result.Signals = computeSignals(reviews, s.config.LowRatingMax)
	if result.Signals.ReviewCount < s.config.MinReviews {
		result.Outcome = dto.OutcomeInsufficient
		return result, nil
	}
	if !result.Signals.HasSignal() {
		result.Outcome = dto.OutcomeNoSignal
		return result, nil
	}
	if s.ai == nil || !s.ai.Enabled() {
		result.Outcome = dto.OutcomeModelUnavailable
		return result, nil
	}

	prompt := buildAlertPrompt(subject, windowStart, now, reviews, result.Signals, s.config.MaxReviews)
	started := time.Now()
	raw, err := s.ai.Complete(ctx, llm.Request{
		SystemPrompt:   alertSystemPrompt,
		UserPrompt:     prompt,
		Temperature:    llm.Temperature(0),
		ResponseFormat: llm.FormatJSON,
	})
	if err != nil {
		s.metrics.ObserveAIRequest(purposeAlert, "error", time.Since(started))
		log.Warn("alert classification failed",
			zap.Error(appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "classification call failed")))
		result.Outcome = dto.OutcomeModelFailed
		return result, nil
	}
	decision, err := parseDecision(raw)
	if err != nil {
		s.metrics.ObserveAIRequest(purposeAlert, "invalid", time.Since(started))
		log.Warn("alert classification unusable", zap.Error(err))
		result.Outcome = dto.OutcomeModelInvalid
		return result, nil
	}
	s.metrics.ObserveAIRequest(purposeAlert, "ok", time.Since(started))
	result.Decision = decision
	if !decision.HasAlert {
		result.Outcome = dto.OutcomeNoAlert
		return result, nil
	}

	alert := &models.Alert{
		SubjectID:   subject.ID,
		Type:        decision.Type,
		Severity:    decision.Severity,
		Title:       decision.Title,
		Description: decision.Description,
		WindowStart: windowStart,
	}
	inserted, err := s.alerts.InsertIfAbsent(ctx, alert)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Info("concurrent alert creation suppressed",
				zap.Error(appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "alert already recorded")))
			result.Outcome = dto.OutcomeSuppressed
			return result, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store alert")
	}
	if !inserted {
		result.Outcome = dto.OutcomeSuppressed
		return result, nil
	}

	result.Outcome = dto.OutcomeCreated
	result.Alert = alert
	log.Info("alert created", zap.String("alert_id", alert.ID), zap.String("type", string(alert.Type)), zap.String("severity", string(alert.Severity)))

	if s.notifier != nil {
		if err := s.notifier.FanOut(ctx, alert, subject); err != nil {
			log.Error("alert notification failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	return result, nil
}

// RunAll evaluates every subject reviewed inside the current window with
// bounded parallelism. A failing subject is counted and logged; it never
// stops the run.
func (s *AlertService) RunAll(ctx context.Context) (*dto.RunSummary, error) {
	summary := &dto.RunSummary{StartedAt: s.now(), Outcomes: make(map[dto.EvaluationOutcome]int)}
	ids, err := s.reviews.SubjectIDsWithReviewsSince(ctx, s.WindowStart(summary.StartedAt))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviewed subjects")
	}
	summary.Subjects = len(ids)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	work := make(chan string)
	workers := s.config.Concurrency
	if workers > len(ids) {
		workers = len(ids)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				result, err := s.Evaluate(ctx, id)
				mu.Lock()
				if err != nil {
					summary.Failed++
				} else {
					summary.Outcomes[result.Outcome]++
				}
				mu.Unlock()
				if err != nil {
					s.logger.Error("subject evaluation failed", zap.String("subject_id", id), zap.Error(err))
				}
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break feed
		case work <- id:
		}
	}
	close(work)
	wg.Wait()

	summary.FinishedAt = s.now()
	s.logger.Info("alert scan finished",
		zap.Int("subjects", summary.Subjects),
		zap.Int("failed", summary.Failed),
		zap.Any("outcomes", summary.Outcomes),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, ctx.Err()
}

// ListBySubject returns a subject's alerts, newest first.
func (s *AlertService) ListBySubject(ctx context.Context, subjectID string, claims *models.JWTClaims) ([]models.Alert, error) {
	if _, err := s.access.Subject(ctx, claims, subjectID); err != nil {
		return nil, err
	}
	alerts, err := s.alerts.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	return alerts, nil
}

// MarkProcessed flags an alert as handled. Repeating the call is harmless.
func (s *AlertService) MarkProcessed(ctx context.Context, alertID string, claims *models.JWTClaims) (*models.Alert, error) {
	alert, _, err := s.loadAlert(ctx, alertID, claims)
	if err != nil {
		return nil, err
	}
	changed, err := s.alerts.MarkProcessed(ctx, alert.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update alert")
	}
	alert.IsProcessed = true
	if changed {
		recordAudit(ctx, s.audit, s.logger, claims, models.AuditActionAlertProcess, alertResource, alert.ID, nil)
	}
	return alert, nil
}

func (s *AlertService) loadAlert(ctx context.Context, alertID string, claims *models.JWTClaims) (*models.Alert, *models.SubjectContext, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	alert, err := s.alerts.FindByID(ctx, alertID)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "alert not found", "failed to load alert")
	}
	subject, err := s.access.Subject(ctx, claims, alert.SubjectID)
	if err != nil {
		return nil, nil, err
	}
	return alert, subject, nil
}
