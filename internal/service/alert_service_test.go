package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/cache"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/llm"
)

const negativeDecision = `{"hasAlert": true, "type": "negative", "severity": "high", "title": "Cours jugé incompréhensible", "description": "Plusieurs étudiants disent ne pas suivre."}`

// fakeAlertStore mirrors the repository guard: no insert while an
// unprocessed alert exists or when the window already has one.
type fakeAlertStore struct {
	mu        sync.Mutex
	alerts    []models.Alert
	insertErr error
}

func (f *fakeAlertStore) openLocked(subjectID string, windowStart time.Time) bool {
	for _, a := range f.alerts {
		if a.SubjectID == subjectID && (!a.IsProcessed || a.WindowStart.Equal(windowStart)) {
			return true
		}
	}
	return false
}

func (f *fakeAlertStore) HasOpen(ctx context.Context, subjectID string, windowStart time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openLocked(subjectID, windowStart), nil
}

func (f *fakeAlertStore) InsertIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if f.openLocked(alert.SubjectID, alert.WindowStart) {
		return false, nil
	}
	alert.ID = fmt.Sprintf("alert-%d", len(f.alerts)+1)
	alert.CreatedAt = time.Now().UTC()
	f.alerts = append(f.alerts, *alert)
	return true, nil
}

func (f *fakeAlertStore) ListBySubject(ctx context.Context, subjectID string) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Alert
	for i := len(f.alerts) - 1; i >= 0; i-- {
		if f.alerts[i].SubjectID == subjectID {
			out = append(out, f.alerts[i])
		}
	}
	return out, nil
}

func (f *fakeAlertStore) FindByID(ctx context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.ID == id {
			clone := a
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAlertStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			if f.alerts[i].IsProcessed {
				return false, nil
			}
			f.alerts[i].IsProcessed = true
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
	err    error
}

func (r *recordingNotifier) FanOut(ctx context.Context, alert *models.Alert, subject *models.SubjectContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert.ID)
	return r.err
}

type alertFixture struct {
	svc      *AlertService
	alerts   *fakeAlertStore
	reviews  *fakeReviewStore
	ai       *fakeGenerator
	notifier *recordingNotifier
	audit    *fakeAudit
	now      time.Time
}

func newAlertFixture(response string) *alertFixture {
	fx := &alertFixture{
		alerts:   &fakeAlertStore{},
		reviews:  &fakeReviewStore{},
		ai:       &fakeGenerator{response: response},
		notifier: &recordingNotifier{},
		audit:    &fakeAudit{},
		now:      time.Date(2026, 3, 12, 14, 30, 0, 0, time.UTC),
	}
	subjects := newFakeSubjects(testSubject())
	fx.svc = NewAlertService(AlertServiceDeps{
		Alerts:   fx.alerts,
		Reviews:  fx.reviews,
		Subjects: subjects,
		Access:   testAccess(subjects),
		AI:       fx.ai,
		Notifier: fx.notifier,
		Locker:   cache.NewLocalLocker(),
		Audit:    fx.audit,
		Metrics:  NewMetricsService(),
		Logger:   zap.NewNop(),
	}, AlertEngineConfig{WindowDays: 7, MinReviews: 3, LowRatingMax: 2, MaxReviews: 50, Concurrency: 2})
	fx.svc.now = func() time.Time { return fx.now }
	return fx
}

func (fx *alertFixture) addReview(subjectID string, rating int, comment string, age time.Duration) {
	r := models.Review{
		ID:        fmt.Sprintf("r%d", len(fx.reviews.reviews)+1),
		SubjectID: subjectID,
		Rating:    rating,
		CreatedAt: fx.now.Add(-age),
	}
	if comment != "" {
		r.Comment = &comment
	}
	fx.reviews.reviews = append(fx.reviews.reviews, r)
}

func TestAlertServiceWindowStartTruncatesToDay(t *testing.T) {
	fx := newAlertFixture("")
	start := fx.svc.WindowStart(fx.now)
	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start, fx.svc.WindowStart(fx.now.Add(9*time.Hour)))
}

func TestAlertServiceWindowNeverExceedsConfiguredDays(t *testing.T) {
	fx := newAlertFixture("")
	lateNight := time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC)

	span := lateNight.Sub(fx.svc.WindowStart(lateNight))
	assert.LessOrEqual(t, span, 7*24*time.Hour)
	assert.Greater(t, span, 6*24*time.Hour)
}

func TestAlertServiceIncomprehensibleScenario(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "Cours incompréhensible", 3*time.Hour)
	fx.addReview(testSubjectID, 2, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "Toujours incompréhensible !", time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeCreated, result.Outcome)
	require.NotNil(t, result.Alert)
	assert.Equal(t, models.AlertTypeNegative, result.Alert.Type)
	assert.Equal(t, models.SeverityHigh, result.Alert.Severity)
	assert.Equal(t, 3, result.Signals.ReviewCount)
	assert.Equal(t, 3, result.Signals.LowRatings)
	assert.Equal(t, []string{"incomprehensible"}, result.Signals.NegativeKeywords)

	require.Equal(t, 1, fx.ai.calls())
	req := fx.ai.requests[0]
	assert.Equal(t, llm.FormatJSON, req.ResponseFormat)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.0, *req.Temperature)
	assert.Contains(t, req.UserPrompt, "1. [")
	assert.Contains(t, req.UserPrompt, "2. [")
	assert.Contains(t, req.UserPrompt, "3. [")
	assert.NotContains(t, req.UserPrompt, "4. [")
	assert.Contains(t, req.UserPrompt, "incompréhensible")
	assert.Less(t, strings.Index(req.UserPrompt, "Cours incompréhensible"), strings.Index(req.UserPrompt, "Toujours incompréhensible"))

	require.Len(t, fx.alerts.alerts, 1)
	assert.Equal(t, []string{"alert-1"}, fx.notifier.alerts)
}

func TestAlertServiceEvaluateIsIdempotent(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "nul", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "nul", 2*time.Hour)
	fx.addReview(testSubjectID, 2, "", time.Hour)

	first, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeCreated, first.Outcome)

	second, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeSuppressed, second.Outcome)

	assert.Len(t, fx.alerts.alerts, 1)
	assert.Equal(t, 1, fx.ai.calls())
	assert.Len(t, fx.notifier.alerts, 1)
}

func TestAlertServiceProcessedAlertStillBlocksSameWindow(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)

	_, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	_, err = fx.svc.MarkProcessed(context.Background(), "alert-1", teacherClaims(testTeacherID))
	require.NoError(t, err)

	again, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeSuppressed, again.Outcome)

	fx.now = fx.now.Add(24 * time.Hour)
	next, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeCreated, next.Outcome)
	assert.Len(t, fx.alerts.alerts, 2)
}

func TestAlertServiceInvalidJSONCreatesNoAlert(t *testing.T) {
	cases := map[string]string{
		"not json":         "I think there is a problem",
		"missing severity": `{"hasAlert": true, "type": "negative", "title": "t", "description": "d"}`,
		"string flag":      `{"hasAlert": "yes", "type": "negative", "severity": "high", "title": "t", "description": "d"}`,
		"unknown type":     `{"hasAlert": true, "type": "neutral", "severity": "high", "title": "t", "description": "d"}`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newAlertFixture(response)
			fx.addReview(testSubjectID, 1, "", 3*time.Hour)
			fx.addReview(testSubjectID, 2, "", 2*time.Hour)
			fx.addReview(testSubjectID, 1, "", time.Hour)

			result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
			require.NoError(t, err)
			assert.Equal(t, dto.OutcomeModelInvalid, result.Outcome)
			assert.Empty(t, fx.alerts.alerts)
			assert.Empty(t, fx.notifier.alerts)
		})
	}
}

func TestAlertServiceModelFailureCreatesNoAlert(t *testing.T) {
	fx := newAlertFixture("")
	fx.ai.err = errors.New("status code: 503")
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeModelFailed, result.Outcome)
	assert.Empty(t, fx.alerts.alerts)
}

func TestAlertServiceSkipsModelWithoutEnoughSignal(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)
	fx.addReview(testSubjectID, 1, "", 10*24*time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeInsufficient, result.Outcome)

	fx.reviews.reviews = nil
	fx.addReview(testSubjectID, 3, "", 3*time.Hour)
	fx.addReview(testSubjectID, 4, "", 2*time.Hour)
	fx.addReview(testSubjectID, 3, "", time.Hour)
	result, err = fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeNoSignal, result.Outcome)

	assert.Equal(t, 0, fx.ai.calls())
}

func TestAlertServiceNoAlertDecision(t *testing.T) {
	fx := newAlertFixture(`{"hasAlert": false}`)
	fx.addReview(testSubjectID, 5, "", 3*time.Hour)
	fx.addReview(testSubjectID, 4, "", 2*time.Hour)
	fx.addReview(testSubjectID, 4, "", time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeNoAlert, result.Outcome)
	require.NotNil(t, result.Decision)
	assert.False(t, result.Decision.HasAlert)
}

func TestAlertServiceDisabledModel(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.ai.disabled = true
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeModelUnavailable, result.Outcome)
	assert.Equal(t, 0, fx.ai.calls())
}

func TestAlertServiceUniqueViolationIsSuppressed(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.alerts.insertErr = fmt.Errorf("insert alert: %w", repository.ErrDuplicate)
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeSuppressed, result.Outcome)
	assert.Empty(t, fx.notifier.alerts)
}

func TestAlertServiceBusyWhenLocked(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	locker := cache.NewLocalLocker()
	fx.svc.locker = locker
	release, ok, err := locker.TryLock(context.Background(), subjectLockKey+testSubjectID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	result, err := fx.svc.Evaluate(context.Background(), testSubjectID)
	require.NoError(t, err)
	assert.Equal(t, dto.OutcomeBusy, result.Outcome)
}

func TestAlertServiceConcurrentEvaluationsCreateOneAlert(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Evaluate(context.Background(), testSubjectID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, fx.alerts.alerts, 1)
}

func TestAlertServiceRunAllContinuesPastFailures(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.addReview(testSubjectID, 1, "", 3*time.Hour)
	fx.addReview(testSubjectID, 1, "", 2*time.Hour)
	fx.addReview(testSubjectID, 1, "", time.Hour)
	fx.reviews.subjects = []string{"missing-subject", testSubjectID}

	summary, err := fx.svc.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Subjects)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Outcomes[dto.OutcomeCreated])
}

func TestAlertServiceMarkProcessed(t *testing.T) {
	fx := newAlertFixture(negativeDecision)
	fx.alerts.alerts = []models.Alert{{ID: "alert-1", SubjectID: testSubjectID, Type: models.AlertTypeNegative, Severity: models.SeverityLow}}

	_, err := fx.svc.MarkProcessed(context.Background(), "alert-1", teacherClaims("intruder"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	alert, err := fx.svc.MarkProcessed(context.Background(), "alert-1", teacherClaims(testTeacherID))
	require.NoError(t, err)
	assert.True(t, alert.IsProcessed)
	_, err = fx.svc.MarkProcessed(context.Background(), "alert-1", teacherClaims(testTeacherID))
	require.NoError(t, err)
	assert.Equal(t, []string{models.AuditActionAlertProcess}, fx.audit.actions())

	_, err = fx.svc.MarkProcessed(context.Background(), "nope", adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAlertServiceListBySubjectNewestFirst(t *testing.T) {
	fx := newAlertFixture("")
	fx.alerts.alerts = []models.Alert{
		{ID: "a1", SubjectID: testSubjectID, IsProcessed: true},
		{ID: "a2", SubjectID: testSubjectID},
	}

	alerts, err := fx.svc.ListBySubject(context.Background(), testSubjectID, adminClaims())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a2", alerts[0].ID)

	_, err = fx.svc.ListBySubject(context.Background(), testSubjectID, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
