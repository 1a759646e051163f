package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
)

type fakeAlerts struct {
	alerts     []models.Alert
	evaluated  []string
	processed  []string
	processErr error
}

func (f *fakeAlerts) ListBySubject(_ context.Context, _ string, _ *models.JWTClaims) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlerts) EvaluateFor(_ context.Context, subjectID string, _ *models.JWTClaims) (*dto.EvaluationResult, error) {
	f.evaluated = append(f.evaluated, subjectID)
	return &dto.EvaluationResult{SubjectID: subjectID, Outcome: dto.OutcomeInsufficient}, nil
}

func (f *fakeAlerts) MarkProcessed(_ context.Context, alertID string, _ *models.JWTClaims) (*models.Alert, error) {
	if f.processErr != nil {
		return nil, f.processErr
	}
	f.processed = append(f.processed, alertID)
	return &models.Alert{ID: alertID, IsProcessed: true}, nil
}

type fakeInsights struct {
	summary *dto.SubjectSummary
	draft   *dto.DraftMessage
}

func (f *fakeInsights) Summarize(_ context.Context, subjectID string, _ *models.JWTClaims) (*dto.SubjectSummary, error) {
	if f.summary == nil {
		return &dto.SubjectSummary{SubjectID: subjectID}, nil
	}
	return f.summary, nil
}

func (f *fakeInsights) DraftMessage(_ context.Context, alertID string, _ *models.JWTClaims) (*dto.DraftMessage, error) {
	if f.draft == nil {
		return &dto.DraftMessage{AlertID: alertID}, nil
	}
	return f.draft, nil
}

func newAlertRouter(claims *models.JWTClaims, alerts *fakeAlerts, insights *fakeInsights) http.Handler {
	h := NewAlertHandler(alerts, insights)
	r := newTestRouter(claims)
	r.GET("/subjects/:id/alerts", h.List)
	r.POST("/subjects/:id/alerts/evaluate", h.Evaluate)
	r.GET("/subjects/:id/summary", h.Summary)
	r.POST("/alerts/:id/processed", h.MarkProcessed)
	r.POST("/alerts/:id/draft-message", h.DraftMessage)
	return r
}

func TestAlertHandlerRequiresClaims(t *testing.T) {
	r := newAlertRouter(nil, &fakeAlerts{}, &fakeInsights{})

	rec := performRequest(r, http.MethodGet, "/subjects/"+testSubjectID+"/alerts", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAlertHandlerEvaluate(t *testing.T) {
	alerts := &fakeAlerts{}
	r := newAlertRouter(teacherClaims(), alerts, &fakeInsights{})

	rec := performRequest(r, http.MethodPost, "/subjects/"+testSubjectID+"/alerts/evaluate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testSubjectID}, alerts.evaluated)
	assert.Contains(t, rec.Body.String(), `"outcome":"insufficient_reviews"`)
}

func TestAlertHandlerMalformedIDIsNotFound(t *testing.T) {
	alerts := &fakeAlerts{}
	r := newAlertRouter(teacherClaims(), alerts, &fakeInsights{})

	rec := performRequest(r, http.MethodPost, "/alerts/42/processed", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, alerts.processed)
}

func TestAlertHandlerMarkProcessed(t *testing.T) {
	alerts := &fakeAlerts{}
	r := newAlertRouter(teacherClaims(), alerts, &fakeInsights{})

	rec := performRequest(r, http.MethodPost, "/alerts/"+testAlertID+"/processed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testAlertID}, alerts.processed)

	alerts.processErr = appErrors.Clone(appErrors.ErrNotFound, "alert not found")
	rec = performRequest(r, http.MethodPost, "/alerts/"+testAlertID+"/processed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertHandlerDegradedInsightsAreStillOK(t *testing.T) {
	r := newAlertRouter(teacherClaims(), &fakeAlerts{}, &fakeInsights{})

	rec := performRequest(r, http.MethodGet, "/subjects/"+testSubjectID+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)

	rec = performRequest(r, http.MethodPost, "/alerts/"+testAlertID+"/draft-message", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)
}

func TestAlertHandlerInternalErrorsDoNotLeak(t *testing.T) {
	alerts := &fakeAlerts{processErr: appErrors.Wrap(sql.ErrConnDone, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update alert")}
	r := newAlertRouter(teacherClaims(), alerts, &fakeInsights{})

	rec := performRequest(r, http.MethodPost, "/alerts/"+testAlertID+"/processed", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), sql.ErrConnDone.Error())
}
