package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

type alertManager interface {
	ListBySubject(ctx context.Context, subjectID string, claims *models.JWTClaims) ([]models.Alert, error)
	EvaluateFor(ctx context.Context, subjectID string, claims *models.JWTClaims) (*dto.EvaluationResult, error)
	MarkProcessed(ctx context.Context, alertID string, claims *models.JWTClaims) (*models.Alert, error)
}

type insightProvider interface {
	Summarize(ctx context.Context, subjectID string, claims *models.JWTClaims) (*dto.SubjectSummary, error)
	DraftMessage(ctx context.Context, alertID string, claims *models.JWTClaims) (*dto.DraftMessage, error)
}

// AlertHandler exposes alerts and the generated insights built on them.
type AlertHandler struct {
	alerts   alertManager
	insights insightProvider
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(alerts alertManager, insights insightProvider) *AlertHandler {
	return &AlertHandler{alerts: alerts, insights: insights}
}

// List godoc
// @Summary List alerts of a subject
// @Tags Alerts
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return
	}

	alerts, err := h.alerts.ListBySubject(c.Request.Context(), subjectID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil)
}

// Evaluate godoc
// @Summary Evaluate the current review window of a subject
// @Description Runs the engine synchronously. At most one alert exists per subject and window.
// @Tags Alerts
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/alerts/evaluate [post]
func (h *AlertHandler) Evaluate(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return
	}

	result, err := h.alerts.EvaluateFor(c.Request.Context(), subjectID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkProcessed godoc
// @Summary Mark an alert as processed
// @Tags Alerts
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alerts/{id}/processed [post]
func (h *AlertHandler) MarkProcessed(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	alertID, ok := pathID(c, "id", "alert")
	if !ok {
		return
	}

	alert, err := h.alerts.MarkProcessed(c.Request.Context(), alertID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alert, nil)
}

// DraftMessage godoc
// @Summary Draft a message to students about an alert
// @Description Returns available=false when generation is disabled or fails.
// @Tags Alerts
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} response.Envelope
// @Router /alerts/{id}/draft-message [post]
func (h *AlertHandler) DraftMessage(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	alertID, ok := pathID(c, "id", "alert")
	if !ok {
		return
	}

	draft, err := h.insights.DraftMessage(c.Request.Context(), alertID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Summary godoc
// @Summary Summarize recent reviews of a subject
// @Description Returns available=false when generation is disabled or fails.
// @Tags Alerts
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/summary [get]
func (h *AlertHandler) Summary(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return
	}

	summary, err := h.insights.Summarize(c.Request.Context(), subjectID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
