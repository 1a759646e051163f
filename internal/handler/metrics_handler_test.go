package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/service"
)

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	r := gin.New()
	r.GET("/ready", h.Ready)

	rec := performRequest(r, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
}

func TestReadyWithoutChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, nil)
	r := gin.New()
	r.GET("/ready", h.Ready)

	rec := performRequest(r, http.MethodGet, "/ready", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrometheusServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordSubmission("accepted")
	h := NewMetricsHandler(metrics, nil)
	r := gin.New()
	r.GET("/metrics", h.Prometheus)

	rec := performRequest(r, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "submissions_total")
}
