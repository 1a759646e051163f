package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/middleware"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims writes a 401 and returns false when the request carries no identity.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// pathID reads a uuid path parameter. Malformed ids cannot name any row, so they answer 404.
func pathID(c *gin.Context, name, resource string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, resource+" not found"))
		return "", false
	}
	return raw, true
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", c.DefaultQuery("limit", "20")))
	if err != nil {
		size = 20
	}
	return page, size
}

// queryTime accepts RFC3339 timestamps or plain dates.
func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Validation("invalid query parameter", []appErrors.FieldError{{Field: name, Reason: "must be a date or RFC3339 timestamp"}})
	}
	return &ts, nil
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
