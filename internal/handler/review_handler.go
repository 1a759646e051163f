package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/service"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

type reviewQuerier interface {
	List(ctx context.Context, claims *models.JWTClaims, filter models.ReviewFilter) ([]dto.ReviewItem, *models.Pagination, error)
	Stats(ctx context.Context, claims *models.JWTClaims, subjectID string) (*dto.SubjectStats, error)
	Export(ctx context.Context, claims *models.JWTClaims, filter models.ReviewFilter, rawFormat string) (*service.ExportFile, error)
}

// ReviewHandler exposes the stored reviews of a subject.
type ReviewHandler struct {
	reviews reviewQuerier
}

// NewReviewHandler constructs a review handler.
func NewReviewHandler(reviews reviewQuerier) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// List godoc
// @Summary List reviews of a subject
// @Tags Reviews
// @Produce json
// @Param id path string true "Subject ID"
// @Param type query string false "DURING_CLASS or AFTER_CLASS"
// @Param from query string false "Lower bound (date or RFC3339)"
// @Param to query string false "Upper bound (date or RFC3339)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/reviews [get]
func (h *ReviewHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}

	items, pagination, err := h.reviews.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Rating distribution of a subject
// @Tags Reviews
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/stats [get]
func (h *ReviewHandler) Stats(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return
	}

	stats, err := h.reviews.Stats(c.Request.Context(), claims, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export reviews of a subject
// @Tags Reviews
// @Produce octet-stream
// @Param id path string true "Subject ID"
// @Param format query string false "csv, xlsx or pdf"
// @Success 200 {file} file
// @Router /subjects/{id}/reviews/export [get]
func (h *ReviewHandler) Export(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	filter, ok := h.filter(c)
	if !ok {
		return
	}

	file, err := h.reviews.Export(c.Request.Context(), claims, filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

func (h *ReviewHandler) filter(c *gin.Context) (models.ReviewFilter, bool) {
	var filter models.ReviewFilter
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return filter, false
	}
	filter.SubjectID = subjectID
	filter.Page, filter.PageSize = pageParams(c)

	if raw := c.Query("type"); raw != "" {
		formType, err := models.ParseFormType(raw)
		if err != nil {
			response.Error(c, appErrors.Validation("invalid query parameter", []appErrors.FieldError{{Field: "type", Reason: "must be DURING_CLASS or AFTER_CLASS"}}))
			return filter, false
		}
		filter.FormType = formType
	}

	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	return filter, true
}
