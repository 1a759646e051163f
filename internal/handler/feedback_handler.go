package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

type formResolver interface {
	Resolve(ctx context.Context, subjectID string, formType models.FormType) (*dto.FormDefinition, error)
	GetByPublicLink(ctx context.Context, link string) (*dto.FormDefinition, error)
}

type reviewSubmitter interface {
	Submit(ctx context.Context, link string, req dto.SubmissionRequest) (*dto.SubmissionResult, error)
}

// FeedbackHandler serves the anonymous endpoints students use.
type FeedbackHandler struct {
	forms       formResolver
	submissions reviewSubmitter
}

// NewFeedbackHandler constructs the public feedback handler.
func NewFeedbackHandler(forms formResolver, submissions reviewSubmitter) *FeedbackHandler {
	return &FeedbackHandler{forms: forms, submissions: submissions}
}

// GetForm godoc
// @Summary Fetch a form by its public link
// @Tags Feedback
// @Produce json
// @Param publicLink path string true "Public link"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /forms/{publicLink} [get]
func (h *FeedbackHandler) GetForm(c *gin.Context) {
	form, err := h.forms.GetByPublicLink(c.Request.Context(), c.Param("publicLink"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// ResolveForm godoc
// @Summary Resolve the form students see for a subject
// @Description Returns the active class override, falling back to the active global template.
// @Tags Feedback
// @Produce json
// @Param id path string true "Subject ID"
// @Param type path string true "DURING_CLASS or AFTER_CLASS"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/forms/{type} [get]
func (h *FeedbackHandler) ResolveForm(c *gin.Context) {
	subjectID, ok := pathID(c, "id", "subject")
	if !ok {
		return
	}
	formType, err := models.ParseFormType(c.Param("type"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "form type not found"))
		return
	}

	form, err := h.forms.Resolve(c.Request.Context(), subjectID, formType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Submit godoc
// @Summary Submit an anonymous review
// @Tags Feedback
// @Accept json
// @Produce json
// @Param publicLink path string true "Public link"
// @Param payload body dto.SubmissionRequest true "Answers"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /forms/{publicLink}/responses [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req dto.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid submission payload"))
		return
	}

	result, err := h.submissions.Submit(c.Request.Context(), c.Param("publicLink"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
