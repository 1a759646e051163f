package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/service"
	appErrors "github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/errors"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

// FormHandler manages form templates and class overrides.
type FormHandler struct {
	service *service.FormService
}

// NewFormHandler constructs a form handler.
func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{service: svc}
}

// List godoc
// @Summary List forms
// @Tags Forms
// @Produce json
// @Param scope query string false "global or a class id"
// @Param type query string false "DURING_CLASS or AFTER_CLASS"
// @Param active query bool false "Only active forms"
// @Success 200 {object} response.Envelope
// @Router /form-templates [get]
func (h *FormHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	filter, err := formFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	forms, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forms, pagination)
}

func formFilter(c *gin.Context) (models.FormFilter, error) {
	var filter models.FormFilter
	filter.Page, filter.PageSize = pageParams(c)

	switch scope := strings.TrimSpace(c.Query("scope")); scope {
	case "":
	case "global":
		global := models.GlobalScope()
		filter.Scope = &global
	default:
		class := models.ClassScope(scope)
		filter.Scope = &class
	}

	if raw := c.Query("type"); raw != "" {
		formType, err := models.ParseFormType(raw)
		if err != nil {
			return filter, appErrors.Validation("invalid query parameter", []appErrors.FieldError{{Field: "type", Reason: "must be DURING_CLASS or AFTER_CLASS"}})
		}
		filter.Type = formType
	}

	switch c.Query("active") {
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	}
	return filter, nil
}

// Get godoc
// @Summary Get form with its fields
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /form-templates/{id} [get]
func (h *FormHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "form")
	if !ok {
		return
	}

	form, err := h.service.Get(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Create godoc
// @Summary Create a global template or class override
// @Tags Forms
// @Accept json
// @Produce json
// @Param payload body dto.CreateFormRequest true "Form payload"
// @Success 201 {object} response.Envelope
// @Router /form-templates [post]
func (h *FormHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req dto.CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	form, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Customize godoc
// @Summary Copy the active global template into a class
// @Tags Forms
// @Accept json
// @Produce json
// @Param payload body dto.CustomizeFormRequest true "Customization payload"
// @Success 201 {object} response.Envelope
// @Router /form-templates/customize [post]
func (h *FormHandler) Customize(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req dto.CustomizeFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	form, err := h.service.CustomizeForClass(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Update godoc
// @Summary Update a form
// @Tags Forms
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body dto.UpdateFormRequest true "Form payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /form-templates/{id} [put]
func (h *FormHandler) Update(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "form")
	if !ok {
		return
	}

	var req dto.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	form, err := h.service.Update(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Delete godoc
// @Summary Delete a form without reviews
// @Tags Forms
// @Param id path string true "Form ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /form-templates/{id} [delete]
func (h *FormHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "form")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
