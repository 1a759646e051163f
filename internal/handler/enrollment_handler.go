package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/service"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/response"
)

// EnrollmentHandler manages class rosters.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrolled students
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	classID, ok := pathID(c, "id", "class")
	if !ok {
		return
	}

	enrollments, err := h.service.List(c.Request.Context(), classID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Enroll godoc
// @Summary Enroll a student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	classID, ok := pathID(c, "id", "class")
	if !ok {
		return
	}

	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payload"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), classID, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Unenroll godoc
// @Summary Remove a student from a class
// @Tags Enrollments
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /classes/{id}/enrollments/{studentId} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	classID, ok := pathID(c, "id", "class")
	if !ok {
		return
	}
	studentID, ok := pathID(c, "studentId", "enrollment")
	if !ok {
		return
	}

	if err := h.service.Unenroll(c.Request.Context(), classID, studentID, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
