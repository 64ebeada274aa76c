package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edudesk/edudesk-api/internal/service"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
	"github.com/edudesk/edudesk-api/pkg/response"
)

// TeacherAssignmentHandler exposes teacher-subject assignment endpoints.
type TeacherAssignmentHandler struct {
	assignments *service.TeacherAssignmentService
}

// NewTeacherAssignmentHandler constructs TeacherAssignmentHandler.
func NewTeacherAssignmentHandler(assignments *service.TeacherAssignmentService) *TeacherAssignmentHandler {
	return &TeacherAssignmentHandler{assignments: assignments}
}

// Create assigns a teacher to a subject.
func (h *TeacherAssignmentHandler) Create(c *gin.Context) {
	var req service.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.assignments.Assign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Delete revokes an assignment, best-effort like unenroll.
func (h *TeacherAssignmentHandler) Delete(c *gin.Context) {
	result, err := h.assignments.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusNotFound
	}
	response.JSON(c, status, result, nil)
}

// ListBySubject returns the active assignments for a subject.
func (h *TeacherAssignmentHandler) ListBySubject(c *gin.Context) {
	assignments, err := h.assignments.ListBySubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}
