package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edudesk/edudesk-api/internal/service"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
	"github.com/edudesk/edudesk-api/pkg/response"
)

// UserHandler exposes admin account endpoints.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Get returns a single user.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create registers an admin account.
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// SetActive toggles account access.
func (h *UserHandler) SetActive(c *gin.Context) {
	active, err := strconv.ParseBool(c.DefaultQuery("active", "true"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
		return
	}
	if err := h.users.SetActive(c.Request.Context(), c.Param("id"), active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
