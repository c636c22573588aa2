package handler

import (
	"net/http"

	"pathpatrol/internal/model"
	"pathpatrol/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the admin user-management endpoints.
type UserHandler struct {
	authService *service.AuthService
}

func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.authService.ListUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.authService.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *UserHandler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.authService.UpdateRole(c.Request.Context(), currentUser(c), id, req.Role)
	h.respondUpdated(c, updated, err, "Role updated successfully")
}

func (h *UserHandler) Activate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	updated, err := h.authService.Activate(c.Request.Context(), currentUser(c), id)
	h.respondUpdated(c, updated, err, "User activated")
}

func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	updated, err := h.authService.Deactivate(c.Request.Context(), currentUser(c), id)
	h.respondUpdated(c, updated, err, "User deactivated")
}

func (h *UserHandler) respondUpdated(c *gin.Context, updated bool, err error, message string) {
	if err != nil {
		respondError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}
