package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

// AdminHandler serves the admin console: account roles and student access
// mappings. The guard already restricts the /admin section to admins; the
// services re-check anyway so the rules hold without the middleware too.
type AdminHandler struct {
	BaseHandler
	userService    services.UserService
	mappingService services.MappingService
	validator      *utils.Validator
}

func NewAdminHandler(
	userService services.UserService,
	mappingService services.MappingService,
	validator *utils.Validator,
	logger utils.Logger,
) *AdminHandler {
	return &AdminHandler{
		BaseHandler:    NewBaseHandler(logger),
		userService:    userService,
		mappingService: mappingService,
		validator:      validator,
	}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	if _, ok := h.RequireScope(c); !ok {
		return
	}

	var roleFilter *models.UserRole
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid role filter",
				Details: "role must be one of parent, teacher, admin, rm",
			})
			return
		}
		roleFilter = &role
	}

	users, err := h.userService.List(c.Request.Context(), roleFilter)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	if _, ok := h.RequireScope(c); !ok {
		return
	}
	uid := ParseStringIDParam(c, "uid")
	if uid == "" {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), uid)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetUserRole changes an account's role claim and mirrored record.
func (h *AdminHandler) SetUserRole(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	uid := ParseStringIDParam(c, "uid")
	if uid == "" {
		return
	}

	var req services.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Setting user role", "target_uid", uid, "role", req.Role)

	if err := h.userService.SetUserRole(c.Request.Context(), scope, uid, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Role updated"})
}

func (h *AdminHandler) AssignMapping(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.mappingService.Assign(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Mapping added"})
}

func (h *AdminHandler) RemoveMapping(c *gin.Context) {
	scope, ok := h.RequireScope(c)
	if !ok {
		return
	}
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req services.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.mappingService.Remove(c.Request.Context(), scope, id, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Mapping removed"})
}
