package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/events"
	"github.com/tinysteps-edu/dashboard-service/internal/guard"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/services"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

// sessionProbeTimeout bounds the identity lookup on the unguarded auth
// routes; they answer "not signed in" instead of blocking.
const sessionProbeTimeout = 2 * time.Second

type AuthHandler struct {
	BaseHandler
	session      *identity.Session
	resolver     *identity.Resolver
	provisioning services.ProvisioningService
	publisher    events.EventPublisher
	validator    *utils.Validator
}

type UserCreatedWebhook struct {
	UserID string `json:"userId" validate:"required"`
	Name   string `json:"name" validate:"omitempty,max=100"`
	Email  string `json:"email" validate:"omitempty,email"`
}

func NewAuthHandler(
	session *identity.Session,
	resolver *identity.Resolver,
	provisioning services.ProvisioningService,
	publisher events.EventPublisher,
	validator *utils.Validator,
	logger utils.Logger,
) *AuthHandler {
	return &AuthHandler{
		BaseHandler:  NewBaseHandler(logger),
		session:      session,
		resolver:     resolver,
		provisioning: provisioning,
		publisher:    publisher,
		validator:    validator,
	}
}

// Session reports who the caller is. The auth section bypasses the guard, so
// the lookup happens here: an anonymous caller gets an empty session instead
// of a redirect loop.
func (h *AuthHandler) Session(c *gin.Context) {
	token := guard.Token(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	usr, err := h.session.AwaitUser(c.Request.Context(), token, sessionProbeTimeout)
	if err != nil || usr == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"uid":           usr.UID,
		"name":          usr.Name,
		"email":         usr.Email,
		"role":          h.resolver.Resolve(c.Request.Context(), usr),
	})
}

// SignOut clears the session cookie and the cached role. The identity
// provider owns the session itself; the client completes sign-out there.
func (h *AuthHandler) SignOut(c *gin.Context) {
	if token := guard.Token(c); token != "" {
		if usr, err := h.session.AwaitUser(c.Request.Context(), token, sessionProbeTimeout); err == nil && usr != nil {
			h.resolver.Invalidate(c.Request.Context(), usr.UID)
		}
	}
	c.SetCookie(guard.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"redirect": guard.SignInPath})
}

// UserCreated is the identity provider's sign-up webhook. Provisioning runs
// inline; the account event goes out for any downstream consumers.
func (h *AuthHandler) UserCreated(c *gin.Context) {
	var req UserCreatedWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Provisioning new account", "uid", req.UserID)

	event := events.UserCreatedEvent{UserID: req.UserID, Name: req.Name, Email: req.Email}
	if err := h.provisioning.HandleUserCreated(c.Request.Context(), event); err != nil {
		h.handleServiceError(c, err)
		return
	}

	if err := h.publisher.PublishAccountEvent(c.Request.Context(), events.NewUserCreatedEvent(req.UserID, req.Name, req.Email)); err != nil {
		h.LogWarn(c, "Failed to publish user.created event", "uid", req.UserID, "error", err.Error())
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Message: "Account provisioned"})
}
