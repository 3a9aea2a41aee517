package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinysteps-edu/dashboard-service/internal/config"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

// SessionCookie carries the identity token for browser-originated requests;
// API clients use the Authorization header instead.
const SessionCookie = "ts_session"

// Gin context keys set by the guard for downstream handlers.
const (
	ContextUserKey = "identity_user"
	ContextRoleKey = "identity_role"
)

// SessionWaiter is the slice of the identity session the guard depends on.
type SessionWaiter interface {
	AwaitReady(ctx context.Context, timeout time.Duration) error
	AwaitUser(ctx context.Context, token string, timeout time.Duration) (*identity.User, error)
}

// RoleResolver maps an authenticated user to its role.
type RoleResolver interface {
	Resolve(ctx context.Context, usr *identity.User) models.UserRole
}

// Guard gates every route outside the auth section. Per request the stages
// run strictly in order: auth bypass, bootstrap wait, user check, role
// resolution, table authorization. A later stage never starts before the
// previous one resolved.
type Guard struct {
	session  SessionWaiter
	resolver RoleResolver
	cfg      config.GuardConfig
	logger   utils.Logger
}

func New(session SessionWaiter, resolver RoleResolver, cfg config.GuardConfig, logger utils.Logger) *Guard {
	return &Guard{
		session:  session,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Middleware returns the gin handler enforcing the guard.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// The auth routes are never guarded, or sign-in would be unreachable.
		if Under(path, AuthSection) {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		if err := g.session.AwaitReady(ctx, g.cfg.BootstrapTimeout); err != nil {
			if !g.cfg.FailOpen {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"message": "identity service unavailable",
				})
				return
			}
			// Availability over strictness: never strand a visitor behind a
			// broken bootstrap.
			g.logger.Warn("identity bootstrap not ready, failing open", "path", path, "error", err)
			c.Next()
			return
		}

		usr, err := g.session.AwaitUser(ctx, Token(c), g.cfg.AuthStateTimeout)
		if err != nil {
			// Only context cancellation reaches here; never let a guard stage
			// terminate as an implicit 200.
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		if usr == nil {
			g.redirectToSignIn(c)
			return
		}

		role := g.resolver.Resolve(ctx, usr)

		if d := Evaluate(path, role); !d.Allow {
			g.logger.Info("section denied, redirecting",
				"path", path, "uid", usr.UID, "role", role, "target", d.Redirect)
			redirect(c, d.Redirect)
			return
		}

		c.Set(ContextUserKey, usr)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

func (g *Guard) redirectToSignIn(c *gin.Context) {
	// Preserve the full intended destination for the post-login redirect.
	target := c.Request.URL.Path
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	redirect(c, SignInPath+"?redirect="+url.QueryEscape(target))
}

// redirect issues a non-cacheable redirect so a browser never replays a stale
// authorization decision from history.
func redirect(c *gin.Context, target string) {
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// Token extracts the identity token from the Authorization header, falling
// back to the session cookie.
func Token(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// CurrentUser returns the authenticated user set by the guard, if any.
func CurrentUser(c *gin.Context) (*identity.User, bool) {
	if v, ok := c.Get(ContextUserKey); ok {
		if usr, ok := v.(*identity.User); ok {
			return usr, true
		}
	}
	return nil, false
}

// CurrentRole returns the resolved role set by the guard, if any.
func CurrentRole(c *gin.Context) (models.UserRole, bool) {
	if v, ok := c.Get(ContextRoleKey); ok {
		if role, ok := v.(models.UserRole); ok {
			return role, true
		}
	}
	return "", false
}
