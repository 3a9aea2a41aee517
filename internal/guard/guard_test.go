package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysteps-edu/dashboard-service/internal/config"
	"github.com/tinysteps-edu/dashboard-service/internal/identity"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type fakeSession struct {
	readyErr error
	user     *identity.User
	userErr  error
}

func (f *fakeSession) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return f.readyErr
}

func (f *fakeSession) AwaitUser(ctx context.Context, token string, timeout time.Duration) (*identity.User, error) {
	return f.user, f.userErr
}

type fakeResolver struct {
	role models.UserRole
}

func (f *fakeResolver) Resolve(ctx context.Context, usr *identity.User) models.UserRole {
	return f.role
}

func testLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func guardConfig(failOpen bool) config.GuardConfig {
	return config.GuardConfig{
		FailOpen:         failOpen,
		BootstrapTimeout: 50 * time.Millisecond,
		AuthStateTimeout: 50 * time.Millisecond,
	}
}

func newTestRouter(g *Guard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(g.Middleware())
	handler := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	router.GET("/auth/session", handler)
	router.GET("/teachers/students", handler)
	router.GET("/admin/users", handler)
	router.GET("/parents/children", handler)
	return router
}

func TestGuard_AuthSectionBypasses(t *testing.T) {
	session := &fakeSession{readyErr: errors.New("not ready")}
	g := New(session, &fakeResolver{}, guardConfig(false), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuard_UnauthenticatedRedirectsToSignIn(t *testing.T) {
	session := &fakeSession{user: nil}
	g := New(session, &fakeResolver{}, guardConfig(true), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teachers/students?grade=UKG", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/?redirect="+"%2Fteachers%2Fstudents%3Fgrade%3DUKG", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestGuard_BootstrapTimeoutFailsOpen(t *testing.T) {
	session := &fakeSession{readyErr: identity.ErrBootstrapTimeout}
	g := New(session, &fakeResolver{}, guardConfig(true), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teachers/students", nil)
	router.ServeHTTP(w, req)

	// Request passes through without identity context.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuard_BootstrapTimeoutFailsClosed(t *testing.T) {
	session := &fakeSession{readyErr: identity.ErrBootstrapTimeout}
	g := New(session, &fakeResolver{}, guardConfig(false), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teachers/students", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGuard_UserWaitErrorNeverAnswersOK(t *testing.T) {
	session := &fakeSession{userErr: context.Canceled}
	g := New(session, &fakeResolver{}, guardConfig(true), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teachers/students", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGuard_DeniedSectionRedirects(t *testing.T) {
	session := &fakeSession{user: &identity.User{UID: "t1"}}
	g := New(session, &fakeResolver{role: models.RoleTeacher}, guardConfig(true), testLogger())
	router := newTestRouter(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer token")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/parents/", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestGuard_AllowedSectionSetsContext(t *testing.T) {
	session := &fakeSession{user: &identity.User{UID: "t1", Name: "T"}}
	g := New(session, &fakeResolver{role: models.RoleTeacher}, guardConfig(true), testLogger())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(g.Middleware())
	router.GET("/teachers/students", func(c *gin.Context) {
		usr, ok := CurrentUser(c)
		require.True(t, ok)
		role, ok := CurrentRole(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"uid": usr.UID, "role": role})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/teachers/students", nil)
	req.Header.Set("Authorization", "Bearer token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":"t1"`)
	assert.Contains(t, w.Body.String(), `"role":"teacher"`)
}

func TestToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", Token(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", Token(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", Token(c))
}
