package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	"github.com/noah-isme/mentor-meet-api/internal/service"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type staleRepo struct {
	user *models.User
}

func (r *staleRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.user, nil
}

type stubAuthorizer struct {
	user  *models.User
	err   error
	calls int
}

func (s *stubAuthorizer) Authorize(ctx context.Context, actorID string, permission models.Permission) (*models.User, error) {
	s.calls++
	return s.user, s.err
}

func TestRequirePermissionAllows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings", nil)
	c.Set(ContextUserKey, &models.JWTClaims{
		UserID:      "u1",
		Permissions: []string{string(models.PermissionCreateMeeting), string(models.PermissionViewMeeting)},
	})

	called := false
	RequirePermission(models.PermissionCreateMeeting)(c)
	if !c.IsAborted() {
		called = true
	}
	assert.True(t, called)
}

func TestRequirePermissionDenies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings", nil)
	c.Set(ContextUserKey, &models.JWTClaims{
		UserID:      "u1",
		Permissions: []string{string(models.PermissionViewMeeting)},
	})

	RequirePermission(models.PermissionCreateMeeting)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings", nil)

	RequirePermission(models.PermissionViewMeeting)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthorizedAllows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings/m1/status", nil)
	c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1"})

	authz := &stubAuthorizer{user: &models.User{ID: "u1"}}
	RequireAuthorized(authz, models.PermissionEditMeeting)(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, 1, authz.calls)
}

// Claims are only as fresh as the token; an account banned or locked after
// issuance must still be denied even when the claim set carries the
// permission.
func TestRequireAuthorizedDeniesStaleClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings/m1/status", nil)
	c.Set(ContextUserKey, &models.JWTClaims{
		UserID:      "u1",
		Permissions: []string{string(models.PermissionEditMeeting)},
	})

	authz := &stubAuthorizer{err: appErrors.Clone(appErrors.ErrAccountNotActive, "account is not active")}
	RequireAuthorized(authz, models.PermissionEditMeeting)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, appErrors.ErrAccountNotActive.Status, w.Code)
	assert.Equal(t, 1, authz.calls)
}

func TestRequireAuthorizedDeniesLockedAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings/m1/participants", nil)
	c.Set(ContextUserKey, &models.JWTClaims{
		UserID:      "u1",
		Permissions: []string{string(models.PermissionEditMeeting)},
	})

	authz := &stubAuthorizer{err: appErrors.Clone(appErrors.ErrAccountLocked, "")}
	RequireAuthorized(authz, models.PermissionEditMeeting)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, appErrors.ErrAccountLocked.Status, w.Code)
}

func TestRequireAuthorizedMissingClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/meetings/m1/status", nil)

	authz := &stubAuthorizer{}
	RequireAuthorized(authz, models.PermissionEditMeeting)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, authz.calls)
}

func TestRequireAuthorizedBlocksBannedActorRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	lockUntil := time.Now().UTC().Add(10 * time.Minute)
	banned := &models.User{ID: "u1", Status: models.StatusBanned, LockUntil: &lockUntil}
	banned.ApplyRole(models.RoleMentor)

	security := service.NewAccountSecurity(service.NewBcryptHasher(), service.SecurityConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
	}, zap.NewNop())
	authz := service.NewAuthorizationService(&staleRepo{user: banned}, security, zap.NewNop())

	reached := false
	r := gin.New()
	r.POST("/meetings/:id/status",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{
				UserID:      "u1",
				Permissions: []string{string(models.PermissionEditMeeting)},
			})
		},
		RequireAuthorized(authz, models.PermissionEditMeeting),
		func(c *gin.Context) {
			reached = true
			c.Status(http.StatusOK)
		})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/meetings/m1/status", nil))

	assert.False(t, reached)
	assert.Equal(t, appErrors.ErrAccountLocked.Status, w.Code)
}

func TestCurrentClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	_, ok := CurrentClaims(c)
	assert.False(t, ok)

	c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1"})
	claims, ok := CurrentClaims(c)
	require.True(t, ok)
	assert.Equal(t, "u1", claims.UserID)
}
