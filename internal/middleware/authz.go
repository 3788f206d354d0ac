package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
	"github.com/noah-isme/mentor-meet-api/pkg/response"
)

type accountAuthorizer interface {
	Authorize(ctx context.Context, actorID string, permission models.Permission) (*models.User, error)
}

// RequirePermission gates a route on a permission from the token's derived
// set. Claims can be up to a token lifetime stale, so routes that mutate
// state must use RequireAuthorized instead.
func RequirePermission(permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		for _, held := range claims.Permissions {
			if held == string(permission) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireAuthorized runs the full authorization decision against fresh
// account state: the actor is reloaded from the store, so a lock, ban or
// role change applied after token issuance denies immediately.
func RequireAuthorized(authz accountAuthorizer, permission models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, err := authz.Authorize(c.Request.Context(), claims.UserID, permission); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentClaims returns the JWT claims stored by the JWT middleware.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claimsValue, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsValue.(*models.JWTClaims)
	return claims, ok
}
