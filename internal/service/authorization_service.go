package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type authzUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthorizationService composes account state and the permission table into a
// single allow/deny decision. It runs before any mutating meeting call; the
// meeting registry still re-validates entity state on its own.
type AuthorizationService struct {
	users    authzUserRepository
	security *AccountSecurity
	logger   *zap.Logger
}

// NewAuthorizationService constructs an AuthorizationService.
func NewAuthorizationService(users authzUserRepository, security *AccountSecurity, logger *zap.Logger) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{users: users, security: security, logger: logger}
}

// Authorize checks that the actor exists, is not locked, is active and holds
// the permission. On allow the loaded user is returned; on deny the error
// carries only the reason enum, never which internal check produced it.
func (s *AuthorizationService) Authorize(ctx context.Context, actorID string, permission models.Permission) (*models.User, error) {
	user, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown actor")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}

	now := time.Now().UTC()
	if s.security.IsLocked(user, now) {
		retryAfter := s.security.RetryAfter(user, now)
		return nil, appErrors.Clone(appErrors.ErrAccountLocked, fmt.Sprintf("account locked, retry in %s", retryAfter.Round(time.Second)))
	}

	if user.Status != models.StatusActive {
		return nil, appErrors.Clone(appErrors.ErrAccountNotActive, "account is not active")
	}

	if !user.HasPermission(permission) {
		s.logger.Debug("permission denied",
			zap.String("user_id", user.ID),
			zap.String("role", string(user.Role)),
			zap.String("permission", string(permission)))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "missing permission")
	}

	return user, nil
}
