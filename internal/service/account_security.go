package service

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

// SecretHasher is the one-way hashing collaborator for account secrets.
type SecretHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher implements SecretHasher using bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the default bcrypt cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

// Hash produces a bcrypt digest of the plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether the plaintext matches the digest. Internal
// comparison faults degrade to false, never to an error.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// SecurityConfig tunes failed-attempt accounting.
type SecurityConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AccountSecurity owns password verification and lockout state for users.
// It mutates the in-memory user; persisting the result is the caller's job.
type AccountSecurity struct {
	hasher SecretHasher
	config SecurityConfig
	logger *zap.Logger
}

// NewAccountSecurity constructs an AccountSecurity instance.
func NewAccountSecurity(hasher SecretHasher, config SecurityConfig, logger *zap.Logger) *AccountSecurity {
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = 15 * time.Minute
	}
	return &AccountSecurity{hasher: hasher, config: config, logger: logger}
}

// SetPassword stores a digest of the plaintext on the user. When the secret
// is unchanged the existing digest is kept, avoiding needless hashing and
// digest drift on unrelated saves.
func (s *AccountSecurity) SetPassword(user *models.User, plaintext string) error {
	if plaintext == "" {
		return appErrors.Clone(appErrors.ErrValidation, "password must not be empty")
	}
	if user.PasswordHash != "" && s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil
	}
	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user.PasswordHash = digest
	return nil
}

// VerifyPassword reports whether the plaintext matches the stored digest.
// Verification faults degrade to deny.
func (s *AccountSecurity) VerifyPassword(user *models.User, plaintext string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return s.hasher.Verify(plaintext, user.PasswordHash)
}

// RecordFailedAttempt increments the failure counter; once the threshold is
// crossed the account is locked until now + LockoutDuration. Returns true
// when this attempt triggered the lock.
func (s *AccountSecurity) RecordFailedAttempt(user *models.User, now time.Time) bool {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= s.config.MaxAttempts {
		until := now.Add(s.config.LockoutDuration)
		user.LockUntil = &until
		s.logger.Warn("account locked after repeated failures",
			zap.String("user_id", user.ID),
			zap.Int("attempts", user.FailedLoginAttempts),
			zap.Time("lock_until", until))
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and clears any lock.
func (s *AccountSecurity) RecordSuccess(user *models.User) {
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
}

// IsLocked reports whether the account is locked at the given instant.
func (s *AccountSecurity) IsLocked(user *models.User, now time.Time) bool {
	return user.LockUntil != nil && now.Before(*user.LockUntil)
}

// RetryAfter returns how long until the lock elapses. Zero when unlocked.
func (s *AccountSecurity) RetryAfter(user *models.User, now time.Time) time.Duration {
	if !s.IsLocked(user, now) {
		return 0
	}
	return user.LockUntil.Sub(now)
}
