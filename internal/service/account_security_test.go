package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
)

// plainHasher keeps secrets readable so tests don't pay bcrypt cost.
type plainHasher struct{}

func (plainHasher) Hash(plaintext string) (string, error) { return "hashed:" + plaintext, nil }
func (plainHasher) Verify(plaintext, digest string) bool  { return digest == "hashed:"+plaintext }

func newTestSecurity() *AccountSecurity {
	return NewAccountSecurity(plainHasher{}, SecurityConfig{MaxAttempts: 3, LockoutDuration: 10 * time.Minute}, zap.NewNop())
}

func TestSetPasswordAndVerify(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}

	require.NoError(t, security.SetPassword(user, "s3cret"))
	assert.True(t, security.VerifyPassword(user, "s3cret"))
	assert.False(t, security.VerifyPassword(user, "wrong"))
}

func TestSetPasswordEmptyRejected(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}

	err := security.SetPassword(user, "")
	require.Error(t, err)
	assert.Empty(t, user.PasswordHash)
}

func TestSetPasswordUnchangedKeepsDigest(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}

	require.NoError(t, security.SetPassword(user, "s3cret"))
	original := user.PasswordHash

	require.NoError(t, security.SetPassword(user, "s3cret"))
	assert.Equal(t, original, user.PasswordHash)
}

func TestLockoutAfterThreshold(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}
	now := time.Now().UTC()

	assert.False(t, security.RecordFailedAttempt(user, now))
	assert.False(t, security.RecordFailedAttempt(user, now))
	assert.False(t, security.IsLocked(user, now))

	locked := security.RecordFailedAttempt(user, now)
	assert.True(t, locked)
	assert.True(t, security.IsLocked(user, now))
	assert.Equal(t, 10*time.Minute, security.RetryAfter(user, now))
}

func TestLockExpires(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		security.RecordFailedAttempt(user, now)
	}
	require.True(t, security.IsLocked(user, now))

	later := now.Add(10*time.Minute + time.Second)
	assert.False(t, security.IsLocked(user, later))
	assert.Zero(t, security.RetryAfter(user, later))
}

func TestRecordSuccessResetsState(t *testing.T) {
	security := newTestSecurity()
	user := &models.User{}
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		security.RecordFailedAttempt(user, now)
	}
	security.RecordSuccess(user)

	assert.Zero(t, user.FailedLoginAttempts)
	assert.Nil(t, user.LockUntil)
	assert.False(t, security.IsLocked(user, now))
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := &BcryptHasher{Cost: 4}

	digest, err := hasher.Hash("hunter2")
	require.NoError(t, err)
	assert.True(t, hasher.Verify("hunter2", digest))
	assert.False(t, hasher.Verify("hunter3", digest))
	assert.False(t, hasher.Verify("hunter2", "not-a-digest"))
}
