package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type mockUserRepo struct {
	items      map[string]*models.User
	byEmail    map[string]string
	listResult []models.User
	listTotal  int
	deleted    []string
	auditLogs  []models.AuditLog
	seq        int
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{items: map[string]*models.User{}, byEmail: map[string]string{}}
	for _, user := range users {
		repo.items[user.ID] = user
		repo.byEmail[user.Email] = user.ID
	}
	return repo
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.items[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := m.byEmail[email]; ok {
		cp := *m.items[id]
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.seq++
	user.ID = fmt.Sprintf("u%d", m.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.items[user.ID] = &cp
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	if user, ok := m.items[id]; ok {
		user.Status = models.StatusDeactive
	}
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func newUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, newTestSecurity(), nil, zap.NewNop())
}

func TestUserCreateDefaults(t *testing.T) {
	repo := newMockUserRepo()
	svc := newUserService(repo)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "New@Example.com",
		Name:     "New User",
		Password: "s3cret",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, models.StatusPending, user.Status)
	assert.True(t, user.HasPermission(models.PermissionViewMeeting))
	assert.False(t, user.HasPermission(models.PermissionCreateMeeting))
	assert.Equal(t, "hashed:s3cret", user.PasswordHash)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserCreateWithRole(t *testing.T) {
	svc := newUserService(newMockUserRepo())

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "mentor@example.com",
		Name:     "Mentor",
		Role:     models.RoleMentor,
		Password: "s3cret",
	}, "")
	require.NoError(t, err)
	assert.True(t, user.HasPermission(models.PermissionCreateMeeting))
	assert.True(t, user.HasPermission(models.PermissionEditMeeting))
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	existing := activeUser("u1", models.RoleStudent)
	svc := newUserService(newMockUserRepo(existing))

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    existing.Email,
		Name:     "Someone",
		Password: "s3cret",
	}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateShortPassword(t *testing.T) {
	svc := newUserService(newMockUserRepo())

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "x@example.com",
		Name:     "X",
		Password: "abc",
	}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateRoleRecomputesPermissions(t *testing.T) {
	existing := activeUser("u1", models.RoleStudent)
	repo := newMockUserRepo(existing)
	svc := newUserService(repo)

	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		Name: "Promoted",
		Role: models.RoleMentor,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMentor, updated.Role)
	assert.True(t, updated.HasPermission(models.PermissionCreateMeeting))
	assert.True(t, repo.items["u1"].HasPermission(models.PermissionEditMeeting))
}

func TestUserUpdateStatusAndVerification(t *testing.T) {
	existing := activeUser("u1", models.RoleStudent)
	repo := newMockUserRepo(existing)
	svc := newUserService(repo)

	alumni := models.StatusAlumni
	verified := true
	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		Name:       existing.Name,
		Role:       existing.Role,
		Status:     &alumni,
		IsVerified: &verified,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAlumni, updated.Status)
	assert.True(t, updated.IsVerified)
}

func TestUserUpdateUnknownID(t *testing.T) {
	svc := newUserService(newMockUserRepo())

	_, err := svc.Update(context.Background(), "ghost", UpdateUserRequest{Name: "X", Role: models.RoleStudent}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserDeleteDeactivates(t *testing.T) {
	existing := activeUser("u1", models.RoleStudent)
	repo := newMockUserRepo(existing)
	svc := newUserService(repo)

	require.NoError(t, svc.Delete(context.Background(), "u1", "admin-1"))
	assert.Equal(t, []string{"u1"}, repo.deleted)
	assert.Equal(t, models.StatusDeactive, repo.items["u1"].Status)
}

func TestUserListPaginationMetadata(t *testing.T) {
	repo := newMockUserRepo()
	repo.listResult = []models.User{{ID: "u1"}, {ID: "u2"}}
	repo.listTotal = 12
	svc := newUserService(repo)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 0, PageSize: 0})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 12, pagination.TotalCount)
}
