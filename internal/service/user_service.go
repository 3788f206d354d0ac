package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mentor-meet-api/internal/models"
	appErrors "github.com/noah-isme/mentor-meet-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users. Accounts start
// PENDING; an empty role defaults to STUDENT.
type CreateUserRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Name        string          `json:"name" validate:"required"`
	Role        models.UserRole `json:"role" validate:"omitempty,oneof=STUDENT MENTOR IA LEADERSHIP ADMIN EC"`
	StudentCode *string         `json:"student_code"`
	Password    string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users. A role change recomputes the
// derived permission set; permissions are never settable directly.
type UpdateUserRequest struct {
	Name       string             `json:"name" validate:"required"`
	Role       models.UserRole    `json:"role" validate:"required,oneof=STUDENT MENTOR IA LEADERSHIP ADMIN EC"`
	Status     *models.UserStatus `json:"status" validate:"omitempty,oneof=ACTIVE ALUMNI DEACTIVE PENDING BANNED"`
	IsVerified *bool              `json:"is_verified"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	security  *AccountSecurity
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, security *AccountSecurity, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, security: security, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user in PENDING state with the role's derived
// permissions and a hashed password.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}

	user := &models.User{
		Email:       strings.ToLower(req.Email),
		Name:        req.Name,
		Status:      models.StatusPending,
		StudentCode: req.StudentCode,
	}
	user.ApplyRole(role)

	if err := s.security.SetPassword(user, req.Password); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.recordUserAudit(ctx, actorID, models.AuditActionUserCreate, user.ID)
	return user, nil
}

// Update modifies profile fields. Changing the role goes through ApplyRole
// so the stored permission set always matches the table.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Name = req.Name
	if req.Role != user.Role {
		user.ApplyRole(req.Role)
	}
	if req.Status != nil {
		user.Status = *req.Status
	}
	if req.IsVerified != nil {
		user.IsVerified = *req.IsVerified
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordUserAudit(ctx, actorID, models.AuditActionUserUpdate, user.ID)
	return user, nil
}

// Delete deactivates a user account.
func (s *UserService) Delete(ctx context.Context, id string, actorID string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.recordUserAudit(ctx, actorID, models.AuditActionUserDelete, id)
	return nil
}

func (s *UserService) recordUserAudit(ctx context.Context, actorID, action, targetID string) {
	log := &models.AuditLog{
		Action:     action,
		Resource:   "user",
		ResourceID: &targetID,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record user audit log", zap.Error(err))
	}
}
