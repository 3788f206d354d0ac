package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for permission derivation.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleMentor     UserRole = "MENTOR"
	RoleIA         UserRole = "IA"
	RoleLeadership UserRole = "LEADERSHIP"
	RoleAdmin      UserRole = "ADMIN"
	RoleEC         UserRole = "EC"
)

// UserStatus represents the account lifecycle state.
type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusAlumni   UserStatus = "ALUMNI"
	StatusDeactive UserStatus = "DEACTIVE"
	StatusPending  UserStatus = "PENDING"
	StatusBanned   UserStatus = "BANNED"
)

// Permission is an atomic capability checked before meeting operations.
type Permission string

const (
	PermissionCreateMeeting Permission = "create_meeting"
	PermissionEditMeeting   Permission = "edit_meeting"
	PermissionDeleteMeeting Permission = "delete_meeting"
	PermissionViewMeeting   Permission = "view_meeting"
	PermissionManageUsers   Permission = "manage_users"
)

// AllPermissions lists every capability known to the system.
var AllPermissions = []Permission{
	PermissionCreateMeeting,
	PermissionEditMeeting,
	PermissionDeleteMeeting,
	PermissionViewMeeting,
	PermissionManageUsers,
}

// rolePermissions is the static role→permission table, initialised once and
// read-only thereafter.
var rolePermissions = map[UserRole][]Permission{
	RoleAdmin:      AllPermissions,
	RoleLeadership: {PermissionCreateMeeting, PermissionViewMeeting},
	RoleMentor:     {PermissionCreateMeeting, PermissionViewMeeting, PermissionEditMeeting},
	RoleStudent:    {PermissionViewMeeting},
	RoleIA:         {PermissionViewMeeting},
	RoleEC:         {PermissionViewMeeting},
}

// DerivePermissions returns the permission set for a role. Unmapped roles
// derive the minimal view-only set rather than an empty one.
func DerivePermissions(role UserRole) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = []Permission{PermissionViewMeeting}
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// User represents an application user stored in the users table.
type User struct {
	ID                  string         `db:"id" json:"id"`
	StudentCode         *string        `db:"student_code" json:"student_code,omitempty"`
	Email               string         `db:"email" json:"email"`
	Name                string         `db:"name" json:"name"`
	Role                UserRole       `db:"role" json:"role"`
	Status              UserStatus     `db:"status" json:"status"`
	IsVerified          bool           `db:"is_verified" json:"is_verified"`
	PasswordHash        string         `db:"password_hash" json:"-"`
	Permissions         pq.StringArray `db:"permissions" json:"permissions"`
	FailedLoginAttempts int            `db:"failed_login_attempts" json:"-"`
	LockUntil           *time.Time     `db:"lock_until" json:"-"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// HasPermission reports whether the user's derived set contains the permission.
func (u *User) HasPermission(p Permission) bool {
	for _, held := range u.Permissions {
		if held == string(p) {
			return true
		}
	}
	return false
}

// ApplyRole sets the role and recomputes the derived permission set. Every
// mutation path that changes the role must go through here.
func (u *User) ApplyRole(role UserRole) {
	u.Role = role
	perms := DerivePermissions(role)
	u.Permissions = make(pq.StringArray, len(perms))
	for i, p := range perms {
		u.Permissions[i] = string(p)
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Status    *UserStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
