package entity

import (
	"strings"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/utils"

	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleHR       = "hr"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// ValidRole reports whether name is one of the built-in roles.
func ValidRole(name string) bool {
	switch name {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// DbRole is a named permission bundle shared by many users.
type DbRole struct {
	ID          string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Name        string             `gorm:"column:name;type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string             `gorm:"column:description;type:varchar(255)" json:"description"`
	Permissions auth.PermissionSet `gorm:"column:permissions;type:text;not null" json:"permissions"`
}

// TableName overrides default singular name.
func (DbRole) TableName() string {
	return "roles"
}

// BeforeCreate assigns a UUID when none was set.
func (r *DbRole) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.NewID()
	}
	return nil
}

// DbUser represents a persisted user account.
type DbUser struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Email        string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	RoleID       string    `gorm:"column:role_id;type:varchar(36);index;not null" json:"role_id"`
	Role         *DbRole   `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	IsActive     bool      `gorm:"column:is_active;not null" json:"is_active"`
}

// TableName overrides default singular name.
func (DbUser) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID and normalises the email.
func (u *DbUser) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = utils.NewID()
	}
	u.Email = NormaliseEmail(u.Email)
	return nil
}

// RoleName returns the loaded role name or an empty string.
func (u *DbUser) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// TokenPayload builds the identity embedded in issued tokens.
func (u *DbUser) TokenPayload() auth.Payload {
	payload := auth.Payload{
		UserID:      u.ID,
		Email:       u.Email,
		Role:        u.RoleName(),
		Permissions: auth.PermissionSet{},
	}
	if u.Role != nil && u.Role.Permissions != nil {
		payload.Permissions = u.Role.Permissions.Clone()
	}
	return payload
}

// NormaliseEmail lower-cases and trims an address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserSummary is the public view of a user. It never carries the hash.
type UserSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Summary converts a user into its public view.
func (u *DbUser) Summary() UserSummary {
	if u == nil {
		return UserSummary{}
	}
	summary := UserSummary{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.RoleName(),
		IsActive: u.IsActive,
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		summary.CreatedAt = &created
	}
	return summary
}

// UserQuery supports listing users with pagination.
type UserQuery struct {
	BaseParams
	Role     string `json:"role" form:"role" query:"role"`
	Keyword  string `json:"keyword" form:"keyword" query:"keyword"`
	IsActive *bool  `json:"is_active" form:"is_active" query:"is_active"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}

type SetActiveStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type SetActiveStatusResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}
