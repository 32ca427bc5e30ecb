package sql

import (
	"context"
	"fmt"
	"strings"

	"staffhub/internal/auth"
	"staffhub/internal/entity"

	"gorm.io/gorm"
)

// CreateRole inserts a new role.
func (r *GormRepository) CreateRole(ctx context.Context, role *entity.DbRole) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if role == nil {
		return fmt.Errorf("role is nil")
	}
	if role.Permissions == nil {
		role.Permissions = auth.PermissionSet{}
	}
	return r.db.WithContext(ctx).Create(role).Error
}

// GetRoleByName loads a role by its unique name.
func (r *GormRepository) GetRoleByName(ctx context.Context, name string) (*entity.DbRole, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var role entity.DbRole
	if err := r.db.WithContext(ctx).Where("name = ?", trimmed).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (r *GormRepository) ListRoles(ctx context.Context) ([]entity.DbRole, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	var roles []entity.DbRole
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// UpdateRolePermissions replaces the permission set of a role.
func (r *GormRepository) UpdateRolePermissions(ctx context.Context, id string, permissions auth.PermissionSet) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invalid role id")
	}
	if permissions == nil {
		permissions = auth.PermissionSet{}
	}
	return r.db.WithContext(ctx).Model(&entity.DbRole{}).Where("id = ?", id).Update("permissions", permissions).Error
}
