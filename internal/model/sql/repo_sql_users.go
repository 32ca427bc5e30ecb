package sql

import (
	"context"
	"fmt"
	"strings"

	"staffhub/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateUser persists a new user record. The Role association is never written through.
func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
}

// UpdateUser updates an existing user entry.
func (r *GormRepository) UpdateUser(ctx context.Context, id string, updates entity.UserUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invalid user")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbUser{}).Where("id = ?", id).Updates(updates.ToMap()).Error
}

// GetUserByEmail loads a user and its role by email, regardless of status.
func (r *GormRepository) GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error) {
	return r.findUser(ctx, "LOWER(email) = ?", email, false)
}

// GetUserByID loads a user and its role by ID, regardless of status.
func (r *GormRepository) GetUserByID(ctx context.Context, id string) (*entity.DbUser, error) {
	return r.findUser(ctx, "id = ?", id, false)
}

// GetActiveUserByEmail loads an active user by email.
func (r *GormRepository) GetActiveUserByEmail(ctx context.Context, email string) (*entity.DbUser, error) {
	return r.findUser(ctx, "LOWER(email) = ?", email, true)
}

// GetActiveUserByID loads an active user by ID.
func (r *GormRepository) GetActiveUserByID(ctx context.Context, id string) (*entity.DbUser, error) {
	return r.findUser(ctx, "id = ?", id, true)
}

func (r *GormRepository) findUser(ctx context.Context, cond string, value string, activeOnly bool) (*entity.DbUser, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if strings.HasPrefix(cond, "LOWER(") {
		trimmed = strings.ToLower(trimmed)
	}

	query := r.db.WithContext(ctx).Preload("Role").Where(cond, trimmed)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var user entity.DbUser
	if err := query.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns paginated users.
func (r *GormRepository) ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbUser{})
	if params != nil {
		if trimmed := strings.TrimSpace(params.Role); trimmed != "" {
			roleIDs := r.db.WithContext(ctx).Model(&entity.DbRole{}).Select("id").Where("name = ?", trimmed)
			query = query.Where("role_id IN (?)", roleIDs)
		}
		if keyword := strings.TrimSpace(params.Keyword); keyword != "" {
			kw := "%" + strings.ToLower(keyword) + "%"
			query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", kw, kw)
		}
		if params.IsActive != nil {
			query = query.Where("is_active = ?", *params.IsActive)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	pagination := entity.BaseParams{}
	if params != nil {
		pagination = params.BaseParams
	}
	pagination.Normalise(20, 100)

	var users []entity.DbUser
	if err := query.Preload("Role").
		Order("created_at DESC, id DESC").
		Offset(pagination.Offset()).
		Limit(int(pagination.Limit)).
		Find(&users).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, pagination.Page, pagination.Limit)
	return users, meta, nil
}

// CountUsers returns total user count.
func (r *GormRepository) CountUsers(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.DbUser{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
