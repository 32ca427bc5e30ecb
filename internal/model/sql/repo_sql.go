package sql

import (
	"context"
	"fmt"

	"staffhub/internal/entity"

	"gorm.io/gorm"
)

// GormRepository implements Repository using GORM
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// WithTransaction runs fn with a repository bound to a single transaction.
// Any error returned by fn rolls the transaction back.
func (r *GormRepository) WithTransaction(ctx context.Context, fn func(tx *GormRepository) error) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

// Ping checks database connectivity.
func (r *GormRepository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// calculatePagination calculates pagination metrics
func (r *GormRepository) calculatePagination(totalCount int64, page, limit int64) *entity.Meta {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	return &entity.Meta{
		Total: totalCount,
		Page:  page,
		Limit: limit,
	}
}
