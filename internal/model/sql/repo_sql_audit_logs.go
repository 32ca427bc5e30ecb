package sql

import (
	"context"
	"fmt"
	"strings"

	"staffhub/internal/entity"
)

// CreateAuditLog appends an audit entry. Entries are never updated or deleted.
func (r *GormRepository) CreateAuditLog(ctx context.Context, entry *entity.DbAuditLog) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListAuditLogs returns matching entries newest first together with the total count.
// StartDate is inclusive and EndDate exclusive.
func (r *GormRepository) ListAuditLogs(ctx context.Context, params *entity.AuditLogQuery) ([]entity.DbAuditLog, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbAuditLog{})
	pagination := entity.BaseParams{}
	if params != nil {
		if userID := strings.TrimSpace(params.UserID); userID != "" {
			query = query.Where("user_id = ?", userID)
		}
		if action := strings.TrimSpace(params.Action); action != "" {
			query = query.Where("action = ?", action)
		} else if len(params.Actions) > 0 {
			query = query.Where("action IN ?", params.Actions)
		}
		if params.StartDate != nil {
			query = query.Where("created_at >= ?", params.StartDate.UTC())
		}
		if params.EndDate != nil {
			query = query.Where("created_at < ?", params.EndDate.UTC())
		}
		pagination = params.BaseParams
	}
	pagination.Normalise(20, 100)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []entity.DbAuditLog
	if err := query.Order("created_at DESC, id DESC").
		Offset(pagination.Offset()).
		Limit(int(pagination.Limit)).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
