package model

import (
	"context"
	"time"

	"staffhub/internal/auth"
	"staffhub/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id string, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id string) (*entity.DbUser, error)
	GetActiveUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetActiveUserByID(ctx context.Context, id string) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	CountUsers(ctx context.Context) (int64, error)

	// 角色
	CreateRole(ctx context.Context, role *entity.DbRole) error
	GetRoleByName(ctx context.Context, name string) (*entity.DbRole, error)
	ListRoles(ctx context.Context) ([]entity.DbRole, error)
	UpdateRolePermissions(ctx context.Context, id string, permissions auth.PermissionSet) error

	// 刷新令牌账本
	UpsertRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindLiveRefreshToken(ctx context.Context, token string, now time.Time) (*entity.DbRefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) (int64, error)
	DeleteRefreshTokensForUser(ctx context.Context, userID string) (int64, error)
	SweepExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	CountRefreshTokensForUser(ctx context.Context, userID string) (int64, error)

	// 审计日志
	CreateAuditLog(ctx context.Context, entry *entity.DbAuditLog) error
	ListAuditLogs(ctx context.Context, params *entity.AuditLogQuery) ([]entity.DbAuditLog, int64, error)

	// Transaction runs fn against a repository bound to one database transaction.
	// Returning an error from fn rolls back every write made through it.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	Ping(ctx context.Context) error
}
